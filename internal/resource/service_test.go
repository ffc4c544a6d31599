package resource

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/steeplehq/steeple/internal/kv"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := kv.OpenSQLite("")
	if err != nil {
		t.Fatalf("kv.OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store)
}

func col(t *testing.T, name string) Collection {
	t.Helper()
	c, err := Lookup(name)
	if err != nil {
		t.Fatalf("Lookup(%s): %v", name, err)
	}
	return c
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"member", "event", "donation", "volunteer", "blog", "communication"} {
		if _, err := Lookup(name); err != nil {
			t.Errorf("Lookup(%s): %v", name, err)
		}
	}
	if _, err := Lookup("gremlin"); !errors.Is(err, ErrUnknownCollection) {
		t.Errorf("err = %v, want ErrUnknownCollection", err)
	}
}

func TestCollection_PathAndEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		basePath string
		listKey  string
		itemKey  string
	}{
		{"member", "members", "members", "member"},
		{"donation", "donations", "donations", "donation"},
		{"blog", "blog", "posts", "post"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := col(t, tt.name)
			if got := c.BasePath(); got != tt.basePath {
				t.Errorf("BasePath() = %q, want %q", got, tt.basePath)
			}
			if got := c.ListKey(); got != tt.listKey {
				t.Errorf("ListKey() = %q, want %q", got, tt.listKey)
			}
			if got := c.ItemKey(); got != tt.itemKey {
				t.Errorf("ItemKey() = %q, want %q", got, tt.itemKey)
			}
		})
	}
}

func TestCreate_StampsFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, col(t, "event"), Document{"title": "Picnic"}, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	id, _ := doc["id"].(string)
	if !strings.HasPrefix(id, "event:") {
		t.Errorf("id = %q, want event: prefix", id)
	}
	if doc["createdBy"] != "user-1" {
		t.Errorf("createdBy = %v", doc["createdBy"])
	}
	createdAt, _ := doc["createdAt"].(string)
	if _, err := time.Parse(time.RFC3339, createdAt); err != nil {
		t.Errorf("createdAt %q not RFC3339: %v", createdAt, err)
	}
}

func TestCreate_DiscardsClientAuditFields(t *testing.T) {
	svc := newTestService(t)

	doc, err := svc.Create(context.Background(), col(t, "event"), Document{
		"id":        "event:forged",
		"createdAt": "1999-01-01T00:00:00Z",
		"createdBy": "attacker",
		"updatedAt": "1999-01-01T00:00:00Z",
		"updatedBy": "attacker",
	}, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if doc["id"] == "event:forged" {
		t.Error("client-supplied id accepted")
	}
	if doc["createdBy"] != "user-1" {
		t.Errorf("createdBy = %v, want user-1", doc["createdBy"])
	}
	if _, ok := doc["updatedAt"]; ok {
		t.Error("updatedAt present on a fresh document")
	}
	if _, ok := doc["updatedBy"]; ok {
		t.Error("updatedBy present on a fresh document")
	}
}

func TestCreate_MemberDefaults(t *testing.T) {
	svc := newTestService(t)

	doc, err := svc.Create(context.Background(), col(t, "member"), Document{"name": "Pat"}, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if doc["status"] != "Active" {
		t.Errorf("status = %v, want Active", doc["status"])
	}
	joinDate, _ := doc["joinDate"].(string)
	if _, err := time.Parse("2006-01-02", joinDate); err != nil {
		t.Errorf("joinDate %q: %v", joinDate, err)
	}

	// Explicit values win over defaults.
	doc, err = svc.Create(context.Background(), col(t, "member"), Document{
		"name":   "Sam",
		"status": "Visitor",
	}, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if doc["status"] != "Visitor" {
		t.Errorf("status = %v, want Visitor", doc["status"])
	}
}

func TestCreate_CommunicationDefaults(t *testing.T) {
	svc := newTestService(t)

	doc, err := svc.Create(context.Background(), col(t, "communication"), Document{"subject": "Hello"}, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if doc["status"] != "Draft" {
		t.Errorf("status = %v, want Draft", doc["status"])
	}
	if doc["date"] == nil {
		t.Error("expected date default")
	}
}

func TestUpdate_MergesAndStamps(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	events := col(t, "event")

	doc, err := svc.Create(ctx, events, Document{"title": "Picnic", "location": "Park"}, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := doc["id"].(string)

	updated, err := svc.Update(ctx, events, id, Document{
		"title":     "Potluck",
		"id":        "event:forged",
		"createdAt": "1999-01-01T00:00:00Z",
		"createdBy": "attacker",
	}, "user-2")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if updated["title"] != "Potluck" {
		t.Errorf("title = %v", updated["title"])
	}
	if updated["location"] != "Park" {
		t.Errorf("location lost on merge: %v", updated["location"])
	}
	if updated["id"] != id {
		t.Errorf("id patched: %v", updated["id"])
	}
	if updated["createdBy"] != "user-1" {
		t.Errorf("createdBy patched: %v", updated["createdBy"])
	}
	if updated["updatedBy"] != "user-2" {
		t.Errorf("updatedBy = %v", updated["updatedBy"])
	}
	if updated["updatedAt"] == nil {
		t.Error("expected updatedAt stamp")
	}
}

func TestUpdate_NotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Update(context.Background(), col(t, "event"), "event:missing", Document{"x": 1}, "user-1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateDelete_WrongPrefix(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, col(t, "event"), Document{"title": "Service"}, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	eventID := doc["id"].(string)

	members := col(t, "member")
	if _, err := svc.Update(ctx, members, eventID, Document{"name": "x"}, "user-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-collection update err = %v, want ErrNotFound", err)
	}
	if err := svc.Delete(ctx, members, eventID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-collection delete err = %v, want ErrNotFound", err)
	}

	// The event itself is untouched.
	docs, err := svc.List(ctx, col(t, "event"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("event count = %d, want 1", len(docs))
	}
}

func TestDelete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	events := col(t, "event")

	doc, err := svc.Create(ctx, events, Document{"title": "Service"}, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := doc["id"].(string)

	if err := svc.Delete(ctx, events, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, events, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestDonations_AppendOnly(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	donations := col(t, "donation")

	doc, err := svc.Create(ctx, donations, Document{"amount": 50}, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := doc["id"].(string)
	if doc["date"] == nil {
		t.Error("expected date default")
	}

	if _, err := svc.Update(ctx, donations, id, Document{"amount": 1}, "user-1"); !errors.Is(err, ErrImmutable) {
		t.Errorf("update err = %v, want ErrImmutable", err)
	}
	if err := svc.Delete(ctx, donations, id); !errors.Is(err, ErrImmutable) {
		t.Errorf("delete err = %v, want ErrImmutable", err)
	}
}

func TestList_CreationOrder(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	events := col(t, "event")

	for _, title := range []string{"one", "two", "three"} {
		if _, err := svc.Create(ctx, events, Document{"title": title}, "user-1"); err != nil {
			t.Fatalf("Create %s: %v", title, err)
		}
	}

	docs, err := svc.List(ctx, events)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"one", "two", "three"}
	for i, doc := range docs {
		if doc["title"] != want[i] {
			t.Errorf("docs[%d].title = %v, want %v", i, doc["title"], want[i])
		}
	}
}

func TestList_BlogNewestFirst(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	blogs := col(t, "blog")

	// Distinct timestamps via an injected clock.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	svc.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}

	for _, title := range []string{"oldest", "middle", "newest"} {
		if _, err := svc.Create(ctx, blogs, Document{"title": title}, "user-1"); err != nil {
			t.Fatalf("Create %s: %v", title, err)
		}
	}

	docs, err := svc.List(ctx, blogs)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"newest", "middle", "oldest"}
	for i, doc := range docs {
		if doc["title"] != want[i] {
			t.Errorf("docs[%d].title = %v, want %v", i, doc["title"], want[i])
		}
	}
}

func TestList_Empty(t *testing.T) {
	svc := newTestService(t)

	docs, err := svc.List(context.Background(), col(t, "volunteer"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("len = %d, want 0", len(docs))
	}
}
