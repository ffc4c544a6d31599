// Package resource implements the dashboard's prefix-scoped CRUD collections:
// members, events, donations, volunteers, blog posts, and communications. Each
// document is a JSON object stored in the KV store under "<collection>:<uuid>";
// the service stamps ids and audit fields and leaves the rest of the document
// shape to the client.
package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/steeplehq/steeple/internal/kv"
)

var (
	// ErrNotFound is returned when the document does not exist, or when the
	// id does not belong to the addressed collection.
	ErrNotFound = errors.New("resource not found")

	// ErrUnknownCollection is returned for a collection name the service
	// does not manage.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrImmutable is returned for update/delete on a collection that only
	// supports create and list.
	ErrImmutable = errors.New("collection does not support updates")
)

// Document is a stored resource. Every document carries "id", "createdAt" and
// "createdBy"; updated documents also carry "updatedAt" and "updatedBy".
type Document = map[string]any

// Collection describes one managed resource type.
type Collection struct {
	// Name is the key prefix (without the colon) and the default stem for
	// the URL segment and envelope keys.
	Name string
	// NewestFirst lists documents in reverse creation order.
	NewestFirst bool
	// AppendOnly restricts the collection to create and list.
	AppendOnly bool
	// path, listKey and itemKey override the derived URL segment and
	// response envelope keys.
	path    string
	listKey string
	itemKey string
	// defaults fills collection-specific fields absent from a new document.
	defaults func(doc Document, now time.Time)
}

// BasePath returns the URL segment the collection is served under.
func (c Collection) BasePath() string {
	if c.path != "" {
		return c.path
	}
	return c.Name + "s"
}

// ListKey returns the envelope key for list responses.
func (c Collection) ListKey() string {
	if c.listKey != "" {
		return c.listKey
	}
	return c.Name + "s"
}

// ItemKey returns the envelope key for single-document responses.
func (c Collection) ItemKey() string {
	if c.itemKey != "" {
		return c.itemKey
	}
	return c.Name
}

// Collections is the fixed set of managed resource types, in dashboard order.
var Collections = []Collection{
	{Name: "member", defaults: func(doc Document, now time.Time) {
		setDefault(doc, "joinDate", now.Format("2006-01-02"))
		setDefault(doc, "status", "Active")
	}},
	{Name: "event"},
	{Name: "donation", AppendOnly: true, defaults: func(doc Document, now time.Time) {
		setDefault(doc, "date", now.Format("2006-01-02"))
	}},
	{Name: "volunteer", defaults: func(doc Document, now time.Time) {
		setDefault(doc, "status", "Active")
	}},
	{Name: "blog", NewestFirst: true, path: "blog", listKey: "posts", itemKey: "post"},
	{Name: "communication", defaults: func(doc Document, now time.Time) {
		setDefault(doc, "date", now.Format("2006-01-02"))
		setDefault(doc, "status", "Draft")
	}},
}

// Lookup resolves a collection by name.
func Lookup(name string) (Collection, error) {
	for _, c := range Collections {
		if c.Name == name {
			return c, nil
		}
	}
	return Collection{}, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
}

func (c Collection) prefix() string {
	return c.Name + ":"
}

func setDefault(doc Document, key string, value any) {
	if _, ok := doc[key]; !ok {
		doc[key] = value
	}
}

// Service performs collection CRUD over the KV store.
type Service struct {
	store kv.Store

	now func() time.Time
}

// NewService creates the resource service.
func NewService(store kv.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// List returns all documents in the collection. Order follows the key order
// (creation order, since ids are time-sortable) unless the collection is
// marked newest-first.
func (s *Service) List(ctx context.Context, col Collection) ([]Document, error) {
	entries, err := s.store.GetByPrefix(ctx, col.prefix())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", col.Name, err)
	}

	docs := make([]Document, 0, len(entries))
	for _, e := range entries {
		var doc Document
		if err := json.Unmarshal(e.Value, &doc); err != nil {
			return nil, fmt.Errorf("decode %q: %w", e.Key, err)
		}
		docs = append(docs, doc)
	}

	if col.NewestFirst {
		sort.SliceStable(docs, func(i, j int) bool {
			a, _ := docs[i]["createdAt"].(string)
			b, _ := docs[j]["createdAt"].(string)
			return a > b
		})
	}
	return docs, nil
}

// Create stores a new document. The id and audit fields are always assigned
// here; client-supplied values for them are discarded.
func (s *Service) Create(ctx context.Context, col Collection, doc Document, actor string) (Document, error) {
	if doc == nil {
		doc = Document{}
	}

	now := s.now().UTC()
	if col.defaults != nil {
		col.defaults(doc, now)
	}

	id := col.prefix() + uuid.Must(uuid.NewV7()).String()
	doc["id"] = id
	doc["createdAt"] = now.Format(time.RFC3339)
	doc["createdBy"] = actor
	delete(doc, "updatedAt")
	delete(doc, "updatedBy")

	if err := s.store.Set(ctx, id, doc); err != nil {
		return nil, fmt.Errorf("create %s: %w", col.Name, err)
	}
	return doc, nil
}

// Update merges the patch into the stored document and stamps updatedAt and
// updatedBy. The id, createdAt and createdBy fields cannot be patched.
func (s *Service) Update(ctx context.Context, col Collection, id string, patch Document, actor string) (Document, error) {
	if col.AppendOnly {
		return nil, ErrImmutable
	}
	doc, err := s.get(ctx, col, id)
	if err != nil {
		return nil, err
	}

	for k, v := range patch {
		switch k {
		case "id", "createdAt", "createdBy":
			// immutable
		default:
			doc[k] = v
		}
	}
	doc["updatedAt"] = s.now().UTC().Format(time.RFC3339)
	doc["updatedBy"] = actor

	if err := s.store.Set(ctx, id, doc); err != nil {
		return nil, fmt.Errorf("update %s: %w", col.Name, err)
	}
	return doc, nil
}

// Delete removes the document.
func (s *Service) Delete(ctx context.Context, col Collection, id string) error {
	if col.AppendOnly {
		return ErrImmutable
	}
	// Confirm existence first so a delete of a missing id reports not found
	// instead of silently succeeding.
	if _, err := s.get(ctx, col, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete %s: %w", col.Name, err)
	}
	return nil
}

// get loads a document, rejecting ids that do not carry the collection's
// prefix so one collection's endpoint can never read another's keys.
func (s *Service) get(ctx context.Context, col Collection, id string) (Document, error) {
	if !strings.HasPrefix(id, col.prefix()) {
		return nil, ErrNotFound
	}
	var doc Document
	if err := kv.GetJSON(ctx, s.store, id, &doc); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load %s: %w", col.Name, err)
	}
	return doc, nil
}
