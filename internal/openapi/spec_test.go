package openapi

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/steeplehq/steeple/internal/resource"
)

func TestGenerate_Valid(t *testing.T) {
	doc := Generate()

	if doc.OpenAPI != "3.1.0" {
		t.Errorf("openapi = %q, want 3.1.0", doc.OpenAPI)
	}
	if doc.Info.Title != "Steeple API" {
		t.Errorf("title = %q", doc.Info.Title)
	}
	if doc.Components.SecuritySchemes["bearerAuth"] == nil {
		t.Error("missing bearerAuth security scheme")
	}
	for _, schema := range []string{"ErrorResponse", "User", "Document"} {
		if doc.Components.Schemas[schema] == nil {
			t.Errorf("missing component schema %s", schema)
		}
	}
}

func TestGenerate_CoversCollections(t *testing.T) {
	doc := Generate()

	for _, col := range resource.Collections {
		base := "/" + col.BasePath()

		item := doc.Paths.Find(base)
		if item == nil {
			t.Errorf("missing path %s", base)
			continue
		}
		if item.Get == nil || item.Post == nil {
			t.Errorf("%s: want GET and POST operations", base)
		}

		idItem := doc.Paths.Find(base + "/{id}")
		if col.AppendOnly {
			if idItem != nil {
				t.Errorf("%s/{id}: append-only collection must not document item routes", base)
			}
			continue
		}
		if idItem == nil {
			t.Errorf("missing path %s/{id}", base)
			continue
		}
		if idItem.Put == nil || idItem.Delete == nil {
			t.Errorf("%s/{id}: want PUT and DELETE operations", base)
		}
	}
}

func TestGenerate_AuthSurface(t *testing.T) {
	doc := Generate()

	for _, path := range []string{
		"/auth/check-admin",
		"/auth/setup-admin",
		"/auth/login",
		"/auth/session",
		"/auth/logout",
		"/auth/forgot-password",
		"/auth/verify-reset-code",
		"/auth/reset-password",
		"/auth/me",
		"/auth/change-password",
		"/communications/send-email",
		"/settings",
		"/users",
		"/users/{id}",
	} {
		if doc.Paths.Find(path) == nil {
			t.Errorf("missing path %s", path)
		}
	}

	// change-password requires the bearer scheme; login does not.
	cp := doc.Paths.Find("/auth/change-password").Post
	if cp.Security == nil {
		t.Error("change-password should declare security")
	}
	login := doc.Paths.Find("/auth/login").Post
	if login.Security != nil {
		t.Error("login should not declare security")
	}
}

func TestHandler(t *testing.T) {
	h := Handler()

	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest("GET", "/openapi.json", nil))

	if rr.Code != 200 {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var spec map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &spec); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if spec["openapi"] != "3.1.0" {
		t.Errorf("openapi = %v", spec["openapi"])
	}
}
