package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/steeplehq/steeple/internal/resource"
	"github.com/steeplehq/steeple/internal/server/middleware"
)

// ResourceHandler exposes CRUD over the dashboard collections. One handler
// serves every collection; the route closure pins the collection.
type ResourceHandler struct {
	svc *resource.Service
}

// NewResourceHandler creates a new ResourceHandler.
func NewResourceHandler(svc *resource.Service) *ResourceHandler {
	return &ResourceHandler{svc: svc}
}

// actor returns the audit identity for the request, the authenticated user's
// id.
func actor(r *http.Request) string {
	if u := middleware.GetIdentity(r.Context()); u != nil {
		return u.ID
	}
	return ""
}

// List returns all documents in the collection.
// GET /api/v1/{collection}s
func (h *ResourceHandler) List(col resource.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := h.svc.List(r.Context(), col)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{col.ListKey(): docs})
	}
}

// Create stores a new document.
// POST /api/v1/{collection}s
func (h *ResourceHandler) Create(col resource.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var doc resource.Document
		if err := readJSON(r, &doc); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}

		created, err := h.svc.Create(r.Context(), col, doc, actor(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{col.ItemKey(): created})
	}
}

// Update merges a patch into an existing document.
// PUT /api/v1/{collection}s/{id}
func (h *ResourceHandler) Update(col resource.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch resource.Document
		if err := readJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}

		updated, err := h.svc.Update(r.Context(), col, chi.URLParam(r, "id"), patch, actor(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{col.ItemKey(): updated})
	}
}

// Delete removes a document.
// DELETE /api/v1/{collection}s/{id}
func (h *ResourceHandler) Delete(col resource.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.svc.Delete(r.Context(), col, chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}
