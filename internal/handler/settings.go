package handler

import (
	"errors"
	"net/http"

	"github.com/steeplehq/steeple/internal/kv"
	"github.com/steeplehq/steeple/internal/model"
)

// SettingsHandler serves the church-wide settings document. Reads are open to
// any authenticated user; writes are routed behind the super-admin gate.
type SettingsHandler struct {
	store kv.Store
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(store kv.Store) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// Get returns the stored settings merged over the defaults, so fields added
// after the document was last saved still come back populated.
// GET /api/v1/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings := model.DefaultSettings()

	var stored map[string]any
	err := kv.GetJSON(r.Context(), h.store, model.SettingsKey, &stored)
	switch {
	case err == nil:
		for k, v := range stored {
			settings[k] = v
		}
	case errors.Is(err, kv.ErrNotFound):
		// First read before any save; defaults stand.
	default:
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"settings": settings})
}

// Update merges the submitted fields into the stored document.
// PUT /api/v1/settings
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := readJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	settings := model.DefaultSettings()
	var stored map[string]any
	if err := kv.GetJSON(r.Context(), h.store, model.SettingsKey, &stored); err == nil {
		for k, v := range stored {
			settings[k] = v
		}
	}
	for k, v := range patch {
		settings[k] = v
	}

	if err := h.store.Set(r.Context(), model.SettingsKey, settings); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"settings": settings, "success": true})
}
