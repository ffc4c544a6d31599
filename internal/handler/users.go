package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/steeplehq/steeple/internal/auth"
	"github.com/steeplehq/steeple/internal/server/middleware"
)

// UsersHandler exposes account management. The whole group is gated behind
// the super-admin middleware at the router.
type UsersHandler struct {
	svc *auth.Service
}

// NewUsersHandler creates a new UsersHandler.
func NewUsersHandler(svc *auth.Service) *UsersHandler {
	return &UsersHandler{svc: svc}
}

func writeUsersError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrRoleNotAllowed):
		writeError(w, http.StatusBadRequest, "Role must be admin or member")
	case errors.Is(err, auth.ErrSuperAdminProtected):
		writeError(w, http.StatusForbidden, "The super admin account cannot be modified")
	case errors.Is(err, auth.ErrSelfDelete):
		writeError(w, http.StatusBadRequest, "You cannot delete your own account")
	default:
		writeServiceError(w, err)
	}
}

// List returns all accounts.
// GET /api/v1/users
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		writeUsersError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// createUserRequest is the payload for Create.
type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// Create provisions a new account.
// POST /api/v1/users
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	u, err := h.svc.CreateUser(r.Context(), req.Email, req.Password, req.Name, req.Role)
	if err != nil {
		writeUsersError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"user": u})
}

// updateUserRequest is the payload for Update. Absent fields are unchanged.
type updateUserRequest struct {
	Name     *string `json:"name"`
	Role     *string `json:"role"`
	Password string  `json:"password"`
}

// Update changes an account's name, role, or password.
// PUT /api/v1/users/{id}
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Password != "" && len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	u, err := h.svc.UpdateUser(r.Context(), chi.URLParam(r, "id"), req.Name, req.Role, req.Password)
	if err != nil {
		writeUsersError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": u})
}

// Delete removes an account.
// DELETE /api/v1/users/{id}
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetIdentity(r.Context())
	callerID := ""
	if caller != nil {
		callerID = caller.ID
	}

	if err := h.svc.DeleteUser(r.Context(), chi.URLParam(r, "id"), callerID); err != nil {
		writeUsersError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
