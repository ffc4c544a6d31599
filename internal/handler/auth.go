package handler

import (
	"net/http"
	"time"

	"github.com/steeplehq/steeple/internal/auth"
	"github.com/steeplehq/steeple/internal/model"
	"github.com/steeplehq/steeple/internal/server/middleware"
)

// AuthHandler exposes the authentication endpoints: initial setup, login,
// session introspection, logout, and the password-reset flow.
type AuthHandler struct {
	svc *auth.Service
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// HasAdmin reports whether initial setup has been completed.
// GET /api/v1/auth/check-admin
func (h *AuthHandler) HasAdmin(w http.ResponseWriter, r *http.Request) {
	hasAdmin, err := h.svc.HasAdmin(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"hasAdmin": hasAdmin})
}

// setupRequest is the expected payload for Setup.
type setupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Setup creates the first admin account. Allowed exactly once; afterwards it
// returns 409.
// POST /api/v1/auth/setup-admin
func (h *AuthHandler) Setup(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
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

	rec, err := h.svc.SetupAdmin(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "user": rec})
}

// loginRequest is the expected payload for Login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies credentials and returns a bearer session plus the admin
// profile.
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	sess, rec, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"session": model.SessionInfo{
			AccessToken: sess.AccessToken,
			TokenType:   sess.TokenType,
			ExpiresIn:   int(time.Until(sess.ExpiresAt).Seconds()),
		},
		"user": rec,
	})
}

// Session resolves the caller's bearer token. An absent or stale token is not
// an error; the response simply carries a null session and user so the client
// can fall back to the login screen.
// GET /api/v1/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"session": nil, "user": nil})
		return
	}

	u, rec, err := h.svc.Session(r.Context(), token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if u == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"session": nil, "user": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": model.SessionInfo{AccessToken: token, TokenType: "bearer"},
		"user":    rec,
	})
}

// Me returns the authenticated caller's profile with the super-admin flag the
// client uses to reveal the gated sections.
// GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u := middleware.GetIdentity(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": map[string]interface{}{
			"id":           u.ID,
			"email":        u.Email,
			"name":         u.Name,
			"role":         u.Role,
			"createdAt":    u.CreatedAt,
			"isSuperAdmin": auth.IsSuperAdmin(u),
		},
	})
}

// Logout revokes the caller's session. Always succeeds from the client's
// point of view.
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.BearerToken(r); token != "" {
		h.svc.Logout(r.Context(), token)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// emailRequest is the payload for ForgotPassword.
type emailRequest struct {
	Email string `json:"email"`
}

// ForgotPassword issues a password-reset code and delivers it out-of-band.
// The response never carries the code.
// POST /api/v1/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "If the account exists, a reset code has been sent",
	})
}

// verifyCodeRequest is the payload for VerifyResetCode.
type verifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// VerifyResetCode checks a submitted reset code without consuming it.
// POST /api/v1/auth/verify-reset-code
func (h *AuthHandler) VerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "Email and code are required")
		return
	}

	if err := h.svc.VerifyResetCode(r.Context(), req.Email, req.Code); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// resetPasswordRequest is the payload for ResetPassword.
type resetPasswordRequest struct {
	Email       string `json:"email"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword sets a new password for an account with a live reset request.
// POST /api/v1/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "Email and new password are required")
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req.Email, req.NewPassword); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// changePasswordRequest is the payload for ChangePassword.
type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword updates the authenticated caller's password after
// re-verifying the current one.
// POST /api/v1/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "Current and new password are required")
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	if err := h.svc.ChangePassword(r.Context(), middleware.GetToken(r.Context()), req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
