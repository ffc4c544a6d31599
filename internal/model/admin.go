package model

import "time"

// Account roles. Exactly one account may hold RoleSuperAdmin; it is assigned
// during bootstrap and can never be granted through the user-management API.
const (
	RoleMember     = "member"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// AdminRecord is the application's own denormalized copy of an administrator
// profile, stored in the KV store under "admin:<user-id>" alongside the
// identity provider's account. Field names are camelCase because this is the
// wire format the dashboard consumes.
type AdminRecord struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// ResetRequest is a short-lived, single-use password-reset code bound to an
// email address, stored under "reset:<email>". At most one live request
// exists per email; a new request overwrites the previous one.
type ResetRequest struct {
	Code      string    `json:"code"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the request is past its expiry at the given time.
func (r ResetRequest) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
