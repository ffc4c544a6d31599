// Package identity implements the identity provider: account management,
// credential verification, and bearer-token issuance and validation. The
// rest of the application treats tokens as opaque and always resolves them
// through the provider.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials is returned on a failed email/password check.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidToken is returned when a bearer token does not resolve to
	// a live session.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrUserExists is returned when creating a user with a taken email.
	ErrUserExists = errors.New("a user with this email already exists")
	// ErrNotFound is returned when the referenced user does not exist.
	ErrNotFound = errors.New("user not found")
)

// User is an account managed by the provider. The password hash never leaves
// the provider.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastSignInAt *time.Time `json:"lastSignInAt,omitempty"`
}

// Session is an issued access token and its lifetime.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// CreateUserParams are the inputs for CreateUser. Role defaults to "member"
// when empty.
type CreateUserParams struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// UpdateUserParams are the inputs for UpdateUser. Nil pointer fields are left
// unchanged; an empty Password leaves the credential untouched.
type UpdateUserParams struct {
	Name     *string
	Role     *string
	Password string
}

// Provider is the identity contract consumed by the auth service and the
// authentication middleware.
type Provider interface {
	CreateUser(ctx context.Context, p CreateUserParams) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, id string, p UpdateUserParams) (*User, error)
	DeleteUser(ctx context.Context, id string) error

	// SignIn verifies the credentials and issues a new session.
	SignIn(ctx context.Context, email, password string) (*Session, *User, error)
	// UserForToken resolves a bearer token to its user, or ErrInvalidToken.
	UserForToken(ctx context.Context, token string) (*User, error)
	// SignOut invalidates the session behind the token. Unknown or already
	// expired tokens are a no-op.
	SignOut(ctx context.Context, token string) error
}
