package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/steeplehq/steeple/internal/kv"
	"github.com/steeplehq/steeple/internal/model"
)

// Key layout inside the KV store. The useremail index gives O(1) lookup by
// address instead of scanning the full user list.
const (
	userPrefix    = "user:"
	emailPrefix   = "useremail:"
	sessionPrefix = "session:"
)

// Local is the built-in Provider backed by the KV store. Passwords are
// bcrypt hashes; access tokens are HS256 JWTs whose jti must match a live
// session record, so sign-out genuinely revokes a token before its expiry.
type Local struct {
	store  kv.Store
	secret []byte
	ttl    time.Duration

	now func() time.Time
}

// NewLocal creates a provider signing tokens with secret, valid for ttl.
func NewLocal(store kv.Store, secret string, ttl time.Duration) *Local {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Local{
		store:  store,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// storedUser is the persisted form of a User; unlike the public type it
// carries the password hash.
type storedUser struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	PasswordHash string     `json:"passwordHash"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastSignInAt *time.Time `json:"lastSignInAt,omitempty"`
}

func (u storedUser) public() *User {
	return &User{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Role:         u.Role,
		CreatedAt:    u.CreatedAt,
		LastSignInAt: u.LastSignInAt,
	}
}

// emailIndex is the document stored under useremail:<email>.
type emailIndex struct {
	UserID string `json:"userId"`
}

// sessionRecord is the document stored under session:<jti>.
type sessionRecord struct {
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type tokenClaims struct {
	jwt.RegisteredClaims
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (l *Local) CreateUser(ctx context.Context, p CreateUserParams) (*User, error) {
	email := normalizeEmail(p.Email)
	if email == "" || p.Password == "" {
		return nil, fmt.Errorf("email and password are required")
	}

	if _, err := l.store.Get(ctx, emailPrefix+email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("check email index: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	role := p.Role
	if role == "" {
		role = model.RoleMember
	}

	u := storedUser{
		ID:           uuid.Must(uuid.NewV7()).String(),
		Email:        email,
		Name:         p.Name,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    l.now().UTC(),
	}

	if err := l.store.Set(ctx, userPrefix+u.ID, u); err != nil {
		return nil, fmt.Errorf("store user: %w", err)
	}
	if err := l.store.Set(ctx, emailPrefix+email, emailIndex{UserID: u.ID}); err != nil {
		return nil, fmt.Errorf("store email index: %w", err)
	}

	return u.public(), nil
}

func (l *Local) getStored(ctx context.Context, id string) (*storedUser, error) {
	var u storedUser
	if err := kv.GetJSON(ctx, l.store, userPrefix+id, &u); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}
	return &u, nil
}

func (l *Local) GetUser(ctx context.Context, id string) (*User, error) {
	u, err := l.getStored(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.public(), nil
}

func (l *Local) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var idx emailIndex
	if err := kv.GetJSON(ctx, l.store, emailPrefix+normalizeEmail(email), &idx); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load email index: %w", err)
	}
	return l.GetUser(ctx, idx.UserID)
}

func (l *Local) ListUsers(ctx context.Context) ([]User, error) {
	entries, err := l.store.GetByPrefix(ctx, userPrefix)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]User, 0, len(entries))
	for _, e := range entries {
		var u storedUser
		if err := unmarshalEntry(e, &u); err != nil {
			return nil, err
		}
		users = append(users, *u.public())
	}
	return users, nil
}

func (l *Local) UpdateUser(ctx context.Context, id string, p UpdateUserParams) (*User, error) {
	u, err := l.getStored(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = string(hash)
	}

	if err := l.store.Set(ctx, userPrefix+u.ID, u); err != nil {
		return nil, fmt.Errorf("store user: %w", err)
	}
	return u.public(), nil
}

// DeleteUser removes the account and its email index. Live sessions are left
// to lapse at their expiry.
func (l *Local) DeleteUser(ctx context.Context, id string) error {
	u, err := l.getStored(ctx, id)
	if err != nil {
		return err
	}
	if err := l.store.Delete(ctx, userPrefix+u.ID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if err := l.store.Delete(ctx, emailPrefix+u.Email); err != nil {
		return fmt.Errorf("delete email index: %w", err)
	}
	return nil
}

func (l *Local) SignIn(ctx context.Context, email, password string) (*Session, *User, error) {
	var idx emailIndex
	if err := kv.GetJSON(ctx, l.store, emailPrefix+normalizeEmail(email), &idx); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("load email index: %w", err)
	}

	u, err := l.getStored(ctx, idx.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}

	now := l.now().UTC()
	expiresAt := now.Add(l.ttl)
	jti := uuid.Must(uuid.NewV7()).String()

	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "steeple",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.secret)
	if err != nil {
		return nil, nil, fmt.Errorf("sign token: %w", err)
	}

	if err := l.store.Set(ctx, sessionPrefix+jti, sessionRecord{UserID: u.ID, ExpiresAt: expiresAt}); err != nil {
		return nil, nil, fmt.Errorf("store session: %w", err)
	}

	u.LastSignInAt = &now
	if err := l.store.Set(ctx, userPrefix+u.ID, u); err != nil {
		return nil, nil, fmt.Errorf("store user: %w", err)
	}

	return &Session{AccessToken: token, TokenType: "bearer", ExpiresAt: expiresAt}, u.public(), nil
}

// parseClaims verifies the token signature and returns its claims. Expiry is
// checked against the session record rather than the claim alone, so the
// injected clock governs tests as well.
func (l *Local) parseClaims(token string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return l.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (l *Local) UserForToken(ctx context.Context, token string) (*User, error) {
	claims, err := l.parseClaims(token)
	if err != nil {
		return nil, err
	}

	var sess sessionRecord
	if err := kv.GetJSON(ctx, l.store, sessionPrefix+claims.ID, &sess); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	if !l.now().Before(sess.ExpiresAt) {
		_ = l.store.Delete(ctx, sessionPrefix+claims.ID)
		return nil, ErrInvalidToken
	}

	u, err := l.getStored(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return u.public(), nil
}

func (l *Local) SignOut(ctx context.Context, token string) error {
	claims, err := l.parseClaims(token)
	if err != nil {
		// Nothing to revoke for a token we never issued.
		return nil
	}
	return l.store.Delete(ctx, sessionPrefix+claims.ID)
}

func unmarshalEntry(e kv.Entry, v any) error {
	if err := json.Unmarshal(e.Value, v); err != nil {
		return fmt.Errorf("decode %q: %w", e.Key, err)
	}
	return nil
}
