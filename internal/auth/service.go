// Package auth orchestrates the identity lifecycle: first-run setup, login,
// session resolution, logout, the password-reset flow, and the super-admin
// check. It owns no credentials itself; the identity provider verifies
// passwords and tokens, and the KV store holds admin records and reset
// requests.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/steeplehq/steeple/internal/identity"
	"github.com/steeplehq/steeple/internal/kv"
	"github.com/steeplehq/steeple/internal/model"
	"github.com/steeplehq/steeple/internal/notify"
)

const (
	adminPrefix = "admin:"
	resetPrefix = "reset:"

	// DefaultResetTTL is how long a password-reset code stays valid.
	DefaultResetTTL = 10 * time.Minute
)

// Service mediates between the HTTP layer, the identity provider, and the
// KV store.
type Service struct {
	store    kv.Store
	idp      identity.Provider
	sender   notify.Sender
	resetTTL time.Duration
	logger   *slog.Logger

	now func() time.Time
}

// NewService wires the auth service. resetTTL <= 0 falls back to
// DefaultResetTTL.
func NewService(store kv.Store, idp identity.Provider, sender notify.Sender, resetTTL time.Duration, logger *slog.Logger) *Service {
	if resetTTL <= 0 {
		resetTTL = DefaultResetTTL
	}
	return &Service{
		store:    store,
		idp:      idp,
		sender:   sender,
		resetTTL: resetTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// IsSuperAdmin reports whether the user holds the single super-admin role.
// All user-management and gated settings operations funnel through this one
// check.
func IsSuperAdmin(u *identity.User) bool {
	return u != nil && u.Role == model.RoleSuperAdmin
}

// HasAdmin reports whether any admin record exists. Used by the client to
// decide whether to show the initial setup flow.
func (s *Service) HasAdmin(ctx context.Context) (bool, error) {
	n, err := s.store.CountPrefix(ctx, adminPrefix)
	if err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	return n > 0, nil
}

// SetupAdmin creates the first dashboard admin. It fails with ErrAdminExists
// once any admin record is present.
func (s *Service) SetupAdmin(ctx context.Context, email, password, name string) (*model.AdminRecord, error) {
	hasAdmin, err := s.HasAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if hasAdmin {
		return nil, ErrAdminExists
	}

	if name == "" {
		name = localPart(email)
	}

	u, err := s.idp.CreateUser(ctx, identity.CreateUserParams{
		Email:    email,
		Password: password,
		Name:     name,
		Role:     model.RoleAdmin,
	})
	if err != nil {
		return nil, err
	}

	rec := model.AdminRecord{
		ID:        u.ID,
		Email:     u.Email,
		Name:      name,
		Role:      model.RoleAdmin,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Set(ctx, adminPrefix+u.ID, rec); err != nil {
		return nil, fmt.Errorf("store admin record: %w", err)
	}
	return &rec, nil
}

// InitDefaultAdmin creates (or re-keys) the single super-admin account from
// configuration. It reports whether the account already existed. This is the
// only code path that ever assigns the super-admin role.
func (s *Service) InitDefaultAdmin(ctx context.Context, email, password string) (*model.AdminRecord, bool, error) {
	existing, err := s.idp.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		role := model.RoleSuperAdmin
		if _, err := s.idp.UpdateUser(ctx, existing.ID, identity.UpdateUserParams{
			Role:     &role,
			Password: password,
		}); err != nil {
			return nil, false, err
		}
		rec := model.AdminRecord{
			ID:        existing.ID,
			Email:     existing.Email,
			Name:      "Super Admin",
			Role:      model.RoleSuperAdmin,
			CreatedAt: existing.CreatedAt,
		}
		if err := s.store.Set(ctx, adminPrefix+existing.ID, rec); err != nil {
			return nil, false, fmt.Errorf("store admin record: %w", err)
		}
		return &rec, true, nil

	case errors.Is(err, identity.ErrNotFound):
		u, err := s.idp.CreateUser(ctx, identity.CreateUserParams{
			Email:    email,
			Password: password,
			Name:     "Super Admin",
			Role:     model.RoleSuperAdmin,
		})
		if err != nil {
			return nil, false, err
		}
		rec := model.AdminRecord{
			ID:        u.ID,
			Email:     u.Email,
			Name:      "Super Admin",
			Role:      model.RoleSuperAdmin,
			CreatedAt: s.now().UTC(),
		}
		if err := s.store.Set(ctx, adminPrefix+u.ID, rec); err != nil {
			return nil, false, fmt.Errorf("store admin record: %w", err)
		}
		return &rec, false, nil

	default:
		return nil, false, err
	}
}

// Login verifies the credentials through the identity provider. The returned
// user is the admin record when one exists, otherwise a fallback derived
// from the identity profile.
func (s *Service) Login(ctx context.Context, email, password string) (*identity.Session, *model.AdminRecord, error) {
	sess, u, err := s.idp.SignIn(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}
	return sess, s.adminRecordFor(ctx, u), nil
}

// Session resolves a bearer token. A token that does not resolve is a normal
// outcome, not an error: both return values are nil.
func (s *Service) Session(ctx context.Context, token string) (*identity.User, *model.AdminRecord, error) {
	u, err := s.idp.UserForToken(ctx, token)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return u, s.adminRecordFor(ctx, u), nil
}

// Logout invalidates the token's session. Failures are logged and swallowed:
// the client clears its local state regardless, and stranding a user in a
// logged-in-but-broken state is worse than a leaked session record.
func (s *Service) Logout(ctx context.Context, token string) {
	if err := s.idp.SignOut(ctx, token); err != nil {
		s.logger.WarnContext(ctx, "logout failed", "error", err)
	}
}

// ForgotPassword issues a fresh 6-digit reset code for the email,
// overwriting any previous request, and hands it to the notification sender.
// The code is deliberately absent from the return value.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	code, err := generateResetCode()
	if err != nil {
		return fmt.Errorf("generate reset code: %w", err)
	}

	req := model.ResetRequest{
		Code:      code,
		Email:     email,
		ExpiresAt: s.now().UTC().Add(s.resetTTL),
	}
	if err := s.store.Set(ctx, resetPrefix+email, req); err != nil {
		return fmt.Errorf("store reset request: %w", err)
	}

	if err := s.sender.SendResetCode(ctx, email, code); err != nil {
		return fmt.Errorf("deliver reset code: %w", err)
	}
	return nil
}

// VerifyResetCode checks the submitted code against the live request. A
// matching but expired request is consumed here; a matching live one is left
// in place for ResetPassword.
func (s *Service) VerifyResetCode(ctx context.Context, email, code string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	req, err := s.getResetRequest(ctx, email)
	if err != nil {
		return err
	}

	if req.Code != code {
		return ErrInvalidResetCode
	}
	if req.Expired(s.now()) {
		_ = s.store.Delete(ctx, resetPrefix+email)
		return ErrResetCodeExpired
	}
	return nil
}

// ResetPassword sets a new password for the email's identity, requiring a
// still-extant reset request. The code itself is not re-checked here; verify
// runs earlier in the same flow. The request is consumed on success.
func (s *Service) ResetPassword(ctx context.Context, email, newPassword string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := s.getResetRequest(ctx, email); err != nil {
		return err
	}

	u, err := s.idp.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if _, err := s.idp.UpdateUser(ctx, u.ID, identity.UpdateUserParams{Password: newPassword}); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, resetPrefix+email); err != nil {
		return fmt.Errorf("consume reset request: %w", err)
	}
	return nil
}

// ChangePassword re-authenticates with the current password before updating
// the credential. The fresh sign-in proves knowledge of the current password
// through the provider's own check; the probe session is discarded
// immediately.
func (s *Service) ChangePassword(ctx context.Context, token, currentPassword, newPassword string) error {
	u, err := s.idp.UserForToken(ctx, token)
	if err != nil {
		return err
	}

	probe, _, err := s.idp.SignIn(ctx, u.Email, currentPassword)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return ErrPasswordMismatch
		}
		return err
	}
	_ = s.idp.SignOut(ctx, probe.AccessToken)

	_, err = s.idp.UpdateUser(ctx, u.ID, identity.UpdateUserParams{Password: newPassword})
	return err
}

func (s *Service) getResetRequest(ctx context.Context, email string) (*model.ResetRequest, error) {
	var req model.ResetRequest
	if err := kv.GetJSON(ctx, s.store, resetPrefix+email, &req); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNoResetRequest
		}
		return nil, fmt.Errorf("load reset request: %w", err)
	}
	return &req, nil
}

// adminRecordFor loads the admin record for u, falling back to a record
// derived from the identity profile when none exists.
func (s *Service) adminRecordFor(ctx context.Context, u *identity.User) *model.AdminRecord {
	var rec model.AdminRecord
	if err := kv.GetJSON(ctx, s.store, adminPrefix+u.ID, &rec); err == nil {
		return &rec
	}
	name := u.Name
	if name == "" {
		name = localPart(u.Email)
	}
	return &model.AdminRecord{
		ID:        u.ID,
		Email:     u.Email,
		Name:      name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// generateResetCode returns a 6-digit numeric string, uniform over
// [100000, 999999].
func generateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func localPart(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
