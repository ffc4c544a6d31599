package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/steeplehq/steeple/internal/identity"
	"github.com/steeplehq/steeple/internal/kv"
	"github.com/steeplehq/steeple/internal/model"
)

// captureSender records reset codes instead of delivering them.
type captureSender struct {
	codes map[string]string
}

func (s *captureSender) SendResetCode(_ context.Context, email, code string) error {
	s.codes[email] = code
	return nil
}

func (s *captureSender) SendAnnouncement(context.Context, []string, string, string) error {
	return nil
}

type testFixture struct {
	svc    *Service
	store  kv.Store
	idp    *identity.Local
	sender *captureSender
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	store, err := kv.OpenSQLite("")
	if err != nil {
		t.Fatalf("kv.OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	idp := identity.NewLocal(store, "auth-service-test-secret", time.Hour)
	sender := &captureSender{codes: make(map[string]string)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(store, idp, sender, 0, logger)

	return &testFixture{svc: svc, store: store, idp: idp, sender: sender}
}

func (f *testFixture) setup(t *testing.T) *model.AdminRecord {
	t.Helper()
	rec, err := f.svc.SetupAdmin(context.Background(), "admin@example.com", "password123", "Admin")
	if err != nil {
		t.Fatalf("SetupAdmin: %v", err)
	}
	return rec
}

func TestIsSuperAdmin(t *testing.T) {
	if IsSuperAdmin(nil) {
		t.Error("nil user must not be super admin")
	}
	if IsSuperAdmin(&identity.User{Role: model.RoleAdmin}) {
		t.Error("admin role must not pass the super-admin check")
	}
	if !IsSuperAdmin(&identity.User{Role: model.RoleSuperAdmin}) {
		t.Error("superadmin role must pass the check")
	}
}

func TestSetupAdmin(t *testing.T) {
	f := newFixture(t)

	rec := f.setup(t)
	if rec.Email != "admin@example.com" {
		t.Errorf("email = %q", rec.Email)
	}
	if rec.Role != model.RoleAdmin {
		t.Errorf("role = %q, want admin", rec.Role)
	}

	hasAdmin, err := f.svc.HasAdmin(context.Background())
	if err != nil {
		t.Fatalf("HasAdmin: %v", err)
	}
	if !hasAdmin {
		t.Error("HasAdmin = false after setup")
	}
}

func TestSetupAdmin_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	f.setup(t)

	_, err := f.svc.SetupAdmin(context.Background(), "other@example.com", "password123", "")
	if !errors.Is(err, ErrAdminExists) {
		t.Errorf("err = %v, want ErrAdminExists", err)
	}
}

func TestSetupAdmin_NameDefaultsToLocalPart(t *testing.T) {
	f := newFixture(t)

	rec, err := f.svc.SetupAdmin(context.Background(), "pastor@example.com", "password123", "")
	if err != nil {
		t.Fatalf("SetupAdmin: %v", err)
	}
	if rec.Name != "pastor" {
		t.Errorf("name = %q, want pastor", rec.Name)
	}
}

func TestInitDefaultAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, existed, err := f.svc.InitDefaultAdmin(ctx, "root@example.com", "rootpassword1")
	if err != nil {
		t.Fatalf("InitDefaultAdmin: %v", err)
	}
	if existed {
		t.Error("existed = true on first init")
	}
	if rec.Role != model.RoleSuperAdmin {
		t.Errorf("role = %q, want superadmin", rec.Role)
	}

	// Re-running against the same email re-keys the account.
	rec2, existed, err := f.svc.InitDefaultAdmin(ctx, "root@example.com", "newrootpassword")
	if err != nil {
		t.Fatalf("InitDefaultAdmin again: %v", err)
	}
	if !existed {
		t.Error("existed = false on second init")
	}
	if rec2.ID != rec.ID {
		t.Errorf("id changed across init: %s vs %s", rec2.ID, rec.ID)
	}

	if _, _, err := f.idp.SignIn(ctx, "root@example.com", "rootpassword1"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Error("old password still valid after re-key")
	}
	if _, _, err := f.idp.SignIn(ctx, "root@example.com", "newrootpassword"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestInitDefaultAdmin_PromotesExistingAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.setup(t)

	rec, existed, err := f.svc.InitDefaultAdmin(ctx, "admin@example.com", "freshpassword1")
	if err != nil {
		t.Fatalf("InitDefaultAdmin: %v", err)
	}
	if !existed {
		t.Error("existed = false for a known account")
	}
	if rec.Role != model.RoleSuperAdmin {
		t.Errorf("role = %q, want superadmin", rec.Role)
	}

	u, err := f.idp.GetUserByEmail(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if u.Role != model.RoleSuperAdmin {
		t.Errorf("identity role = %q, want superadmin", u.Role)
	}
}

func TestLoginAndSession(t *testing.T) {
	f := newFixture(t)
	f.setup(t)
	ctx := context.Background()

	sess, rec, err := f.svc.Login(ctx, "admin@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if rec.Email != "admin@example.com" {
		t.Errorf("record email = %q", rec.Email)
	}

	u, sessionRec, err := f.svc.Session(ctx, sess.AccessToken)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if u == nil || sessionRec == nil {
		t.Fatal("expected user and record for a live token")
	}
	if u.Email != "admin@example.com" {
		t.Errorf("session email = %q", u.Email)
	}
}

func TestSession_StaleToken(t *testing.T) {
	f := newFixture(t)
	f.setup(t)
	ctx := context.Background()

	sess, _, err := f.svc.Login(ctx, "admin@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.svc.Logout(ctx, sess.AccessToken)

	u, rec, err := f.svc.Session(ctx, sess.AccessToken)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if u != nil || rec != nil {
		t.Error("expected nil user and record for a revoked token")
	}
}

func TestForgotPassword_CodeShape(t *testing.T) {
	f := newFixture(t)
	f.setup(t)

	if err := f.svc.ForgotPassword(context.Background(), "Admin@Example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}

	code := f.sender.codes["admin@example.com"]
	if !regexp.MustCompile(`^\d{6}$`).MatchString(code) {
		t.Errorf("code = %q, want 6 digits", code)
	}
}

func TestForgotPassword_OverwritesPrevious(t *testing.T) {
	f := newFixture(t)
	f.setup(t)
	ctx := context.Background()

	if err := f.svc.ForgotPassword(ctx, "admin@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	first := f.sender.codes["admin@example.com"]

	if err := f.svc.ForgotPassword(ctx, "admin@example.com"); err != nil {
		t.Fatalf("ForgotPassword again: %v", err)
	}
	second := f.sender.codes["admin@example.com"]

	if first != second {
		// The earlier code must be dead once a new one is issued.
		if err := f.svc.VerifyResetCode(ctx, "admin@example.com", first); !errors.Is(err, ErrInvalidResetCode) {
			t.Errorf("old code verify err = %v, want ErrInvalidResetCode", err)
		}
	}
	if err := f.svc.VerifyResetCode(ctx, "admin@example.com", second); err != nil {
		t.Errorf("current code rejected: %v", err)
	}
}

func TestVerifyResetCode(t *testing.T) {
	f := newFixture(t)
	f.setup(t)
	ctx := context.Background()

	if err := f.svc.VerifyResetCode(ctx, "admin@example.com", "123456"); !errors.Is(err, ErrNoResetRequest) {
		t.Errorf("err without request = %v, want ErrNoResetRequest", err)
	}

	if err := f.svc.ForgotPassword(ctx, "admin@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	code := f.sender.codes["admin@example.com"]

	if err := f.svc.VerifyResetCode(ctx, "admin@example.com", "000000"); !errors.Is(err, ErrInvalidResetCode) {
		t.Errorf("wrong code err = %v, want ErrInvalidResetCode", err)
	}

	// Verification does not consume a live request.
	if err := f.svc.VerifyResetCode(ctx, "admin@example.com", code); err != nil {
		t.Errorf("first verify: %v", err)
	}
	if err := f.svc.VerifyResetCode(ctx, "admin@example.com", code); err != nil {
		t.Errorf("second verify: %v", err)
	}
}

func TestVerifyResetCode_Expired(t *testing.T) {
	f := newFixture(t)
	f.setup(t)
	ctx := context.Background()

	if err := f.svc.ForgotPassword(ctx, "admin@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	code := f.sender.codes["admin@example.com"]

	f.svc.now = func() time.Time { return time.Now().Add(DefaultResetTTL + time.Minute) }

	if err := f.svc.VerifyResetCode(ctx, "admin@example.com", code); !errors.Is(err, ErrResetCodeExpired) {
		t.Errorf("err = %v, want ErrResetCodeExpired", err)
	}

	// The expired request was consumed; retrying reports no request at all.
	if err := f.svc.VerifyResetCode(ctx, "admin@example.com", code); !errors.Is(err, ErrNoResetRequest) {
		t.Errorf("err after consume = %v, want ErrNoResetRequest", err)
	}
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)
	f.setup(t)
	ctx := context.Background()

	if err := f.svc.ResetPassword(ctx, "admin@example.com", "newpassword99"); !errors.Is(err, ErrNoResetRequest) {
		t.Errorf("err without request = %v, want ErrNoResetRequest", err)
	}

	if err := f.svc.ForgotPassword(ctx, "admin@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if err := f.svc.ResetPassword(ctx, "admin@example.com", "newpassword99"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	if _, _, err := f.idp.SignIn(ctx, "admin@example.com", "password123"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Error("old password still valid after reset")
	}
	if _, _, err := f.idp.SignIn(ctx, "admin@example.com", "newpassword99"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}

	// The request is gone after a successful reset.
	if err := f.svc.ResetPassword(ctx, "admin@example.com", "anotherpassword"); !errors.Is(err, ErrNoResetRequest) {
		t.Errorf("err after consume = %v, want ErrNoResetRequest", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	f.setup(t)
	ctx := context.Background()

	sess, _, err := f.svc.Login(ctx, "admin@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := f.svc.ChangePassword(ctx, sess.AccessToken, "wrongpassword", "newpassword99"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("err = %v, want ErrPasswordMismatch", err)
	}

	if err := f.svc.ChangePassword(ctx, sess.AccessToken, "password123", "newpassword99"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, _, err := f.idp.SignIn(ctx, "admin@example.com", "newpassword99"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Managed users
// ---------------------------------------------------------------------------

func TestCreateUser_RoleRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateUser(ctx, "a@example.com", "password123", "A", "superadmin"); !errors.Is(err, ErrRoleNotAllowed) {
		t.Errorf("superadmin grant err = %v, want ErrRoleNotAllowed", err)
	}
	if _, err := f.svc.CreateUser(ctx, "a@example.com", "password123", "A", "janitor"); !errors.Is(err, ErrRoleNotAllowed) {
		t.Errorf("unknown role err = %v, want ErrRoleNotAllowed", err)
	}

	u, err := f.svc.CreateUser(ctx, "a@example.com", "password123", "A", "")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Role != model.RoleAdmin {
		t.Errorf("default role = %q, want admin", u.Role)
	}

	// Admin accounts get a dashboard record, so HasAdmin flips.
	hasAdmin, err := f.svc.HasAdmin(ctx)
	if err != nil {
		t.Fatalf("HasAdmin: %v", err)
	}
	if !hasAdmin {
		t.Error("HasAdmin = false after creating an admin account")
	}
}

func TestUpdateUser_SuperAdminProtected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, _, err := f.svc.InitDefaultAdmin(ctx, "root@example.com", "rootpassword1")
	if err != nil {
		t.Fatalf("InitDefaultAdmin: %v", err)
	}

	role := model.RoleMember
	if _, err := f.svc.UpdateUser(ctx, rec.ID, nil, &role, ""); !errors.Is(err, ErrSuperAdminProtected) {
		t.Errorf("err = %v, want ErrSuperAdminProtected", err)
	}
}

func TestUpdateUser_RoleSyncsAdminRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.CreateUser(ctx, "staff@example.com", "password123", "Staff", model.RoleAdmin)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// Demoting to member removes the dashboard record.
	role := model.RoleMember
	if _, err := f.svc.UpdateUser(ctx, u.ID, nil, &role, ""); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	hasAdmin, err := f.svc.HasAdmin(ctx)
	if err != nil {
		t.Fatalf("HasAdmin: %v", err)
	}
	if hasAdmin {
		t.Error("admin record survived demotion to member")
	}

	// Promoting back restores it.
	role = model.RoleAdmin
	if _, err := f.svc.UpdateUser(ctx, u.ID, nil, &role, ""); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	hasAdmin, err = f.svc.HasAdmin(ctx)
	if err != nil {
		t.Fatalf("HasAdmin: %v", err)
	}
	if !hasAdmin {
		t.Error("admin record missing after promotion")
	}
}

func TestDeleteUser_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, _, err := f.svc.InitDefaultAdmin(ctx, "root@example.com", "rootpassword1")
	if err != nil {
		t.Fatalf("InitDefaultAdmin: %v", err)
	}
	staff, err := f.svc.CreateUser(ctx, "staff@example.com", "password123", "Staff", model.RoleAdmin)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if err := f.svc.DeleteUser(ctx, rec.ID, rec.ID); !errors.Is(err, ErrSelfDelete) {
		t.Errorf("self delete err = %v, want ErrSelfDelete", err)
	}
	if err := f.svc.DeleteUser(ctx, rec.ID, staff.ID); !errors.Is(err, ErrSuperAdminProtected) {
		t.Errorf("super-admin delete err = %v, want ErrSuperAdminProtected", err)
	}

	if err := f.svc.DeleteUser(ctx, staff.ID, rec.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	users, err := f.svc.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("len = %d, want 1", len(users))
	}
}
