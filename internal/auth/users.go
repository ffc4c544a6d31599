package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/steeplehq/steeple/internal/identity"
	"github.com/steeplehq/steeple/internal/model"
)

var (
	// ErrRoleNotAllowed is returned when a request tries to grant the
	// super-admin role. That role is assigned only at bootstrap.
	ErrRoleNotAllowed = errors.New("role cannot be granted")

	// ErrSuperAdminProtected is returned for attempts to delete or demote
	// the super-admin account.
	ErrSuperAdminProtected = errors.New("super admin account cannot be modified")

	// ErrSelfDelete is returned when a user tries to delete their own
	// account.
	ErrSelfDelete = errors.New("cannot delete your own account")
)

func validManagedRole(role string) bool {
	return role == model.RoleMember || role == model.RoleAdmin
}

// ListUsers returns every managed account.
func (s *Service) ListUsers(ctx context.Context) ([]identity.User, error) {
	return s.idp.ListUsers(ctx)
}

// CreateUser provisions a new account. The super-admin role can never be
// granted here. Admin accounts also get a dashboard admin record.
func (s *Service) CreateUser(ctx context.Context, email, password, name, role string) (*identity.User, error) {
	if role == "" {
		role = model.RoleAdmin
	}
	if !validManagedRole(role) {
		return nil, ErrRoleNotAllowed
	}

	u, err := s.idp.CreateUser(ctx, identity.CreateUserParams{
		Email:    email,
		Password: password,
		Name:     name,
		Role:     role,
	})
	if err != nil {
		return nil, err
	}

	if role == model.RoleAdmin {
		rec := model.AdminRecord{
			ID:        u.ID,
			Email:     u.Email,
			Name:      u.Name,
			Role:      role,
			CreatedAt: u.CreatedAt,
		}
		if err := s.store.Set(ctx, adminPrefix+u.ID, rec); err != nil {
			return nil, fmt.Errorf("store admin record: %w", err)
		}
	}
	return u, nil
}

// UpdateUser changes an account's name, role, or password. The super-admin
// account itself is immutable through this path, and the super-admin role can
// never be granted.
func (s *Service) UpdateUser(ctx context.Context, id string, name, role *string, password string) (*identity.User, error) {
	target, err := s.idp.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if target.Role == model.RoleSuperAdmin {
		return nil, ErrSuperAdminProtected
	}
	if role != nil && !validManagedRole(*role) {
		return nil, ErrRoleNotAllowed
	}

	u, err := s.idp.UpdateUser(ctx, id, identity.UpdateUserParams{
		Name:     name,
		Role:     role,
		Password: password,
	})
	if err != nil {
		return nil, err
	}

	// Keep the dashboard admin record in step with the account.
	if u.Role == model.RoleAdmin {
		rec := model.AdminRecord{
			ID:        u.ID,
			Email:     u.Email,
			Name:      u.Name,
			Role:      u.Role,
			CreatedAt: u.CreatedAt,
		}
		if err := s.store.Set(ctx, adminPrefix+u.ID, rec); err != nil {
			return nil, fmt.Errorf("store admin record: %w", err)
		}
	} else if err := s.store.Delete(ctx, adminPrefix+u.ID); err != nil {
		return nil, fmt.Errorf("delete admin record: %w", err)
	}
	return u, nil
}

// DeleteUser removes an account and its admin record. The super-admin account
// and the caller's own account are protected.
func (s *Service) DeleteUser(ctx context.Context, id, callerID string) error {
	if id == callerID {
		return ErrSelfDelete
	}
	target, err := s.idp.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if target.Role == model.RoleSuperAdmin {
		return ErrSuperAdminProtected
	}

	if err := s.idp.DeleteUser(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, adminPrefix+id); err != nil {
		return fmt.Errorf("delete admin record: %w", err)
	}
	return nil
}
