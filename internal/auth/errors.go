package auth

import "errors"

var (
	// ErrAdminExists is returned by SetupAdmin once any admin record exists;
	// initial setup may run exactly once.
	ErrAdminExists = errors.New("admin already exists")

	// ErrNoResetRequest is returned when no live reset request exists for
	// the email.
	ErrNoResetRequest = errors.New("invalid or expired reset code")

	// ErrInvalidResetCode is returned when the submitted code does not match
	// the stored one.
	ErrInvalidResetCode = errors.New("invalid reset code")

	// ErrResetCodeExpired is returned when the reset request is past its
	// expiry; the request is consumed at that point.
	ErrResetCodeExpired = errors.New("reset code expired")

	// ErrPasswordMismatch is returned by ChangePassword when the current
	// password fails re-authentication.
	ErrPasswordMismatch = errors.New("current password is incorrect")
)
