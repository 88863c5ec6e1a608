package auth

import (
	"errors"
	"time"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrNoActiveWorkspace   = errors.New("no active workspace")
	ErrInvalidRefreshToken = errors.New("invalid or revoked refresh token")
	ErrExpiredRefreshToken = errors.New("refresh token expired")

	// ErrNotFound is returned by stores when a lookup matches nothing.
	ErrNotFound = errors.New("not found")
)

type ErrAccountLocked struct {
	Until time.Time
}

func (e ErrAccountLocked) Error() string {
	return "account temporarily locked"
}

type ErrorKind string

const (
	KindNone                  ErrorKind = "success"
	KindInvalidCredentials    ErrorKind = "invalid_credentials"
	KindAccountLocked         ErrorKind = "account_locked"
	KindNoActiveWorkspace     ErrorKind = "no_active_workspace"
	KindInvalidRefreshToken   ErrorKind = "invalid_refresh_token"
	KindExpiredRefreshToken   ErrorKind = "expired_refresh_token"
	KindInfrastructureFailure ErrorKind = "infrastructure"
)

// KindOf classifies err into one of the caller-facing kinds. Anything that is
// not one of the named outcomes is an infrastructure failure.
func KindOf(err error) ErrorKind {
	var locked ErrAccountLocked
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.As(err, &locked):
		return KindAccountLocked
	case errors.Is(err, ErrNoActiveWorkspace):
		return KindNoActiveWorkspace
	case errors.Is(err, ErrInvalidRefreshToken):
		return KindInvalidRefreshToken
	case errors.Is(err, ErrExpiredRefreshToken):
		return KindExpiredRefreshToken
	default:
		return KindInfrastructureFailure
	}
}
