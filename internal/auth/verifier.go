package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CredentialVerifier decides whether a login attempt passes and is the only
// place that mutates a user's lock state.
type CredentialVerifier struct {
	store  CredentialStore
	hasher PasswordHasher
}

func NewCredentialVerifier(store CredentialStore, hasher PasswordHasher) *CredentialVerifier {
	return &CredentialVerifier{store: store, hasher: hasher}
}

func (v *CredentialVerifier) Verify(ctx context.Context, username, password string, softwareID int64, now time.Time) (UserCredential, error) {
	user, err := v.store.FindByUsername(ctx, username, softwareID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return UserCredential{}, ErrInvalidCredentials
		}
		return UserCredential{}, fmt.Errorf("find credential: %w", err)
	}

	// A locked account is rejected whatever password is supplied.
	if user.Lock.IsLocked(now) {
		until, _ := user.Lock.LockUntil()
		return UserCredential{}, ErrAccountLocked{Until: until}
	}

	ok, err := v.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return UserCredential{}, fmt.Errorf("verify password: %w", err)
	}

	if !ok {
		next := user.Lock.OnFailure(now)
		if err := v.store.UpdateLockState(ctx, user.ID, next); err != nil {
			return UserCredential{}, fmt.Errorf("persist failed attempt: %w", err)
		}
		if next.IsLocked(now) {
			until, _ := next.LockUntil()
			return UserCredential{}, ErrAccountLocked{Until: until}
		}
		return UserCredential{}, ErrInvalidCredentials
	}

	if _, locked := user.Lock.LockUntil(); locked || user.Lock.FailureCount() > 0 {
		if err := v.store.ResetLock(ctx, user.ID); err != nil {
			return UserCredential{}, fmt.Errorf("reset lock state: %w", err)
		}
	}
	user.Lock = user.Lock.OnSuccess()
	return user, nil
}
