package auth

import (
	"context"
	"time"
)

// CredentialStore reads credentials and memberships and persists lock state.
type CredentialStore interface {
	// FindByUsername returns ErrNotFound when no credential exists for the pair.
	FindByUsername(ctx context.Context, username string, softwareID int64) (UserCredential, error)
	UpdateLockState(ctx context.Context, userID string, state LockState) error
	ResetLock(ctx context.Context, userID string) error
	FindWorkspaces(ctx context.Context, username string, softwareID int64, statuses []int) ([]Workspace, error)
	FindWorkspacesByUserID(ctx context.Context, userID string, softwareID int64, statuses []int) ([]Workspace, error)
	// FindWorkspace returns ErrNotFound when the workspace does not exist for softwareID.
	FindWorkspace(ctx context.Context, workspaceID string, softwareID int64) (Workspace, error)
}

// RefreshTokenStore persists refresh-token records. Records are never deleted
// and a revoked record never becomes valid again.
type RefreshTokenStore interface {
	Save(ctx context.Context, record RefreshTokenRecord) error
	// FindValid returns the non-revoked record for tokenHash and userID, expired
	// or not, or ErrNotFound.
	FindValid(ctx context.Context, tokenHash, userID string) (RefreshTokenRecord, error)
	// RevokeIfNotRevoked flips revoked to true and reports whether this call did it.
	RevokeIfNotRevoked(ctx context.Context, id string) (bool, error)
	RevokeByHash(ctx context.Context, tokenHash string) (bool, error)
	// WithinTx runs fn against a store bound to one transaction, committing
	// only when fn returns nil.
	WithinTx(ctx context.Context, fn func(RefreshTokenStore) error) error
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	// Verify returns (false, nil) on mismatch and an error only for unusable hashes.
	Verify(plain, hash string) (bool, error)
}

type TokenSigner interface {
	Sign(claims Claims, ttl time.Duration) (string, error)
	// Verify returns ErrInvalidToken for signature or format problems. For a
	// correctly signed token past its expiry it returns the claims together with
	// ErrTokenExpired.
	Verify(token string) (Claims, error)
}

type PermissionLookup interface {
	ForWorkspace(ctx context.Context, workspaceID string, softwareID int64) ([]string, error)
}

// OutcomeRecorder receives one outcome per login or refresh call.
type OutcomeRecorder interface {
	LoginOutcome(outcome string)
	RefreshOutcome(outcome string)
}
