package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TokenRotator redeems a refresh token exactly once and issues its successor
// with the same workspace scope.
type TokenRotator struct {
	signer      TokenSigner
	store       RefreshTokenStore
	credentials CredentialStore
	selector    *WorkspaceSelector
	issuer      *TokenIssuer
}

func NewTokenRotator(signer TokenSigner, store RefreshTokenStore, credentials CredentialStore, selector *WorkspaceSelector, issuer *TokenIssuer) *TokenRotator {
	return &TokenRotator{
		signer:      signer,
		store:       store,
		credentials: credentials,
		selector:    selector,
		issuer:      issuer,
	}
}

func (r *TokenRotator) Rotate(ctx context.Context, rawRefreshToken string, now time.Time) (TokenPair, error) {
	rawRefreshToken = strings.TrimSpace(rawRefreshToken)
	if rawRefreshToken == "" {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	expired := false
	claims, err := r.signer.Verify(rawRefreshToken)
	switch {
	case errors.Is(err, ErrTokenExpired):
		expired = true
	case err != nil:
		return TokenPair{}, ErrInvalidRefreshToken
	}
	if claims.Type != TokenTypeRefresh {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	record, err := r.store.FindValid(ctx, HashToken(rawRefreshToken), claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, fmt.Errorf("find refresh token: %w", err)
	}

	if expired || now.After(record.ExpiresAt) {
		return TokenPair{}, ErrExpiredRefreshToken
	}

	g, err := r.regrant(ctx, record)
	if err != nil {
		return TokenPair{}, err
	}

	var pair TokenPair
	err = r.store.WithinTx(ctx, func(tx RefreshTokenStore) error {
		won, err := tx.RevokeIfNotRevoked(ctx, record.ID)
		if err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
		if !won {
			return ErrInvalidRefreshToken
		}

		pair, err = r.issuer.mint(ctx, tx, g, now)
		return err
	})
	if err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// regrant rebuilds the issuance input from the record's scope, reading current
// workspace data and permissions.
func (r *TokenRotator) regrant(ctx context.Context, record RefreshTokenRecord) (grant, error) {
	if !record.Scoped() {
		active, err := r.selector.SelectActiveForUser(ctx, record.UserID, record.SoftwareID)
		if err != nil {
			return grant{}, err
		}
		if len(active) == 0 {
			return grant{}, ErrNoActiveWorkspace
		}
		return multiGrant(record.UserID, record.SoftwareID, active), nil
	}

	ws, err := r.credentials.FindWorkspace(ctx, *record.WorkspaceID, record.SoftwareID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return grant{}, ErrNoActiveWorkspace
		}
		return grant{}, fmt.Errorf("find workspace: %w", err)
	}
	if !ws.IsActive() || ws.UserID != record.UserID {
		return grant{}, ErrNoActiveWorkspace
	}
	return r.issuer.scopedGrant(ctx, record.UserID, record.SoftwareID, ws)
}
