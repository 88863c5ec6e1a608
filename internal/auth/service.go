package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"workspace-auth/internal/observability"
)

// Dependencies are the collaborators the engine is built from.
type Dependencies struct {
	Credentials   CredentialStore
	RefreshTokens RefreshTokenStore
	Permissions   PermissionLookup
	Hasher        PasswordHasher
	Signer        TokenSigner
}

// Service is the entry point for the login and refresh use cases.
type Service struct {
	verifier      *CredentialVerifier
	selector      *WorkspaceSelector
	issuer        *TokenIssuer
	rotator       *TokenRotator
	refreshTokens RefreshTokenStore
	recorder      OutcomeRecorder
	logger        *observability.Logger
	now           func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithRecorder(recorder OutcomeRecorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

func WithLogger(logger *observability.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(deps Dependencies, policy TokenPolicy, opts ...Option) *Service {
	selector := NewWorkspaceSelector(deps.Credentials)
	issuer := NewTokenIssuer(deps.Signer, deps.Permissions, deps.RefreshTokens, policy)

	s := &Service{
		verifier:      NewCredentialVerifier(deps.Credentials, deps.Hasher),
		selector:      selector,
		issuer:        issuer,
		rotator:       NewTokenRotator(deps.Signer, deps.RefreshTokens, deps.Credentials, selector, issuer),
		refreshTokens: deps.RefreshTokens,
		logger:        observability.NopLogger(),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Login(ctx context.Context, username, password string, softwareID int64) (TokenPair, error) {
	pair, err := s.login(ctx, username, password, softwareID, s.now())
	s.observe("login", err, map[string]any{"username": username, "software_id": softwareID})
	if s.recorder != nil {
		s.recorder.LoginOutcome(string(KindOf(err)))
	}
	return pair, err
}

func (s *Service) login(ctx context.Context, username, password string, softwareID int64, now time.Time) (TokenPair, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" || softwareID <= 0 {
		return TokenPair{}, ErrInvalidCredentials
	}

	user, err := s.verifier.Verify(ctx, username, password, softwareID, now)
	if err != nil {
		return TokenPair{}, err
	}

	active, err := s.selector.SelectActive(ctx, username, softwareID)
	if err != nil {
		return TokenPair{}, err
	}
	// Only memberships of the verified credential may be signed under its id.
	active = ownedBy(active, user.ID)
	if len(active) == 0 {
		return TokenPair{}, ErrNoActiveWorkspace
	}

	return s.issuer.Issue(ctx, user, active, softwareID, now)
}

func (s *Service) Refresh(ctx context.Context, rawRefreshToken string) (TokenPair, error) {
	pair, err := s.rotator.Rotate(ctx, rawRefreshToken, s.now())
	s.observe("refresh", err, nil)
	if s.recorder != nil {
		s.recorder.RefreshOutcome(string(KindOf(err)))
	}
	return pair, err
}

// Logout revokes the record behind rawRefreshToken. Unknown or already
// revoked tokens yield ErrInvalidRefreshToken.
func (s *Service) Logout(ctx context.Context, rawRefreshToken string) error {
	rawRefreshToken = strings.TrimSpace(rawRefreshToken)
	if rawRefreshToken == "" {
		return ErrInvalidRefreshToken
	}

	revoked, err := s.refreshTokens.RevokeByHash(ctx, HashToken(rawRefreshToken))
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if !revoked {
		return ErrInvalidRefreshToken
	}
	return nil
}

// Policy exposes the effective token lifetimes.
func (s *Service) Policy() TokenPolicy {
	return s.issuer.Policy()
}

func (s *Service) observe(operation string, err error, fields map[string]any) {
	if err == nil {
		return
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["operation"] = operation

	var locked ErrAccountLocked
	switch {
	case errors.As(err, &locked):
		fields["lock_until"] = locked.Until.Format(time.RFC3339)
		s.logger.Warn("auth_account_locked", fields)
	case errors.Is(err, ErrInvalidRefreshToken):
		s.logger.Warn("auth_refresh_rejected", fields)
	case KindOf(err) == KindInfrastructureFailure:
		fields["error"] = err.Error()
		s.logger.Error("auth_operation_failed", fields)
	}
}
