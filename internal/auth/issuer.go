package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TokenLifetimes struct {
	Access  time.Duration
	Refresh time.Duration
}

// TokenPolicy holds the lifetimes of the two claim shapes side by side. A
// single-workspace token carries resolved permissions and lives longer; a
// multi-workspace token only lists the choices.
type TokenPolicy struct {
	Single TokenLifetimes
	Multi  TokenLifetimes
}

func DefaultTokenPolicy() TokenPolicy {
	return TokenPolicy{
		Single: TokenLifetimes{Access: 7 * 24 * time.Hour, Refresh: 30 * 24 * time.Hour},
		Multi:  TokenLifetimes{Access: time.Hour, Refresh: 7 * 24 * time.Hour},
	}
}

func (p TokenPolicy) For(scoped bool) TokenLifetimes {
	if scoped {
		return p.Single
	}
	return p.Multi
}

// withDefaults fills unset lifetimes from DefaultTokenPolicy.
func (p TokenPolicy) withDefaults() TokenPolicy {
	def := DefaultTokenPolicy()
	if p.Single.Access <= 0 {
		p.Single.Access = def.Single.Access
	}
	if p.Single.Refresh <= 0 {
		p.Single.Refresh = def.Single.Refresh
	}
	if p.Multi.Access <= 0 {
		p.Multi.Access = def.Multi.Access
	}
	if p.Multi.Refresh <= 0 {
		p.Multi.Refresh = def.Multi.Refresh
	}
	return p
}

// grant is everything needed to mint one token pair. Exactly one of workspace
// and workspaces is set.
type grant struct {
	userID      string
	softwareID  int64
	workspace   *Workspace
	permissions []string
	workspaces  []Workspace
}

func (g grant) scoped() bool {
	return g.workspace != nil
}

type TokenIssuer struct {
	signer      TokenSigner
	permissions PermissionLookup
	store       RefreshTokenStore
	policy      TokenPolicy
}

func NewTokenIssuer(signer TokenSigner, permissions PermissionLookup, store RefreshTokenStore, policy TokenPolicy) *TokenIssuer {
	return &TokenIssuer{
		signer:      signer,
		permissions: permissions,
		store:       store,
		policy:      policy.withDefaults(),
	}
}

func (i *TokenIssuer) Policy() TokenPolicy {
	return i.policy
}

func (i *TokenIssuer) Issue(ctx context.Context, user UserCredential, active []Workspace, softwareID int64, now time.Time) (TokenPair, error) {
	var g grant
	switch len(active) {
	case 0:
		return TokenPair{}, ErrNoActiveWorkspace
	case 1:
		scoped, err := i.scopedGrant(ctx, user.ID, softwareID, active[0])
		if err != nil {
			return TokenPair{}, err
		}
		g = scoped
	default:
		g = multiGrant(user.ID, softwareID, active)
	}

	return i.mint(ctx, i.store, g, now)
}

func (i *TokenIssuer) scopedGrant(ctx context.Context, userID string, softwareID int64, ws Workspace) (grant, error) {
	permissions, err := i.permissions.ForWorkspace(ctx, ws.ID, softwareID)
	if err != nil {
		return grant{}, fmt.Errorf("lookup workspace permissions: %w", err)
	}
	if permissions == nil {
		permissions = []string{}
	}
	ws.Permissions = permissions
	return grant{
		userID:      userID,
		softwareID:  softwareID,
		workspace:   &ws,
		permissions: permissions,
	}, nil
}

func multiGrant(userID string, softwareID int64, active []Workspace) grant {
	return grant{
		userID:     userID,
		softwareID: softwareID,
		workspaces: active,
	}
}

// mint signs both tokens and saves the refresh record through store, which may
// be bound to the caller's transaction.
func (i *TokenIssuer) mint(ctx context.Context, store RefreshTokenStore, g grant, now time.Time) (TokenPair, error) {
	lifetimes := i.policy.For(g.scoped())

	access := Claims{UserID: g.userID, SoftwareID: g.softwareID, Type: TokenTypeAccess}
	refresh := Claims{UserID: g.userID, SoftwareID: g.softwareID, Type: TokenTypeRefresh}
	record := RefreshTokenRecord{
		UserID:     g.userID,
		SoftwareID: g.softwareID,
		ExpiresAt:  now.UTC().Add(lifetimes.Refresh),
		CreatedAt:  now.UTC(),
	}

	if g.scoped() {
		ws := g.workspace
		access.WorkspaceID = ws.ID
		access.TenantID = ws.TenantID
		access.BranchID = ws.BranchID
		access.EmployeeID = ws.EmployeeID
		access.Permissions = g.permissions

		refresh.WorkspaceID = ws.ID
		refresh.TenantID = ws.TenantID

		workspaceID, tenantID := ws.ID, ws.TenantID
		record.WorkspaceID = &workspaceID
		record.TenantID = &tenantID
	} else {
		summaries := make([]WorkspaceSummary, 0, len(g.workspaces))
		for _, ws := range g.workspaces {
			summaries = append(summaries, ws.Summary())
		}
		access.Workspaces = summaries
	}

	accessToken, err := i.signer.Sign(access, lifetimes.Access)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, err := i.signer.Sign(refresh, lifetimes.Refresh)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate refresh token id: %w", err)
	}
	record.ID = id.String()
	record.TokenHash = HashToken(refreshToken)

	if err := store.Save(ctx, record); err != nil {
		return TokenPair{}, fmt.Errorf("save refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(lifetimes.Access.Seconds()),
	}, nil
}

// HashToken is the one-way digest stored in place of a raw refresh token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
