package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the payload of both access and refresh tokens. Which fields are set
// depends on the token type and on the single/multi workspace claim shape.
type Claims struct {
	UserID      string             `json:"uid"`
	SoftwareID  int64              `json:"sid"`
	Type        string             `json:"typ"`
	WorkspaceID string             `json:"wid,omitempty"`
	TenantID    string             `json:"tid,omitempty"`
	BranchID    string             `json:"bid,omitempty"`
	EmployeeID  string             `json:"eid,omitempty"`
	Permissions []string           `json:"permissions,omitempty"`
	Workspaces  []WorkspaceSummary `json:"workspaces,omitempty"`
	jwt.RegisteredClaims
}

type JWTSigner struct {
	secret []byte
	issuer string
	now    func() time.Time
}

type SignerOption func(*JWTSigner)

func WithIssuer(issuer string) SignerOption {
	return func(s *JWTSigner) {
		s.issuer = strings.TrimSpace(issuer)
	}
}

func WithSignerClock(now func() time.Time) SignerOption {
	return func(s *JWTSigner) {
		if now != nil {
			s.now = now
		}
	}
}

func NewJWTSigner(secret string, opts ...SignerOption) (*JWTSigner, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}

	s := &JWTSigner{
		secret: []byte(secret),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *JWTSigner) Sign(claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("sign %s token: non-positive ttl %s", claims.Type, ttl)
	}

	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   claims.UserID,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return encoded, nil
}

func (s *JWTSigner) Verify(raw string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		// Expiry is checked below against the signer clock.
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !token.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" || claims.Type == "" || claims.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: missing required claims", ErrInvalidToken)
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return Claims{}, fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	}
	if !s.now().Before(claims.ExpiresAt.Time) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}
