package auth

import "time"

// Membership status values shared by workspaces and employees.
const (
	StatusInactive = 0
	StatusActive   = 1
)

type UserCredential struct {
	ID           string
	Username     string
	SoftwareID   int64
	PasswordHash string
	Lock         LockState
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Workspace binds a user to one tenant for one software product.
type Workspace struct {
	ID                   string
	UserID               string
	TenantID             string
	TenantName           string
	EmployeeID           string
	BranchID             string
	Status               int
	EmployeeActiveStatus int
	Permissions          []string
}

func (w Workspace) IsActive() bool {
	return w.Status == StatusActive && w.EmployeeActiveStatus == StatusActive
}

func (w Workspace) Summary() WorkspaceSummary {
	return WorkspaceSummary{
		WorkspaceID: w.ID,
		TenantID:    w.TenantID,
		TenantName:  w.TenantName,
		BranchID:    w.BranchID,
		EmployeeID:  w.EmployeeID,
	}
}

type WorkspaceSummary struct {
	WorkspaceID string `json:"workspace_id"`
	TenantID    string `json:"tenant_id"`
	TenantName  string `json:"tenant_name"`
	BranchID    string `json:"branch_id"`
	EmployeeID  string `json:"employee_id"`
}

// RefreshTokenRecord is the server-side shadow of an issued refresh token.
// Only the hash of the raw token is ever stored.
type RefreshTokenRecord struct {
	ID          string
	UserID      string
	SoftwareID  int64
	WorkspaceID *string
	TenantID    *string
	TokenHash   string
	Revoked     bool
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Scoped reports whether the record belongs to a single-workspace token family.
func (r RefreshTokenRecord) Scoped() bool {
	return r.WorkspaceID != nil
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}
