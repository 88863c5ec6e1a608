package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository is the Postgres CredentialStore and PermissionLookup.
type Repository struct {
	db DB
}

type CleanupResult struct {
	DeletedRefreshTokens int64 `json:"deleted_refresh_tokens"`
	DeletedIPLimits      int64 `json:"deleted_ip_limits"`
}

func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByUsername(ctx context.Context, username string, softwareID int64) (UserCredential, error) {
	var user UserCredential
	var failureCount int
	var lockUntil *time.Time
	err := r.db.QueryRow(ctx, `
		SELECT id, username, software_id, password_hash, lock_failure_count, lock_until, created_at, updated_at
		FROM users
		WHERE username = $1 AND software_id = $2
	`, username, softwareID).Scan(
		&user.ID,
		&user.Username,
		&user.SoftwareID,
		&user.PasswordHash,
		&failureCount,
		&lockUntil,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserCredential{}, ErrNotFound
		}
		return UserCredential{}, fmt.Errorf("query user by username: %w", err)
	}

	user.Lock = RestoreLockState(failureCount, lockUntil)
	return user, nil
}

func (r *Repository) UpdateLockState(ctx context.Context, userID string, state LockState) error {
	var lockUntil *time.Time
	if until, ok := state.LockUntil(); ok {
		lockUntil = &until
	}

	_, err := r.db.Exec(ctx, `
		UPDATE users
		SET lock_failure_count = $2, lock_until = $3, updated_at = NOW()
		WHERE id = $1
	`, userID, state.FailureCount(), lockUntil)
	if err != nil {
		return fmt.Errorf("update lock state: %w", err)
	}

	return nil
}

func (r *Repository) ResetLock(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users
		SET lock_failure_count = 0, lock_until = NULL, updated_at = NOW()
		WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("reset lock state: %w", err)
	}

	return nil
}

const workspaceColumns = `
	SELECT w.id, w.user_id, w.tenant_id, t.name, w.employee_id, w.branch_id, w.status, e.active_status
	FROM workspaces w
	JOIN users u ON u.id = w.user_id
	JOIN tenants t ON t.id = w.tenant_id
	JOIN employees e ON e.id = w.employee_id
`

func (r *Repository) FindWorkspaces(ctx context.Context, username string, softwareID int64, statuses []int) ([]Workspace, error) {
	rows, err := r.db.Query(ctx, workspaceColumns+`
		WHERE u.username = $1 AND u.software_id = $2 AND w.software_id = $2 AND w.status = ANY($3)
		ORDER BY w.created_at ASC
	`, username, softwareID, statuses)
	if err != nil {
		return nil, fmt.Errorf("query workspaces: %w", err)
	}

	return scanWorkspaces(rows)
}

func (r *Repository) FindWorkspacesByUserID(ctx context.Context, userID string, softwareID int64, statuses []int) ([]Workspace, error) {
	rows, err := r.db.Query(ctx, workspaceColumns+`
		WHERE w.user_id = $1 AND w.software_id = $2 AND w.status = ANY($3)
		ORDER BY w.created_at ASC
	`, userID, softwareID, statuses)
	if err != nil {
		return nil, fmt.Errorf("query workspaces by user: %w", err)
	}

	return scanWorkspaces(rows)
}

func (r *Repository) FindWorkspace(ctx context.Context, workspaceID string, softwareID int64) (Workspace, error) {
	var ws Workspace
	err := r.db.QueryRow(ctx, workspaceColumns+`
		WHERE w.id = $1 AND w.software_id = $2
	`, workspaceID, softwareID).Scan(
		&ws.ID,
		&ws.UserID,
		&ws.TenantID,
		&ws.TenantName,
		&ws.EmployeeID,
		&ws.BranchID,
		&ws.Status,
		&ws.EmployeeActiveStatus,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Workspace{}, ErrNotFound
		}
		return Workspace{}, fmt.Errorf("query workspace: %w", err)
	}

	return ws, nil
}

func scanWorkspaces(rows pgx.Rows) ([]Workspace, error) {
	defer rows.Close()

	workspaces := make([]Workspace, 0)
	for rows.Next() {
		var ws Workspace
		if err := rows.Scan(
			&ws.ID,
			&ws.UserID,
			&ws.TenantID,
			&ws.TenantName,
			&ws.EmployeeID,
			&ws.BranchID,
			&ws.Status,
			&ws.EmployeeActiveStatus,
		); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		workspaces = append(workspaces, ws)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspaces: %w", err)
	}

	return workspaces, nil
}

func (r *Repository) ForWorkspace(ctx context.Context, workspaceID string, softwareID int64) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT permission
		FROM workspace_permissions
		WHERE workspace_id = $1 AND software_id = $2
		ORDER BY permission ASC
	`, workspaceID, softwareID)
	if err != nil {
		return nil, fmt.Errorf("query workspace permissions: %w", err)
	}
	defer rows.Close()

	permissions := make([]string, 0)
	for rows.Next() {
		var permission string
		if err := rows.Scan(&permission); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		permissions = append(permissions, permission)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}

	return permissions, nil
}

// UpsertCredential creates the credential for (username, softwareID) or
// replaces its password hash. Lock state is left as it is.
func (r *Repository) UpsertCredential(ctx context.Context, username string, softwareID int64, passwordHash string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid v7: %w", err)
	}

	var userID string
	err = r.db.QueryRow(ctx, `
		INSERT INTO users (id, username, software_id, password_hash, lock_failure_count, lock_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, NULL, $5, $5)
		ON CONFLICT (username, software_id)
		DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`, id.String(), username, softwareID, passwordHash, time.Now().UTC()).Scan(&userID)
	if err != nil {
		return "", fmt.Errorf("upsert credential: %w", err)
	}

	return userID, nil
}

func (r *Repository) AllowLoginIP(ctx context.Context, ip string, maxHits int, window time.Duration, now time.Time) (bool, time.Duration, error) {
	threshold := now.UTC().Add(-window)

	var hits int
	var windowStartedAt time.Time
	err := r.db.QueryRow(ctx, `
		WITH upsert AS (
			INSERT INTO auth_login_ip_limits (ip, window_started_at, hits, updated_at)
			VALUES ($1, $2, 1, $2)
			ON CONFLICT (ip) DO UPDATE
			SET
				hits = CASE
					WHEN auth_login_ip_limits.window_started_at <= $3 THEN 1
					ELSE auth_login_ip_limits.hits + 1
				END,
				window_started_at = CASE
					WHEN auth_login_ip_limits.window_started_at <= $3 THEN $2
					ELSE auth_login_ip_limits.window_started_at
				END,
				updated_at = $2
			RETURNING hits, window_started_at
		)
		SELECT hits, window_started_at FROM upsert
	`, ip, now.UTC(), threshold).Scan(&hits, &windowStartedAt)
	if err != nil {
		return false, 0, fmt.Errorf("upsert login ip rate limit: %w", err)
	}

	if hits <= maxHits {
		return true, 0, nil
	}

	retryAfter := windowStartedAt.Add(window).Sub(now.UTC())
	if retryAfter < time.Second {
		retryAfter = time.Second
	}

	return false, retryAfter, nil
}

// CleanupStaleAuthData deletes refresh-token rows that expired more than
// refreshRetention ago and IP throttle rows idle for ipRetention.
func (r *Repository) CleanupStaleAuthData(ctx context.Context, refreshRetention, ipRetention time.Duration, batchSize int) (CleanupResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	if refreshRetention <= 0 {
		refreshRetention = 90 * 24 * time.Hour
	}
	if ipRetention <= 0 {
		ipRetention = 30 * 24 * time.Hour
	}

	now := time.Now().UTC()

	deletedRefreshTokens, err := r.deleteStaleRefreshTokens(ctx, now.Add(-refreshRetention), batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	deletedIPLimits, err := r.deleteStaleIPLimits(ctx, now.Add(-ipRetention), batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	return CleanupResult{
		DeletedRefreshTokens: deletedRefreshTokens,
		DeletedIPLimits:      deletedIPLimits,
	}, nil
}

func (r *Repository) deleteStaleRefreshTokens(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		WITH stale AS (
			SELECT id
			FROM auth_refresh_tokens
			WHERE expires_at < $1
			ORDER BY expires_at ASC
			LIMIT $2
		)
		DELETE FROM auth_refresh_tokens t
		USING stale
		WHERE t.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale refresh tokens: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *Repository) deleteStaleIPLimits(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		WITH stale AS (
			SELECT ip
			FROM auth_login_ip_limits
			WHERE updated_at < $1
			ORDER BY updated_at ASC
			LIMIT $2
		)
		DELETE FROM auth_login_ip_limits t
		USING stale
		WHERE t.ip = stale.ip
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale login ip limits: %w", err)
	}

	return tag.RowsAffected(), nil
}
