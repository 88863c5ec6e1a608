package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// RefreshTokenRepository is the Postgres RefreshTokenStore. Revocation is a
// conditional update, so of two concurrent rotations only one sees a row affected.
type RefreshTokenRepository struct {
	db DB
}

func NewRefreshTokenRepository(db DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Save(ctx context.Context, record RefreshTokenRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO auth_refresh_tokens (id, user_id, software_id, workspace_id, tenant_id, token_hash, revoked, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8)
	`,
		record.ID,
		record.UserID,
		record.SoftwareID,
		record.WorkspaceID,
		record.TenantID,
		record.TokenHash,
		record.ExpiresAt.UTC(),
		record.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

func (r *RefreshTokenRepository) FindValid(ctx context.Context, tokenHash, userID string) (RefreshTokenRecord, error) {
	var record RefreshTokenRecord
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, software_id, workspace_id, tenant_id, token_hash, revoked, expires_at, created_at
		FROM auth_refresh_tokens
		WHERE token_hash = $1 AND user_id = $2 AND revoked = FALSE
	`, tokenHash, userID).Scan(
		&record.ID,
		&record.UserID,
		&record.SoftwareID,
		&record.WorkspaceID,
		&record.TenantID,
		&record.TokenHash,
		&record.Revoked,
		&record.ExpiresAt,
		&record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefreshTokenRecord{}, ErrNotFound
		}
		return RefreshTokenRecord{}, fmt.Errorf("read refresh token: %w", err)
	}

	return record, nil
}

func (r *RefreshTokenRepository) RevokeIfNotRevoked(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE auth_refresh_tokens
		SET revoked = TRUE, revoked_at = NOW()
		WHERE id = $1 AND revoked = FALSE
	`, id)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *RefreshTokenRepository) RevokeByHash(ctx context.Context, tokenHash string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE auth_refresh_tokens
		SET revoked = TRUE, revoked_at = NOW()
		WHERE token_hash = $1 AND revoked = FALSE
	`, tokenHash)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token by hash: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *RefreshTokenRepository) WithinTx(ctx context.Context, fn func(RefreshTokenStore) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin refresh rotation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&RefreshTokenRepository{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit refresh rotation tx: %w", err)
	}

	return nil
}
