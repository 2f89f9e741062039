package escalation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-lms/odyssey-lms/internal/shared"
)

// Repository provides PostgreSQL backed persistence of elevated accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindElevatedAccount loads the escalation record of userID.
func (r *Repository) FindElevatedAccount(ctx context.Context, userID string) (ElevatedAccount, error) {
	var a ElevatedAccount
	err := r.pool.QueryRow(ctx, `SELECT user_id::text, is_active, COALESCE(credential_hash, ''), COALESCE(credential_salt, ''),
	COALESCE(admin_roles, '{}'), COALESCE(session_timeout_minutes, 0), last_escalated_at
	FROM elevated_accounts WHERE user_id = $1::uuid`, userID).
		Scan(&a.UserID, &a.IsActive, &a.CredentialHash, &a.CredentialSalt, &a.AdminRoles, &a.SessionTimeoutMinutes, &a.LastEscalatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ElevatedAccount{}, shared.ErrNotFound
		}
		return ElevatedAccount{}, err
	}
	return a, nil
}

// RecordEscalation stamps the account's last escalation time.
func (r *Repository) RecordEscalation(ctx context.Context, userID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE elevated_accounts SET last_escalated_at = $2 WHERE user_id = $1::uuid`, userID, at)
	return err
}

// SetCredential replaces the stored escalation credential hash.
func (r *Repository) SetCredential(ctx context.Context, userID, hash, salt string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE elevated_accounts SET credential_hash = $2, credential_salt = $3 WHERE user_id = $1::uuid`, userID, hash, salt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
