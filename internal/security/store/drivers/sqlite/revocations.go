package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/huddlelabs/sessionguard/internal/security/domain"
)

type revocationsRepo struct {
	db *sql.DB
}

func (r *revocationsRepo) CreateRevocation(ctx context.Context, e domain.RevocationEntry) error {
	// ON CONFLICT DO NOTHING keeps revoke idempotent: the first entry wins
	// and is never updated.
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO token_revocations (jti, user_id, token_type, reason, revoked_at, ttl_expiry)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(jti) DO NOTHING`,
		e.JTI, e.UserID, e.TokenType, e.Reason, e.RevokedAt, e.TTLExpiry)
	return err
}

func (r *revocationsRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM token_revocations WHERE jti = ? AND ttl_expiry > ?`,
		jti, time.Now().UTC())

	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *revocationsRepo) DeleteExpiredRevocations(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM token_revocations WHERE ttl_expiry <= ?`, time.Now().UTC())
	return err
}
