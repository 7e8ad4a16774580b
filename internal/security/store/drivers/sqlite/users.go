package sqlite

import (
	"context"
	"database/sql"

	"github.com/huddlelabs/sessionguard/internal/security/domain"
)

type usersRepo struct {
	db *sql.DB
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, mfa_enabled, created_at FROM users WHERE id = ?`, id)

	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.MFAEnabled, &u.CreatedAt); err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, mfa_enabled, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.MFAEnabled, u.CreatedAt)
	return err
}

func (r *usersRepo) SetMFAEnabled(ctx context.Context, userID string, enabled bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET mfa_enabled = ? WHERE id = ?`, enabled, userID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}
