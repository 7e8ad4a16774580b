package sqlite

import (
	"context"
	"database/sql"

	"github.com/huddlelabs/sessionguard/internal/security/domain"
)

type notificationsRepo struct {
	db *sql.DB
}

func (r *notificationsRepo) CreateNotification(ctx context.Context, n domain.Notification) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, kind, title, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Kind, n.Title, n.Body, n.CreatedAt)
	return err
}
