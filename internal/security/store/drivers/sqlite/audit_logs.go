package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/huddlelabs/sessionguard/internal/security/domain"
)

type auditLogsRepo struct {
	db *sql.DB
}

func (r *auditLogsRepo) CreateAuditLog(ctx context.Context, e domain.AuthAuditLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_audit_logs
			(id, user_id, event_type, success, ip_address, location, device_fingerprint, user_agent, risk_score, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.EventType, e.Success, e.IPAddress, e.Location,
		e.DeviceFingerprint, e.UserAgent, e.RiskScore, e.Detail, e.CreatedAt)
	return err
}

func (r *auditLogsRepo) ListRecentAuditLogs(
	ctx context.Context,
	userID string,
	window time.Duration,
) ([]domain.AuthAuditLog, error) {
	cutoff := time.Now().UTC().Add(-window)
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, event_type, success, ip_address, location, device_fingerprint, user_agent, risk_score, detail, created_at
		 FROM auth_audit_logs
		 WHERE user_id = ? AND created_at >= ?
		 ORDER BY created_at DESC`,
		userID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuthAuditLog
	for rows.Next() {
		var e domain.AuthAuditLog
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.Success, &e.IPAddress,
			&e.Location, &e.DeviceFingerprint, &e.UserAgent, &e.RiskScore, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *auditLogsRepo) CountRecentFailures(
	ctx context.Context,
	userID string,
	window time.Duration,
) (int, error) {
	cutoff := time.Now().UTC().Add(-window)
	row := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM auth_audit_logs
		 WHERE user_id = ? AND success = 0 AND created_at >= ?`,
		userID, cutoff)

	var n int
	if err := row.Scan(&n); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}
