package sqlite

import (
	"context"
	"database/sql"

	"github.com/huddlelabs/sessionguard/internal/security/domain"
	"github.com/huddlelabs/sessionguard/internal/security/store"
)

type devicesRepo struct {
	db *sql.DB
}

func (r *devicesRepo) GetDeviceByHash(ctx context.Context, hash string) (domain.DeviceRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT hash, user_id, user_agent, device_name, trust_score, blocked, first_seen_at, last_seen_at
		 FROM device_fingerprints WHERE hash = ?`, hash)

	var d domain.DeviceRecord
	err := row.Scan(&d.FingerprintHash, &d.UserID, &d.UserAgent, &d.DeviceName,
		&d.TrustScore, &d.Blocked, &d.FirstSeenAt, &d.LastSeenAt)
	if err != nil {
		return domain.DeviceRecord{}, mapNotFound(err)
	}
	return d, nil
}

func (r *devicesRepo) SaveDevice(ctx context.Context, d domain.DeviceRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_fingerprints
			(hash, user_id, user_agent, device_name, trust_score, blocked, first_seen_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET
			trust_score = excluded.trust_score,
			blocked = excluded.blocked,
			last_seen_at = excluded.last_seen_at`,
		d.FingerprintHash, d.UserID, d.UserAgent, d.DeviceName,
		d.TrustScore, d.Blocked, d.FirstSeenAt, d.LastSeenAt)
	return err
}

func (r *devicesRepo) SetDeviceBlocked(ctx context.Context, hash string, blocked bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE device_fingerprints SET blocked = ? WHERE hash = ?`, blocked, hash)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
