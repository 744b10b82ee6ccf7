// internal/repository/postgres/device_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"sessiongate-service/internal/domain/device"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

type DeviceRepository struct {
	db *pgxpool.Pool
}

func NewDeviceRepository(db *pgxpool.Pool) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Upsert records a sighting of (userID, fingerprint). An existing device
// only gets its last_seen_at touched; a fresh one is inserted with
// is_primary set when it is the very first device of the account.
// is_primary is written once and never changes afterwards.
//
// Returns the device and whether it was newly created.
func (r *DeviceRepository) Upsert(ctx context.Context, userID int64, fingerprint, displayName string) (*device.Device, bool, error) {
	// Fast path: the device has been seen before.
	d, err := r.touch(ctx, r.db, userID, fingerprint)
	if err == nil {
		return d, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to match device: %w", err)
	}

	// First sighting: serialize per user so concurrent first logins from
	// two different devices cannot both claim is_primary.
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey(lockNamespaceDevices, userID)); err != nil {
		return nil, false, fmt.Errorf("failed to take user lock: %w", err)
	}

	// A racing login may have inserted the same fingerprint while we
	// waited on the lock.
	d, err = r.touch(ctx, tx, userID, fingerprint)
	if err == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("failed to commit device touch: %w", err)
		}
		return d, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to match device: %w", err)
	}

	insert := `
		INSERT INTO devices (device_id, user_id, fingerprint, display_name, is_primary, last_seen_at, created_at)
		VALUES ($1, $2, $3, $4,
			NOT EXISTS(SELECT 1 FROM devices WHERE user_id = $2),
			NOW(), NOW())
		RETURNING device_id, user_id, fingerprint, display_name, is_primary, last_seen_at, created_at
	`

	var created device.Device
	err = tx.QueryRow(ctx, insert, ulid.Make().String(), userID, fingerprint, displayName).Scan(
		&created.ID, &created.UserID, &created.Fingerprint, &created.DisplayName,
		&created.IsPrimary, &created.LastSeenAt, &created.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create device: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit device create: %w", err)
	}

	return &created, true, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *DeviceRepository) touch(ctx context.Context, q queryRower, userID int64, fingerprint string) (*device.Device, error) {
	query := `
		UPDATE devices
		SET last_seen_at = NOW()
		WHERE user_id = $1 AND fingerprint = $2
		RETURNING device_id, user_id, fingerprint, display_name, is_primary, last_seen_at, created_at
	`

	var d device.Device
	err := q.QueryRow(ctx, query, userID, fingerprint).Scan(
		&d.ID, &d.UserID, &d.Fingerprint, &d.DisplayName,
		&d.IsPrimary, &d.LastSeenAt, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &d, nil
}

// ListByUser returns the full device history of an account, most recently
// seen first. Records are never pruned.
func (r *DeviceRepository) ListByUser(ctx context.Context, userID int64) ([]*device.Device, error) {
	query := `
		SELECT device_id, user_id, fingerprint, display_name, is_primary, last_seen_at, created_at
		FROM devices
		WHERE user_id = $1
		ORDER BY last_seen_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*device.Device
	for rows.Next() {
		var d device.Device
		if err := rows.Scan(&d.ID, &d.UserID, &d.Fingerprint, &d.DisplayName, &d.IsPrimary, &d.LastSeenAt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, &d)
	}

	return devices, rows.Err()
}
