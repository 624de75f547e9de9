package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Repository caches the directory's device list between runs.
type Repository interface {
	// SaveAll replaces the cached list.
	SaveAll(ctx context.Context, devices []Info) error

	// List returns every cached device ordered by name.
	List(ctx context.Context) ([]Info, error)

	// GetByID returns one cached device or ErrDeviceNotFound.
	GetByID(ctx context.Context, id ID) (Info, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with migrations applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveAll replaces the cached device list in one transaction.
func (r *SQLiteRepository) SaveAll(ctx context.Context, devices []Info) error {
	for _, d := range devices {
		if err := d.Validate(); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, "DELETE FROM devices"); err != nil {
		return fmt.Errorf("clearing device cache: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO devices (id, hardware_id, name, device_type, updated_at)
		 VALUES (?, ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))`)
	if err != nil {
		return fmt.Errorf("preparing device insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range devices {
		if _, err := stmt.ExecContext(ctx, string(d.ID), string(d.HardwareID), d.Name, d.DeviceType); err != nil {
			return fmt.Errorf("inserting device %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing device cache: %w", err)
	}
	return nil
}

// List returns every cached device.
func (r *SQLiteRepository) List(ctx context.Context) ([]Info, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, hardware_id, name, device_type FROM devices ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Info
	for rows.Next() {
		var d Info
		if err := rows.Scan(&d.ID, &d.HardwareID, &d.Name, &d.DeviceType); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// GetByID returns one cached device.
func (r *SQLiteRepository) GetByID(ctx context.Context, id ID) (Info, error) {
	var d Info
	err := r.db.QueryRowContext(ctx,
		`SELECT id, hardware_id, name, device_type FROM devices WHERE id = ?`, string(id),
	).Scan(&d.ID, &d.HardwareID, &d.Name, &d.DeviceType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Info{}, ErrDeviceNotFound
		}
		return Info{}, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}
