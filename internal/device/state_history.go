package device

import (
	"context"
	"time"
)

// State history source values.
const (
	StateHistorySourceMQTT    = "mqtt"
	StateHistorySourceCommand = "command"
	StateHistorySourceExpiry  = "expiry"
)

// StateHistoryEntry is one recorded snapshot of a cooker.
//
// History gives a local trail of what the client showed, including
// optimistic values that were later reverted.
type StateHistoryEntry struct {
	ID          int64     `json:"id"`
	DeviceID    ID        `json:"device_id"`
	State       State     `json:"state"`
	Provisional bool      `json:"provisional"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

// StateHistoryRepository stores and retrieves device state history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryRepository interface {
	// RecordSnapshot stores the snapshot with its origin (mqtt, command, expiry).
	RecordSnapshot(ctx context.Context, snap Snapshot, source string) error

	// GetHistory returns up to limit entries for the device, newest first.
	GetHistory(ctx context.Context, deviceID ID, limit int) ([]StateHistoryEntry, error)
}
