package session

import (
	"time"

	"github.com/nomiku/nomiku-go/internal/device"
	"github.com/nomiku/nomiku-go/internal/infrastructure/config"
)

// Defaults used when Config fields are zero.
const (
	DefaultNamespace          = "nom2"
	DefaultMinPeriod          = time.Second
	DefaultMaxPeriod          = 64 * time.Second
	DefaultProvisionalTimeout = 10 * time.Second
)

// Config holds the fixed timing and topic settings of a Machine.
type Config struct {
	Namespace          string
	MinPeriod          time.Duration
	MaxPeriod          time.Duration
	ProvisionalTimeout time.Duration
}

// ConfigFrom builds a Config from the application configuration.
func ConfigFrom(mqtt config.MQTTConfig, s config.SessionConfig) Config {
	return Config{
		Namespace:          mqtt.Namespace,
		MinPeriod:          s.Reconnect.MinPeriod,
		MaxPeriod:          s.Reconnect.MaxPeriod,
		ProvisionalTimeout: s.ProvisionalTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.MinPeriod <= 0 {
		c.MinPeriod = DefaultMinPeriod
	}
	if c.MaxPeriod <= 0 {
		c.MaxPeriod = DefaultMaxPeriod
	}
	if c.ProvisionalTimeout <= 0 {
		c.ProvisionalTimeout = DefaultProvisionalTimeout
	}
	return c
}

// Options are merged into the session by Connect. Empty fields keep the
// current value, except VerboseState which is always replaced.
type Options struct {
	Email    string
	Password string

	// UserID and APIToken skip authentication when both are set.
	UserID   string
	APIToken string

	// Devices pre-seeds the registry so the device list is not fetched.
	Devices []device.Info

	// DefaultDevice is used by Listen and Set when no ID is given.
	DefaultDevice device.ID

	// VerboseState emits every inbound message, not only valid new state.
	VerboseState bool
}

// OptionsFrom builds connect options from the application configuration.
func OptionsFrom(t config.TenderConfig, s config.SessionConfig) Options {
	opts := Options{
		Email:         t.Email,
		Password:      t.Password,
		UserID:        t.UserID,
		APIToken:      t.APIToken,
		DefaultDevice: device.ID(s.DefaultDevice),
		VerboseState:  s.VerboseState,
	}
	for _, d := range s.Devices {
		opts.Devices = append(opts.Devices, device.Info{
			ID:         device.ID(d.ID),
			HardwareID: device.HardwareID(d.HardwareID),
			Name:       d.Name,
		})
	}
	return opts
}
