package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Nomiku sync client.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Tender    TenderConfig    `yaml:"tender"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Session   SessionConfig   `yaml:"session"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TenderConfig contains the auth/directory REST service settings.
//
// Either Email+Password or UserID+APIToken must be supplied at connect
// time. Secrets belong in the environment, not in the YAML file.
type TenderConfig struct {
	BaseURL    string `yaml:"base_url"`
	Email      string `yaml:"email"`
	Password   string `yaml:"password"`
	UserID     string `yaml:"user_id"`
	APIToken   string `yaml:"api_token"`
	DeviceType int    `yaml:"device_type"` // product filter applied to the device list
	Timeout    int    `yaml:"timeout"`     // seconds per request
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker         MQTTBrokerConfig `yaml:"broker"`
	Namespace      string           `yaml:"namespace"`
	QoS            int              `yaml:"qos"`
	ConnectTimeout int              `yaml:"connect_timeout"`
	KeepAlive      int              `yaml:"keep_alive"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Transport      string `yaml:"transport"` // tcp, ssl, ws or wss
	Path           string `yaml:"path"`      // websocket path, ignored for tcp/ssl
	ClientIDPrefix string `yaml:"client_id_prefix"`
}

// SessionConfig contains connection state machine settings.
type SessionConfig struct {
	Reconnect          ReconnectConfig `yaml:"reconnect"`
	ProvisionalTimeout time.Duration   `yaml:"provisional_timeout"`
	DefaultDevice      string          `yaml:"default_device"`
	VerboseState       bool            `yaml:"verbose_state"`
	UseDeviceCache     bool            `yaml:"use_device_cache"`
	Listen             []string        `yaml:"listen"`
	Devices            []DeviceConfig  `yaml:"devices"`
}

// ReconnectConfig bounds the exponential reconnect backoff.
type ReconnectConfig struct {
	MinPeriod time.Duration `yaml:"min_period"`
	MaxPeriod time.Duration `yaml:"max_period"`
}

// DeviceConfig pre-seeds a device so the directory list need not be fetched.
type DeviceConfig struct {
	ID         string `yaml:"id"`
	HardwareID string `yaml:"hardware_id"`
	Name       string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains local HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: NOMIKU_SECTION_KEY
// For example: NOMIKU_TENDER_EMAIL, NOMIKU_DATABASE_PATH
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config pointing at the production Nomiku services.
func defaultConfig() *Config {
	return &Config{
		Tender: TenderConfig{
			BaseURL:    "https://www.eattender.com/api",
			DeviceType: 0,
			Timeout:    15,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:           "mq.nomiku.com",
				Port:           443,
				Transport:      "wss",
				Path:           "/mqtt",
				ClientIDPrefix: "nomiku-go",
			},
			Namespace:      "nom2",
			QoS:            0,
			ConnectTimeout: 10,
			KeepAlive:      60,
		},
		Session: SessionConfig{
			Reconnect: ReconnectConfig{
				MinPeriod: time.Second,
				MaxPeriod: 64 * time.Second,
			},
			ProvisionalTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/nomiku.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			Org:           "nomiku",
			Bucket:        "sous_vide",
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Tender credentials
	if v := os.Getenv("NOMIKU_TENDER_EMAIL"); v != "" {
		cfg.Tender.Email = v
	}
	if v := os.Getenv("NOMIKU_TENDER_PASSWORD"); v != "" {
		cfg.Tender.Password = v
	}
	if v := os.Getenv("NOMIKU_TENDER_USER_ID"); v != "" {
		cfg.Tender.UserID = v
	}
	if v := os.Getenv("NOMIKU_TENDER_API_TOKEN"); v != "" {
		cfg.Tender.APIToken = v
	}

	if v := os.Getenv("NOMIKU_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}

	if v := os.Getenv("NOMIKU_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("NOMIKU_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("NOMIKU_API_HOST"); v != "" {
		cfg.API.Host = v
	}
}

// Validate checks the configuration for errors.
// All problems are reported together rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []string

	if c.Tender.BaseURL == "" {
		errs = append(errs, "tender.base_url is required")
	}
	if c.Tender.Timeout < 0 {
		errs = append(errs, "tender.timeout must not be negative")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	switch c.MQTT.Broker.Transport {
	case "tcp", "ssl", "ws", "wss":
	default:
		errs = append(errs, "mqtt.broker.transport must be tcp, ssl, ws or wss")
	}
	if c.MQTT.Namespace == "" || strings.ContainsAny(c.MQTT.Namespace, "/+#") {
		errs = append(errs, "mqtt.namespace must be a single non-empty topic segment")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Session.Reconnect.MinPeriod <= 0 {
		errs = append(errs, "session.reconnect.min_period must be positive")
	}
	if c.Session.Reconnect.MaxPeriod < c.Session.Reconnect.MinPeriod {
		errs = append(errs, "session.reconnect.max_period must not be below min_period")
	}
	if c.Session.ProvisionalTimeout <= 0 {
		errs = append(errs, "session.provisional_timeout must be positive")
	}
	for i, d := range c.Session.Devices {
		if d.ID == "" || d.HardwareID == "" {
			errs = append(errs, fmt.Sprintf("session.devices[%d] requires id and hardware_id", i))
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetTenderTimeout returns the directory request timeout as a Duration.
func (c *Config) GetTenderTimeout() time.Duration {
	return time.Duration(c.Tender.Timeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
