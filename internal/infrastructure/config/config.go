package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-iot/internal/apperr"
)

// Config is the root of configs/config.yaml. Every section can be partially
// overridden from GRAYLOGIC_* environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Retention RetentionConfig `yaml:"retention"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SiteConfig contains site-specific information.
//
// Timezone is the IANA zone schedules are evaluated in. Schedule times are
// wall-clock HH:mm values local to this zone.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for action telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains the secret used to validate bearer tokens.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// RetentionConfig controls the age-based sweep of history and notifications.
//
// Days <= 0 disables the sweep entirely.
type RetentionConfig struct {
	Days     int    `yaml:"days"`
	Schedule string `yaml:"schedule"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load builds a Config from defaults, then the YAML file at path, then the
// environment, and validates the result.
//
// Environment variables are named GRAYLOGIC_<SECTION>_<KEY>, for example
// GRAYLOGIC_DATABASE_PATH or GRAYLOGIC_RETENTION_DAYS.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{ID: "site-001", Name: "Gray Logic IoT", Timezone: "UTC"},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-iot.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker:    MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "graylogic-iot"},
			QoS:       1,
			Reconnect: MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
		},
		API: APIConfig{
			Host:     "0.0.0.0",
			Port:     8080,
			Timeouts: APITimeoutConfig{Read: 30, Write: 30, Idle: 60},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Retention: RetentionConfig{Days: 0, Schedule: "@every 24h"},
		Metrics:   MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// envOverride binds one environment variable to a config field.
type envOverride struct {
	name  string
	apply func(cfg *Config, value string)
}

func setString(field func(*Config) *string) func(*Config, string) {
	return func(cfg *Config, v string) { *field(cfg) = v }
}

// setInt ignores values that do not parse, keeping the file value.
func setInt(field func(*Config) *int) func(*Config, string) {
	return func(cfg *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			*field(cfg) = n
		}
	}
}

func setBool(field func(*Config) *bool) func(*Config, string) {
	return func(cfg *Config, v string) {
		if b, err := strconv.ParseBool(v); err == nil {
			*field(cfg) = b
		}
	}
}

var envOverrides = []envOverride{
	{"GRAYLOGIC_SITE_ID", setString(func(c *Config) *string { return &c.Site.ID })},
	{"GRAYLOGIC_SITE_TIMEZONE", setString(func(c *Config) *string { return &c.Site.Timezone })},
	{"GRAYLOGIC_DATABASE_PATH", setString(func(c *Config) *string { return &c.Database.Path })},
	{"GRAYLOGIC_MQTT_HOST", setString(func(c *Config) *string { return &c.MQTT.Broker.Host })},
	{"GRAYLOGIC_MQTT_PORT", setInt(func(c *Config) *int { return &c.MQTT.Broker.Port })},
	{"GRAYLOGIC_MQTT_TLS", setBool(func(c *Config) *bool { return &c.MQTT.Broker.TLS })},
	{"GRAYLOGIC_MQTT_USERNAME", setString(func(c *Config) *string { return &c.MQTT.Auth.Username })},
	{"GRAYLOGIC_MQTT_PASSWORD", setString(func(c *Config) *string { return &c.MQTT.Auth.Password })},
	{"GRAYLOGIC_API_HOST", setString(func(c *Config) *string { return &c.API.Host })},
	{"GRAYLOGIC_API_PORT", setInt(func(c *Config) *int { return &c.API.Port })},
	{"GRAYLOGIC_INFLUXDB_ENABLED", setBool(func(c *Config) *bool { return &c.InfluxDB.Enabled })},
	{"GRAYLOGIC_INFLUXDB_URL", setString(func(c *Config) *string { return &c.InfluxDB.URL })},
	{"GRAYLOGIC_INFLUXDB_TOKEN", setString(func(c *Config) *string { return &c.InfluxDB.Token })},
	{"GRAYLOGIC_LOG_LEVEL", setString(func(c *Config) *string { return &c.Logging.Level })},
	// Always set in production; the sample config ships an empty secret.
	{"GRAYLOGIC_JWT_SECRET", setString(func(c *Config) *string { return &c.Security.JWT.Secret })},
	{"GRAYLOGIC_RETENTION_DAYS", setInt(func(c *Config) *int { return &c.Retention.Days })},
	{"GRAYLOGIC_RETENTION_SCHEDULE", setString(func(c *Config) *string { return &c.Retention.Schedule })},
	{"GRAYLOGIC_METRICS_ENABLED", setBool(func(c *Config) *bool { return &c.Metrics.Enabled })},
}

func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v, ok := os.LookupEnv(o.name); ok && v != "" {
			o.apply(cfg, v)
		}
	}
}

const minJWTSecretLength = 32

// Validate reports every problem at once, wrapped in apperr.ValidationError.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.Site.ID != "", "site.id is required")
	_, tzErr := time.LoadLocation(c.Site.Timezone)
	check(tzErr == nil, fmt.Sprintf("site.timezone %q is not a valid IANA zone", c.Site.Timezone))
	check(c.Database.Path != "", "database.path is required")
	check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1, or 2")
	check(c.API.Port > 0 && c.API.Port <= 65535, "api.port must be between 1 and 65535")
	check(c.WebSocket.PingInterval > 0 && c.WebSocket.PongTimeout > 0,
		"websocket.ping_interval and websocket.pong_timeout must be positive")

	switch secret := c.Security.JWT.Secret; {
	case secret == "":
		problems = append(problems, "security.jwt.secret is required (set GRAYLOGIC_JWT_SECRET)")
	case len(secret) < minJWTSecretLength:
		problems = append(problems, fmt.Sprintf("security.jwt.secret must be at least %d characters", minJWTSecretLength))
	}

	if c.Retention.Days > 0 {
		spec := strings.TrimSpace(c.Retention.Schedule)
		if spec == "" {
			problems = append(problems, "retention.schedule is required when retention.days is positive")
		} else if _, err := cron.ParseStandard(spec); err != nil {
			problems = append(problems, fmt.Sprintf("retention.schedule %q: %v", spec, err))
		}
	}

	if c.InfluxDB.Enabled {
		check(c.InfluxDB.URL != "" && c.InfluxDB.Org != "" && c.InfluxDB.Bucket != "",
			"influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}
	if c.Metrics.Enabled {
		check(strings.HasPrefix(c.Metrics.Path, "/"), "metrics.path must start with /")
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: config: %s", apperr.ValidationError, strings.Join(problems, "; "))
}

// Location returns the site time zone, or UTC if it does not load.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Site.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

// GetReadTimeout returns api.timeouts.read as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns api.timeouts.write as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns api.timeouts.idle as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
