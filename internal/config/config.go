package config

import (
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Routing   RoutingConfig   `yaml:"routing"`
	Policy    PolicyConfig    `yaml:"policy"`
}

type ServerConfig struct {
	Host             string   `yaml:"host"`
	Port             int      `yaml:"port"`
	ReadTimeout      Duration `yaml:"read_timeout"`
	WriteTimeout     Duration `yaml:"write_timeout"`
	IdleTimeout      Duration `yaml:"idle_timeout"`
	GracefulShutdown Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	Name            string   `yaml:"name"`
	User            string   `yaml:"user"`
	Password        string   `yaml:"password"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + strconv.Itoa(d.Port) + "/" + d.Name + "?sslmode=disable"
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

// RoutingConfig tunes the routing engine. Cooldown durations are policy
// knobs, not contracts; the defaults mirror observed provider behavior.
type RoutingConfig struct {
	MaxRetries          int             `yaml:"max_retries"`
	TotalAttemptCap     int             `yaml:"total_attempt_cap"`
	TransientRetryPause Duration        `yaml:"transient_retry_pause"`
	InboundRPM          int             `yaml:"inbound_rpm"`
	Cooldowns           CooldownsConfig `yaml:"cooldowns"`
}

type CooldownsConfig struct {
	RateLimitScript  Duration `yaml:"rate_limit_script"`
	RateLimitFast    Duration `yaml:"rate_limit_fast"`
	RateLimitDefault Duration `yaml:"rate_limit_default"`
	RetryAfterBuffer Duration `yaml:"retry_after_buffer"`
	Auth             Duration `yaml:"auth"`
	Transient        Duration `yaml:"transient"`
	Repeated         Duration `yaml:"repeated"`
	Unknown          Duration `yaml:"unknown"`
}

type PolicyConfig struct {
	Enabled           bool     `yaml:"enabled"`
	BundlePath        string   `yaml:"bundle_path"`
	EvaluationTimeout Duration `yaml:"evaluation_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8085,
			ReadTimeout:      Duration(30 * time.Second),
			WriteTimeout:     Duration(300 * time.Second),
			IdleTimeout:      Duration(120 * time.Second),
			GracefulShutdown: Duration(30 * time.Second),
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "chunkrouter",
			User:            "chunkrouter",
			MaxOpenConns:    10,
			ConnMaxLifetime: Duration(5 * time.Minute),
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			DB:       0,
			PoolSize: 20,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9091,
		},
		Routing: RoutingConfig{
			MaxRetries:          3,
			TotalAttemptCap:     0, // 0 = derived from backend count
			TransientRetryPause: Duration(2 * time.Second),
			InboundRPM:          120,
			Cooldowns: CooldownsConfig{
				RateLimitScript:  Duration(70 * time.Second),
				RateLimitFast:    Duration(90 * time.Second),
				RateLimitDefault: Duration(180 * time.Second),
				RetryAfterBuffer: Duration(10 * time.Second),
				Auth:             Duration(3600 * time.Second),
				Transient:        Duration(120 * time.Second),
				Repeated:         Duration(300 * time.Second),
				Unknown:          Duration(60 * time.Second),
			},
		},
		Policy: PolicyConfig{
			Enabled:           false,
			BundlePath:        "/etc/chunkrouter/policies",
			EvaluationTimeout: Duration(100 * time.Millisecond),
		},
	}
}
