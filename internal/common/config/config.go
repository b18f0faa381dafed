// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig         `mapstructure:"app"`
	Server       ServerConfig      `mapstructure:"server"`
	Database     DatabaseConfig    `mapstructure:"database"`
	Auth         AuthConfig        `mapstructure:"auth"`
	Scoring      ScoringConfig     `mapstructure:"scoring"`
	Waitlist     WaitlistConfig    `mapstructure:"waitlist"`
	RateLimit    RateLimitConfig   `mapstructure:"rate_limit"`
	Camunda      CamundaConfig     `mapstructure:"camunda"`
	Integrations IntegrationConfig `mapstructure:"integrations"`
	Logging      LoggingConfig     `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	ReadTimeout    int      `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout   int      `mapstructure:"write_timeout"` // milliseconds
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig selects and configures the operator identity provider.
type AuthConfig struct {
	Provider  string `mapstructure:"provider"` // jwt | keycloak
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`

	Keycloak struct {
		URL          string `mapstructure:"url"`
		Realm        string `mapstructure:"realm"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
	} `mapstructure:"keycloak"`
}

// ScoringConfig tunes the scoring configuration loader and admin surface.
type ScoringConfig struct {
	CacheTTL           int    `mapstructure:"cache_ttl"` // milliseconds
	EnvOverrideVar     string `mapstructure:"env_override_var"`
	SimulateMaxSample  int    `mapstructure:"simulate_max_sample"`
	StatisticsSample   int    `mapstructure:"statistics_sample"`
	ProfileCacheTTL    int    `mapstructure:"profile_cache_ttl"` // milliseconds
	NotifyConfigChange bool   `mapstructure:"notify_config_change"`
}

type WaitlistConfig struct {
	CapacityLimit int `mapstructure:"capacity_limit"`
}

// RateLimitConfig describes the token bucket: Capacity tokens, refilled in full
// every RefillInterval.
type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	Capacity       int  `mapstructure:"capacity"`
	RefillInterval int  `mapstructure:"refill_interval"` // milliseconds
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

// IntegrationConfig holds settings for outbound notification services.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled  bool   `mapstructure:"enabled"`
			TopicARN string `mapstructure:"topic_arn"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
