package domain

import "time"

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Lab      LabConfig      `mapstructure:"lab"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// AuditConfig selects and configures the external audit store: the
// side channel consumers read, distinct from the transactional audit
// trail table.
type AuditConfig struct {
	// Backend is "postgres" or "sqlite".
	Backend     string `mapstructure:"backend"`
	PostgresURL string `mapstructure:"postgres_url"`
	SQLitePath  string `mapstructure:"sqlite_path"`
}

// CacheConfig holds the override-cache configuration. Redis is the
// primary tier; when unreachable the in-process fallback tier serves
// lookups, mirroring the redis-else-local-memory deployment policy.
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	LocalSize   int           `mapstructure:"local_size"`
	LocalTTL    time.Duration `mapstructure:"local_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// LabConfig holds laboratory-specific settings, including the static
// text-result status override table consulted by the limit-status
// resolver after stored overrides. Keys are parameter names
// (case-insensitive) or the reserved fallback keys "global", "default"
// and "*"; values map literal result text to a limit status.
type LabConfig struct {
	Name                      string                       `mapstructure:"name"`
	Address                   string                       `mapstructure:"address"`
	Phone                     string                       `mapstructure:"phone"`
	Email                     string                       `mapstructure:"email"`
	AccreditationNumber       string                       `mapstructure:"accreditation_number"`
	ReportValidityDays        int                          `mapstructure:"report_validity_days"`
	TextResultStatusOverrides map[string]map[string]string `mapstructure:"text_result_status_overrides"`
}
