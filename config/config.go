package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Presence   PresenceConfig   `yaml:"presence"`
	Registry   RegistryConfig   `yaml:"registry"`
	Scanner    ScannerConfig    `yaml:"scanner"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Broker     BrokerConfig     `yaml:"broker"`
	Auth       AuthConfig       `yaml:"auth"`
	Storage    StorageConfig    `yaml:"storage"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds the database connection configuration.
// Driver is either "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogSQL                 bool   `yaml:"log_sql"`
}

// PresenceConfig controls the ledger policies and the aggregator.
type PresenceConfig struct {
	Timezone             string `yaml:"timezone"`
	CurfewHour           *int   `yaml:"curfew_hour"` // unset means 22; 0 is midnight
	DuplicateEntryPolicy string `yaml:"duplicate_entry_policy"` // reject | reopen
	OrphanExitPolicy     string `yaml:"orphan_exit_policy"`     // reject | record
	RecentLimit          int    `yaml:"recent_limit"`
}

// RegistryConfig controls the tag resolution cache.
type RegistryConfig struct {
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// ScannerConfig lists the background scan sources, one per location.
type ScannerConfig struct {
	Readers []ReaderConfig `yaml:"readers"`
}

// ReaderConfig binds a scan source to a location. Source is one of
// "auto", "hardware", "browser" or "synthetic".
type ReaderConfig struct {
	Location           string            `yaml:"location"`
	Source             string            `yaml:"source"`
	ReaderID           string            `yaml:"reader_id"`
	GatewayURL         string            `yaml:"gateway_url"`
	GatewayHeaders     map[string]string `yaml:"gateway_headers"`
	HTTPProxy          string            `yaml:"http_proxy"`
	PollIntervalMillis int               `yaml:"poll_interval_ms"`
	PollInterval       time.Duration     `yaml:"-"`
	SampleTags         []string          `yaml:"sample_tags"`
	MinIntervalSeconds int               `yaml:"min_interval_seconds"`
	MaxIntervalSeconds int               `yaml:"max_interval_seconds"`
}

// BrokerConfig selects the event fan-out backend ("memory" or "redis").
type BrokerConfig struct {
	Backend   string `yaml:"backend"`
	RedisAddr string `yaml:"redis_addr"`
	Channel   string `yaml:"channel"`
}

// AuthConfig holds session signing settings and the seeded operator accounts.
type AuthConfig struct {
	SigningKey      string         `yaml:"signing_key"`
	Issuer          string         `yaml:"issuer"`
	SessionTTLHours int            `yaml:"session_ttl_hours"`
	SessionTTL      time.Duration  `yaml:"-"`
	Users           []SeedUserConf `yaml:"users"`
}

// SeedUserConf is an operator account. PasswordHash must be a bcrypt hash.
type SeedUserConf struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

// StorageConfig points at the S3-compatible bucket holding student photos.
type StorageConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Region           string `yaml:"region"`
	BaseEndpoint     string `yaml:"base_endpoint"`
	Bucket           string `yaml:"bucket"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	PresignTTLMinute int    `yaml:"presign_ttl_minutes"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	if cfg.Presence.Timezone == "" {
		cfg.Presence.Timezone = "Local"
	}
	if _, err := time.LoadLocation(cfg.Presence.Timezone); err != nil {
		return fmt.Errorf("invalid presence.timezone %q: %w", cfg.Presence.Timezone, err)
	}
	if cfg.Presence.CurfewHour == nil {
		hour := 22
		cfg.Presence.CurfewHour = &hour
	}
	if h := *cfg.Presence.CurfewHour; h < 0 || h > 23 {
		return fmt.Errorf("presence.curfew_hour must be within 0-23, got %d", h)
	}
	if cfg.Presence.DuplicateEntryPolicy == "" {
		cfg.Presence.DuplicateEntryPolicy = "reject"
	}
	if cfg.Presence.OrphanExitPolicy == "" {
		cfg.Presence.OrphanExitPolicy = "reject"
	}
	if p := cfg.Presence.DuplicateEntryPolicy; p != "reject" && p != "reopen" {
		return fmt.Errorf("presence.duplicate_entry_policy must be reject or reopen, got %q", p)
	}
	if p := cfg.Presence.OrphanExitPolicy; p != "reject" && p != "record" {
		return fmt.Errorf("presence.orphan_exit_policy must be reject or record, got %q", p)
	}
	if cfg.Presence.RecentLimit <= 0 {
		cfg.Presence.RecentLimit = 50
	}

	if cfg.Registry.CacheTTLSeconds < 0 {
		cfg.Registry.CacheTTLSeconds = 0
	}
	cfg.Registry.CacheTTL = time.Duration(cfg.Registry.CacheTTLSeconds) * time.Second

	for i := range cfg.Scanner.Readers {
		r := &cfg.Scanner.Readers[i]
		if r.Source == "" {
			r.Source = "auto"
		}
		if r.PollIntervalMillis <= 0 {
			r.PollIntervalMillis = 500
		}
		r.PollInterval = time.Duration(r.PollIntervalMillis) * time.Millisecond
		if r.MinIntervalSeconds <= 0 {
			r.MinIntervalSeconds = 3
		}
		if r.MaxIntervalSeconds < r.MinIntervalSeconds {
			r.MaxIntervalSeconds = r.MinIntervalSeconds + 5
		}
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Broker.Backend == "" {
		cfg.Broker.Backend = "memory"
	}
	if cfg.Broker.Backend != "memory" && cfg.Broker.Backend != "redis" {
		return fmt.Errorf("unsupported broker backend %q", cfg.Broker.Backend)
	}
	if cfg.Broker.Channel == "" {
		cfg.Broker.Channel = "campus:events"
	}

	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "campus-access"
	}
	if cfg.Auth.SessionTTLHours <= 0 {
		cfg.Auth.SessionTTLHours = 12
	}
	cfg.Auth.SessionTTL = time.Duration(cfg.Auth.SessionTTLHours) * time.Hour

	if cfg.Storage.PresignTTLMinute <= 0 {
		cfg.Storage.PresignTTLMinute = 15
	}
	return nil
}

// applyEnv lets deployments keep secrets out of the YAML file.
func applyEnv(cfg *Config) {
	cfg.Database.DSN = getEnv("DATABASE_DSN", cfg.Database.DSN)
	cfg.Auth.SigningKey = getEnv("JWT_SIGNING_KEY", cfg.Auth.SigningKey)
	cfg.Broker.RedisAddr = getEnv("REDIS_ADDR", cfg.Broker.RedisAddr)
	cfg.Storage.AccessKey = getEnv("S3_ACCESS_KEY", cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = getEnv("S3_SECRET_KEY", cfg.Storage.SecretKey)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
