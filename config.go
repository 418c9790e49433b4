package medAuth

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/medAuth/jwt"
	"github.com/MrEthical07/medAuth/lockout"
	"github.com/MrEthical07/medAuth/password"
)

// Config is the complete engine configuration. Build copies it; later
// changes to the caller's value have no effect.
type Config struct {
	JWT       JWTConfig       `yaml:"jwt"`
	Password  PasswordConfig  `yaml:"password"`
	Lockout   LockoutConfig   `yaml:"lockout"`
	Reset     ResetConfig     `yaml:"reset"`
	Store     StoreConfig     `yaml:"store"`
	Audit     AuditConfig     `yaml:"audit"`
	Notify    NotifyConfig    `yaml:"notify"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// JWTConfig holds token secrets and lifetimes. Both secrets are required and
// must differ.
type JWTConfig struct {
	AccessSecret  string        `yaml:"accessSecret"`
	RefreshSecret string        `yaml:"refreshSecret"`
	AccessTTL     time.Duration `yaml:"accessTTL"`
	RefreshTTL    time.Duration `yaml:"refreshTTL"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	Leeway        time.Duration `yaml:"leeway"`
}

// PasswordConfig defines a public type used by medAuth APIs.
type PasswordConfig struct {
	Cost int `yaml:"cost"`
	// PoolSize bounds concurrent hash operations. Zero means GOMAXPROCS.
	PoolSize int `yaml:"poolSize"`
	// AllowLowCost permits costs below 10. Intended for tests only.
	AllowLowCost bool `yaml:"allowLowCost"`
}

// LockoutConfig defines a public type used by medAuth APIs.
type LockoutConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Duration    time.Duration `yaml:"duration"`
}

// ResetConfig defines a public type used by medAuth APIs.
type ResetConfig struct {
	TokenTTL time.Duration `yaml:"tokenTTL"`
}

// StoreConfig is the timeout and retry policy applied to account store calls.
type StoreConfig struct {
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	// MaxRetries applies to account re-fetches on the authentication path.
	MaxRetries   int           `yaml:"maxRetries"`
	RetryBackoff time.Duration `yaml:"retryBackoff"`
}

// AuditConfig defines a public type used by medAuth APIs.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"bufferSize"`
	DropIfFull bool `yaml:"dropIfFull"`
}

// NotifyConfig sizes the notification worker queue.
type NotifyConfig struct {
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queueSize"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RateLimitConfig controls per-IP and per-identifier throttles.
type RateLimitConfig struct {
	Enabled         bool `yaml:"enabled"`
	LoginPerMinute  int  `yaml:"loginPerMinute"`
	Burst           int  `yaml:"burst"`
	RegisterPerHour int  `yaml:"registerPerHour"`
	ResetPerHour    int  `yaml:"resetPerHour"`
}

// MetricsConfig defines a public type used by medAuth APIs.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enableLatencyHistograms"`
}

// DefaultConfig returns the production defaults. Secrets are left empty and
// must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "medauth",
			Audience:   "medauth-api",
		},
		Password: PasswordConfig{
			Cost: password.DefaultCost,
		},
		Lockout: LockoutConfig{
			MaxAttempts: lockout.DefaultThreshold,
			Duration:    lockout.DefaultDuration,
		},
		Reset: ResetConfig{
			TokenTTL: time.Hour,
		},
		Store: StoreConfig{
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 3 * time.Second,
			MaxRetries:   2,
			RetryBackoff: 50 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Notify: NotifyConfig{
			Workers:   2,
			QueueSize: 256,
			Timeout:   10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:         false,
			LoginPerMinute:  20,
			Burst:           10,
			RegisterPerHour: 10,
			ResetPerHour:    5,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func (c *Config) lockoutPolicy() lockout.Policy {
	return lockout.Policy{Threshold: c.Lockout.MaxAttempts, Duration: c.Lockout.Duration}
}

func (c *Config) jwtConfig() jwt.Config {
	return jwt.Config{
		AccessSecret:  []byte(c.JWT.AccessSecret),
		RefreshSecret: []byte(c.JWT.RefreshSecret),
		AccessTTL:     c.JWT.AccessTTL,
		RefreshTTL:    c.JWT.RefreshTTL,
		Issuer:        c.JWT.Issuer,
		Audience:      c.JWT.Audience,
		Leeway:        c.JWT.Leeway,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate returns the first invalid setting it finds.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessSecret == "" {
		return errors.New("JWT AccessSecret is required")
	}
	if c.JWT.RefreshSecret == "" {
		return errors.New("JWT RefreshSecret is required")
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if len(c.JWT.AccessSecret) < jwt.MinSecretLength || len(c.JWT.RefreshSecret) < jwt.MinSecretLength {
		return fmt.Errorf("JWT secrets must be at least %d bytes", jwt.MinSecretLength)
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be > AccessTTL")
	}
	if c.JWT.Issuer == "" || c.JWT.Audience == "" {
		return errors.New("JWT Issuer and Audience are required")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Password
	minCost := 10
	if c.Password.AllowLowCost {
		minCost = bcrypt.MinCost
	}
	if c.Password.Cost < minCost || c.Password.Cost > 15 {
		return fmt.Errorf("Password Cost must be between %d and 15", minCost)
	}
	if c.Password.PoolSize < 0 {
		return errors.New("Password PoolSize must be >= 0")
	}

	// Lockout
	if err := c.lockoutPolicy().Validate(); err != nil {
		return err
	}

	// Reset
	if c.Reset.TokenTTL <= 0 || c.Reset.TokenTTL > 24*time.Hour {
		return errors.New("Reset TokenTTL must be > 0 and <= 24h")
	}

	// Store
	if c.Store.ReadTimeout <= 0 || c.Store.WriteTimeout <= 0 {
		return errors.New("Store timeouts must be > 0")
	}
	if c.Store.MaxRetries < 0 || c.Store.MaxRetries > 10 {
		return errors.New("Store MaxRetries must be between 0 and 10")
	}
	if c.Store.RetryBackoff < 0 {
		return errors.New("Store RetryBackoff must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Notify
	if c.Notify.Workers < 0 || c.Notify.QueueSize < 0 {
		return errors.New("Notify Workers and QueueSize must be >= 0")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.LoginPerMinute <= 0 || c.RateLimit.Burst <= 0 {
			return errors.New("RateLimit LoginPerMinute and Burst must be > 0 when enabled")
		}
		if c.RateLimit.RegisterPerHour <= 0 || c.RateLimit.ResetPerHour <= 0 {
			return errors.New("RateLimit RegisterPerHour and ResetPerHour must be > 0 when enabled")
		}
	}

	return nil
}

/*
====================================
LOADING
====================================
*/

// LoadConfig starts from the defaults, applies the YAML file at path (if
// path is non-empty), overlays MEDAUTH_* environment variables and validates
// the result.
func LoadConfig(path string) (Config, error) {
	return loadConfig(path, os.LookupEnv)
}

func loadConfig(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg, lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

type envBinding struct {
	name  string
	apply func(cfg *Config, v string) error
}

var envBindings = []envBinding{
	{"MEDAUTH_JWT_ACCESS_SECRET", func(c *Config, v string) error { c.JWT.AccessSecret = v; return nil }},
	{"MEDAUTH_JWT_REFRESH_SECRET", func(c *Config, v string) error { c.JWT.RefreshSecret = v; return nil }},
	{"MEDAUTH_JWT_ISSUER", func(c *Config, v string) error { c.JWT.Issuer = v; return nil }},
	{"MEDAUTH_JWT_AUDIENCE", func(c *Config, v string) error { c.JWT.Audience = v; return nil }},
	{"MEDAUTH_ACCESS_TOKEN_TTL", durationEnv(func(c *Config) *time.Duration { return &c.JWT.AccessTTL })},
	{"MEDAUTH_REFRESH_TOKEN_TTL", durationEnv(func(c *Config) *time.Duration { return &c.JWT.RefreshTTL })},
	{"MEDAUTH_BCRYPT_COST", intEnv(func(c *Config) *int { return &c.Password.Cost })},
	{"MEDAUTH_HASH_POOL_SIZE", intEnv(func(c *Config) *int { return &c.Password.PoolSize })},
	{"MEDAUTH_MAX_LOGIN_ATTEMPTS", intEnv(func(c *Config) *int { return &c.Lockout.MaxAttempts })},
	{"MEDAUTH_LOCK_DURATION", durationEnv(func(c *Config) *time.Duration { return &c.Lockout.Duration })},
	{"MEDAUTH_RESET_TOKEN_TTL", durationEnv(func(c *Config) *time.Duration { return &c.Reset.TokenTTL })},
	{"MEDAUTH_AUDIT_ENABLED", boolEnv(func(c *Config) *bool { return &c.Audit.Enabled })},
	{"MEDAUTH_RATE_LIMIT_ENABLED", boolEnv(func(c *Config) *bool { return &c.RateLimit.Enabled })},
	{"MEDAUTH_METRICS_ENABLED", boolEnv(func(c *Config) *bool { return &c.Metrics.Enabled })},
}

func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookup(b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			return fmt.Errorf("%s: %w", b.name, err)
		}
	}
	return nil
}

func durationEnv(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

func intEnv(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolEnv(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}
