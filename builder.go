package medAuth

import (
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/medAuth/internal/audit"
	"github.com/MrEthical07/medAuth/internal/limiters"
	"github.com/MrEthical07/medAuth/internal/notify"
	"github.com/MrEthical07/medAuth/internal/rate"
	"github.com/MrEthical07/medAuth/jwt"
	"github.com/MrEthical07/medAuth/password"
	"github.com/MrEthical07/medAuth/permission"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine].
//
// Builder instances are intended to be configured during initialization and
// then discarded; Build may only be called once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts    AccountStore
	revocations RevocationStore
	catalog     *permission.Catalog
	notifier    Notifier
	auditSink   AuditSink
	logger      *slog.Logger
	clock       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithAccountStore sets the account persistence backend. Required.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithRevocationStore sets the refresh-token revocation backend. Required.
func (b *Builder) WithRevocationStore(store RevocationStore) *Builder {
	b.revocations = store
	return b
}

// WithCatalog overrides the role/permission catalog. The default is
// [permission.DefaultCatalog].
func (b *Builder) WithCatalog(c *permission.Catalog) *Builder {
	b.catalog = c
	return b
}

// WithNotifier sets the notification channel. Without one notifications are
// skipped.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets where audit events are delivered.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. The default is slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithRedis backs the rate limiters with Redis fixed windows instead of
// process-local token buckets.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithClock overrides the engine clock.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the authentication latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.revocations == nil {
		return nil, errors.New("revocation store required")
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	catalog := b.catalog
	if catalog == nil {
		catalog = permission.DefaultCatalog()
	}

	jwtCfg := cfg.jwtConfig()
	jwtCfg.Now = clock
	tokens, err := jwt.NewManager(jwtCfg)
	if err != nil {
		return nil, err
	}

	hasher, err := password.New(password.Config{Cost: cfg.Password.Cost})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:      cfg,
		catalog:     catalog,
		accounts:    b.accounts,
		revocations: b.revocations,
		tokens:      tokens,
		hasher:      hasher,
		pool:        password.NewPool(hasher, cfg.Password.PoolSize),
		notifier:    b.notifier,
		metrics:     NewMetrics(cfg.Metrics),
		logger:      logger,
		clock:       clock,
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	if b.notifier != nil {
		engine.notify = notify.NewDispatcher(notify.Config{
			Workers:   cfg.Notify.Workers,
			QueueSize: cfg.Notify.QueueSize,
			Timeout:   cfg.Notify.Timeout,
		}, logger.With("component", "notify"))
	}

	if cfg.RateLimit.Enabled {
		engine.distributedLimits = b.redis != nil
		engine.loginLimiter = limiters.NewLoginLimiter(
			b.limiter("login", cfg.RateLimit.LoginPerMinute, time.Minute, cfg.RateLimit.Burst), nil)
		engine.registerLimiter = limiters.NewRegistrationLimiter(
			b.limiter("register", cfg.RateLimit.RegisterPerHour, time.Hour, cfg.RateLimit.RegisterPerHour))
		engine.resetLimiter = limiters.NewPasswordResetLimiter(
			b.limiter("reset", cfg.RateLimit.ResetPerHour, time.Hour, cfg.RateLimit.ResetPerHour))
	}

	engine.flows = engine.buildFlows()

	b.built = true

	return engine, nil
}

func (b *Builder) limiter(name string, limit int, window time.Duration, burst int) rate.Limiter {
	if b.redis != nil {
		return rate.NewFixedWindow(b.redis, "medauth:rl:"+name+":", limit, window)
	}
	return rate.NewLocal(limit, window, burst)
}
