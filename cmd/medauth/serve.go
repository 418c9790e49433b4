package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/medAuth"
	"github.com/MrEthical07/medAuth/internal/httpapi"
	"github.com/MrEthical07/medAuth/metrics/export/prometheus"
	"github.com/MrEthical07/medAuth/store/memory"
	"github.com/MrEthical07/medAuth/store/postgres"
	redisstore "github.com/MrEthical07/medAuth/store/redis"
)

type serveOptions struct {
	addr            string
	store           string
	redisAddr       string
	redisPrefix     string
	postgresDSN     string
	kafkaBrokers    []string
	kafkaTopic      string
	auditLog        bool
	purgeInterval   time.Duration
	shutdownTimeout time.Duration
	logLevel        string
	logFormat       string
}

func newServeCmd() *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the auth API under " + httpapi.BasePath,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(opts.logLevel, opts.logFormat)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, opts, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", ":8080", "HTTP listen address")
	f.StringVar(&opts.store, "store", "memory", "account store: memory, redis or postgres")
	f.StringVar(&opts.redisAddr, "redis-addr", "localhost:6379", "Redis address for the redis store and rate limiters")
	f.StringVar(&opts.redisPrefix, "redis-prefix", "medauth", "Redis key prefix")
	f.StringVar(&opts.postgresDSN, "postgres-dsn", "", "PostgreSQL DSN for the postgres store")
	f.StringSliceVar(&opts.kafkaBrokers, "kafka-brokers", nil, "Kafka seed brokers; enables the Kafka audit sink")
	f.StringVar(&opts.kafkaTopic, "kafka-topic", "medauth.audit", "Kafka topic for audit events")
	f.BoolVar(&opts.auditLog, "audit-log", true, "write audit events as JSON lines to stdout")
	f.DurationVar(&opts.purgeInterval, "purge-interval", 10*time.Minute, "expired revocation purge interval (postgres store)")
	f.DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 15*time.Second, "graceful shutdown timeout")
	f.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	f.StringVar(&opts.logFormat, "log-format", "text", "text or json")
	return cmd
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// backend holds the stores for one --store choice and how to release them.
type backend struct {
	accounts    medAuth.AccountStore
	revocations medAuth.RevocationStore
	redis       redis.UniversalClient
	purge       func(context.Context) (int64, error)
	close       func()
}

func openBackend(ctx context.Context, opts serveOptions) (*backend, error) {
	switch opts.store {
	case "memory":
		revocations := memory.NewRevocations(nil)
		return &backend{
			accounts:    memory.NewAccounts(),
			revocations: revocations,
			close:       func() {},
		}, nil

	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{opts.redisAddr}})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return &backend{
			accounts:    redisstore.NewAccounts(client, opts.redisPrefix),
			revocations: redisstore.NewRevocations(client, opts.redisPrefix),
			redis:       client,
			close:       func() { _ = client.Close() },
		}, nil

	case "postgres":
		if opts.postgresDSN == "" {
			return nil, errors.New("--postgres-dsn is required for the postgres store")
		}
		db, err := postgres.Open(ctx, opts.postgresDSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		revocations := postgres.NewRevocations(db, nil)
		return &backend{
			accounts:    postgres.NewAccounts(db),
			revocations: revocations,
			purge:       revocations.Purge,
			close:       func() { _ = db.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unknown store %q", opts.store)
	}
}

func serve(ctx context.Context, cfg medAuth.Config, opts serveOptions, logger *slog.Logger) error {
	be, err := openBackend(ctx, opts)
	if err != nil {
		return err
	}
	defer be.close()

	var sinks medAuth.MultiSink
	if opts.auditLog {
		sinks = append(sinks, medAuth.NewJSONWriterSink(os.Stdout))
	}
	var kafka *kgo.Client
	if len(opts.kafkaBrokers) > 0 {
		kafka, err = kgo.NewClient(kgo.SeedBrokers(opts.kafkaBrokers...))
		if err != nil {
			return fmt.Errorf("kafka client: %w", err)
		}
		defer kafka.Close()

		sink, err := medAuth.NewKafkaSink(kafka, opts.kafkaTopic, func(ev medAuth.AuditEvent, err error) {
			logger.Error("audit delivery failed", "event_id", ev.ID, "action", ev.Action, "error", err)
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}

	builder := medAuth.New().
		WithConfig(cfg).
		WithAccountStore(be.accounts).
		WithRevocationStore(be.revocations).
		WithAuditSink(sinks).
		WithNotifier(logNotifier{logger: logger.With("component", "notifier")}).
		WithLogger(logger)
	if be.redis != nil {
		builder = builder.WithRedis(be.redis)
	}
	engine, err := builder.Build()
	if err != nil {
		return err
	}
	report := engine.SecurityReport()
	logger.Info("security posture",
		"access_ttl", report.AccessTTL,
		"refresh_ttl", report.RefreshTTL,
		"bcrypt_cost", report.BcryptCost,
		"lockout_attempts", report.LockoutAttempts,
		"rate_limiting", report.RateLimitingActive,
		"distributed_limits", report.DistributedLimits,
		"audit", report.AuditActive,
	)

	router := chi.NewRouter()
	router.Mount("/", httpapi.New(engine, logger).Routes())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if cfg.Metrics.Enabled {
		router.Method(http.MethodGet, "/metrics", prometheus.NewExporter(engine).Handler())
	}

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", opts.addr, "store", opts.store, "base_path", httpapi.BasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), opts.shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if be.purge != nil && opts.purgeInterval > 0 {
		g.Go(func() error {
			purgeLoop(gctx, be.purge, opts.purgeInterval, logger)
			return nil
		})
	}

	err = g.Wait()

	engine.Close()
	if kafka != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), opts.shutdownTimeout)
		defer cancel()
		if ferr := medAuth.FlushAudit(flushCtx, sinks[len(sinks)-1]); ferr != nil {
			logger.Error("audit flush failed", "error", ferr)
		}
	}
	return err
}

func purgeLoop(ctx context.Context, purge func(context.Context) (int64, error), every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purge(ctx)
			if err != nil {
				logger.Warn("revocation purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("purged expired revocations", "rows", n)
			}
		}
	}
}

// logNotifier stands in for a mail gateway. It records that a notice was due
// and never logs the reset token.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) SendWelcome(ctx context.Context, acc medAuth.PublicAccount) error {
	n.logger.InfoContext(ctx, "welcome notice", "user_id", acc.ID)
	return nil
}

func (n logNotifier) SendPasswordReset(ctx context.Context, acc medAuth.PublicAccount, _ string, expiresAt time.Time) error {
	n.logger.InfoContext(ctx, "password reset notice", "user_id", acc.ID, "expires_at", expiresAt)
	return nil
}

func (n logNotifier) SendPasswordChanged(ctx context.Context, acc medAuth.PublicAccount) error {
	n.logger.InfoContext(ctx, "password changed notice", "user_id", acc.ID)
	return nil
}
