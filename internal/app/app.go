// Package app assembles a storekit Manager and its collaborators from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	gcfirestore "cloud.google.com/go/firestore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mihaimyh/gostorekit/internal/config"
	"github.com/mihaimyh/gostorekit/pkg/storekit"
	zlog "github.com/mihaimyh/gostorekit/pkg/storekit/logger/zerolog"
	prommetrics "github.com/mihaimyh/gostorekit/pkg/storekit/metrics/prometheus"
	"github.com/mihaimyh/gostorekit/pkg/storekit/webhook"
	"github.com/mihaimyh/gostorekit/platform/gateway"
	"github.com/mihaimyh/gostorekit/platform/memory"
	"github.com/mihaimyh/gostorekit/storage/firestore"
	memledger "github.com/mihaimyh/gostorekit/storage/memory"
	"github.com/mihaimyh/gostorekit/storage/postgres"
	"github.com/mihaimyh/gostorekit/storage/redis"
	"github.com/mihaimyh/gostorekit/storage/tiered"
)

// App is a wired bridge: manager, platform, ledger and transaction sources.
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Registry *prometheus.Registry
	Manager  *storekit.Manager

	// Memory is the in-process platform when platform.kind is memory.
	Memory *memory.Platform

	// Webhook is the notification endpoint when sources.webhook is enabled.
	Webhook *webhook.Handler

	sources []storekit.TransactionSource
	closers []func() error
}

// New builds an App. Logs are written to out.
func New(ctx context.Context, cfg *config.Config, out io.Writer) (*App, error) {
	log, err := NewLogger(cfg.Log, out)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{Config: cfg, Log: log, Registry: reg}
	logger := zlog.NewLogger(&log)
	metrics := prommetrics.NewMetrics(reg, cfg.Metrics.Namespace)

	store, receipts, err := a.buildPlatform(cfg.Platform, logger, metrics)
	if err != nil {
		a.Close()
		return nil, err
	}

	ledger, err := a.buildLedger(ctx, cfg.Ledger)
	if err != nil {
		a.Close()
		return nil, err
	}

	if err := a.buildSources(cfg.Sources, logger, metrics); err != nil {
		a.Close()
		return nil, err
	}

	manager, err := storekit.NewManager(store, storekit.Config{
		Receipts:          receipts,
		Ledger:            ledger,
		RefreshTimeout:    cfg.Receipt.RefreshTimeout,
		DeliveryBuffer:    cfg.Delivery.Buffer,
		ReplayUndelivered: cfg.Delivery.ReplayUndelivered,
		BacklogSize:       cfg.Delivery.BacklogSize,
		Logger:            logger,
		Metrics:           metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Manager = manager

	return a, nil
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg config.LogConfig, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

func (a *App) buildPlatform(cfg config.PlatformConfig, logger storekit.Logger,
	metrics storekit.Metrics) (storekit.Store, storekit.ReceiptSource, error) {
	switch cfg.Kind {
	case config.PlatformMemory:
		products := make([]storekit.Product, 0, len(cfg.Memory.Products))
		for _, p := range cfg.Memory.Products {
			products = append(products, storekit.Product{ID: p.ID, DisplayName: p.DisplayName, Price: p.Price})
		}
		platform := memory.New(products...)
		platform.SetPaymentsEnabled(!cfg.Memory.PaymentsDisabled)
		if cfg.Memory.Receipt != "" {
			platform.SetRefresh([]byte(cfg.Memory.Receipt), nil)
		}
		a.Memory = platform
		a.sources = append(a.sources, platform)
		a.closers = append(a.closers, platform.Close)
		return platform, platform, nil

	case config.PlatformGateway:
		client, err := gateway.New(gateway.Config{
			BaseURL:          cfg.Gateway.BaseURL,
			APIKey:           cfg.Gateway.APIKey,
			Timeout:          cfg.Gateway.Timeout,
			PurchaseTimeout:  cfg.Gateway.PurchaseTimeout,
			ReceiptURL:       cfg.Gateway.ReceiptURL,
			FailureThreshold: cfg.Gateway.FailureThreshold,
			ResetTimeout:     cfg.Gateway.ResetTimeout,
			Logger:           logger,
			Metrics:          metrics,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil

	default:
		return nil, nil, fmt.Errorf("unknown platform %q", cfg.Kind)
	}
}

func (a *App) buildLedger(ctx context.Context, cfg config.LedgerConfig) (storekit.Ledger, error) {
	var durable storekit.Ledger

	switch cfg.Backend {
	case config.LedgerMemory:
		return memledger.New(cfg.TTL), nil

	case config.LedgerRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ledger, err := redis.New(client, redis.Config{KeyPrefix: cfg.Redis.KeyPrefix, ClaimTTL: cfg.TTL})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		if err := ledger.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		a.closers = append(a.closers, ledger.Close)
		durable = ledger

	case config.LedgerPostgres:
		pgcfg := postgres.DefaultConfig()
		pgcfg.ConnectionString = cfg.Postgres.DSN
		pgcfg.Migrate = cfg.Postgres.Migrate
		pgcfg.RecordTTL = cfg.TTL
		pgcfg.CleanupEnabled = cfg.TTL > 0
		ledger, err := postgres.New(ctx, pgcfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { ledger.Close(); return nil })
		durable = ledger

	case config.LedgerFirestore:
		client, err := gcfirestore.NewClient(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		ledger, err := firestore.New(client, firestore.Config{Collection: cfg.Firestore.Collection})
		if err != nil {
			return nil, err
		}
		durable = ledger

	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}

	if !cfg.HotCache {
		return durable, nil
	}
	return tiered.New(tiered.Config{
		Hot:  memledger.New(cfg.TTL),
		Cold: durable,
		ErrorHandler: func(err error) {
			a.Log.Warn().Err(err).Msg("hot ledger tier failed")
		},
	})
}

func (a *App) buildSources(cfg config.SourcesConfig, logger storekit.Logger, metrics storekit.Metrics) error {
	if cfg.NATS.Enabled {
		stream, err := gateway.DialStream(gateway.StreamConfig{
			URL:      cfg.NATS.URL,
			Subject:  cfg.NATS.Subject,
			User:     cfg.NATS.User,
			Password: cfg.NATS.Password,
			Logger:   logger,
			Metrics:  metrics,
		})
		if err != nil {
			return err
		}
		a.sources = append(a.sources, stream)
		a.closers = append(a.closers, stream.Close)
	}

	if cfg.Webhook.Enabled {
		a.Webhook = webhook.NewHandler(webhook.Config{
			Secret:     cfg.Webhook.Secret,
			AcceptHMAC: cfg.Webhook.AcceptHMAC,
			RateLimit:  cfg.Webhook.RateLimit,
			RateWindow: cfg.Webhook.RateWindow,
			Logger:     logger,
			Metrics:    metrics,
		})
		a.sources = append(a.sources, a.Webhook)
		a.closers = append(a.closers, a.Webhook.Close)
	}
	return nil
}

// Sources returns the transaction sources the observer consumes.
func (a *App) Sources() []storekit.TransactionSource {
	return a.sources
}

// Observe runs the observer on every source until ctx is done or one fails.
func (a *App) Observe(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, source := range a.sources {
		g.Go(func() error {
			return a.Manager.Observe(ctx, source)
		})
	}
	return g.Wait()
}

// Mount registers the webhook (when enabled) on mux under its configured path.
func (a *App) Mount(mux interface{ Handle(string, http.Handler) }) {
	if a.Webhook != nil {
		mux.Handle(a.Config.Sources.Webhook.Path, a.Webhook.Handler())
	}
}

// Close shuts the manager down, then releases collaborators in reverse order.
func (a *App) Close() error {
	var errs []error
	if a.Manager != nil {
		errs = append(errs, a.Manager.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
