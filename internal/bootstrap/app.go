package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iamdevroyal/blocpoint-client/config"
	"github.com/iamdevroyal/blocpoint-client/internal/adapters/filestore"
	"github.com/iamdevroyal/blocpoint-client/internal/adapters/memory"
	"github.com/iamdevroyal/blocpoint-client/internal/adapters/navigator"
	"github.com/iamdevroyal/blocpoint-client/internal/adapters/postgres"
	redisadapter "github.com/iamdevroyal/blocpoint-client/internal/adapters/redis"
	"github.com/iamdevroyal/blocpoint-client/internal/apiclient"
	"github.com/iamdevroyal/blocpoint-client/internal/device"
	"github.com/iamdevroyal/blocpoint-client/internal/observability/statsd"
	"github.com/iamdevroyal/blocpoint-client/internal/ports"
	"github.com/iamdevroyal/blocpoint-client/internal/service"
	"github.com/iamdevroyal/blocpoint-client/internal/session"
)

// App is the wired client: one session context shared by the HTTP client and the auth service.
type App struct {
	Config    config.AppConfig
	Logger    *slog.Logger
	State     *session.State
	Client    *apiclient.Client
	Auth      *service.AuthService
	Navigator *navigator.Logger
	Metrics   *statsd.Client

	closers []func() error
}

// Build wires every component from cfg. Callers must Close the returned App.
func Build(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	store, err := app.buildStateStore(ctx)
	if err != nil {
		return nil, errors.Join(err, app.Close())
	}
	app.State = session.NewState(store)

	if app.Metrics, err = BuildMetrics(cfg.Observability.Metrics, logger); err != nil {
		return nil, errors.Join(err, app.Close())
	}
	app.closers = append(app.closers, app.Metrics.Close)

	app.Navigator = navigator.NewLogger(logger)

	app.Client, err = BuildClient(cfg.API, app.State, app.Navigator, app.Metrics, logger)
	if err != nil {
		return nil, errors.Join(err, app.Close())
	}

	app.Auth, err = service.NewAuthService(service.AuthServiceOptions{
		Client:  app.Client,
		State:   app.State,
		Device:  device.Describer{UserAgent: cfg.API.UserAgent, Platform: cfg.API.Platform},
		Logger:  logger,
		Metrics: app.Metrics,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create auth service: %w", err), app.Close())
	}

	return app, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) buildStateStore(ctx context.Context) (ports.StateStore, error) {
	cfg := a.Config
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		return memory.New(), nil

	case config.StoreDriverRedis:
		client, err := ConnectRedis(ctx, DatabaseConfig{RedisConfig: cfg.Redis, Logger: a.Logger})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		prefix := cfg.Redis.KeyPrefix
		if prefix == "" {
			prefix = redisadapter.DefaultKeyPrefix
		}
		return redisadapter.NewStateStoreWithPrefix(client, prefix, cfg.Store.Namespace), nil

	case config.StoreDriverPostgres:
		pool, err := ConnectPostgres(ctx, DatabaseConfig{DBConfig: cfg.Postgres, Logger: a.Logger})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		store := postgres.NewStateStore(pool, cfg.Store.Namespace)
		if cfg.Postgres.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				return nil, err
			}
		}
		return store, nil

	case config.StoreDriverFile, "":
		store, err := filestore.New(cfg.Store.FilePath)
		if err != nil {
			return nil, fmt.Errorf("open state file: %w", err)
		}
		a.Logger.DebugContext(ctx, "using file state store", "path", store.Path())
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported store driver: %q", cfg.Store.Driver)
	}
}

// BuildMetrics creates the StatsD sink. A disabled config yields a client that drops metrics.
func BuildMetrics(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) (*statsd.Client, error) {
	client, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.IsEnabled(),
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create statsd client: %w", err)
	}
	return client, nil
}

// BuildClient creates the HTTP session client bound to state.
func BuildClient(
	cfg config.APIConfig,
	state *session.State,
	nav ports.Navigator,
	sink statsd.Sink,
	logger *slog.Logger,
) (*apiclient.Client, error) {
	httpClient, err := apiclient.NewHTTPClient(cfg.Timeout)
	if err != nil {
		return nil, err
	}
	client, err := apiclient.New(apiclient.Options{
		BaseURL:     cfg.BaseURL,
		RefreshPath: cfg.RefreshPath,
		LoginRoute:  cfg.LoginRoute,
		UserAgent:   cfg.UserAgent,
		HTTPClient:  httpClient,
		Tokens:      state,
		Navigator:   nav,
		Metrics:     sink,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create api client: %w", err)
	}
	return client, nil
}
