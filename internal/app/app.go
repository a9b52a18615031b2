package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/undercity-games/presence-server/internal/auth"
	"github.com/undercity-games/presence-server/internal/config"
	"github.com/undercity-games/presence-server/internal/core"
	"github.com/undercity-games/presence-server/internal/metrics"
	"github.com/undercity-games/presence-server/internal/presence"
	"github.com/undercity-games/presence-server/internal/store"
	"github.com/undercity-games/presence-server/internal/store/dircache"
	"github.com/undercity-games/presence-server/internal/store/sqlite"
	transporthttp "github.com/undercity-games/presence-server/internal/transport/http"
)

// App wires the hub, the heartbeat monitor, the HTTP transport, and the
// optional Redis side into one runnable unit.
type App struct {
	cfg config.Config
	log *zerolog.Logger

	store   store.Store
	hub     *core.Hub
	monitor *core.Monitor
	server  *stdhttp.Server
	rdb     *redis.Client
	bridge  *presence.Bridge
}

// New constructs the application from configuration. The Redis mirror
// and bridge come up only when an address is configured; everything
// else is mandatory.
func New(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database ready")

	verifier := auth.NewVerifier(&auth.JWTConfig{
		Secret:   []byte(cfg.Auth.Secret),
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	})

	dir := dircache.New(st, cfg.Directory.CacheSize, cfg.Directory.CacheTTL)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	hubOpts := core.HubOptions{
		ChatStore:      st,
		Directory:      dir,
		Logger:         logger,
		Metrics:        m,
		HistoryDefault: cfg.History.DefaultLimit,
		HistoryMax:     cfg.History.MaxLimit,
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = presence.Dial(ctx, cfg.Redis)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		hubOpts.Mirror = presence.NewMirror(rdb, logger)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis presence mirror enabled")
	}

	hub := core.NewHub(hubOpts)
	monitor := core.NewMonitor(hub, cfg.Session.HeartbeatInterval, cfg.Session.PingTimeout, nil, logger)

	var bridge *presence.Bridge
	if rdb != nil {
		bridge = presence.NewBridge(rdb, cfg.Redis.PushChannel, hub, logger)
	}

	server := transporthttp.NewServer(transporthttp.ServerOptions{
		Hub:       hub,
		Verifier:  verifier,
		Directory: dir,
		Friends:   st,
		Metrics:   m,
		Gatherer:  registry,
		Logger:    logger,
	}, cfg)

	return &App{
		cfg:     cfg,
		log:     logger,
		store:   st,
		hub:     hub,
		monitor: monitor,
		server:  server,
		rdb:     rdb,
		bridge:  bridge,
	}, nil
}

// Run serves until ctx is cancelled or a component fails, then releases
// resources. Open websocket sessions are not drained on shutdown; they
// fall with the process and clients reconnect.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Str("addr", a.cfg.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		a.monitor.Run(ctx)
		return nil
	})

	if a.bridge != nil {
		g.Go(func() error {
			return a.bridge.Run(ctx)
		})
	}

	err := g.Wait()
	a.cleanup()
	return err
}

// cleanup closes external resources in reverse dependency order.
func (a *App) cleanup() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close store")
	} else {
		a.log.Info().Msg("store closed")
	}
}
