package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-feed/internal/config"
	"github.com/Shivanand-hulikatti/event-feed/internal/database"
	"github.com/Shivanand-hulikatti/event-feed/internal/docstore"
	"github.com/Shivanand-hulikatti/event-feed/internal/docstore/memory"
	"github.com/Shivanand-hulikatti/event-feed/internal/docstore/mongostore"
	"github.com/Shivanand-hulikatti/event-feed/internal/docstore/pgstore"
	"github.com/Shivanand-hulikatti/event-feed/internal/handler"
	"github.com/Shivanand-hulikatti/event-feed/internal/identity"
	"github.com/Shivanand-hulikatti/event-feed/internal/metrics"
	"github.com/Shivanand-hulikatti/event-feed/internal/model"
	"github.com/Shivanand-hulikatti/event-feed/internal/repository"
	"github.com/Shivanand-hulikatti/event-feed/internal/service"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg, a.log)
		},
	}
}

// openStore connects the configured document store driver.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (docstore.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		log.Warn("using the in-memory document store; data is lost on exit")
		return memory.New(), nil
	case config.DriverPostgres:
		if err := database.Migrate(cfg.Postgres, true); err != nil {
			return nil, err
		}
		pool, err := database.NewPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, err
		}
		log.Info("connected to PostgreSQL", zap.String("host", cfg.Postgres.Host), zap.String("database", cfg.Postgres.DBName))
		return pgstore.New(pool, log), nil
	case config.DriverMongo:
		s, err := mongostore.Open(ctx, cfg.Mongo, log)
		if err != nil {
			return nil, err
		}
		log.Info("connected to MongoDB", zap.String("database", cfg.Mongo.Database))
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	// ── 1. Connect to the document store ─────────────────────────────────
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer closeStore(store, cfg.Server.ShutdownTimeout, log)

	// ── 2. Wire up layers ────────────────────────────────────────────────
	colls := repository.Collections{Namespace: cfg.App.Namespace}
	eventRepo := repository.NewEventRepository(store, colls)
	regRepo := repository.NewRegistrationRepository(store, colls)
	accountRepo := repository.NewAccountRepository(store, colls)

	provider := identity.NewProvider(accountRepo, identity.Options{
		Secret:      []byte(cfg.Auth.TokenSecret),
		TTL:         cfg.Auth.TokenTTL,
		Issuer:      cfg.App.Namespace,
		BcryptCost:  cfg.Auth.BcryptCost,
		AdminEmails: cfg.Auth.AdminEmails,
	}, log)
	if provider.OpenAdmin() {
		log.Warn("auth.admin_emails is empty: every signed-in account can publish events and read registrations")
	}
	if err := bootstrapIdentity(ctx, provider, cfg.Auth.BootstrapToken, log); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opts := service.Options{PlaceholderPhoto: cfg.App.PlaceholderPhoto}
	eventSvc := service.NewEventService(eventRepo, regRepo, provider, service.NewSimulatedNotifier(log), m, log, opts)
	feed := service.NewFeed(eventRepo, m, log, opts)

	// ── 3. Build the router ───────────────────────────────────────────────
	// Feed connections are hijacked, so Shutdown does not wait for them;
	// cancelling feedCtx closes them instead.
	feedCtx, cancelFeeds := context.WithCancel(context.Background())
	defer cancelFeeds()

	rc := handler.RouterConfig{
		BaseContext: feedCtx,
		Events:      eventSvc,
		Feed:        feed,
		Identity:    provider,
		Log:         log,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	// Static HTML: serve the web directory at the root when it exists.
	if dir := cfg.Server.WebDir; dir != "" {
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			rc.Static = http.FileServer(http.Dir(dir))
		}
	}

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler.NewRouter(rc),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	srv.RegisterOnShutdown(cancelFeeds)

	errc := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// closeStore closes the store, giving up after timeout so a stuck driver
// cannot hold the process open.
func closeStore(store docstore.Store, timeout time.Duration, log *zap.Logger) {
	done := make(chan error, 1)
	go func() { done <- store.Close() }()
	select {
	case err := <-done:
		if err != nil {
			log.Warn("store close failed", zap.Error(err))
		}
	case <-time.After(timeout):
		log.Warn("store close timed out", zap.Duration("timeout", timeout))
	}
}

// bootstrapIdentity signs the process itself in the way a client would and
// logs every identity change.
func bootstrapIdentity(ctx context.Context, p *identity.Provider, token string, log *zap.Logger) error {
	client := identity.NewClient(p)
	cancel := client.Watch(func(id *model.Identity) {
		if id == nil {
			log.Debug("bootstrap identity signed out")
			return
		}
		log.Info("bootstrap identity", zap.String("uid", id.UID), zap.Bool("anonymous", id.Anonymous))
	})
	defer cancel()
	if err := client.Start(ctx, token); err != nil {
		return fmt.Errorf("bootstrap identity: %w", err)
	}
	return nil
}
