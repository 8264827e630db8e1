// Package main runs the mortgage readiness backend: broker portfolio
// management, diagnostic scoring and the subscription webhook behind a
// single HTTP listener.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pretimmo/service_backend/internal/app"
	"github.com/pretimmo/service_backend/internal/app/cache"
	"github.com/pretimmo/service_backend/internal/app/httpapi"
	"github.com/pretimmo/service_backend/internal/app/metrics"
	"github.com/pretimmo/service_backend/internal/app/storage/postgres"
	"github.com/pretimmo/service_backend/internal/app/storage/supabase"
	"github.com/pretimmo/service_backend/internal/config"
	"github.com/pretimmo/service_backend/internal/identity"
	"github.com/pretimmo/service_backend/internal/middleware"
	"github.com/pretimmo/service_backend/internal/payments"
	"github.com/pretimmo/service_backend/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.NewDefault("server").WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	log := logger.New("server", cfg.Logging.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	stores, cleanup, err := buildStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := app.Options{
		Stores:     stores,
		PriceIDPro: cfg.Payments.PriceIDPro,
		Logger:     log,
	}

	if cfg.Redis.Addr != "" {
		statsCache, err := cache.New(ctx, cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		}, log)
		if err != nil {
			return err
		}
		opts.StatsCache = statsCache
		log.WithField("addr", cfg.Redis.Addr).Info("stats cache enabled")
	}

	var directory *identity.Client
	if cfg.Identity.BaseURL != "" {
		directory, err = identity.New(identity.Config{
			BaseURL:   cfg.Identity.BaseURL,
			SecretKey: cfg.Identity.SecretKey,
		})
		if err != nil {
			return err
		}
		opts.Directory = directory
		log.WithField("base_url", cfg.Identity.BaseURL).Info("identity provider enabled")
	}

	var webhook *payments.Webhook
	if cfg.Payments.WebhookSecret != "" {
		webhook, err = payments.NewWebhook(cfg.Payments.WebhookSecret)
		if err != nil {
			return err
		}
		if cfg.Payments.APIKey != "" {
			expander, err := payments.NewSessionExpander(cfg.Payments.APIKey)
			if err != nil {
				return err
			}
			opts.Expander = expander
		}
		log.Info("payment webhook enabled")
	}

	application := app.New(opts)

	var resolver middleware.PlanResolver
	if directory != nil {
		resolver = directory
	}
	auth := middleware.NewAuthMiddleware([]byte(cfg.Auth.JWTSecret), resolver, log, []string{
		"/healthz",
		"/metrics",
		"/api/webhooks/payment",
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", auth.Handler(httpapi.NewHandler(application, webhook, log)))

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      metrics.InstrumentHandler(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

// buildStores opens the configured persistence backend. The returned cleanup
// closes whatever the backend holds open.
func buildStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (app.Stores, func(), error) {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		store, err := postgres.Open(ctx, cfg.Storage.Postgres.DSN)
		if err != nil {
			return app.Stores{}, nil, err
		}
		if err := store.Setup(ctx); err != nil {
			store.Close()
			return app.Stores{}, nil, err
		}
		log.Info("using postgres storage")
		return app.Stores{
			Clients:         store,
			Dossiers:        store,
			Diagnostics:     store,
			SelfDiagnostics: store,
		}, func() { store.Close() }, nil

	case config.StorageSupabase:
		client, err := supabase.NewClient(supabase.Config{
			URL:        cfg.Storage.Supabase.URL,
			ServiceKey: cfg.Storage.Supabase.ServiceKey,
		})
		if err != nil {
			return app.Stores{}, nil, err
		}
		store := supabase.NewStore(client)
		log.Info("using supabase storage")
		return app.Stores{
			Clients:         store,
			Dossiers:        store,
			Diagnostics:     store,
			SelfDiagnostics: store,
		}, func() {}, nil

	default:
		log.Warn("using in-memory storage, data is lost on restart")
		return app.Stores{}, func() {}, nil
	}
}
