package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	app "github.com/domainledger/registry_layer/internal/app"
	"github.com/domainledger/registry_layer/internal/app/httpapi"
	"github.com/domainledger/registry_layer/internal/app/storage/postgres"
	"github.com/domainledger/registry_layer/internal/config"
	"github.com/domainledger/registry_layer/internal/middleware"
	"github.com/domainledger/registry_layer/internal/platform/migrations"
	"github.com/domainledger/registry_layer/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	lg := logger.New(logger.LoggingConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}).WithField("component", "server")

	var stores app.Stores
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := migrations.Apply(ctx, pg.DB()); err != nil {
			return err
		}
		stores = app.Stores{Registry: pg, Treasury: pg, Fraction: pg, Oracle: pg}
		lg.Info("using postgres storage")
	} else {
		lg.Warn("DATABASE_URL not set; using in-memory storage")
	}

	application, err := app.New(cfg, stores, lg)
	if err != nil {
		return err
	}

	if cfg.PriceSeedFile != "" {
		prices, err := config.LoadPriceSeeds(cfg.PriceSeedFile)
		if err != nil {
			return err
		}
		if err := application.SeedPrices(ctx, cfg.Identity.Admin, prices); err != nil {
			return err
		}
		lg.WithField("suffixes", len(prices)).Info("suffix prices seeded")
	}

	var auth *middleware.AdminAuth
	if cfg.Auth.JWTSecret != "" {
		auth = middleware.NewAdminAuth(cfg.Auth.JWTSecret, lg)
	} else {
		lg.Warn("JWT_SECRET not set; administrative endpoints disabled")
	}

	if err := application.Start(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      httpapi.NewHandler(application, auth),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.WithField("addr", cfg.HTTP.Addr).Info("http server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.WithError(err).Warn("http shutdown incomplete")
	}
	return application.Stop(shutdownCtx)
}
