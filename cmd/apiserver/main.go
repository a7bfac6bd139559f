// Command apiserver runs the enrollment application service.
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

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/classforge/enrollment/db"
	app "github.com/classforge/enrollment/internal/app"
	"github.com/classforge/enrollment/internal/app/httpapi"
	"github.com/classforge/enrollment/internal/app/storage"
	"github.com/classforge/enrollment/internal/app/storage/listcache"
	"github.com/classforge/enrollment/internal/app/storage/postgres"
	"github.com/classforge/enrollment/internal/config"
	"github.com/classforge/enrollment/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		Component: "apiserver",
	})

	stores, closeStores, err := buildStores(cfg, log)
	if err != nil {
		return fmt.Errorf("configure stores: %w", err)
	}
	defer closeStores()

	a, err := app.New(stores, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	handler, err := httpapi.NewHandler(a, httpapi.Options{
		Auth: httpapi.AuthConfig{
			JWTSecret:       cfg.Auth.JWTSecret,
			AllowDevHeaders: cfg.Auth.DevHeaders,
		},
		RateLimit: httpapi.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		Log:                log,
	})
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case serveErr = <-errCh:
		log.WithError(serveErr).Error("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown incomplete")
	}
	if err := a.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("service shutdown incomplete")
	}
	return serveErr
}

// buildStores selects the persistence backend. An empty DSN falls back to the
// in-memory stores, which only makes sense for local development.
func buildStores(cfg *config.Config, log *logger.Logger) (app.Stores, func(), error) {
	if cfg.Database.DSN == "" {
		log.Warn("DATABASE_DSN not set; using in-memory stores")
		return app.Stores{}, func() {}, nil
	}

	handle, err := sqlx.Connect("postgres", cfg.Database.DSN)
	if err != nil {
		return app.Stores{}, nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		handle.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		handle.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		handle.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)
	}

	if cfg.Database.Migrate {
		if err := db.Migrate(handle.DB); err != nil {
			handle.Close()
			return app.Stores{}, nil, err
		}
	}

	pg := postgres.New(handle)
	closers := []func(){func() { handle.Close() }}

	var (
		apps        storage.ApplicationStore = pg
		enrollments storage.EnrollmentStore  = pg
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache := listcache.New(pg, pg, rdb, time.Duration(cfg.Redis.TTL)*time.Second, log)
		apps = cache
		enrollments = cache
		closers = append(closers, func() { rdb.Close() })
		log.Infof("list cache enabled via redis at %s", cfg.Redis.Addr)
	}

	stores := app.Stores{
		Applications: apps,
		Interviews:   pg,
		Groups:       pg,
		Enrollments:  enrollments,
		Audit:        pg,
	}
	return stores, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}
