// Package app wires configuration, storage, keys and services into a
// runnable session security engine.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/huddlelabs/sessionguard/internal/security/revocation"
	"github.com/huddlelabs/sessionguard/internal/security/risk"
	"github.com/huddlelabs/sessionguard/internal/security/service"
	"github.com/huddlelabs/sessionguard/internal/security/store"
	"github.com/huddlelabs/sessionguard/internal/security/store/drivers/sqlite"
	"github.com/huddlelabs/sessionguard/pkg/slogx"
	"github.com/huddlelabs/sessionguard/pkg/tokenx"
)

// Application encapsulates the engine with all its dependencies wired. Hosts
// embed it or run it standalone as the housekeeping daemon.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	keys     *tokenx.KeyRing
	registry *revocation.Registry
	engine   *risk.Engine

	// Services
	TokenService        *service.TokenService
	SessionService      *service.SessionSecurityService
	HousekeepingService *service.HousekeepingService
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "sessionguard",
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keys, err := InitSigningKeys(cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize signing keys: %w", err)
	}
	app.keys = keys

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	return app, nil
}

// Run starts the background housekeeping worker and blocks until shutdown is
// requested.
func (app *Application) Run() error {
	app.HousekeepingService.Start()

	app.logger.Info("session security engine started",
		"issuer", app.cfg.Issuer,
		"env", app.cfg.Env,
	)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	app.logger.Info("shutdown signal received", "signal", sig)

	return app.Shutdown()
}

// Shutdown stops the background worker and closes the database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down session security engine...")

	app.HousekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("session security engine stopped")
	return nil
}

// Store exposes the backing store for hosts embedding the engine.
func (app *Application) Store() store.Store { return app.db }

// Keys exposes the signing key ring for hosts driving rotation externally.
func (app *Application) Keys() *tokenx.KeyRing { return app.keys }

// Risk exposes the assessment engine for hosts that need a bare risk score
// outside the session validation pipeline.
func (app *Application) Risk() *risk.Engine { return app.engine }

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	if err := db.Ping(context.Background()); err != nil {
		_ = db.Close()
		return fmt.Errorf("database unreachable: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes the engine services.
func (app *Application) initServices() error {
	app.registry = revocation.NewRegistry(
		app.db.Revocations(),
		app.logger,
		revocation.WithTTL(app.cfg.RevocationTTL),
	)

	codec, err := tokenx.NewCodec(app.keys, tokenx.CodecOptions{
		Issuer:      app.cfg.Issuer,
		Audience:    app.cfg.Audience,
		Leeway:      app.cfg.ClockSkewLeeway,
		AccessTTL:   app.cfg.AccessTokenTTL,
		RefreshTTL:  app.cfg.RefreshTokenTTL,
		PurposeTTL:  app.cfg.PurposeTokenTTL,
		Revocations: app.registry,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token codec: %w", err)
	}

	app.engine = risk.NewEngine(app.db, risk.Config{
		HighRiskCountries: app.cfg.HighRiskCountries,
		FlagPrivateIPs:    app.cfg.FlagPrivateIPs,
	}, app.logger)

	app.TokenService = service.NewTokenService(codec, app.registry, app.db.AuditLogs(), app.logger)
	app.SessionService = service.NewSessionSecurityService(
		app.engine,
		app.db,
		app.logger,
		service.WithNotifyRate(app.cfg.NotifyInterval, app.cfg.NotifyBurst),
		service.WithMFAThreshold(app.cfg.MFARequiredThreshold),
	)
	app.HousekeepingService = service.NewHousekeepingService(
		app.db,
		app.registry,
		app.keys,
		app.logger,
		app.cfg.HousekeepingInterval,
	)

	return nil
}
