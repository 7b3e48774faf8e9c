// Package app wires the gateway together: configuration, logging,
// storage, the session manager, the send service and the HTTP server,
// with signal-driven graceful shutdown.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"wamux/internal/api"
	"wamux/internal/config"
	"wamux/internal/logger"
	"wamux/internal/meow"
	"wamux/internal/send"
	"wamux/internal/session"
	"wamux/internal/store"
)

// App is the assembled gateway.
type App struct {
	Config  *config.Config
	Log     zerolog.Logger
	Store   *store.Store
	Manager *session.Manager
	Sender  *send.Service
	Server  *api.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds the gateway from configuration.
func New(cfg *config.Config) (*App, error) {
	log := logger.New(cfg.LogLevel)
	log.Info().Msg("initializing wamux gateway")

	db, err := store.New(cfg.DatabasePath, logger.Wa(log, "Store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	dialer := meow.NewDialer(db, cfg.DeviceName, log)
	manager := session.NewManager(session.Config{
		ReconnectInterval: cfg.ReconnectInterval,
		MaxRetries:        cfg.MaxReconnectRetries,
		MaxQRGenerations:  cfg.MaxQRGenerations,
	}, db, dialer, log)
	sender := send.NewService(manager, log)
	server := api.NewServer(cfg.ListenAddr, manager, sender, db, log)

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		Config:  cfg,
		Log:     log,
		Store:   db,
		Manager: manager,
		Sender:  sender,
		Server:  server,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Run restores persisted sessions, serves HTTP and blocks until a
// shutdown signal arrives.
func (a *App) Run() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		a.Log.Info().Str("signal", sig.String()).Msg("shutting down")
		a.cancel()
	}()

	a.Manager.InitSessions(a.ctx)

	errChan := make(chan error, 1)
	go func() {
		errChan <- a.Server.Start()
	}()

	select {
	case err := <-errChan:
		a.Shutdown()
		return err
	case <-a.ctx.Done():
		return a.Shutdown()
	}
}

// Shutdown drains the HTTP server, disconnects every session without
// destroying persisted state and closes the database.
func (a *App) Shutdown() error {
	a.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(ctx); err != nil {
		a.Log.Error().Err(err).Msg("failed to drain http server")
	}

	a.Manager.Shutdown()
	return a.Store.Close()
}
