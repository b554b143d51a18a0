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

	"github.com/spf13/cobra"

	"ighub/internal/api"
	"ighub/pkg/config"
	"ighub/pkg/instagram"
	"ighub/pkg/logger"
	"ighub/pkg/monitor"
	"ighub/pkg/session"
	"ighub/pkg/store"
	"ighub/pkg/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hub server",
	Long: `Run the hub: restore stored sessions, expose the HTTP API and,
unless disabled, start activity monitoring for every restored account.

Sessions and events are persisted under the configured data paths. If a
store cannot be opened the hub degrades to memory-only operation and
keeps serving; nothing survives a restart in that mode.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	sessions := openSessionStore(cfg, log)
	events := openEventStore(cfg, log)

	manager := session.NewManager(sessions, instagram.NewFactory(cfg, log), log)
	restored := manager.RestoreAll()

	sink := webhook.NewSink(&cfg.Webhook, events, log)
	mon := monitor.New(manager, sink, cfg.Monitor, log)

	if cfg.Monitor.AutoStart && restored > 0 {
		mon.StartAll()
	}

	server := api.NewServer(manager, mon, sink, sessions, cfg.Server.AuthToken, log)
	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     server.Routes(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", httpServer.Addr).Info("hub listening")
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	mon.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("graceful shutdown incomplete")
	}

	log.Info("hub stopped")
	return nil
}

// openSessionStore opens the configured session store, falling back to
// memory-only operation when the file cannot be opened.
func openSessionStore(cfg *config.Config, log logger.Logger) store.SessionStore {
	var (
		st  store.SessionStore
		err error
	)
	if cfg.Store.Encrypt {
		st, err = store.NewEncryptedFileStore(cfg.Store.SessionsPath)
	} else {
		st, err = store.NewFileStore(cfg.Store.SessionsPath)
	}
	if err != nil {
		log.WithError(err).WithField("path", cfg.Store.SessionsPath).
			Warn("session store unavailable, running memory-only")
		return nil
	}
	return st
}

// openEventStore opens the event log, degrading to an in-memory log on
// failure so detection keeps working.
func openEventStore(cfg *config.Config, log logger.Logger) store.EventStore {
	st, err := store.NewEventLog(cfg.Store.EventsPath)
	if err != nil {
		log.WithError(err).WithField("path", cfg.Store.EventsPath).
			Warn("event log unavailable, events kept in memory only")
		return store.NewMemoryEventStore()
	}
	return st
}
