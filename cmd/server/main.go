/*
main.go - Ledger engine server entry point

PURPOSE:
  Wires configuration, storage, services, the HTTP API and the scan
  driver together and runs until interrupted.

STARTUP ORDER:
  1. Load config (env + optional .env)
  2. Open the store (sqlite or postgres)
  3. Build services: manager, notification scheduler, future scheduler
  4. Start the HTTP server and the scan driver
  5. On SIGINT/SIGTERM: stop the driver, drain the server, close the store
*/
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

	"github.com/rs/zerolog"

	"github.com/warp/ledger-engine/api"
	"github.com/warp/ledger-engine/banking"
	"github.com/warp/ledger-engine/config"
	"github.com/warp/ledger-engine/events"
	"github.com/warp/ledger-engine/jobs"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/logging"
	"github.com/warp/ledger-engine/store/postgres"
	"github.com/warp/ledger-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel)

	// Storage
	var (
		store  ledger.TxStore
		closer func()
	)
	switch cfg.DBDriver {
	case "postgres":
		pg, err := postgres.New(context.Background(), cfg.DBDSN)
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		store, closer = pg, pg.Close
	default:
		sq, err := sqlite.New(cfg.DBDSN)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		store, closer = sq, func() { sq.Close() }
	}
	defer closer()

	// Notifications
	queue := jobs.NewMemoryQueue()
	var dispatcher jobs.Dispatcher
	if cfg.NotificationURL != "" {
		dispatcher = jobs.NewHTTPDispatcher(cfg.NotificationURL, log)
	} else {
		dispatcher = jobs.NewLogDispatcher(log)
	}

	// Services. The recorder backs GET /api/events; the log emitter is
	// the durable trail.
	recorder := events.NewMemoryEmitter()
	emitter := events.Multi{events.NewLogEmitter(log), recorder}
	manager := banking.NewTransactionManager(store, emitter, banking.ManagerConfig{
		VerifyBeforePosting: cfg.VerifyBeforePosting,
	}, log)
	notify := banking.NewNotificationScheduler(queue, log)
	scheduler := banking.NewFutureScheduler(store, emitter, notify, log)

	// Scan driver
	driver := api.NewScanDriver(scheduler, api.ScanConfig{
		ScanInterval:    cfg.ScanInterval,
		TriggerTimeout:  cfg.TriggerTimeout,
		ExpiryGraceDays: cfg.ExpiryGraceDays,
		Enabled:         cfg.ScanEnabled,
	}, log)
	driver.Start()
	defer driver.Stop()

	// Reminder delivery loop
	reminderStop := make(chan struct{})
	go runReminders(queue, dispatcher, reminderStop, log)
	defer close(reminderStop)

	// HTTP server
	handler := api.NewHandler(manager, scheduler, log)
	handler.Events = recorder
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: api.NewRouter(handler),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Str("db", cfg.DBDriver).Msg("server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runReminders drains due reminder jobs once a minute and hands them to
// the dispatcher.
func runReminders(queue *jobs.MemoryQueue, dispatcher jobs.Dispatcher, stop <-chan struct{}, log zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, job := range queue.Due(time.Now()) {
				payload, ok := job.Payload.(jobs.NotificationPayload)
				if !ok {
					continue
				}
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				if err := dispatcher.Dispatch(ctx, payload); err != nil {
					log.Warn().Err(err).
						Str("job_id", job.ID).
						Str("transaction_id", payload.TransactionID).
						Msg("reminder delivery failed")
				}
				cancel()
			}
		case <-stop:
			return
		}
	}
}
