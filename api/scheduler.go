/*
scheduler.go - Automatic due-date scan driver

PURPOSE:
  Periodically finds scheduled automatic future transactions whose due
  date has arrived and triggers each one. Also sweeps rows that missed
  their trigger for longer than the grace period into expired.

DESIGN:
  - Runs a background goroutine with a configurable scan interval
  - Single-flight: a scan still in progress skips the next tick rather
    than stacking up
  - Each row is triggered independently with its own timeout; one
    failing row never blocks the rest of the batch
  - Trigger is idempotent, so an overlapping manual trigger or a
    crashed-and-restarted scan cannot double-post

CONFIGURATION:
  - ScanInterval:    how often to scan (default: 1 minute)
  - TriggerTimeout:  per-row budget (default: 30 seconds)
  - ExpiryGraceDays: days past due before a row expires (default: 3)

USAGE:
  driver := NewScanDriver(scheduler, cfg, log)
  driver.Start()
  // ... later
  driver.Stop()

SEE ALSO:
  - banking/future.go: Trigger and ExpireOverdue semantics
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/ledger-engine/banking"
	"github.com/warp/ledger-engine/ledger"
)

// ScanConfig controls the scan driver.
type ScanConfig struct {
	ScanInterval    time.Duration
	TriggerTimeout  time.Duration
	ExpiryGraceDays int
	Enabled         bool
}

// DefaultScanConfig returns the production defaults.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		ScanInterval:    time.Minute,
		TriggerTimeout:  30 * time.Second,
		ExpiryGraceDays: 3,
		Enabled:         true,
	}
}

// ScanDriver drives automatic triggering of due future transactions.
type ScanDriver struct {
	scheduler *banking.FutureScheduler
	cfg       ScanConfig
	log       zerolog.Logger

	ticker   *time.Ticker
	stop     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	scanning bool

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// NewScanDriver creates a scan driver.
func NewScanDriver(scheduler *banking.FutureScheduler, cfg ScanConfig, log zerolog.Logger) *ScanDriver {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Minute
	}
	if cfg.TriggerTimeout <= 0 {
		cfg.TriggerTimeout = 30 * time.Second
	}
	if cfg.ExpiryGraceDays < 0 {
		cfg.ExpiryGraceDays = 0
	}
	return &ScanDriver{
		scheduler: scheduler,
		cfg:       cfg,
		log:       log,
		stop:      make(chan struct{}),
		Now:       time.Now,
	}
}

// Start begins the background scan loop.
func (d *ScanDriver) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.cfg.Enabled {
		d.log.Info().Msg("scan driver disabled, not starting")
		return
	}

	d.ticker = time.NewTicker(d.cfg.ScanInterval)
	d.wg.Add(1)
	go d.run()

	d.log.Info().
		Dur("interval", d.cfg.ScanInterval).
		Int("expiry_grace_days", d.cfg.ExpiryGraceDays).
		Msg("scan driver started")
}

// Stop halts the scan loop and waits for an in-flight scan to finish.
// The mutex is released before waiting: the scan goroutine needs it to
// clear its in-flight flag.
func (d *ScanDriver) Stop() {
	d.mu.Lock()
	ticker := d.ticker
	d.ticker = nil
	d.mu.Unlock()

	if ticker == nil {
		return
	}
	ticker.Stop()
	close(d.stop)
	d.wg.Wait()
	d.log.Info().Msg("scan driver stopped")
}

func (d *ScanDriver) run() {
	defer d.wg.Done()

	// Scan immediately on start, then on each tick.
	d.RunNow()

	for {
		select {
		case <-d.ticker.C:
			d.RunNow()
		case <-d.stop:
			return
		}
	}
}

// RunNow performs one scan pass: expiry sweep, then trigger every due
// row. Skips silently if a pass is already in flight.
func (d *ScanDriver) RunNow() ScanReport {
	d.mu.Lock()
	if d.scanning {
		d.mu.Unlock()
		return ScanReport{Skipped: true}
	}
	d.scanning = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.scanning = false
		d.mu.Unlock()
	}()

	return d.scan()
}

// ScanReport summarizes one scan pass.
type ScanReport struct {
	Skipped   bool
	Expired   int
	Triggered int
	Failed    int
}

func (d *ScanDriver) scan() ScanReport {
	ctx := context.Background()
	today := ledger.DateOf(d.Now())
	var report ScanReport

	// Rows more than ExpiryGraceDays past due will never trigger.
	cutoff := today.AddDays(-d.cfg.ExpiryGraceDays)
	expired, err := d.scheduler.ExpireOverdue(ctx, cutoff)
	if err != nil {
		d.log.Error().Err(err).Msg("expiry sweep failed")
	}
	report.Expired = len(expired)

	due, err := d.scheduler.GetDue(ctx, today)
	if err != nil {
		d.log.Error().Err(err).Msg("due scan failed")
		return report
	}

	for _, ft := range due {
		if err := d.triggerOne(ctx, ft.ID); err != nil {
			report.Failed++
			// Retryable failures stay scheduled and are retried next
			// scan; client errors (e.g. insufficient funds) also stay
			// and are surfaced through logs.
			d.log.Warn().Err(err).
				Str("future_id", string(ft.ID)).
				Str("due_date", ft.DueDate.String()).
				Msg("automatic trigger failed")
			continue
		}
		report.Triggered++
	}

	if report.Triggered > 0 || report.Failed > 0 || report.Expired > 0 {
		d.log.Info().
			Int("triggered", report.Triggered).
			Int("failed", report.Failed).
			Int("expired", report.Expired).
			Msg("scan pass completed")
	}
	return report
}

func (d *ScanDriver) triggerOne(ctx context.Context, id ledger.TransactionID) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.TriggerTimeout)
	defer cancel()

	_, err := d.scheduler.Trigger(ctx, id, ledger.SystemActor)
	return err
}
