/*
scheduler.go - Daily accrual scheduler

PURPOSE:
  Periodically invokes the accrual engine for the current operational
  date. The engine itself is idempotent per (user, leave type, date), so
  an aggressive check interval is safe: re-runs for an already-processed
  date report skips, not duplicates.

DESIGN:
  - Background goroutine with a configurable check interval
  - Skips the run when the operational date was already processed by
    this process (the idempotency key still protects across processes)
  - Runs once immediately on Start

USAGE:
  sched := NewAccrualScheduler(svc, logger)
  sched.Start()
  defer sched.Stop()

SEE ALSO:
  - ledger/accrual.go: the engine and its idempotency contract
  - handlers.go: IssueGrants endpoint (manual trigger with secret)
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/attendly/leave-ledger/ledger"
)

// AccrualScheduler drives daily grant issuance.
type AccrualScheduler struct {
	Service       *ledger.Service
	CheckInterval time.Duration
	Timezone      *time.Location

	log    *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// runMu guards lastRun separately so Stop (holding mu) never
	// deadlocks against an in-flight check.
	runMu   sync.Mutex
	lastRun ledger.Date
}

// NewAccrualScheduler creates a scheduler with a 1 hour check interval.
// Hourly checks plus the same-day skip give at most one run per day
// while tolerating process restarts and DST shifts.
func NewAccrualScheduler(svc *ledger.Service, log *slog.Logger) *AccrualScheduler {
	return &AccrualScheduler{
		Service:       svc,
		CheckInterval: 1 * time.Hour,
		Timezone:      time.UTC,
		log:           log,
		stop:          make(chan struct{}),
	}
}

// Start begins the background loop.
func (s *AccrualScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)
	go s.run()

	s.log.Info("accrual scheduler started", "interval", s.CheckInterval)
}

// Stop halts the loop and waits for an in-flight run to finish.
func (s *AccrualScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.log.Info("accrual scheduler stopped")
	}
}

func (s *AccrualScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.checkAndIssue()

	for {
		select {
		case <-s.ticker.C:
			s.checkAndIssue()
		case <-s.stop:
			return
		}
	}
}

func (s *AccrualScheduler) checkAndIssue() {
	today := ledger.DateOf(time.Now(), s.Timezone)

	s.runMu.Lock()
	if s.lastRun.Equal(today) {
		s.runMu.Unlock()
		return
	}
	s.runMu.Unlock()

	summary, err := s.Service.IssueGrants(context.Background(), today, "")
	if err != nil {
		s.log.Error("accrual run failed", "as_of", today, "err", err)
		return
	}

	s.runMu.Lock()
	s.lastRun = today
	s.runMu.Unlock()

	if summary.Granted > 0 || summary.Skipped > 0 || len(summary.Errors) > 0 {
		s.log.Info("accrual run completed",
			"as_of", today,
			"granted", summary.Granted,
			"skipped", summary.Skipped,
			"errors", len(summary.Errors))
	}
}

// RunNow triggers an immediate run, bypassing the same-day skip.
// For tests and admin use.
func (s *AccrualScheduler) RunNow(ctx context.Context, asOf ledger.Date) (*ledger.IssueSummary, error) {
	return s.Service.IssueGrants(ctx, asOf, "")
}
