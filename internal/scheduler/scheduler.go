// Package scheduler provides cron-based scheduling for automated archiving.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/inboxzero/inboxzero/internal/config"
	"github.com/robfig/cron/v3"
)

// ArchiveFunc is the callback invoked when a scheduled archive run is due.
// It receives the account email and should perform a full archive pass.
type ArchiveFunc func(ctx context.Context, email string) error

// AccountStatus represents the archiving status of a scheduled account.
type AccountStatus struct {
	Email     string
	Running   bool
	LastRun   time.Time
	NextRun   time.Time
	Schedule  string
	LastError string
}

// Scheduler manages cron-based archive scheduling.
type Scheduler struct {
	cron        *cron.Cron
	archiveFunc ArchiveFunc
	logger      *slog.Logger

	mu        sync.RWMutex
	jobs      map[string]cron.EntryID // email -> cron entry ID
	schedules map[string]string       // email -> cron expression
	running   map[string]bool         // email -> archive currently running
	lastRun   map[string]time.Time    // email -> last successful run
	lastErr   map[string]error        // email -> last error

	ctx     context.Context    // cancelled on Stop
	cancel  context.CancelFunc // cancels ctx
	wg      sync.WaitGroup     // tracks running archive goroutines
	stopped bool               // true after Stop()
}

// New creates a new Scheduler with the given archive callback.
func New(archiveFunc ArchiveFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
		))),
		archiveFunc: archiveFunc,
		logger:      slog.Default(),
		jobs:        make(map[string]cron.EntryID),
		schedules:   make(map[string]string),
		running:     make(map[string]bool),
		lastRun:     make(map[string]time.Time),
		lastErr:     make(map[string]error),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddAccount schedules archiving for an account using the given cron
// expression. Returns an error if the cron expression is invalid.
func (s *Scheduler) AddAccount(email, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Remove existing schedule if present
	if entryID, exists := s.jobs[email]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, email)
		delete(s.schedules, email)
	}

	// Validate and add the cron job
	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.scheduledRun(email)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.jobs[email] = entryID
	s.schedules[email] = cronExpr
	s.logger.Info("scheduled archiving",
		"email", email,
		"schedule", cronExpr,
		"next_run", s.cron.Entry(entryID).Next)

	return nil
}

// AddAccountsFromConfig adds all enabled accounts from the config.
// Returns the number of accounts scheduled and any errors encountered.
func (s *Scheduler) AddAccountsFromConfig(cfg *config.Config) (int, []error) {
	var errors []error
	scheduled := 0

	for _, acc := range cfg.ScheduledAccounts() {
		if err := s.AddAccount(acc.Email, acc.Schedule); err != nil {
			errors = append(errors, fmt.Errorf("%s: %w", acc.Email, err))
		} else {
			scheduled++
		}
	}

	return scheduled, errors
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop gracefully stops the scheduler, cancels running archive jobs, and
// waits for them to finish. Returns a context that is done when all work
// completes.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel() // signal running jobs to stop

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-done
		cancel()
	}()
	return ctx
}

// scheduledRun is the body of every cron entry. A firing that finds the
// previous pass still running is skipped, not queued.
func (s *Scheduler) scheduledRun(email string) {
	if err := s.TriggerArchive(email); err != nil {
		s.logger.Info("skipping scheduled archive", "email", email, "reason", err)
	}
}

// runArchive executes an archive pass for an account. The caller must have
// already marked the account running and incremented the wait group.
func (s *Scheduler) runArchive(email string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running[email] = false
		s.mu.Unlock()
	}()

	s.logger.Info("starting scheduled archive", "email", email)
	start := time.Now()

	err := s.archiveFunc(s.ctx, email)

	s.mu.Lock()
	if err != nil {
		s.lastErr[email] = err
		s.logger.Error("scheduled archive failed",
			"email", email,
			"duration", time.Since(start),
			"error", err)
	} else {
		s.lastRun[email] = time.Now()
		s.lastErr[email] = nil
		s.logger.Info("scheduled archive completed",
			"email", email,
			"duration", time.Since(start))
	}
	s.mu.Unlock()
}

// TriggerArchive starts an archive pass for an account. Cron firings route
// through here too, so the in-flight guard lives in one place. Returns an
// error if a pass is already running, the account is not scheduled, or the
// scheduler has been stopped.
func (s *Scheduler) TriggerArchive(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}

	if _, exists := s.jobs[email]; !exists {
		return fmt.Errorf("account %s is not scheduled", email)
	}
	if s.running[email] {
		return fmt.Errorf("archive already running for %s", email)
	}

	s.running[email] = true
	s.wg.Add(1)
	go s.runArchive(email)
	return nil
}

// Status returns the current status of all scheduled accounts.
func (s *Scheduler) Status() []AccountStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var statuses []AccountStatus
	for email, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		status := AccountStatus{
			Email:    email,
			Running:  s.running[email],
			LastRun:  s.lastRun[email],
			NextRun:  entry.Next,
			Schedule: s.schedules[email],
		}
		if err := s.lastErr[email]; err != nil {
			status.LastError = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
