package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inboxzero/inboxzero/internal/archive"
	"github.com/inboxzero/inboxzero/internal/oauth"
	"github.com/inboxzero/inboxzero/internal/scheduler"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run inboxzero as a daemon with scheduled archiving",
	Long: `Run inboxzero as a long-running daemon that archives accounts on schedule.

Configure schedules in config.toml:
  [[accounts]]
  email = "you@gmail.com"
  schedule = "0 7 * * *"   # 7am daily (cron format)
  enabled = true

Cron format: minute hour day-of-month month day-of-week
  Examples:
    0 7 * * *     = 7:00 AM daily
    */15 * * * *  = Every 15 minutes
    0 0 * * 0     = Midnight on Sundays
    0 8,18 * * *  = 8 AM and 6 PM daily

Every account must be authorized with 'add-account' before the daemon starts;
scheduled runs never open a browser.

Use Ctrl+C to stop the daemon gracefully.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Scheduled runs refresh tokens non-interactively, which needs the
	// client secrets.
	if !clientSecretsAvailable() {
		return errOAuthNotConfigured()
	}

	// Check for scheduled accounts
	scheduled := cfg.ScheduledAccounts()
	if len(scheduled) == 0 {
		return fmt.Errorf("no scheduled accounts configured\n\nAdd accounts to config.toml:\n\n  [[accounts]]\n  email = \"you@gmail.com\"\n  schedule = \"0 7 * * *\"\n  enabled = true")
	}

	oauthMgr := newOAuthManager()

	// Refuse to start with unauthorized accounts rather than failing at 7am
	for _, acc := range scheduled {
		if !oauthMgr.HasToken(acc.Email) {
			return fmt.Errorf("account %s has no stored token - run 'add-account %s' first", acc.Email, acc.Email)
		}
	}

	// Create the archive callback for the scheduler
	archiveFunc := func(ctx context.Context, email string) error {
		return runScheduledArchive(ctx, email, oauthMgr)
	}

	// Create and configure scheduler
	sched := scheduler.New(archiveFunc).WithLogger(logger)

	// Add all scheduled accounts
	count, errs := sched.AddAccountsFromConfig(cfg)
	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("failed to schedule account", "error", err)
		}
	}
	if count == 0 {
		return fmt.Errorf("no accounts could be scheduled")
	}

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start the scheduler
	sched.Start()

	fmt.Printf("inboxzero daemon started\n")
	fmt.Printf("  Scheduled accounts: %d\n", count)
	fmt.Printf("  Home directory: %s\n", cfg.HomeDir)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()

	// Print schedule info
	for _, status := range sched.Status() {
		fmt.Printf("  %s: next archive at %s\n", status.Email, status.NextRun.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Println()

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case <-ctx.Done():
		logger.Info("context cancelled")
	}

	fmt.Println("Waiting for running archive jobs to complete...")
	schedCtx := sched.Stop()

	// Wait for scheduler to stop (with timeout)
	select {
	case <-schedCtx.Done():
		fmt.Println("Shutdown complete.")
	case <-time.After(30 * time.Second):
		fmt.Println("Shutdown timed out after 30 seconds.")
	}

	return nil
}

// runScheduledArchive performs one archive pass for a scheduled account.
// Tokens are refreshed non-interactively; a revoked account surfaces as a
// job error in the scheduler status rather than a browser prompt.
func runScheduledArchive(ctx context.Context, email string, oauthMgr *oauth.Manager) error {
	tokenSource, err := oauthMgr.StoredTokenSource(ctx, email)
	if err != nil {
		return fmt.Errorf("get token source: %w (run 'add-account %s' first)", err, email)
	}

	client := newGmailClient(tokenSource)
	defer client.Close()

	svc := archive.New(client, &archive.Options{
		Label: cfg.Archive.Label,
	}).WithLogger(logger)

	result, err := svc.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("scheduled archive results",
		"email", email,
		"listed", result.Listed,
		"archived", result.Archived,
		"failed", result.Failed,
	)
	return nil
}
