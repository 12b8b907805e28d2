package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/inboxzero/inboxzero/internal/archive"
	"github.com/inboxzero/inboxzero/internal/oauth"
	"github.com/spf13/cobra"
)

var (
	archiveLabel  string
	archiveDryRun bool
)

var archiveCmd = &cobra.Command{
	Use:   "archive [email]",
	Short: "Archive inbox messages for one or all accounts",
	Long: `Archive messages by removing the INBOX label from every message
currently carrying it. Messages stay in All Mail and keep their other labels.

If no email is specified, archives every account with a stored token.

Examples:
  inboxzero archive                      # Archive all accounts
  inboxzero archive you@gmail.com        # Archive one account
  inboxzero archive you@gmail.com --dry-run
  inboxzero archive you@gmail.com --label Newsletters`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		oauthMgr := newOAuthManager()

		// Determine which accounts to archive
		var emails []string
		if len(args) == 1 {
			emails = []string{args[0]}
		} else {
			accounts, err := oauthMgr.Accounts()
			if err != nil {
				return fmt.Errorf("list accounts: %w", err)
			}
			if len(accounts) == 0 {
				return fmt.Errorf("no accounts configured - run 'add-account' first")
			}
			emails = accounts
		}

		ctx := cmd.Context()

		var archiveErrors []string
		for _, email := range emails {
			if ctx.Err() != nil {
				break
			}

			if err := runArchive(ctx, oauthMgr, email); err != nil {
				if ctx.Err() != nil {
					fmt.Println("\nInterrupted.")
					return err
				}
				archiveErrors = append(archiveErrors, fmt.Sprintf("%s: %v", email, err))
				continue
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if len(archiveErrors) > 0 {
			fmt.Println()
			fmt.Println("Errors:")
			for _, e := range archiveErrors {
				fmt.Printf("  %s\n", e)
			}
			return fmt.Errorf("%d account(s) failed to archive", len(archiveErrors))
		}

		return nil
	},
}

func runArchive(ctx context.Context, oauthMgr *oauth.Manager, email string) error {
	tokenSource, err := getTokenSourceWithReauth(ctx, oauthMgr, email)
	if err != nil {
		return wrapOAuthError(err)
	}

	client := newGmailClient(tokenSource)
	defer client.Close()

	label := cfg.Archive.Label
	if archiveLabel != "" {
		label = archiveLabel
	}

	svc := archive.New(client, &archive.Options{
		Label:  label,
		DryRun: archiveDryRun,
	}).WithLogger(logger)

	fmt.Printf("Archiving %s for %s\n", label, email)
	start := time.Now()

	result, err := svc.Run(ctx)
	if err != nil {
		return fmt.Errorf("archive failed: %w", err)
	}

	if result.Listed == 0 {
		fmt.Println("Nothing to archive.")
		return nil
	}
	if result.DryRun {
		fmt.Printf("Dry run: %d message(s) would be archived.\n", result.Listed)
		return nil
	}

	fmt.Println()
	fmt.Println("Archive complete!")
	fmt.Printf("  Duration:  %s\n", time.Since(start).Round(time.Second))
	fmt.Printf("  Listed:    %d\n", result.Listed)
	fmt.Printf("  Archived:  %d\n", result.Archived)
	if result.Failed > 0 {
		fmt.Printf("  Failed:    %d\n", result.Failed)
	}

	logger.Info("archive run finished",
		"email", email,
		"archived", result.Archived,
		"failed", result.Failed,
	)

	return nil
}

func init() {
	archiveCmd.Flags().StringVar(&archiveLabel, "label", "", "label to archive (default: from config, INBOX)")
	archiveCmd.Flags().BoolVar(&archiveDryRun, "dry-run", false, "list matching messages without modifying anything")
	rootCmd.AddCommand(archiveCmd)
}
