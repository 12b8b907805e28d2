package cmd

import (
	"fmt"

	"github.com/inboxzero/inboxzero/internal/oauth"
	"github.com/spf13/cobra"
)

var (
	headless    bool
	forceReauth bool
)

var addAccountCmd = &cobra.Command{
	Use:   "add-account <email>",
	Short: "Add a Gmail account via OAuth",
	Long: `Add a Gmail account by completing the OAuth2 authorization flow.

By default, opens a browser for authorization. Use --headless to see instructions
for authorizing on headless servers (Google does not support Gmail in device flow).

If a token already exists, the command skips authorization. Use --force to delete
the existing token and re-authorize (useful when a token has expired or been revoked).

Examples:
  inboxzero add-account you@gmail.com
  inboxzero add-account you@gmail.com --headless
  inboxzero add-account you@gmail.com --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := args[0]

		// Reject incompatible flag combination
		if headless && forceReauth {
			return fmt.Errorf("--headless and --force cannot be used together: --force requires browser-based OAuth which is not available in headless mode")
		}

		// For --headless, just show instructions (no OAuth config needed)
		if headless {
			oauth.PrintHeadlessInstructions(email, cfg.TokensDir())
			return nil
		}

		// Validate config
		if !clientSecretsAvailable() {
			return errOAuthNotConfigured()
		}

		oauthMgr := newOAuthManager()

		// If --force, delete existing token so we re-authorize
		if forceReauth {
			if oauthMgr.HasToken(email) {
				fmt.Printf("Removing existing token for %s...\n", email)
				if err := oauthMgr.DeleteToken(email); err != nil {
					return fmt.Errorf("delete existing token: %w", err)
				}
			} else {
				fmt.Printf("No existing token found for %s, proceeding with authorization.\n", email)
			}
		}

		// Check if already authorized (e.g., token copied from another machine)
		if oauthMgr.HasToken(email) {
			fmt.Printf("Account %s is already authorized.\n", email)
			fmt.Println("Next step: inboxzero archive", email)
			fmt.Println("To re-authorize (e.g., expired token), run: inboxzero add-account", email, "--force")
			return nil
		}

		// Perform authorization
		fmt.Println("Starting browser authorization...")

		if err := oauthMgr.Authorize(cmd.Context(), email); err != nil {
			return wrapOAuthError(fmt.Errorf("authorization failed: %w", err))
		}

		fmt.Printf("\nAccount %s authorized successfully!\n", email)
		fmt.Println("You can now run: inboxzero archive", email)

		return nil
	},
}

func init() {
	addAccountCmd.Flags().BoolVar(&headless, "headless", false, "Show instructions for headless server setup")
	addAccountCmd.Flags().BoolVar(&forceReauth, "force", false, "Delete existing token and re-authorize (use when token is expired or revoked)")
	rootCmd.AddCommand(addAccountCmd)
}
