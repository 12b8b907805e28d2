package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var removeAccountYes bool

var removeAccountCmd = &cobra.Command{
	Use:   "remove-account <email>",
	Short: "Remove an account's stored OAuth token",
	Long: `Remove the stored OAuth token for an account. The account's mail is
untouched; inboxzero only forgets its authorization.

If the account has a schedule in config.toml, the schedule entry is left in
place. Disable or delete it there to stop the serve daemon from retrying.

Examples:
  inboxzero remove-account you@gmail.com
  inboxzero remove-account you@gmail.com --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := args[0]

		oauthMgr := newOAuthManager()

		if !oauthMgr.HasToken(email) {
			return fmt.Errorf("account %q not found", email)
		}

		fmt.Printf("Account: %s\n", email)
		fmt.Printf("Token:   %s\n", oauthMgr.TokenPath(email))
		if acc := cfg.GetAccountSchedule(email); acc != nil && acc.Enabled {
			fmt.Printf("Note:    account has an enabled schedule (%s) in %s\n",
				acc.Schedule, cfg.ConfigFilePath())
		}

		if !removeAccountYes {
			fmt.Print("\nRemove this account's authorization? [y/N] ")
			scanner := bufio.NewScanner(os.Stdin)
			scanner.Scan()
			answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
			if answer != "y" && answer != "yes" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := oauthMgr.DeleteToken(email); err != nil {
			return fmt.Errorf("remove token: %w", err)
		}

		fmt.Printf("\nAccount %s removed.\n", email)
		return nil
	},
}

func init() {
	removeAccountCmd.Flags().BoolVarP(
		&removeAccountYes, "yes", "y", false,
		"Skip confirmation prompt",
	)
	rootCmd.AddCommand(removeAccountCmd)
}
