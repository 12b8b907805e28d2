package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listAccountsJSON bool

// accountInfo merges token state with any configured schedule.
type accountInfo struct {
	Email      string `json:"email"`
	Authorized bool   `json:"authorized"`
	Schedule   string `json:"schedule,omitempty"`
	Enabled    bool   `json:"-"`
}

var listAccountsCmd = &cobra.Command{
	Use:   "list-accounts",
	Short: "List configured Gmail accounts",
	Long: `List all accounts known to inboxzero: accounts with a stored OAuth
token and accounts that only appear in the config schedule.

Examples:
  inboxzero list-accounts
  inboxzero list-accounts --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		oauthMgr := newOAuthManager()

		authorized, err := oauthMgr.Accounts()
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}

		accounts := mergeAccounts(authorized)
		if len(accounts) == 0 {
			fmt.Println("No accounts found. Use 'inboxzero add-account <email>' to add one.")
			return nil
		}

		if listAccountsJSON {
			return outputAccountsJSON(accounts)
		}
		outputAccountsTable(accounts)
		return nil
	},
}

// mergeAccounts combines authorized token files with config schedule entries,
// sorted by email.
func mergeAccounts(authorized []string) []accountInfo {
	byEmail := make(map[string]*accountInfo)
	for _, email := range authorized {
		byEmail[email] = &accountInfo{Email: email, Authorized: true}
	}
	for _, acc := range cfg.Accounts {
		info, ok := byEmail[acc.Email]
		if !ok {
			info = &accountInfo{Email: acc.Email}
			byEmail[acc.Email] = info
		}
		info.Schedule = acc.Schedule
		info.Enabled = acc.Enabled
	}

	accounts := make([]accountInfo, 0, len(byEmail))
	for _, info := range byEmail {
		accounts = append(accounts, *info)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Email < accounts[j].Email
	})
	return accounts
}

func outputAccountsTable(accounts []accountInfo) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tAUTHORIZED\tSCHEDULE")
	fmt.Fprintln(w, "─────\t──────────\t────────")

	for _, acc := range accounts {
		authorized := "no"
		if acc.Authorized {
			authorized = "yes"
		}
		schedule := "-"
		if acc.Schedule != "" {
			schedule = acc.Schedule
			if !acc.Enabled {
				schedule += " (disabled)"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", acc.Email, authorized, schedule)
	}

	w.Flush()
	fmt.Printf("\n%d account(s)\n", len(accounts))
}

func outputAccountsJSON(accounts []accountInfo) error {
	output := make([]map[string]interface{}, len(accounts))
	for i, acc := range accounts {
		output[i] = map[string]interface{}{
			"email":      acc.Email,
			"authorized": acc.Authorized,
		}
		if acc.Schedule != "" {
			output[i]["schedule"] = acc.Schedule
			output[i]["schedule_enabled"] = acc.Enabled
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

func init() {
	rootCmd.AddCommand(listAccountsCmd)
	listAccountsCmd.Flags().BoolVar(&listAccountsJSON, "json", false, "Output as JSON")
}
