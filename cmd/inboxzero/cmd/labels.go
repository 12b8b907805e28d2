package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/inboxzero/inboxzero/internal/gmail"
	"github.com/spf13/cobra"
)

var labelsJSON bool

var labelsCmd = &cobra.Command{
	Use:   "labels <email>",
	Short: "List Gmail labels for an account",
	Long: `List the labels on a Gmail account, straight from the API.

Useful for finding the label name to pass to 'archive --label'.

Examples:
  inboxzero labels you@gmail.com
  inboxzero labels you@gmail.com --json`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		email := args[0]
		ctx := cmd.Context()

		oauthMgr := newOAuthManager()
		tokenSource, err := getTokenSourceWithReauth(ctx, oauthMgr, email)
		if err != nil {
			return wrapOAuthError(err)
		}

		client := newGmailClient(tokenSource)
		defer client.Close()

		profile, err := client.GetProfile(ctx)
		if err != nil {
			return fmt.Errorf("get profile: %w", err)
		}

		labels, err := client.ListLabels(ctx)
		if err != nil {
			return fmt.Errorf("list labels: %w", err)
		}

		// System labels first, then user labels, each alphabetical
		sort.Slice(labels, func(i, j int) bool {
			if labels[i].Type != labels[j].Type {
				return labels[i].Type == "system"
			}
			return labels[i].Name < labels[j].Name
		})

		if labelsJSON {
			return outputLabelsJSON(labels)
		}

		fmt.Printf("Account: %s (%d messages total)\n\n", profile.EmailAddress, profile.MessagesTotal)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tID\tTYPE")
		fmt.Fprintln(w, "────\t──\t────")
		for _, l := range labels {
			fmt.Fprintf(w, "%s\t%s\t%s\n", l.Name, l.ID, l.Type)
		}
		w.Flush()

		fmt.Printf("\n%d label(s)\n", len(labels))
		return nil
	},
}

func outputLabelsJSON(labels []*gmail.Label) error {
	output := make([]map[string]interface{}, len(labels))
	for i, l := range labels {
		output[i] = map[string]interface{}{
			"id":   l.ID,
			"name": l.Name,
			"type": l.Type,
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

func init() {
	rootCmd.AddCommand(labelsCmd)
	labelsCmd.Flags().BoolVar(&labelsJSON, "json", false, "Output as JSON")
}
