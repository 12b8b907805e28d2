package cmd

import (
	"fmt"

	"github.com/inboxzero/inboxzero/internal/update"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check whether a newer inboxzero release is available",
	Long: `Check GitHub for a newer inboxzero release.

inboxzero never replaces its own binary. When an update is available, the
download URL for this platform is printed so you can install it yourself.

Results are cached for an hour; use --force to check again immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		fmt.Println("Checking for updates...")

		info, err := update.Check(Version, force)
		if err != nil {
			return fmt.Errorf("check for updates: %w", err)
		}

		if info == nil {
			fmt.Printf("Already running latest version (%s)\n", Version)
			return nil
		}

		fmt.Printf("\n  Current version: %s\n", info.CurrentVersion)
		fmt.Printf("  Latest version:  %s\n", info.LatestVersion)
		if info.IsDevBuild {
			fmt.Println("\nYou're running a dev build. Latest official release available.")
		} else {
			fmt.Println("\nUpdate available!")
		}

		fmt.Println("\nDownload:")
		if info.DownloadURL != "" {
			fmt.Printf("  URL:  %s\n", info.DownloadURL)
			fmt.Printf("  Size: %s\n", update.FormatSize(info.Size))
		} else {
			fmt.Printf("  %s\n", update.ReleasesURL)
		}

		return nil
	},
}

func init() {
	updateCmd.Flags().BoolP("force", "f", false, "bypass the check cache")
	rootCmd.AddCommand(updateCmd)
}
