package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/inboxzero/inboxzero/internal/config"
	"github.com/inboxzero/inboxzero/internal/scheduler"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard for first-run configuration",
	Long: `Interactive setup wizard to configure inboxzero for first use.

This command helps you:
  1. Locate or configure Google OAuth credentials
  2. Create the config.toml file
  3. Optionally schedule automatic archiving for an account

Run this once after installing inboxzero to get started quickly.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Welcome to inboxzero setup!")
	fmt.Println()

	// Ensure home directory exists
	if err := cfg.EnsureHomeDir(); err != nil {
		return fmt.Errorf("create home directory: %w", err)
	}

	// Step 1: Find or prompt for OAuth credentials
	secretsPath, err := setupOAuthSecrets(reader)
	if err != nil {
		return err
	}

	// Step 2: Optionally schedule an account
	schedule, err := setupSchedule(reader)
	if err != nil {
		return err
	}

	// Step 3: Update config
	if secretsPath != "" {
		cfg.OAuth.ClientSecrets = secretsPath
	}
	if schedule != nil {
		cfg.Accounts = append(cfg.Accounts, *schedule)
	}

	// Only save if we configured something
	if secretsPath != "" || schedule != nil {
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Printf("\nConfiguration saved to %s\n", cfg.ConfigFilePath())
	}

	// Print next steps
	fmt.Println()
	fmt.Println("Setup complete! Next steps:")
	fmt.Println()
	fmt.Println("  1. Add a Gmail account:")
	fmt.Println("     inboxzero add-account you@gmail.com")
	fmt.Println()
	fmt.Println("  2. Archive your inbox:")
	fmt.Println("     inboxzero archive you@gmail.com")
	fmt.Println()
	if schedule != nil {
		fmt.Println("  3. Run the daemon for scheduled archiving:")
		fmt.Println("     inboxzero serve")
		fmt.Println()
	}
	fmt.Println("For more help: inboxzero --help")

	return nil
}

func setupOAuthSecrets(reader *bufio.Reader) (string, error) {
	fmt.Println("Step 1: OAuth Credentials")
	fmt.Println("--------------------------")

	// Check if already configured
	if cfg.OAuth.ClientSecrets != "" {
		fmt.Printf("OAuth credentials already configured: %s\n", cfg.OAuth.ClientSecrets)
		if promptYesNo(reader, "Keep existing configuration?") {
			return "", nil
		}
	}

	// Try to find existing client_secret*.json files
	candidates := findClientSecrets()
	if len(candidates) > 0 {
		fmt.Println("\nFound OAuth credentials:")
		for i, path := range candidates {
			fmt.Printf("  [%d] %s\n", i+1, path)
		}
		fmt.Println("  [0] Enter path manually")
		fmt.Println()

		choice := promptChoice(reader, "Select option", 0, len(candidates))
		if choice > 0 {
			return candidates[choice-1], nil
		}
	} else {
		fmt.Println("\nNo client_secret*.json files found in common locations.")
		fmt.Println()
		fmt.Println("To get OAuth credentials:")
		fmt.Println("  1. Go to https://console.cloud.google.com/apis/credentials")
		fmt.Println("  2. Create OAuth client ID (Desktop app)")
		fmt.Println("  3. Download JSON and save as client_secret.json")
		fmt.Println()
	}

	// Prompt for path
	fmt.Print("Enter path to client_secret.json (or press Enter to skip): ")
	path, _ := reader.ReadString('\n')
	path = strings.TrimSpace(path)

	if path == "" {
		fmt.Println("Skipping OAuth configuration. You can add it later to config.toml.")
		return "", nil
	}

	// Expand ~ in path
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	// Verify file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("file not found: %s", path)
	}

	fmt.Printf("Using OAuth credentials: %s\n", path)
	return path, nil
}

func setupSchedule(reader *bufio.Reader) (*config.AccountSchedule, error) {
	fmt.Println()
	fmt.Println("Step 2: Scheduled Archiving (Optional)")
	fmt.Println("---------------------------------------")
	fmt.Println("Run 'inboxzero serve' as a daemon and archive on a cron schedule.")
	fmt.Println()

	if !promptYesNo(reader, "Schedule automatic archiving for an account?") {
		fmt.Println("Skipping schedule configuration.")
		return nil, nil
	}

	fmt.Print("Account email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Println("Skipping schedule configuration.")
		return nil, nil
	}

	if existing := cfg.GetAccountSchedule(email); existing != nil {
		fmt.Printf("Account %s already has a schedule (%s). Edit %s to change it.\n",
			email, existing.Schedule, cfg.ConfigFilePath())
		return nil, nil
	}

	fmt.Print("Cron schedule [0 7 * * *]: ")
	expr, _ := reader.ReadString('\n')
	expr = strings.TrimSpace(expr)
	if expr == "" {
		expr = "0 7 * * *"
	}

	if err := scheduler.ValidateCronExpr(expr); err != nil {
		return nil, err
	}

	return &config.AccountSchedule{
		Email:    email,
		Schedule: expr,
		Enabled:  true,
	}, nil
}

func findClientSecrets() []string {
	var found []string
	home, _ := os.UserHomeDir()

	patterns := []string{
		filepath.Join(home, "Downloads", "client_secret*.json"),
		"client_secret*.json",
		filepath.Join(cfg.HomeDir, "client_secret*.json"),
	}

	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, _ := filepath.Glob(pattern)
		for _, m := range matches {
			abs, _ := filepath.Abs(m)
			if !seen[abs] {
				seen[abs] = true
				found = append(found, abs)
			}
		}
	}

	return found
}

func promptYesNo(reader *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [Y/n]: ", prompt)
	response, _ := reader.ReadString('\n')
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "" || response == "y" || response == "yes"
}

func promptChoice(reader *bufio.Reader, prompt string, min, max int) int {
	for {
		fmt.Printf("%s [%d-%d]: ", prompt, min, max)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(response)

		var choice int
		if _, err := fmt.Sscanf(response, "%d", &choice); err == nil {
			if choice >= min && choice <= max {
				return choice
			}
		}
		fmt.Printf("Please enter a number between %d and %d\n", min, max)
	}
}
