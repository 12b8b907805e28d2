// Package config handles loading and managing inboxzero configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/inboxzero/inboxzero/internal/fileutil"
)

// OAuthConfig holds OAuth client configuration.
type OAuthConfig struct {
	ClientSecrets string `toml:"client_secrets"`
}

// ArchiveConfig holds archiving configuration.
type ArchiveConfig struct {
	Label        string `toml:"label"`          // label to archive (default: INBOX)
	RateLimitQPS int    `toml:"rate_limit_qps"` // Gmail API request pacing
	PageSize     int    `toml:"page_size"`      // messages.list page size (1-500)
}

// AccountSchedule defines the archive schedule for a single account.
type AccountSchedule struct {
	Email    string `toml:"email"`    // Gmail account email
	Schedule string `toml:"schedule"` // Cron expression (e.g., "0 7 * * *" for 7am daily)
	Enabled  bool   `toml:"enabled"`  // Whether scheduled archiving is active
}

// Config represents the inboxzero configuration.
type Config struct {
	OAuth    OAuthConfig       `toml:"oauth"`
	Archive  ArchiveConfig     `toml:"archive"`
	Accounts []AccountSchedule `toml:"accounts"`

	// Computed at load time, not from the config file
	HomeDir string `toml:"-"`

	path string // file the config was loaded from
}

// DefaultHome returns the default inboxzero home directory.
// Respects the INBOXZERO_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("INBOXZERO_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".inboxzero"
	}
	return filepath.Join(home, ".inboxzero")
}

// NewDefaultConfig returns a configuration populated with defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Archive: ArchiveConfig{
			Label:        "INBOX",
			RateLimitQPS: 5,
			PageSize:     500,
		},
		Accounts: []AccountSchedule{},
		HomeDir:  DefaultHome(),
	}
}

// Load reads the configuration.
//
// An explicit path must exist; its parent directory becomes the home
// directory unless homeDir overrides it. With both arguments empty the
// default home is used and a missing config file is fine: defaults apply.
func Load(path, homeDir string) (*Config, error) {
	path = expandPath(path)
	homeDir = expandPath(homeDir)

	explicit := path != ""
	switch {
	case homeDir != "":
	case explicit:
		homeDir = filepath.Dir(path)
	default:
		homeDir = DefaultHome()
	}
	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := NewDefaultConfig()
	cfg.HomeDir = homeDir
	cfg.path = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if hint := tomlBackslashHint(err); hint != "" {
			return nil, fmt.Errorf("decode config: %w\n%s", err, hint)
		}
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Expand ~ and resolve relative secrets paths against the home directory,
	// not the working directory.
	cfg.OAuth.ClientSecrets = expandPath(cfg.OAuth.ClientSecrets)
	if cfg.OAuth.ClientSecrets != "" && !filepath.IsAbs(cfg.OAuth.ClientSecrets) {
		cfg.OAuth.ClientSecrets = filepath.Join(homeDir, cfg.OAuth.ClientSecrets)
	}

	return cfg, nil
}

// ConfigFilePath returns the path the configuration was loaded from, or the
// default location under the home directory.
func (c *Config) ConfigFilePath() string {
	if c.path != "" {
		return c.path
	}
	return filepath.Join(c.HomeDir, "config.toml")
}

// TokensDir returns the path to the OAuth tokens directory.
func (c *Config) TokensDir() string {
	return filepath.Join(c.HomeDir, "tokens")
}

// ClientSecretsPath returns the OAuth client secrets location, defaulting to
// client_secrets.json in the home directory.
func (c *Config) ClientSecretsPath() string {
	if c.OAuth.ClientSecrets != "" {
		return c.OAuth.ClientSecrets
	}
	return filepath.Join(c.HomeDir, "client_secrets.json")
}

// EnsureHomeDir creates the home directory if it does not exist. Tokens live
// under it, so it is created user-only.
func (c *Config) EnsureHomeDir() error {
	if err := fileutil.SecureMkdirAll(c.HomeDir, 0700); err != nil {
		return fmt.Errorf("create home directory: %w", err)
	}
	return nil
}

// Save writes the configuration to its file, creating the home directory
// first if needed. The file is owner-only; it may name accounts and the
// client secrets location.
func (c *Config) Save() error {
	if err := c.EnsureHomeDir(); err != nil {
		return err
	}

	f, err := fileutil.SecureOpenFile(c.ConfigFilePath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

// ScheduledAccounts returns accounts with scheduling enabled.
func (c *Config) ScheduledAccounts() []AccountSchedule {
	var scheduled []AccountSchedule
	for _, acc := range c.Accounts {
		if acc.Enabled && acc.Schedule != "" {
			scheduled = append(scheduled, acc)
		}
	}
	return scheduled
}

// GetAccountSchedule returns a copy of the schedule for a specific account
// email, or nil if the account is not configured.
func (c *Config) GetAccountSchedule(email string) *AccountSchedule {
	for i := range c.Accounts {
		if c.Accounts[i].Email == email {
			acc := c.Accounts[i]
			return &acc
		}
	}
	return nil
}

// tomlBackslashHint recognizes decode errors caused by unescaped Windows
// path separators and returns a usable hint, or "".
func tomlBackslashHint(err error) string {
	msg := err.Error()
	if !strings.Contains(msg, "invalid escape") && !strings.Contains(msg, "hexadecimal digits") {
		return ""
	}
	return `hint: TOML treats backslashes as escape characters; write Windows paths with forward slashes ("C:/inboxzero") or single quotes ('C:\inboxzero')`
}

// expandPath expands a leading ~ to the user's home directory. On Windows it
// also strips matched surrounding quotes, which CMD leaves on pasted paths.
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if runtime.GOOS == "windows" && len(path) >= 2 {
		if (path[0] == '\'' && path[len(path)-1] == '\'') ||
			(path[0] == '"' && path[len(path)-1] == '"') {
			path = path[1 : len(path)-1]
		}
	}

	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
