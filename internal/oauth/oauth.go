// Package oauth manages Gmail OAuth2 credentials: loading stored tokens,
// refreshing stale ones, and falling back to the interactive grant flow.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/inboxzero/inboxzero/internal/fileutil"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scopes required for archiving. gmail.modify covers listing messages and
// changing their labels without granting full mailbox access.
var Scopes = []string{
	"https://www.googleapis.com/auth/gmail.modify",
}

// ErrNoValidToken is returned when load, refresh, and the interactive grant
// all failed to produce a usable token.
var ErrNoValidToken = errors.New("no valid oauth token after refresh and authorization")

// expiryDelta matches the slack the oauth2 package applies when deciding
// whether a token is still usable.
const expiryDelta = 10 * time.Second

// tokenState classifies a stored token for the acquisition state machine.
type tokenState int

const (
	// stateNone: nothing usable; only the interactive grant can help.
	stateNone tokenState = iota
	// stateStale: expired, but carries a refresh token worth trying.
	stateStale
	// stateValid: usable as-is.
	stateValid
)

func (s tokenState) String() string {
	switch s {
	case stateStale:
		return "stale"
	case stateValid:
		return "valid"
	default:
		return "none"
	}
}

// classify determines the state of a loaded token at the given instant.
func classify(tok *oauth2.Token, now time.Time) tokenState {
	switch {
	case tok == nil:
		return stateNone
	case usable(tok, now):
		return stateValid
	case tok.RefreshToken != "":
		return stateStale
	default:
		return stateNone
	}
}

// usable reports whether the token can authenticate a request at the given
// instant. Mirrors oauth2.Token.Valid but with an injectable clock.
func usable(tok *oauth2.Token, now time.Time) bool {
	if tok == nil || tok.AccessToken == "" {
		return false
	}
	if tok.Expiry.IsZero() {
		return true
	}
	return tok.Expiry.Round(0).Add(-expiryDelta).After(now)
}

// Manager handles OAuth2 token acquisition and storage.
//
// Client secrets are read lazily: a stored valid token authenticates without
// them, so only the refresh and grant paths require the secrets file.
type Manager struct {
	secretsPath string
	tokensDir   string
	scopes      []string
	logger      *slog.Logger

	config *oauth2.Config // cached parse of the secrets file

	// Overridable in tests.
	refresh func(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error)
	grant   func(ctx context.Context) (*oauth2.Token, error)
	now     func() time.Time
}

// NewManager creates an OAuth manager storing tokens under tokensDir.
func NewManager(clientSecretsPath, tokensDir string, logger *slog.Logger) *Manager {
	return NewManagerWithScopes(clientSecretsPath, tokensDir, logger, Scopes)
}

// NewManagerWithScopes creates an OAuth manager requesting custom scopes.
func NewManagerWithScopes(clientSecretsPath, tokensDir string, logger *slog.Logger, scopes []string) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		secretsPath: clientSecretsPath,
		tokensDir:   tokensDir,
		scopes:      scopes,
		logger:      logger,
		now:         time.Now,
	}
	m.refresh = m.refreshToken
	m.grant = m.browserFlow
	return m
}

// Token returns a valid OAuth2 token for the account, walking the
// load → refresh → interactive-grant ladder as needed. The grant flow runs at
// most once per call. A newly minted or refreshed token is persisted; a
// persistence failure is logged but does not invalidate the returned token.
func (m *Manager) Token(ctx context.Context, email string) (*oauth2.Token, error) {
	tok, err := m.loadToken(email)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("stored token unreadable, ignoring", "email", email, "error", err)
		}
		tok = nil
	}

	dirty := false
	state := classify(tok, m.now())
	m.logger.Debug("stored token classified", "email", email, "state", state.String())

	if state == stateStale {
		refreshed, err := m.refresh(ctx, tok)
		if err != nil {
			m.logger.Warn("token refresh failed, falling back to authorization",
				"email", email, "error", err)
			tok, state = nil, stateNone
		} else {
			tok, dirty, state = refreshed, true, stateValid
		}
	}

	if state == stateNone {
		granted, err := m.runGrant(ctx)
		if err != nil {
			return nil, err
		}
		tok, dirty = granted, true
	}

	if dirty {
		if err := m.saveToken(email, tok); err != nil {
			m.logger.Error("failed to save token; authorization will repeat next run",
				"email", email, "path", m.tokenPath(email), "error", err)
		}
	}

	if !usable(tok, m.now()) {
		return nil, ErrNoValidToken
	}
	return tok, nil
}

// TokenSource returns an auto-refreshing token source for the account,
// running the acquisition state machine first if needed.
func (m *Manager) TokenSource(ctx context.Context, email string) (oauth2.TokenSource, error) {
	tok, err := m.Token(ctx, email)
	if err != nil {
		return nil, err
	}

	config, err := m.clientConfig()
	if err != nil {
		// No client secrets, so no mid-run refresh; the token we just
		// obtained is valid and serves the run statically.
		return oauth2.StaticTokenSource(tok), nil
	}
	return config.TokenSource(ctx, tok), nil
}

// StoredTokenSource returns a refresh-only token source backed by the stored
// token. It never starts the interactive grant, so it is safe for
// non-interactive callers such as the serve daemon. Fails if no token is
// stored, or if refresh is needed but the client secrets are missing.
// A refreshed token is persisted before the source is returned; a persist
// failure is logged and does not fail the caller.
func (m *Manager) StoredTokenSource(ctx context.Context, email string) (oauth2.TokenSource, error) {
	tok, err := m.loadToken(email)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no stored token for %s: %w", email, ErrNoValidToken)
		}
		return nil, fmt.Errorf("load token: %w", err)
	}

	config, err := m.clientConfig()
	if err != nil {
		if usable(tok, m.now()) {
			// A still-valid token can serve without refresh capability.
			return oauth2.StaticTokenSource(tok), nil
		}
		return nil, err
	}

	ts := config.TokenSource(ctx, tok)

	// Refresh now and save the result if it changed. Google rotates refresh
	// tokens on occasion; dropping the rotated token here would leave the
	// stored file dead until a manual re-authorization.
	fresh, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh stored token: %w", err)
	}
	if fresh.AccessToken != tok.AccessToken {
		if err := m.saveToken(email, fresh); err != nil {
			m.logger.Error("failed to save refreshed token; refresh will repeat next run",
				"email", email, "path", m.tokenPath(email), "error", err)
		}
	}
	return ts, nil
}

// Authorize runs the interactive grant for an account and stores the result,
// regardless of any existing token.
func (m *Manager) Authorize(ctx context.Context, email string) error {
	tok, err := m.runGrant(ctx)
	if err != nil {
		return err
	}
	if err := m.saveToken(email, tok); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// runGrant verifies client credentials exist and then runs the interactive
// grant. The config check comes first so a missing secrets file fails before
// any server or browser is started.
func (m *Manager) runGrant(ctx context.Context) (*oauth2.Token, error) {
	if _, err := m.clientConfig(); err != nil {
		return nil, err
	}
	tok, err := m.grant(ctx)
	if err != nil {
		return nil, fmt.Errorf("authorization flow: %w", err)
	}
	if tok == nil {
		return nil, fmt.Errorf("authorization flow returned no token")
	}
	return tok, nil
}

// refreshToken exchanges the refresh token for a fresh access token.
func (m *Manager) refreshToken(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	config, err := m.clientConfig()
	if err != nil {
		return nil, err
	}
	return config.TokenSource(ctx, tok).Token()
}

// clientConfig loads and caches the OAuth2 client configuration.
func (m *Manager) clientConfig() (*oauth2.Config, error) {
	if m.config != nil {
		return m.config, nil
	}

	data, err := os.ReadFile(m.secretsPath)
	if err != nil {
		return nil, fmt.Errorf("read client secrets: %w", err)
	}

	config, err := google.ConfigFromJSON(data, m.scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse client secrets: %w", err)
	}

	m.config = config
	return m.config, nil
}

// HasToken checks if a stored token exists for the given email.
func (m *Manager) HasToken(email string) bool {
	_, err := m.loadToken(email)
	return err == nil
}

// DeleteToken removes the token file for the given email.
func (m *Manager) DeleteToken(email string) error {
	err := os.Remove(m.tokenPath(email))
	if os.IsNotExist(err) {
		return nil // Already gone
	}
	return err
}

// TokenPath returns the path to the token file for an email (for external use).
func (m *Manager) TokenPath(email string) string {
	return m.tokenPath(email)
}

// Accounts returns the emails with a stored token, sorted.
func (m *Manager) Accounts() ([]string, error) {
	entries, err := os.ReadDir(m.tokensDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var emails []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		emails = append(emails, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(emails)
	return emails, nil
}

const (
	redirectPort = "8089"
	callbackPath = "/callback"
)

// newCallbackHandler returns an HTTP handler that processes the OAuth callback.
func (m *Manager) newCallbackHandler(expectedState string, codeChan chan<- string, errChan chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != expectedState {
			errChan <- fmt.Errorf("state mismatch: possible CSRF attack")
			fmt.Fprintf(w, "Error: state mismatch")
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no code in callback")
			fmt.Fprintf(w, "Error: no authorization code received")
			return
		}
		codeChan <- code
		fmt.Fprintf(w, "Authorization successful! You can close this window.")
	}
}

// browserFlow opens a browser for OAuth authorization and blocks until the
// local callback receives a grant, an error occurs, or ctx is canceled.
func (m *Manager) browserFlow(ctx context.Context) (*oauth2.Token, error) {
	config, err := m.clientConfig()
	if err != nil {
		return nil, err
	}

	// Generate random state for CSRF protection
	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	state := base64.URLEncoding.EncodeToString(stateBytes)

	// Start local server for callback
	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.Handle(callbackPath, m.newCallbackHandler(state, codeChan, errChan))
	server := &http.Server{Addr: "localhost:" + redirectPort, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	defer func() { _ = server.Shutdown(ctx) }()

	config.RedirectURL = "http://localhost:" + redirectPort + callbackPath
	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Printf("Opening browser for authorization...\n")
	fmt.Printf("If browser doesn't open, visit:\n%s\n\n", authURL)

	if err := openBrowser(authURL); err != nil {
		m.logger.Warn("failed to open browser", "error", err)
	}

	// Wait for callback
	select {
	case code := <-codeChan:
		return config.Exchange(ctx, code)
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PrintHeadlessInstructions explains how to authorize on a machine without a
// browser. Google rejects the device-code grant for Gmail scopes, so the
// practical route is completing the flow elsewhere and copying the token file.
func PrintHeadlessInstructions(email, tokensDir string) {
	fmt.Printf(`To authorize %s on a headless machine:

  1. On a machine with a browser, install inboxzero and run:
       inboxzero add-account %s
  2. Copy the resulting token file to this machine:
       scp ~/.inboxzero/tokens/%s.json this-host:%s/
  3. Verify with:
       inboxzero list-accounts
`, email, email, email, tokensDir)
}

// tokenFile wraps an OAuth2 token with the scopes it was authorized for, so
// a scope change can be detected without an API call.
type tokenFile struct {
	oauth2.Token
	Scopes []string `json:"scopes,omitempty"`
}

// loadToken loads a saved token for the given email.
func (m *Manager) loadToken(email string) (*oauth2.Token, error) {
	data, err := os.ReadFile(m.tokenPath(email))
	if err != nil {
		return nil, err
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, err
	}

	return &tf.Token, nil
}

// saveToken saves a token for the given email along with the requested scopes.
// The tokens directory and files are kept owner-only.
func (m *Manager) saveToken(email string, token *oauth2.Token) error {
	if err := fileutil.SecureMkdirAll(m.tokensDir, 0700); err != nil {
		return err
	}
	if err := fileutil.SecureChmod(m.tokensDir, 0700); err != nil {
		return err
	}

	tf := tokenFile{
		Token:  *token,
		Scopes: m.scopes,
	}

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}

	return fileutil.SecureWriteFile(m.tokenPath(email), data, 0600)
}

// tokenPath returns the path to the token file for an email.
// The email is sanitized to prevent path traversal attacks.
func (m *Manager) tokenPath(email string) string {
	safe := strings.ReplaceAll(email, "/", "_")
	safe = strings.ReplaceAll(safe, "\\", "_")
	safe = strings.ReplaceAll(safe, "..", "_")

	path := filepath.Join(m.tokensDir, safe+".json")
	cleanPath := filepath.Clean(path)

	// Verify the path is still within tokensDir
	if !strings.HasPrefix(cleanPath, filepath.Clean(m.tokensDir)) {
		return filepath.Join(m.tokensDir, fmt.Sprintf("%x.json", sha256.Sum256([]byte(email))))
	}

	return cleanPath
}

// openBrowser opens the default browser to the given URL.
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
