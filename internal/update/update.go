// Package update checks GitHub releases for a newer inboxzero version.
// It never modifies the installed binary; callers report the result and
// point the user at the download.
package update

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/inboxzero/inboxzero/internal/config"
	"github.com/inboxzero/inboxzero/internal/fileutil"
	"golang.org/x/mod/semver"
)

const (
	githubAPIURL     = "https://api.github.com/repos/inboxzero/inboxzero/releases/latest"
	cacheFileName    = "update_check.json"
	cacheDuration    = 1 * time.Hour
	devCacheDuration = 15 * time.Minute
)

// ReleasesURL is the fallback download location when no prebuilt asset
// exists for the current platform.
const ReleasesURL = "https://github.com/inboxzero/inboxzero/releases"

// Release represents a GitHub release.
type Release struct {
	TagName string  `json:"tag_name"`
	Body    string  `json:"body"`
	Assets  []Asset `json:"assets"`
}

// Asset represents a release asset.
type Asset struct {
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Info describes an available update. DownloadURL and Size are zero when no
// asset matches the current platform; callers should fall back to ReleasesURL.
type Info struct {
	CurrentVersion string
	LatestVersion  string
	DownloadURL    string
	AssetName      string
	Size           int64
	IsDevBuild     bool
}

// findAsset locates the platform-specific release asset by exact name.
func findAsset(assets []Asset, assetName string) *Asset {
	for i := range assets {
		if assets[i].Name == assetName {
			return &assets[i]
		}
	}
	return nil
}

// cachedCheck stores the last update check result.
type cachedCheck struct {
	CheckedAt time.Time `json:"checked_at"`
	Version   string    `json:"version"`
}

// Check reports whether a newer version is available. It returns nil when
// the current version is up to date. Results are cached for an hour (15
// minutes for dev builds) unless forceCheck is set.
func Check(currentVersion string, forceCheck bool) (*Info, error) {
	cleanVersion := strings.TrimPrefix(currentVersion, "v")
	isDevBuild := isDevBuildVersion(cleanVersion)

	if !forceCheck {
		if info, done := checkCache(currentVersion, cleanVersion, isDevBuild); done {
			return info, nil
		}
	}

	release, err := fetchLatestRelease()
	if err != nil {
		return nil, fmt.Errorf("check for updates: %w", err)
	}

	saveCache(release.TagName)

	latestVersion := strings.TrimPrefix(release.TagName, "v")

	if !isDevBuild && !isNewer(latestVersion, cleanVersion) {
		return nil, nil
	}

	info := &Info{
		CurrentVersion: currentVersion,
		LatestVersion:  release.TagName,
		IsDevBuild:     isDevBuild,
	}

	// A missing platform asset is not an error; the releases page still works.
	assetName := fmt.Sprintf("inboxzero_%s_%s_%s.tar.gz", latestVersion, runtime.GOOS, runtime.GOARCH)
	if asset := findAsset(release.Assets, assetName); asset != nil {
		info.DownloadURL = asset.BrowserDownloadURL
		info.AssetName = asset.Name
		info.Size = asset.Size
	}

	return info, nil
}

func getCacheDir() string {
	return config.DefaultHome()
}

func fetchLatestRelease() (*Release, error) {
	req, err := http.NewRequest("GET", githubAPIURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "inboxzero-update")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned %s", resp.Status)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, err
	}

	return &release, nil
}

func loadCache() (*cachedCheck, error) {
	cachePath := filepath.Join(getCacheDir(), cacheFileName)
	data, err := os.ReadFile(cachePath)
	if err != nil {
		return nil, err
	}
	var cached cachedCheck
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

// checkCache checks if a valid cached update check exists.
// Returns (info, true) if a cached result should be used (either an update or no update).
// Returns (nil, false) if no valid cache exists and a fresh check is needed.
func checkCache(currentVersion, cleanVersion string, isDevBuild bool) (*Info, bool) {
	cached, err := loadCache()
	if err != nil {
		return nil, false
	}

	cacheWindow := cacheDuration
	if isDevBuild {
		cacheWindow = devCacheDuration
	}

	if time.Since(cached.CheckedAt) >= cacheWindow {
		return nil, false
	}

	latestVersion := strings.TrimPrefix(cached.Version, "v")

	// Dev builds always show update info (no version comparison)
	if isDevBuild {
		return &Info{
			CurrentVersion: currentVersion,
			LatestVersion:  cached.Version,
			IsDevBuild:     true,
		}, true
	}

	// For release builds, check if there's actually an update
	if !isNewer(latestVersion, cleanVersion) {
		return nil, true // No update available, but cache is valid
	}

	return nil, false // Update available but need fresh data for download info
}

func saveCache(version string) {
	cached := cachedCheck{
		CheckedAt: time.Now(),
		Version:   version,
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return
	}
	cachePath := filepath.Join(getCacheDir(), cacheFileName)
	fileutil.SecureMkdirAll(filepath.Dir(cachePath), 0700) //nolint:errcheck
	fileutil.SecureWriteFile(cachePath, data, 0600)        //nolint:errcheck
}

// extractBaseSemver extracts the base semver from a version string.
func extractBaseSemver(v string) string {
	v = strings.TrimPrefix(v, "v")
	if len(v) == 0 || v[0] < '0' || v[0] > '9' {
		return ""
	}
	if !strings.Contains(v, ".") {
		return ""
	}
	if idx := strings.Index(v, "-"); idx > 0 {
		v = v[:idx]
	}
	return v
}

// gitDescribePattern matches git describe format: v0.2.1-2-gabcdef or v0.2.1-2-gabcdef-dirty
var gitDescribePattern = regexp.MustCompile(`-\d+-g[0-9a-f]+(-dirty)?$`)

// isDevBuildVersion returns true if the version is a dev build.
func isDevBuildVersion(v string) bool {
	v = strings.TrimPrefix(v, "v")
	if extractBaseSemver(v) == "" {
		return true
	}
	return gitDescribePattern.MatchString(v)
}

// isNewer returns true if v1 is newer than v2 (semver comparison).
// Prerelease versions (e.g. -rc1) are considered older than the same base version.
// Git-describe versions (e.g. 0.4.0-5-gabcdef) are treated as their base version.
func isNewer(v1, v2 string) bool {
	// Extract base semver to validate both are valid versions
	base1 := extractBaseSemver(v1)
	base2 := extractBaseSemver(v2)
	if base1 == "" || base2 == "" {
		return false
	}

	// Normalize to semver format with "v" prefix
	sv1 := normalizeSemver(v1)
	sv2 := normalizeSemver(v2)

	return semver.Compare(sv1, sv2) > 0
}

// prereleaseNumericPattern matches prerelease identifiers consisting of letters followed
// by digits (e.g., "rc10", "beta2", "alpha1") to normalize them for proper numeric comparison.
// The pattern is anchored to avoid partial matches within identifiers like "rc10a".
var prereleaseNumericPattern = regexp.MustCompile(`^([A-Za-z]+)(\d+)$`)

// normalizeSemver converts a version string to semver format for comparison.
// Git-describe versions are converted to their base version.
// Prerelease tags are normalized to use dotted format for proper numeric comparison
// (e.g., "rc10" becomes "rc.10" so that rc.10 > rc.2 numerically).
func normalizeSemver(v string) string {
	v = strings.TrimPrefix(v, "v")

	// Strip git-describe suffix (e.g., "-5-gabcdef" or "-5-gabcdef-dirty")
	if gitDescribePattern.MatchString(v) {
		v = gitDescribePattern.ReplaceAllString(v, "")
	}

	// Normalize prerelease identifiers to dotted format for numeric comparison.
	// Per semver spec, "rc10" is compared lexicographically (so rc10 < rc2).
	// By converting to "rc.10", the numeric part is compared as an integer.
	// Each dot-separated identifier is processed independently.
	if idx := strings.Index(v, "-"); idx > 0 {
		base := v[:idx]
		prerelease := v[idx+1:]
		prerelease = normalizePrereleaseIdentifiers(prerelease)
		v = base + "-" + prerelease
	}

	return "v" + v
}

// normalizePrereleaseIdentifiers processes each dot-separated prerelease identifier
// and normalizes identifiers like "rc10" to "rc.10" for proper numeric comparison.
// Identifiers with leading zeros in the numeric part are skipped to avoid creating
// invalid semver numeric identifiers.
func normalizePrereleaseIdentifiers(prerelease string) string {
	parts := strings.Split(prerelease, ".")
	var result []string
	for _, part := range parts {
		if matches := prereleaseNumericPattern.FindStringSubmatch(part); matches != nil {
			letters, digits := matches[1], matches[2]
			// Skip normalization if the numeric part has leading zeros,
			// as that would create an invalid semver numeric identifier.
			if len(digits) > 1 && digits[0] == '0' {
				result = append(result, part)
			} else {
				result = append(result, letters, digits)
			}
		} else {
			result = append(result, part)
		}
	}
	return strings.Join(result, ".")
}

// FormatSize formats bytes as a human-readable string.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
