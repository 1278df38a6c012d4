// Package adblock keeps an unpacked copy of uBlock Origin's chromium build in
// the data directory so the browser can side-load it.
package adblock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/alvarorichard/9anime-dl/internal/util"
)

const (
	DefaultReleaseURL = "https://api.github.com/repos/gorhill/uBlock/releases/latest"

	versionFile  = "last_ublock_version"
	extensionDir = "uBlock"
	archiveFile  = "uBlock.zip"
	lockFile     = "uBlock.lock"
	assetMarker  = "chromium"
)

var ErrNoAsset = errors.New("no chromium asset in latest uBlock Origin release")

// Release is the subset of the GitHub release payload used here.
type Release struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Provisioner installs and updates the extension under DataDir.
type Provisioner struct {
	DataDir    string
	ReleaseURL string
	Client     *http.Client
	// Retries for the release lookup.
	Retries int
	Backoff time.Duration
}

func New(dataDir, releaseURL string) *Provisioner {
	if releaseURL == "" {
		releaseURL = DefaultReleaseURL
	}
	return &Provisioner{
		DataDir:    dataDir,
		ReleaseURL: releaseURL,
		Client:     util.GetSharedClient(),
		Retries:    3,
		Backoff:    time.Second,
	}
}

// EnsureInstalled makes sure the newest extension is unpacked and returns the
// directory to pass to --load-extension. A stale install is kept, with a
// warning, when the release cannot be fetched or carries no chromium build;
// with nothing installed those cases are errors.
func (p *Provisioner) EnsureInstalled(ctx context.Context) (string, error) {
	if err := os.MkdirAll(p.DataDir, 0700); err != nil {
		return "", errors.Wrap(err, "failed to create data directory")
	}

	lock := flock.New(filepath.Join(p.DataDir, lockFile))
	locked, err := lock.TryLockContext(ctx, 250*time.Millisecond)
	if err != nil {
		return "", errors.Wrap(err, "failed to lock extension directory")
	}
	if !locked {
		return "", errors.New("failed to lock extension directory")
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			util.Debug("Failed to unlock extension directory:", unlockErr)
		}
	}()

	installed := p.InstalledVersion()

	release, err := p.LatestRelease(ctx)
	if err != nil {
		if installed == "" {
			return "", errors.Wrap(err, "failed to install uBlock Origin")
		}
		util.Warnf("Could not check for uBlock Origin updates: %v", err)
		return p.ExtensionDir(), nil
	}

	if release.TagName == installed {
		util.Info("uBlock Origin up-to-date", "version", installed)
		return p.ExtensionDir(), nil
	}
	if installed == "" {
		util.Info("uBlock Origin not installed, installing", "version", release.TagName)
	} else {
		util.Info("uBlock Origin out-of-date, updating", "from", installed, "to", release.TagName)
	}

	asset, ok := chromiumAsset(release)
	if !ok {
		if installed == "" {
			return "", ErrNoAsset
		}
		util.Warn("Failed to find newer uBlock Origin asset, keeping", "version", installed)
		return p.ExtensionDir(), nil
	}

	if err := p.install(ctx, asset, release.TagName); err != nil {
		return "", err
	}
	return p.ExtensionDir(), nil
}

// InstalledVersion returns the recorded release tag, or "" when nothing is
// installed.
func (p *Provisioner) InstalledVersion() string {
	data, err := os.ReadFile(filepath.Join(p.DataDir, versionFile))
	if err != nil {
		return ""
	}
	if _, err := os.Stat(filepath.Join(p.DataDir, extensionDir)); err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// ExtensionDir returns the unpacked extension root. Release archives wrap
// everything in one top-level folder; that folder is returned when present.
func (p *Provisioner) ExtensionDir() string {
	root := filepath.Join(p.DataDir, extensionDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		return root
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			return root
		}
		dirs = append(dirs, entry.Name())
	}
	if len(dirs) == 1 {
		return filepath.Join(root, dirs[0])
	}
	return root
}

// LatestRelease fetches the release metadata, retrying transient failures.
func (p *Provisioner) LatestRelease(ctx context.Context) (*Release, error) {
	policy := retrypolicy.NewBuilder[*Release]().
		HandleIf(func(_ *Release, err error) bool {
			return err != nil && !errors.Is(err, errPermanent)
		}).
		WithMaxRetries(p.Retries).
		WithBackoff(p.Backoff, 4*p.Backoff).
		ReturnLastFailure().
		Build()

	return failsafe.With[*Release](policy).
		WithContext(ctx).
		Get(func() (*Release, error) {
			return p.fetchRelease(ctx)
		})
}

var errPermanent = errors.New("permanent failure")

func (p *Provisioner) fetchRelease(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ReleaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errPermanent, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch latest release")
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			util.Debug("Failed to close response body:", closeErr)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.Errorf("GitHub API returned status %d", resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: GitHub API returned status %d", errPermanent, resp.StatusCode)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("%w: failed to decode release data: %w", errPermanent, err)
	}
	if release.TagName == "" {
		return nil, fmt.Errorf("%w: release has no tag", errPermanent)
	}
	return &release, nil
}

func chromiumAsset(release *Release) (Asset, bool) {
	for _, asset := range release.Assets {
		if strings.Contains(asset.Name, assetMarker) {
			return asset, true
		}
	}
	return Asset{}, false
}

// install downloads asset, replaces the unpacked extension and records tag.
func (p *Provisioner) install(ctx context.Context, asset Asset, tag string) error {
	archive := filepath.Join(p.DataDir, archiveFile)
	if err := p.downloadAsset(ctx, asset.BrowserDownloadURL, archive); err != nil {
		return errors.Wrapf(err, "failed to download %s", asset.Name)
	}
	defer func() {
		if removeErr := os.Remove(archive); removeErr != nil && !os.IsNotExist(removeErr) {
			util.Debug("Failed to remove archive:", removeErr)
		}
	}()

	target := filepath.Join(p.DataDir, extensionDir)
	if err := os.RemoveAll(target); err != nil {
		return errors.Wrap(err, "failed to remove old extension")
	}
	if err := os.MkdirAll(target, 0700); err != nil {
		return errors.Wrap(err, "failed to create extension directory")
	}
	if err := unzip(archive, target); err != nil {
		return errors.Wrap(err, "failed to unpack extension")
	}

	if err := os.WriteFile(filepath.Join(p.DataDir, versionFile), []byte(tag), 0600); err != nil {
		return errors.Wrap(err, "failed to record extension version")
	}
	util.Info("uBlock Origin installed", "version", tag)
	return nil
}

func (p *Provisioner) downloadAsset(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			util.Debug("Failed to close response body:", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("download failed with status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return err
	}
	return out.Close()
}
