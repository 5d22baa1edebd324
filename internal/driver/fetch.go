// Package driver downloads the PostgreSQL JDBC driver from a Maven
// repository into the build cache.
package driver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/agentic-research/wildfly-postgresql/internal/writeback"
)

// DefaultRepository is Maven Central.
const DefaultRepository = "https://repo1.maven.org/maven2"

// ErrChecksum means the downloaded jar does not match the published digest.
var ErrChecksum = errors.New("driver checksum mismatch")

// Fetcher downloads and caches driver jars.
type Fetcher struct {
	Repository string
	CacheDir   string
	Client     *http.Client
	Attempts   int
	Wait       time.Duration
	Log        *zap.Logger
}

// NewFetcher returns a Fetcher with three attempts per file.
func NewFetcher(repository, cacheDir string, log *zap.Logger) *Fetcher {
	if repository == "" {
		repository = DefaultRepository
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{
		Repository: strings.TrimRight(repository, "/"),
		CacheDir:   cacheDir,
		Client:     &http.Client{Timeout: 2 * time.Minute},
		Attempts:   3,
		Wait:       time.Second,
		Log:        log,
	}
}

// FileName is the jar name for version.
func FileName(version string) string {
	return "postgresql-" + version + ".jar"
}

// URL is the repository location of the jar for version.
func (f *Fetcher) URL(version string) string {
	return fmt.Sprintf("%s/org/postgresql/postgresql/%s/%s", f.Repository, version, FileName(version))
}

// Fetch returns the path of a verified jar for version in the cache dir,
// downloading it unless a cached copy still matches its digest.
func (f *Fetcher) Fetch(ctx context.Context, version string) (string, error) {
	if version == "" {
		return "", errors.New("driver version is empty")
	}
	if err := os.MkdirAll(f.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	jar := filepath.Join(f.CacheDir, FileName(version))
	sumFile := jar + ".sha1"

	if want, err := os.ReadFile(sumFile); err == nil {
		if verify(jar, string(want)) == nil {
			f.Log.Info("using cached driver", zap.String("version", version))
			return jar, nil
		}
		f.Log.Debug("cached driver failed verification, downloading again", zap.String("jar", jar))
	}

	url := f.URL(version)
	f.Log.Info("downloading driver", zap.String("url", url))

	sum, err := f.get(ctx, url+".sha1")
	if err != nil {
		return "", fmt.Errorf("download checksum: %w", err)
	}
	want := parseDigest(string(sum))

	op := func() error {
		body, err := f.get(ctx, url)
		if err != nil {
			// get has already retried.
			return backoff.Permanent(err)
		}
		if got := digest(body); got != want {
			return fmt.Errorf("%w: %s has sha1 %s, want %s", ErrChecksum, FileName(version), got, want)
		}
		return writeback.WriteFile(jar, body, 0o644)
	}
	if err := backoff.Retry(op, f.policy(ctx)); err != nil {
		return "", fmt.Errorf("download driver %s: %w", version, err)
	}
	if err := writeback.WriteFile(sumFile, []byte(want), 0o644); err != nil {
		return "", err
	}
	return jar, nil
}

// get fetches url with retries. 4xx responses are not retried.
func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := f.Client.Do(req)
		if err != nil {
			f.Log.Debug("download attempt failed", zap.String("url", url), zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("GET %s: %s", url, resp.Status)
			if resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}
	if err := backoff.Retry(op, f.policy(ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.Wait
	attempts := f.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// parseDigest takes the first field of a .sha1 file; some repositories append
// the file name.
func parseDigest(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

func digest(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

func verify(path, want string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if got := digest(data); got != parseDigest(want) {
		return fmt.Errorf("%w: %s", ErrChecksum, path)
	}
	return nil
}
