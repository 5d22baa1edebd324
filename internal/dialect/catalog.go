package dialect

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// DefaultCatalogURL is the Hibernate javadoc root the catalog lookup hits.
const DefaultCatalogURL = "https://docs.jboss.org/hibernate/orm/current/javadocs/"

// HTTPCatalog looks dialect classes up in the published javadoc. A 200 means
// the class exists, any other final status means it does not.
type HTTPCatalog struct {
	BaseURL  string
	Client   *http.Client
	Attempts int
	// Wait is the initial backoff between attempts.
	Wait time.Duration
	Log  *zap.Logger
}

// NewHTTPCatalog returns a catalog with three attempts against baseURL.
func NewHTTPCatalog(baseURL string, log *zap.Logger) *HTTPCatalog {
	if baseURL == "" {
		baseURL = DefaultCatalogURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPCatalog{
		BaseURL:  baseURL,
		Client:   &http.Client{Timeout: 30 * time.Second},
		Attempts: 3,
		Wait:     time.Second,
		Log:      log,
	}
}

// ClassURL maps a fully qualified class name to its javadoc page.
func (c *HTTPCatalog) ClassURL(class string) string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/" + strings.ReplaceAll(class, ".", "/") + ".html"
}

// Exists implements Catalog. Transport errors and 5xx responses are retried;
// the error is returned only once every attempt failed that way.
func (c *HTTPCatalog) Exists(ctx context.Context, class string) (bool, error) {
	url := c.ClassURL(class)
	var status int

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.Client.Do(req)
		if err != nil {
			c.Log.Debug("catalog lookup failed", zap.String("url", url), zap.Error(err))
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		status = resp.StatusCode
		if status >= http.StatusInternalServerError {
			c.Log.Debug("catalog lookup retryable status", zap.String("url", url), zap.Int("status", status))
			return fmt.Errorf("GET %s: %s", url, resp.Status)
		}
		return nil
	}

	if err := backoff.Retry(op, c.policy(ctx)); err != nil {
		return false, err
	}
	c.Log.Debug("catalog lookup", zap.String("url", url), zap.Int("status", status))
	return status == http.StatusOK, nil
}

func (c *HTTPCatalog) policy(ctx context.Context) backoff.BackOff {
	attempts := c.Attempts
	if attempts < 1 {
		attempts = 1
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.Wait
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}
