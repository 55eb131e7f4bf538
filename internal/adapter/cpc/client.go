// Package cpc downloads CMORPH files from the NOAA Climate Prediction Center archive.
package cpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchcryptid/cmorph-ingest/internal/domain"
	"github.com/couchcryptid/cmorph-ingest/internal/observability"
)

// Client fetches daily CMORPH files and the data descriptor over HTTPS.
// It implements pipeline.Fetcher.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries uint64
	newBackOff func() backoff.BackOff
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an archive client. Each request is bounded by timeout and
// failed requests are retried up to maxRetries times with exponential backoff.
func NewClient(baseURL string, timeout time.Duration, maxRetries int, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:    baseURL,
		maxRetries: uint64(maxRetries),
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		metrics:    metrics,
		logger:     logger,
	}
}

// DailyURL returns the archive location of one day of data.
func (c *Client) DailyURL(obs domain.ObsType, day time.Time) (string, error) {
	name := domain.DailyFileName(obs, day) + obs.ArchiveExt(day)
	return c.resolve("CMORPH_V1.0", obs.ArchiveDir(), "0.25deg-DLY_00Z",
		day.Format("2006"), day.Format("200601"), name)
}

// DescriptorURL returns the archive location of the GrADS control file.
func (c *Client) DescriptorURL() (string, error) {
	return c.resolve("CMORPH_V1.0", "CTL", domain.DescriptorFileName)
}

// FetchDaily downloads one day of data into dir unless a copy is already
// present, and returns the local path. A day missing from the archive yields
// an error wrapping fs.ErrNotExist.
func (c *Client) FetchDaily(ctx context.Context, obs domain.ObsType, day time.Time, dir string) (string, error) {
	u, err := c.DailyURL(obs, day)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(dir, domain.DailyFileName(obs, day)+obs.ArchiveExt(day))
	if _, err := os.Stat(dest); err == nil {
		c.logger.Debug("file already downloaded", "file", dest)
		return dest, nil
	}
	if err := c.download(ctx, u, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// FetchDescriptor downloads the data descriptor to dest.
func (c *Client) FetchDescriptor(ctx context.Context, dest string) error {
	u, err := c.DescriptorURL()
	if err != nil {
		return err
	}
	return c.download(ctx, u, dest)
}

func (c *Client) resolve(elem ...string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid archive URL %q: %w", c.baseURL, err)
	}
	base.Path = path.Join(append([]string{base.Path}, elem...)...)
	return base.String(), nil
}

// download fetches u into dest through a temporary file so an interrupted
// transfer never leaves a partial file under the final name.
func (c *Client) download(ctx context.Context, u, dest string) error {
	start := time.Now()
	defer func() { c.metrics.DownloadDuration.Observe(time.Since(start).Seconds()) }()

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	err := backoff.RetryNotify(
		func() error { return c.fetchOnce(ctx, u, dest) },
		b,
		func(err error, d time.Duration) {
			c.metrics.DownloadRetries.Inc()
			c.logger.Warn("download failed, retrying", "url", u, "error", err, "retry_in", d)
		},
	)

	switch {
	case err == nil:
		c.metrics.Downloads.WithLabelValues("success").Inc()
		c.logger.Info("downloaded", "url", u, "file", dest)
		return nil
	case errors.Is(err, fs.ErrNotExist):
		c.metrics.Downloads.WithLabelValues("not_found").Inc()
		return fmt.Errorf("%w: %s: %w", domain.ErrIO, u, err)
	case errors.Is(err, domain.ErrIO):
		c.metrics.Downloads.WithLabelValues("error").Inc()
		return err
	default:
		c.metrics.Downloads.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: download %s: %v", domain.ErrNetwork, u, err)
	}
}

func (c *Client) fetchOnce(ctx context.Context, u, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(fmt.Errorf("not in archive: %w", fs.ErrNotExist))
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("archive error: status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return backoff.Permanent(fmt.Errorf("archive error: status %d", resp.StatusCode))
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%w: create temp file: %v", domain.ErrIO, err))
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("read body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return backoff.Permanent(fmt.Errorf("%w: write %s: %v", domain.ErrIO, tmp.Name(), err))
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return backoff.Permanent(fmt.Errorf("%w: rename to %s: %v", domain.ErrIO, dest, err))
	}
	return nil
}
