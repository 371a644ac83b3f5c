// Package uploader drains the spool's pending directory and delivers
// each payload to the cloud ingest endpoint, retrying failed attempts on
// a fixed ladder rather than an open-ended exponential backoff: the
// number of attempts and their spacing are bounded and predictable.
package uploader

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/log"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/metrics"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/spool"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/types"
)

// window is one step of the retry ladder: the attempt sleeps a random
// duration in [Min, Max) before trying.
type window struct {
	Min time.Duration
	Max time.Duration
}

// ladder is the fixed 5-attempt retry schedule: an immediate first try,
// then four retries with widening randomized windows.
var ladder = []window{
	{0, 0},
	{20 * time.Second, 40 * time.Second},
	{90 * time.Second, 150 * time.Second},
	{480 * time.Second, 720 * time.Second},
	{3000 * time.Second, 4200 * time.Second},
}

// sleep waits out one ladder delay. It is swapped out in tests so the
// real 5-rung schedule can be exercised and its windows asserted without
// a test actually blocking for hours.
var sleep = func(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Config configures the uploader's HTTP client and the ingest endpoint.
type Config struct {
	Endpoint       string
	BearerToken    string
	ClientCertPath string
	ClientKeyPath  string
	ProxyURL       string
}

// Uploader drains the spool and posts payloads to Config.Endpoint+"ingest".
type Uploader struct {
	cfg    Config
	client *http.Client
	spool  *spool.Spool
}

// New builds an Uploader. A configured client certificate enables mTLS;
// otherwise the bearer token (if set) is sent as an Authorization header.
func New(cfg Config, s *spool.Spool) (*Uploader, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
	}

	if cfg.ClientCertPath != "" && cfg.ClientKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
		if err != nil {
			return nil, fmt.Errorf("uploader: load client certificate: %w", err)
		}
		transport.TLSClientConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}

	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("uploader: parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &Uploader{
		cfg: cfg,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		spool: s,
	}, nil
}

// Run polls the spool every 5 seconds and drains whatever is pending.
// It returns when ctx is cancelled.
func (u *Uploader) Run(ctx context.Context) error {
	logger := log.FromContext(ctx)

	if err := u.spool.Recover(ctx); err != nil {
		logger.Error().Err(err).Msg("spool recovery failed")
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			u.drain(ctx)
		}
	}
}

func (u *Uploader) drain(ctx context.Context) {
	logger := log.FromContext(ctx)

	u.reportSpoolDepth()

	pending, err := u.spool.Pending()
	if err != nil {
		logger.Error().Err(err).Msg("failed to list pending payloads")
		return
	}

	for _, path := range pending {
		if err := u.uploadWithRetry(ctx, path); err != nil {
			logger.Error().Err(err).Str("path", path).Msg("upload failed after exhausting retry ladder")
		}
	}

	u.reportSpoolDepth()
}

// reportSpoolDepth refreshes the gauge for every spool directory so a
// scrape between drain cycles still reflects reality.
func (u *Uploader) reportSpoolDepth() {
	for dir, count := range u.spool.Depths() {
		metrics.SpoolDepth.WithLabelValues(dir).Set(float64(count))
	}
}

// uploadWithRetry moves path into the uploading directory and walks the
// retry ladder until an attempt succeeds or the ladder is exhausted, at
// which point the payload is moved to failed.
func (u *Uploader) uploadWithRetry(ctx context.Context, path string) error {
	logger := log.FromContext(ctx)

	uploadingPath, err := u.spool.MarkUploading(path)
	if err != nil {
		return fmt.Errorf("uploader: mark uploading: %w", err)
	}

	data, err := os.ReadFile(uploadingPath)
	if err != nil {
		_, _ = u.spool.MarkFailed(uploadingPath)
		return fmt.Errorf("uploader: read payload: %w", err)
	}

	var payload types.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		_, _ = u.spool.MarkFailed(uploadingPath)
		return fmt.Errorf("uploader: decode payload: %w", err)
	}

	var lastErr error
	for attempt, w := range ladder {
		if attempt > 0 {
			delay := w.Min
			if w.Max > w.Min {
				delay += time.Duration(rand.Int63n(int64(w.Max - w.Min)))
			}
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = u.attempt(ctx, data, payload.Run.RunID.String())
		if lastErr == nil {
			if err := u.spool.MarkCompleted(uploadingPath); err != nil {
				return fmt.Errorf("uploader: mark completed: %w", err)
			}
			metrics.UploadDuration.Observe(time.Since(payload.Timestamp).Seconds())
			logger.Info().Str("run_id", payload.Run.RunID.String()).Int("attempt", attempt+1).Msg("upload succeeded")
			return nil
		}

		logger.Warn().Err(lastErr).Str("run_id", payload.Run.RunID.String()).Int("attempt", attempt+1).Msg("upload attempt failed")
	}

	if _, err := u.spool.MarkFailed(uploadingPath); err != nil {
		return fmt.Errorf("uploader: mark failed: %w", err)
	}
	metrics.UploadLadderExhaustedTotal.Inc()
	metrics.UploadDuration.Observe(time.Since(payload.Timestamp).Seconds())
	return fmt.Errorf("uploader: exhausted retry ladder: %w", lastErr)
}

// attempt performs a single POST. 2xx is success. Everything else
// including 401/403 (an auth problem the operator must fix, but still
// consumed as one rung of the ladder rather than aborting the schedule
// early) is a failed attempt.
func (u *Uploader) attempt(ctx context.Context, body []byte, runID string) error {
	url := u.cfg.Endpoint + "ingest"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if u.cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+u.cfg.BearerToken)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		metrics.UploadAttemptsTotal.WithLabelValues("transport_error").Inc()
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		metrics.UploadAttemptsTotal.WithLabelValues("success").Inc()
		return nil
	}

	metrics.UploadAttemptsTotal.WithLabelValues("http_error").Inc()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("run %s: server returned %d: %s", runID, resp.StatusCode, string(respBody))
}
