package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/trahn-gridcore/internal/logger"
)

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

var DefaultRetry = RetryConfig{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    10 * time.Second,
}

func retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

// retryAfter reads a Retry-After header given in seconds. HTTP-date values are ignored.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp.StatusCode != http.StatusTooManyRequests {
		return 0, false
	}
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// Do sends the request built by buildReq, retrying transport errors, 5xx and 429
// with doubling delays capped at MaxDelay. A 429 Retry-After hint replaces the
// next delay, still capped. buildReq runs once per attempt so bodies are fresh.
func Do(ctx context.Context, client *http.Client, cfg RetryConfig, buildReq func() (*http.Request, error)) (*http.Response, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRetry.MaxAttempts
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultRetry.MaxDelay
	}

	var lastErr error
	backoff := cfg.BaseDelay

	for attempt := 1; ; attempt++ {
		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		wait := backoff
		resp, err := client.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case !retryable(resp.StatusCode):
			return resp, nil
		default:
			if hint, ok := retryAfter(resp); ok {
				wait = hint
			}
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		}

		if attempt >= cfg.MaxAttempts {
			return nil, fmt.Errorf("all %d attempts failed, last error: %w", cfg.MaxAttempts, lastErr)
		}
		wait = min(wait, cfg.MaxDelay)

		logger.Component("http").WithFields(logrus.Fields{
			"host":    req.URL.Host,
			"attempt": attempt,
			"max":     cfg.MaxAttempts,
			"delay":   wait.String(),
		}).WithError(lastErr).Warn("request failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		backoff = min(backoff*2, cfg.MaxDelay)
	}
}
