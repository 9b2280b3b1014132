package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	requestTimeout = 5 * time.Second
	maxRetries     = 3
	userAgent      = "flowgraph-alert/1"
)

var (
	httpClient = &http.Client{Timeout: requestTimeout}
	// retryDelay is multiplied by the attempt number between retries.
	retryDelay = time.Second
)

// Send posts an alert event to a webhook endpoint, retrying on 5xx and
// transport errors. 4xx responses are not retried.
func Send(cfg AlertConfig, event AlertEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), maxRetries*(requestTimeout+maxRetries*retryDelay))
	defer cancel()
	return SendContext(ctx, cfg, event)
}

// SendContext is Send bounded by ctx.
func SendContext(ctx context.Context, cfg AlertConfig, event AlertEvent) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook aborted after %d attempts: %w", attempt, ctx.Err())
			case <-time.After(time.Duration(attempt) * retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", userAgent)
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return fmt.Errorf("webhook rejected: HTTP %d", resp.StatusCode)
		}
		lastErr = fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", maxRetries, lastErr)
}
