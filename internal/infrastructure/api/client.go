// Package api internal/infrastructure/api/client.go
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrRateLimited is returned when an upstream provider reports too
	// many requests.
	ErrRateLimited = errors.New("upstream API rate limit exceeded")
	// ErrUnauthorized is returned on a rejected or missing API key.
	ErrUnauthorized = errors.New("upstream API rejected the API key")
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxRetries            = 3
)

// doRequestWithRetry executes a GET with up to maxRetries attempts and
// exponential backoff between them, and returns the response body on a
// 200. Non-retryable upstream statuses map to the package sentinels.
func doRequestWithRetry(ctx context.Context, client *http.Client, reqURL string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt*attempt) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Add("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				lastErr = fmt.Errorf("failed to read response body: %w", readErr)
				continue
			}
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, ErrRateLimited
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, ErrUnauthorized
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("upstream returned status %d", resp.StatusCode)
			continue
		default:
			return nil, fmt.Errorf("upstream returned status %d: %s", resp.StatusCode, string(body))
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, lastErr)
}
