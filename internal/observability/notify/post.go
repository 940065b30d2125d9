package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PostRequest describes one JSON webhook delivery.
type PostRequest struct {
	Client     *http.Client
	URL        string
	Body       []byte
	RetryLimit int
	// Label names the destination in error messages ("slack webhook", "pagerduty api").
	Label string
}

// PostJSON delivers the body, retrying failures with a linear backoff.
func PostJSON(ctx context.Context, req PostRequest) error {
	attempts := max(req.RetryLimit, 0) + 1
	var lastErr error
	for attempt := range attempts {
		err := post(ctx, req)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < attempts-1 {
			delay := time.Duration(attempt+1) * 200 * time.Millisecond
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return lastErr
}

func post(ctx context.Context, in PostRequest) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, in.URL, bytes.NewReader(in.Body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", in.Label, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := in.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", in.Label, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(resp.Body)
		closeErr := resp.Body.Close()
		if readErr != nil {
			return errors.Join(fmt.Errorf("read %s error response: %w", in.Label, readErr), closeErr)
		}
		return fmt.Errorf("%s %s: %s", in.Label, resp.Status, strings.TrimSpace(string(respBody)))
	}

	_, drainErr := io.Copy(io.Discard, resp.Body)
	closeErr := resp.Body.Close()
	if drainErr != nil {
		return errors.Join(fmt.Errorf("drain %s response body: %w", in.Label, drainErr), closeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close response body: %w", closeErr)
	}
	return nil
}

// Fallback returns value unless it is blank.
func Fallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
