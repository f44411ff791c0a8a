// Package httpretry wraps outbound HTTP calls with bounded retries. Retries
// use exponential backoff with full jitter and respect context cancellation;
// client errors (4xx other than 429) are never retried.
package httpretry

import (
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// HTTPDoer executes HTTP requests. Both *http.Client and *RetryClient
// satisfy it, so callers can take the interface and tests can inject stubs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient retries transient failures of the wrapped client.
type RetryClient struct {
	client HTTPDoer
	// retries is the number of additional attempts after the first.
	retries     int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// NewRetryClient wraps client with retry behavior. A nil client gets a
// default http.Client with a 30s timeout; maxRetries <= 0 defaults to 3.
func NewRetryClient(client HTTPDoer, maxRetries int) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RetryClient{
		client:      client,
		retries:     maxRetries,
		baseBackoff: time.Second,
		maxBackoff:  30 * time.Second,
	}
}

// Do executes the request, retrying on transient network errors and on
// 429/5xx responses. The final attempt's response is returned as-is so the
// caller can read the status and body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= rc.retries; attempt++ {
		if attempt > 0 {
			if err := rc.waitForRetry(req, attempt); err != nil {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, err
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}

		if !retryableStatus(resp.StatusCode) || attempt == rc.retries {
			return resp, nil
		}

		// Drain so the connection can be reused, then go around again.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: retryable status %d from %s", resp.StatusCode, req.URL.Host)
	}

	return nil, lastErr
}

// waitForRetry sleeps the backoff for this attempt, resetting the request
// body first so a retried POST carries its payload again.
func (rc *RetryClient) waitForRetry(req *http.Request, attempt int) error {
	if req.Context().Err() != nil {
		return req.Context().Err()
	}
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return fmt.Errorf("httpretry: reset request body: %w", err)
		}
		req.Body = body
	}

	delay := rc.backoff(attempt)
	log.Printf("[Retry] Attempt %d/%d for %s %s in %s", attempt, rc.retries, req.Method, req.URL.Host, delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-req.Context().Done():
		return req.Context().Err()
	}
}

// backoff returns the delay before the given attempt: full jitter over an
// exponential curve, floored at 100ms so a zero roll cannot busy-loop.
func (rc *RetryClient) backoff(attempt int) time.Duration {
	exp := float64(rc.baseBackoff) * math.Pow(2, float64(attempt-1))
	if exp > float64(rc.maxBackoff) {
		exp = float64(rc.maxBackoff)
	}
	d := time.Duration(rand.Float64() * exp)
	if d < 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	return d
}

// retryableStatus reports whether the response signals a transient condition
// worth retrying: 429 or a 5xx the upstream may recover from.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
