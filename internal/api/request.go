package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

var (
	// ErrUnauthorized is returned when the remote rejects the account handle,
	// usually because the key was revoked or the session expired.
	ErrUnauthorized = errors.New("account handle not authorized")

	// ErrNotFound is returned when a single-offer lookup finds nothing.
	ErrNotFound = errors.New("trade offer not found")
)

// eresultHeader carries the Web API's own result code next to the HTTP status.
const eresultHeader = "X-Eresult"

// APIError is a non-2xx answer from the Web API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte

	// EResult is the X-Eresult header value, 0 when absent.
	EResult int
	// RetryAfter is the server's requested delay on 429/503, 0 when absent.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.EResult != 0 {
		return fmt.Sprintf("web api error %d: %s (eresult %d)", e.StatusCode, e.Message, e.EResult)
	}
	return fmt.Sprintf("web api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the same call may succeed later. Rate limits
// and server-side failures qualify; key and session rejections do not.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Unwrap maps authorization failures onto ErrUnauthorized.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	e := &APIError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
		Body:       body,
	}
	if v, err := strconv.Atoi(resp.Header.Get(eresultHeader)); err == nil {
		e.EResult = v
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		e.RetryAfter = time.Duration(secs) * time.Second
	}
	return e
}

// call issues one signed GET against a Web API endpoint. Every trade offer
// endpoint the client uses is read-only, so there is no method parameter.
func (c *Client) call(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.creds != nil {
		c.creds.Apply(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if resp.StatusCode >= 400 {
		return nil, newAPIError(resp, body)
	}
	return body, nil
}

// callWithRetry retries rate limits and server errors with jittered
// exponential backoff. A Retry-After longer than the backoff wins.
func (c *Client) callWithRetry(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	attempts := 0
	for attempts <= c.maxRetries {
		if attempts > 0 {
			// backoff * [0.5, 1.5)
			wait := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			var apiErr *APIError
			if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > wait {
				wait = apiErr.RetryAfter
			}
			c.logger.Debug("retrying web api call",
				"endpoint", endpoint,
				"attempt", attempts,
				"max_retries", c.maxRetries,
				"wait", wait,
				"last_error", lastErr,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			backoff *= 2
		}
		attempts++

		body, err := c.call(ctx, endpoint, query)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, err
		}
	}

	err := fmt.Errorf("%s failed after %d attempts: %w", endpoint, attempts, lastErr)
	if c.account != "" {
		err = fmt.Errorf("account %s: %w", c.account, err)
	}
	return nil, err
}

// get calls an endpoint with retries and decodes its JSON body into result.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values, result any) error {
	body, err := c.callWithRetry(ctx, endpoint, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
