package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/offerwatch/internal/auth"
	"github.com/rickgao/offerwatch/internal/model"
	"github.com/rickgao/offerwatch/internal/poller"
)

const testAPIKey = "0123456789ABCDEF0123456789ABCDEF"

func testCreds(t *testing.T) *auth.Credentials {
	t.Helper()
	creds, err := auth.NewCredentials(testAPIKey, "", "")
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}
	return creds
}

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("", nil)

		if c.baseURL != DefaultBaseURL {
			t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
		}
		if c.language != DefaultLanguage {
			t.Errorf("language = %q, want %q", c.language, DefaultLanguage)
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.retryBackoff != time.Second {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, time.Second)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with timeout option", func(t *testing.T) {
		c := NewClient("https://api.example.com", nil, WithTimeout(5*time.Second))
		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 5*time.Second)
		}
	})

	t.Run("with retries option", func(t *testing.T) {
		c := NewClient("https://api.example.com", nil, WithRetries(5, 2*time.Second))
		if c.maxRetries != 5 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 5)
		}
		if c.retryBackoff != 2*time.Second {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, 2*time.Second)
		}
	})

	t.Run("zero backoff keeps default", func(t *testing.T) {
		c := NewClient("https://api.example.com", nil, WithRetries(1, 0))
		if c.retryBackoff != time.Second {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, time.Second)
		}
	})

	t.Run("with logger option", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		c := NewClient("https://api.example.com", nil, WithLogger(logger))
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("https://api.example.com", nil, WithHTTPClient(customClient))
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
	})

	t.Run("with language option", func(t *testing.T) {
		c := NewClient("https://api.example.com", nil, WithLanguage("german"))
		if c.language != "german" {
			t.Errorf("language = %q, want german", c.language)
		}
	})

	t.Run("credentials accessor", func(t *testing.T) {
		creds := testCreds(t)
		c := NewClient("https://api.example.com", creds)
		if c.Credentials() != creds {
			t.Error("Credentials() should return the handle passed to NewClient")
		}
	})
}

// TestAPIError tests the APIError type.
func TestAPIError(t *testing.T) {
	t.Run("Error method", func(t *testing.T) {
		err := &APIError{
			StatusCode: 404,
			Message:    "Not Found",
			Body:       []byte(`<html>Not Found</html>`),
		}
		expected := "web api error 404: Not Found"
		if err.Error() != expected {
			t.Errorf("Error() = %q, want %q", err.Error(), expected)
		}
	})

	t.Run("IsRetryable for 5xx errors", func(t *testing.T) {
		tests := []struct {
			code     int
			expected bool
		}{
			{500, true},
			{502, true},
			{503, true},
			{504, true},
			{429, true},
			{400, false},
			{401, false},
			{403, false},
			{404, false},
			{200, false},
			{499, false},
		}

		for _, tt := range tests {
			err := &APIError{StatusCode: tt.code}
			if got := err.IsRetryable(); got != tt.expected {
				t.Errorf("IsRetryable() for status %d = %v, want %v", tt.code, got, tt.expected)
			}
		}
	})

	t.Run("authorization failures unwrap to ErrUnauthorized", func(t *testing.T) {
		for _, code := range []int{401, 403} {
			if err := error(&APIError{StatusCode: code}); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("status %d should match ErrUnauthorized", code)
			}
		}
		if errors.Is(&APIError{StatusCode: 500}, ErrUnauthorized) {
			t.Error("status 500 should not match ErrUnauthorized")
		}
	})
}

// TestCall tests a single Web API call.
func TestCall(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("Accept header = %q, want %q", r.Header.Get("Accept"), "application/json")
			}
			if r.URL.Query().Get("key") != testAPIKey {
				t.Errorf("key = %q, want %q", r.URL.Query().Get("key"), testAPIKey)
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status": "ok"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, testCreds(t))
		body, err := c.call(context.Background(), "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"status": "ok"}` {
			t.Errorf("body = %q, want %q", string(body), `{"status": "ok"}`)
		}
	})

	t.Run("session cookies are sent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid, err := r.Cookie(auth.SessionIDCookie)
			if err != nil || sid.Value != "sess" {
				t.Errorf("sessionid cookie = %v, %v", sid, err)
			}
			if _, err := r.Cookie(auth.LoginSecureCookie); err != nil {
				t.Errorf("missing %s cookie", auth.LoginSecureCookie)
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		creds, err := auth.NewCredentials(testAPIKey, "sess", "76561198000000000%7C%7Ctoken")
		if err != nil {
			t.Fatalf("NewCredentials: %v", err)
		}
		c := NewClient(server.URL, creds)
		if _, err := c.call(context.Background(), "/test", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("request without credentials", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Has("key") {
				t.Errorf("key should be absent, got %q", r.URL.Query().Get("key"))
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, nil)
		_, err := c.call(context.Background(), "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("request with query parameters", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("tradeofferid") != "42" {
				t.Errorf("tradeofferid = %q, want %q", r.URL.Query().Get("tradeofferid"), "42")
			}
			if r.URL.Query().Get("key") != testAPIKey {
				t.Errorf("key = %q, want %q", r.URL.Query().Get("key"), testAPIKey)
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, testCreds(t))
		query := make(map[string][]string)
		query["tradeofferid"] = []string{"42"}
		_, err := c.call(context.Background(), "/test", query)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("4xx error returns APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`Access is denied. Retrying will not help.`))
		}))
		defer server.Close()

		c := NewClient(server.URL, testCreds(t))
		_, err := c.call(context.Background(), "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}

		apiErr, ok := err.(*APIError)
		if !ok {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != 403 {
			t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, 403)
		}
		if !strings.Contains(string(apiErr.Body), "Access is denied") {
			t.Errorf("Body should contain 'Access is denied', got %q", string(apiErr.Body))
		}
		if !errors.Is(err, ErrUnauthorized) {
			t.Error("403 should match ErrUnauthorized")
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := NewClient(server.URL, testCreds(t))
		ctx, cancel := context.WithCancel(context.Background())
		cancel() // Cancel immediately

		_, err := c.call(ctx, "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "context canceled") {
			t.Errorf("error should contain 'context canceled', got %v", err)
		}
	})
}

// TestCallWithRetry tests the retry logic.
func TestCallWithRetry(t *testing.T) {
	t.Run("retries on 5xx and succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&attempts, 1)
			if n < 3 {
				w.WriteHeader(http.StatusBadGateway)
				w.Write([]byte(`error`))
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, testCreds(t), WithRetries(3, 10*time.Millisecond))
		body, err := c.callWithRetry(context.Background(), "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"ok": true}` {
			t.Errorf("body = %q, want %q", string(body), `{"ok": true}`)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("retries on 429 and succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&attempts, 1)
			if n == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, testCreds(t), WithRetries(3, 10*time.Millisecond))
		if _, err := c.callWithRetry(context.Background(), "/test", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 2 {
			t.Errorf("attempts = %d, want 2", attempts)
		}
	})

	t.Run("does not retry on 403", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		c := NewClient(server.URL, testCreds(t), WithRetries(3, 10*time.Millisecond))
		_, err := c.callWithRetry(context.Background(), "/test", nil)
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("error = %v, want ErrUnauthorized", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c := NewClient(server.URL, testCreds(t), WithRetries(2, 10*time.Millisecond))
		_, err := c.callWithRetry(context.Background(), "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "failed after 3 attempts") {
			t.Errorf("error should report the attempt count, got %v", err)
		}
		// 1 initial + 2 retries = 3 attempts
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("retries name the account", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
		c := NewClient(server.URL, testCreds(t),
			WithAccount("bot1"),
			WithLogger(logger),
			WithRetries(1, 10*time.Millisecond),
		)
		_, err := c.callWithRetry(context.Background(), pathGetTradeOffers, nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.HasPrefix(err.Error(), "account bot1: "+pathGetTradeOffers) {
			t.Errorf("error should lead with the account and endpoint, got %v", err)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
			t.Errorf("error should wrap the last APIError, got %v", err)
		}
		out := logs.String()
		if !strings.Contains(out, "retrying web api call") || !strings.Contains(out, "account=bot1") {
			t.Errorf("retry log should carry account=bot1, got %q", out)
		}
	})

	t.Run("Retry-After and eresult are kept", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "2")
			w.Header().Set("X-Eresult", "84")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		c := NewClient(server.URL, testCreds(t), WithRetries(0, 10*time.Millisecond))
		_, err := c.callWithRetry(context.Background(), "/test", nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %v", err)
		}
		if apiErr.RetryAfter != 2*time.Second {
			t.Errorf("RetryAfter = %v, want 2s", apiErr.RetryAfter)
		}
		if apiErr.EResult != 84 {
			t.Errorf("EResult = %d, want 84", apiErr.EResult)
		}
		if !strings.Contains(err.Error(), "(eresult 84)") {
			t.Errorf("error should mention the eresult, got %v", err)
		}
	})

	t.Run("context cancellation during retry", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		c := NewClient(server.URL, testCreds(t), WithRetries(5, 50*time.Millisecond))
		ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
		defer cancel()

		_, err := c.callWithRetry(ctx, "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "context") {
			t.Errorf("error should be context-related, got %v", err)
		}
	})
}

// offersServer serves GetTradeOffers pages keyed by cursor.
func offersServer(t *testing.T, pages map[string]OffersPayload, seen chan<- map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathGetTradeOffers {
			t.Errorf("path = %s, want %s", r.URL.Path, pathGetTradeOffers)
		}
		q := r.URL.Query()
		if seen != nil {
			params := make(map[string]string, len(q))
			for k := range q {
				params[k] = q.Get(k)
			}
			seen <- params
		}
		json.NewEncoder(w).Encode(OffersResponse{Response: pages[q.Get("cursor")]})
	}))
	t.Cleanup(server.Close)
	return server
}

// TestGetTradeOffers tests the GetTradeOffers method.
func TestGetTradeOffers(t *testing.T) {
	t.Run("query parameters", func(t *testing.T) {
		seen := make(chan map[string]string, 1)
		server := offersServer(t, map[string]OffersPayload{"": {}}, seen)

		c := NewClient(server.URL, testCreds(t), WithLanguage("german"))
		_, err := c.GetTradeOffers(context.Background(), GetTradeOffersOptions{
			Sent:       true,
			ActiveOnly: true,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		params := <-seen
		want := map[string]string{
			"get_sent_offers":        "1",
			"get_received_offers":    "0",
			"get_descriptions":       "0",
			"active_only":            "1",
			"historical_only":        "0",
			"time_historical_cutoff": "1389106496",
			"language":               "german",
			"key":                    testAPIKey,
		}
		for k, v := range want {
			if params[k] != v {
				t.Errorf("%s = %q, want %q", k, params[k], v)
			}
		}
		if _, ok := params["cursor"]; ok {
			t.Error("cursor should be omitted on the first page")
		}
	})

	t.Run("explicit cutoff", func(t *testing.T) {
		seen := make(chan map[string]string, 1)
		server := offersServer(t, map[string]OffersPayload{"": {}}, seen)

		c := NewClient(server.URL, testCreds(t))
		if _, err := c.GetTradeOffers(context.Background(), GetTradeOffersOptions{HistoricalCutoff: 1700000000}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := (<-seen)["time_historical_cutoff"]; got != "1700000000" {
			t.Errorf("time_historical_cutoff = %q, want 1700000000", got)
		}
	})

	t.Run("decodes offers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"response":{"trade_offers_sent":[{"tradeofferid":"100","accountid_other":46143802,
				"trade_offer_state":2,"items_to_give":[{"appid":730,"contextid":"2","assetid":"1","amount":"1"}],
				"is_our_offer":true,"time_created":1700000000,"time_updated":1700000100}],
				"next_cursor":0}}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, testCreds(t))
		resp, err := c.GetTradeOffers(context.Background(), GetTradeOffersOptions{Sent: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(resp.Sent) != 1 {
			t.Fatalf("len(Sent) = %d, want 1", len(resp.Sent))
		}
		o := resp.Sent[0]
		if o.TradeOfferID != "100" || o.State != 2 || !o.IsOurOffer {
			t.Errorf("offer = %+v", o)
		}
		if o.ItemsToGive[0].Amount != 1 {
			t.Errorf("Amount = %d, want 1", o.ItemsToGive[0].Amount)
		}
	})
}

// TestGetAllTradeOffers tests cursor following.
func TestGetAllTradeOffers(t *testing.T) {
	pages := map[string]OffersPayload{
		"":    {Sent: []APIOffer{{TradeOfferID: "1"}}, NextCursor: 50},
		"50":  {Received: []APIOffer{{TradeOfferID: "2"}}, NextCursor: 100},
		"100": {Received: []APIOffer{{TradeOfferID: "3"}}},
	}
	seen := make(chan map[string]string, 10)
	server := offersServer(t, pages, seen)

	c := NewClient(server.URL, testCreds(t))
	resp, err := c.GetAllTradeOffers(context.Background(), GetTradeOffersOptions{Sent: true, Received: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(resp.Sent) != 1 || len(resp.Received) != 2 {
		t.Errorf("got %d sent / %d received, want 1 / 2", len(resp.Sent), len(resp.Received))
	}
	if len(seen) != 3 {
		t.Errorf("requests = %d, want 3", len(seen))
	}
}

// TestGetTradeOffer tests single-offer lookup.
func TestGetTradeOffer(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != pathGetTradeOffer {
				t.Errorf("path = %s, want %s", r.URL.Path, pathGetTradeOffer)
			}
			if r.URL.Query().Get("tradeofferid") != "777" {
				t.Errorf("tradeofferid = %q, want 777", r.URL.Query().Get("tradeofferid"))
			}
			w.Write([]byte(`{"response":{"offer":{"tradeofferid":"777","trade_offer_state":3},
				"descriptions":[{"appid":730,"classid":"9","instanceid":"0","name":"Case"}]}}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, testCreds(t))
		o, descs, err := c.GetTradeOffer(context.Background(), "777")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if o.TradeOfferID != "777" {
			t.Errorf("TradeOfferID = %s, want 777", o.TradeOfferID)
		}
		if len(descs) != 1 || descs[0].Name != "Case" {
			t.Errorf("descriptions = %+v", descs)
		}

		state, err := c.GetOfferState(context.Background(), "777")
		if err != nil {
			t.Fatalf("GetOfferState: %v", err)
		}
		if state != model.StateAccepted {
			t.Errorf("state = %v, want %v", state, model.StateAccepted)
		}
	})

	t.Run("not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"response":{}}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, testCreds(t))
		_, _, err := c.GetTradeOffer(context.Background(), "404")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

// TestGetTradeOffersSummary tests the summary endpoint.
func TestGetTradeOffersSummary(t *testing.T) {
	lastVisit := time.Unix(1700000000, 0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathGetTradeOffersSummary {
			t.Errorf("path = %s, want %s", r.URL.Path, pathGetTradeOffersSummary)
		}
		if got := r.URL.Query().Get("time_last_visit"); got != "1700000000" {
			t.Errorf("time_last_visit = %q, want 1700000000", got)
		}
		w.Write([]byte(`{"response":{"pending_received_count":3,"new_received_count":1,"escrow_sent_count":2}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, testCreds(t))
	sum, err := c.GetTradeOffersSummary(context.Background(), lastVisit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.PendingReceived != 3 || sum.NewReceived != 1 || sum.EscrowSent != 2 {
		t.Errorf("summary = %+v", sum)
	}
}

// TestOfferSource tests the poller adapter's request mapping.
func TestOfferSource(t *testing.T) {
	since := time.Unix(1700000000, 0)
	tests := []struct {
		name       string
		req        poller.FetchRequest
		wantActive string
		wantCutoff string
	}{
		{
			name:       "first active fetch",
			req:        poller.FetchRequest{Sent: true, Received: true},
			wantActive: "1",
			wantCutoff: "1389106496",
		},
		{
			name:       "full historical fetch",
			req:        poller.FetchRequest{Sent: true, Historical: true},
			wantActive: "0",
			wantCutoff: "1389106496",
		},
		{
			name:       "incremental historical fetch",
			req:        poller.FetchRequest{Sent: true, Historical: true, Since: since},
			wantActive: "1",
			wantCutoff: "1700000000",
		},
		{
			name:       "incremental active fetch",
			req:        poller.FetchRequest{Received: true, Since: since},
			wantActive: "1",
			wantCutoff: "1700000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make(chan map[string]string, 1)
			server := offersServer(t, map[string]OffersPayload{
				"": {Sent: []APIOffer{{TradeOfferID: "1", State: 2}}},
			}, seen)

			src := NewOfferSource(NewClient(server.URL, testCreds(t)))
			resp, err := src.FetchOffers(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Len() != 1 || resp.Sent[0].State != model.StateActive {
				t.Errorf("response = %+v", resp)
			}

			params := <-seen
			if params["active_only"] != tt.wantActive {
				t.Errorf("active_only = %q, want %q", params["active_only"], tt.wantActive)
			}
			if params["time_historical_cutoff"] != tt.wantCutoff {
				t.Errorf("time_historical_cutoff = %q, want %q", params["time_historical_cutoff"], tt.wantCutoff)
			}
			if params["get_sent_offers"] != boolParam(tt.req.Sent) {
				t.Errorf("get_sent_offers = %q", params["get_sent_offers"])
			}
			if params["get_received_offers"] != boolParam(tt.req.Received) {
				t.Errorf("get_received_offers = %q", params["get_received_offers"])
			}
		})
	}
}

// TestJSONUnmarshalErrors tests error handling for invalid JSON.
func TestJSONUnmarshalErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`not valid json`))
	}))
	defer server.Close()

	c := NewClient(server.URL, testCreds(t))
	_, err := c.GetTradeOffersSummary(context.Background(), time.Time{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "unmarshal") {
		t.Errorf("error should contain 'unmarshal', got %v", err)
	}
}
