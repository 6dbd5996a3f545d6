// Package auth holds the per-account handle used to query the trade offer Web API.
//
// An account handle is a Web API key plus, optionally, the community session
// cookies of the logged-in bot. The key authorizes IEconService calls; the
// cookies identify the session for endpoints that require one.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Cookie names used by the community site session.
const (
	SessionIDCookie   = "sessionid"
	LoginSecureCookie = "steamLoginSecure"
)

// ErrNoAPIKey is returned when credentials are built without a Web API key.
var ErrNoAPIKey = errors.New("web api key is required")

// Credentials identifies one account to the remote service.
type Credentials struct {
	APIKey      string // 32 hex characters
	SessionID   string // sessionid cookie (optional)
	LoginSecure string // steamLoginSecure cookie (optional)
	SteamID     uint64 // 64-bit account id, derived from LoginSecure when empty
}

// NewCredentials validates and builds credentials.
func NewCredentials(apiKey, sessionID, loginSecure string) (*Credentials, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if !isHex(apiKey) {
		return nil, fmt.Errorf("web api key must be hexadecimal")
	}

	c := &Credentials{
		APIKey:      apiKey,
		SessionID:   strings.TrimSpace(sessionID),
		LoginSecure: strings.TrimSpace(loginSecure),
	}

	if c.LoginSecure != "" {
		id, err := SteamIDFromLoginSecure(c.LoginSecure)
		if err != nil {
			return nil, fmt.Errorf("parse login cookie: %w", err)
		}
		c.SteamID = id
	}

	return c, nil
}

// LoadAPIKey reads a Web API key from a file, ignoring surrounding whitespace.
func LoadAPIKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read key file: %w", err)
	}

	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("key file %s is empty", path)
	}
	return key, nil
}

// SteamIDFromLoginSecure extracts the 64-bit account id that prefixes the
// steamLoginSecure cookie ("<steamid>%7C%7C<token>" or "<steamid>||<token>").
func SteamIDFromLoginSecure(cookie string) (uint64, error) {
	raw := strings.ReplaceAll(cookie, "%7C", "|")
	idPart, _, found := strings.Cut(raw, "||")
	if !found {
		return 0, fmt.Errorf("missing separator")
	}

	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid account id %q: %w", idPart, err)
	}
	return id, nil
}

// HasSession reports whether session cookies are available.
func (c *Credentials) HasSession() bool {
	return c.SessionID != "" && c.LoginSecure != ""
}

// Apply adds the key to the request query and the session cookies, if any,
// to its headers.
func (c *Credentials) Apply(req *http.Request) {
	q := req.URL.Query()
	q.Set("key", c.APIKey)
	req.URL.RawQuery = q.Encode()

	if c.SessionID != "" {
		req.AddCookie(&http.Cookie{Name: SessionIDCookie, Value: c.SessionID})
	}
	if c.LoginSecure != "" {
		req.AddCookie(&http.Cookie{Name: LoginSecureCookie, Value: c.LoginSecure})
	}
}

// Redacted returns the key with everything but the last four characters masked,
// for logging.
func (c *Credentials) Redacted() string {
	if len(c.APIKey) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(c.APIKey)-4) + c.APIKey[len(c.APIKey)-4:]
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
