package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/offerwatch/internal/api"
	"github.com/rickgao/offerwatch/internal/auth"
	"github.com/rickgao/offerwatch/internal/config"
)

// Config holds account registry settings.
type Config struct {
	SummaryInterval time.Duration // 0 disables background refresh
	SummaryTimeout  time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SummaryInterval: 5 * time.Minute,
		SummaryTimeout:  15 * time.Second,
	}
}

// Account is one configured bot account.
type Account struct {
	Key            string
	WatchNewOffers bool
	Client         *api.Client
	Source         *api.OfferSource
}

// Status is the last known health of an account.
type Status struct {
	Key            string       `json:"key"`
	WatchNewOffers bool         `json:"watch_new_offers"`
	HasSession     bool         `json:"has_session"`
	APIKey         string       `json:"api_key"` // redacted
	Summary        *api.Summary `json:"summary,omitempty"`
	CheckedAt      time.Time    `json:"checked_at,omitempty"`
	LastError      string       `json:"last_error,omitempty"`
}

// Registry holds accounts keyed by account key.
type Registry struct {
	cfg    Config
	logger *slog.Logger

	accounts map[string]*Account
	keys     []string

	mu       sync.RWMutex
	statuses map[string]*Status

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a registry from configuration, creating one client per account.
func New(cfg Config, apiCfg config.APIConfig, accounts []config.AccountConfig, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	built := make([]*Account, 0, len(accounts))
	for i, ac := range accounts {
		acct, err := build(apiCfg, ac, logger)
		if err != nil {
			return nil, fmt.Errorf("accounts[%d] %s: %w", i, ac.Key, err)
		}
		built = append(built, acct)
	}
	return NewFromAccounts(cfg, built, logger)
}

// NewFromAccounts builds a registry from prepared accounts.
func NewFromAccounts(cfg Config, accounts []*Account, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SummaryTimeout <= 0 {
		cfg.SummaryTimeout = DefaultConfig().SummaryTimeout
	}

	r := &Registry{
		cfg:      cfg,
		logger:   logger,
		accounts: make(map[string]*Account, len(accounts)),
		statuses: make(map[string]*Status, len(accounts)),
	}
	for _, a := range accounts {
		if a.Key == "" {
			return nil, errors.New("account key is required")
		}
		if _, dup := r.accounts[a.Key]; dup {
			return nil, fmt.Errorf("duplicate account key %q", a.Key)
		}
		r.accounts[a.Key] = a
		r.keys = append(r.keys, a.Key)

		st := &Status{Key: a.Key, WatchNewOffers: a.WatchNewOffers}
		if creds := a.Client.Credentials(); creds != nil {
			st.HasSession = creds.HasSession()
			st.APIKey = creds.Redacted()
		}
		r.statuses[a.Key] = st
	}
	sort.Strings(r.keys)
	return r, nil
}

func build(apiCfg config.APIConfig, ac config.AccountConfig, logger *slog.Logger) (*Account, error) {
	key := ac.APIKey
	if key == "" && ac.APIKeyFile != "" {
		var err error
		if key, err = auth.LoadAPIKey(ac.APIKeyFile); err != nil {
			return nil, err
		}
	}

	creds, err := auth.NewCredentials(key, ac.SessionID, ac.LoginSecure)
	if err != nil {
		return nil, err
	}

	opts := []api.ClientOption{
		api.WithAccount(ac.Key),
		api.WithLogger(logger),
	}
	if apiCfg.Timeout > 0 {
		opts = append(opts, api.WithTimeout(apiCfg.Timeout))
	}
	if apiCfg.MaxRetries > 0 {
		opts = append(opts, api.WithRetries(apiCfg.MaxRetries, apiCfg.RetryBackoff))
	}
	if apiCfg.Language != "" {
		opts = append(opts, api.WithLanguage(apiCfg.Language))
	}

	client := api.NewClient(apiCfg.BaseURL, creds, opts...)
	return &Account{
		Key:            ac.Key,
		WatchNewOffers: ac.WatchNewOffers,
		Client:         client,
		Source:         api.NewOfferSource(client),
	}, nil
}

// Start runs an initial summary check and begins background refresh.
// Failed checks are recorded in Status, not returned.
func (r *Registry) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.refresh(r.ctx)

	if r.cfg.SummaryInterval > 0 {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.refreshLoop(r.ctx)
		}()
	}

	r.logger.Info("account registry started", "accounts", len(r.keys))
	return nil
}

// Stop gracefully shuts down.
func (r *Registry) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("account registry stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns the account with the given key.
func (r *Registry) Get(key string) (*Account, bool) {
	a, ok := r.accounts[key]
	return a, ok
}

// Keys returns all account keys in sorted order.
func (r *Registry) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Accounts returns all accounts in key order.
func (r *Registry) Accounts() []*Account {
	out := make([]*Account, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, r.accounts[k])
	}
	return out
}

// Statuses returns a copy of every account status in key order.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Status, 0, len(r.keys))
	for _, k := range r.keys {
		st := *r.statuses[k]
		if st.Summary != nil {
			sum := *st.Summary
			st.Summary = &sum
		}
		out = append(out, st)
	}
	return out
}

func (r *Registry) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SummaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

// refresh fetches every account's summary sequentially.
func (r *Registry) refresh(ctx context.Context) {
	for _, k := range r.keys {
		if ctx.Err() != nil {
			return
		}
		r.refreshOne(ctx, r.accounts[k])
	}
}

func (r *Registry) refreshOne(ctx context.Context, a *Account) {
	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.SummaryTimeout)
	defer cancel()

	sum, err := a.Client.GetTradeOffersSummary(reqCtx, time.Time{})
	now := time.Now()

	r.mu.Lock()
	st := r.statuses[a.Key]
	prev := st.Summary
	st.CheckedAt = now
	if err != nil {
		st.LastError = err.Error()
	} else {
		st.LastError = ""
		st.Summary = sum
	}
	r.mu.Unlock()

	switch {
	case errors.Is(err, api.ErrUnauthorized):
		r.logger.Error("account credentials rejected", "account", a.Key, "err", err)
	case err != nil:
		r.logger.Warn("summary refresh failed", "account", a.Key, "err", err)
	case prev == nil || *prev != *sum:
		r.logger.Info("offer summary",
			"account", a.Key,
			"pending_received", sum.PendingReceived,
			"pending_sent", sum.PendingSent,
			"escrow_received", sum.EscrowReceived,
			"escrow_sent", sum.EscrowSent,
		)
	}
}
