package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/offerwatch/internal/account"
	"github.com/rickgao/offerwatch/internal/config"
	"github.com/rickgao/offerwatch/internal/database"
	"github.com/rickgao/offerwatch/internal/dedup"
	"github.com/rickgao/offerwatch/internal/journal"
	"github.com/rickgao/offerwatch/internal/metrics"
	"github.com/rickgao/offerwatch/internal/model"
	"github.com/rickgao/offerwatch/internal/notify"
	"github.com/rickgao/offerwatch/internal/poller"
	"github.com/rickgao/offerwatch/internal/relay"
	"github.com/rickgao/offerwatch/internal/stream"
	"github.com/rickgao/offerwatch/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/offerwatch.local.yaml", "path to config file")
	flag.Parse()

	// Bootstrap logger until the configured level is known
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})).With("instance", cfg.Instance.ID)
	slog.SetDefault(logger)

	logger.Info("starting offerwatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"accounts", len(cfg.Accounts),
		"api_url", cfg.API.BaseURL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Redis is shared by the redis seen set and the relay
	var rdb *redis.Client
	if cfg.Dedup.Backend == config.DedupBackendRedis || cfg.Relay.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		logger.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	var pool *pgxpool.Pool
	if cfg.Database.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			logger.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		logger.Info("database connected")
	}

	registry, err := account.New(account.DefaultConfig(), cfg.API, cfg.Accounts, logger)
	if err != nil {
		logger.Error("failed to build accounts", "error", err)
		os.Exit(1)
	}

	p := poller.New(poller.Config{
		Interval:       cfg.Poller.Interval,
		Concurrency:    cfg.Poller.Concurrency,
		Timeout:        cfg.Poller.Timeout,
		WatermarkSlack: cfg.Poller.WatermarkSlack,
	}, logger)

	seen, err := newSeenSet(ctx, cfg, rdb)
	if err != nil {
		logger.Error("failed to create seen set", "error", err)
		os.Exit(1)
	}
	events := notify.NewBroadcaster[model.NewOfferEvent](cfg.Notify.BufferSize, logger)
	lp := poller.NewLongPoller(p, seen, events, logger)

	streamHandler := stream.NewHandler(stream.Config{
		PingInterval: cfg.Server.PingInterval,
		WriteTimeout: cfg.Server.WriteTimeout,
		BufferSize:   cfg.Notify.BufferSize,
	}, events, logger)

	stats := metrics.NewRegistry(cfg.Instance.ID)
	stats.Register("poller", func() any { return p.Stats() })
	stats.Register("poller_pending", func() any { return p.PendingByAccount() })
	stats.Register("longpoll", func() any { return lp.Stats() })
	stats.Register("observers", func() any { return events.Stats() })
	stats.Register("stream", func() any {
		return map[string]int64{
			"sessions": int64(streamHandler.Sessions()),
			"sent":     streamHandler.Sent(),
		}
	})

	// Start health server early so account checks can be watched
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: createHealthHandler(pool, registry, p, lp, stats, streamHandler),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Server.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	if err := registry.Start(ctx); err != nil {
		logger.Error("failed to start account registry", "error", err)
		os.Exit(1)
	}

	var writer *journal.OfferWriter
	if cfg.Journal.Enabled {
		writer = journal.NewOfferWriter(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			InstanceID:    cfg.Instance.ID,
		}, lp.Observe("journal", 0), pool, logger)
		if err := writer.Start(ctx); err != nil {
			logger.Error("failed to start offer journal", "error", err)
			os.Exit(1)
		}
		stats.Register("journal", func() any { return writer.Stats() })
	}

	var rel *relay.Relay
	if cfg.Relay.Enabled {
		rel = relay.New(rdb, cfg.Relay.Channel, events, 0, logger)
		if err := rel.Start(ctx); err != nil {
			logger.Error("failed to start relay", "error", err)
			os.Exit(1)
		}
		stats.Register("relay", func() any { return rel.Stats() })
	}

	for _, a := range registry.Accounts() {
		if !a.WatchNewOffers {
			continue
		}
		if err := lp.AddAccount(a.Key, a.Source); err != nil {
			logger.Error("failed to watch account", "account", a.Key, "error", err)
			os.Exit(1)
		}
	}

	logger.Info("offerwatch running",
		"watched_accounts", len(lp.Accounts()),
		"poll_interval", p.Interval(),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	streamHandler.Close()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown", "error", err)
	}
	if err := p.Stop(shutdownCtx); err != nil {
		logger.Warn("poller stop", "error", err)
	}
	if rel != nil {
		rel.Stop(shutdownCtx)
	}
	if writer != nil {
		writer.Stop(shutdownCtx)
	}
	lp.Close()
	if rs, ok := seen.(*dedup.RedisSet); ok {
		if err := rs.Clear(shutdownCtx); err != nil {
			logger.Warn("failed to clear seen set", "key", rs.Key(), "error", err)
		}
	}
	registry.Stop(shutdownCtx)

	logger.Info("offerwatch stopped")
}

func newSeenSet(ctx context.Context, cfg *config.Config, rdb *redis.Client) (dedup.Set, error) {
	switch cfg.Dedup.Backend {
	case config.DedupBackendRedis:
		return dedup.OpenRedisSet(ctx, rdb, cfg.Redis.Prefix, cfg.Instance.ID, cfg.Dedup.TTL)
	case config.DedupBackendMemory:
		return dedup.NewMemorySet(), nil
	default:
		return nil, fmt.Errorf("unknown dedup backend %q", cfg.Dedup.Backend)
	}
}

// createHealthHandler creates the HTTP handler for health checks, debug
// views and the new-offer stream.
func createHealthHandler(
	pool *pgxpool.Pool,
	registry *account.Registry,
	p *poller.Poller,
	lp *poller.LongPoller,
	stats *metrics.Registry,
	streamHandler http.Handler,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["postgres"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["postgres"] = "connected"
			}
		}

		failing := 0
		for _, st := range registry.Statuses() {
			if st.LastError != "" {
				failing++
			}
		}
		health.Components["accounts"] = map[string]any{
			"configured": len(registry.Keys()),
			"watched":    len(lp.Accounts()),
			"failing":    failing,
		}
		if failing > 0 && health.Status == "healthy" {
			health.Status = "degraded"
		}

		ps := p.Stats()
		health.Components["poller"] = map[string]any{
			"running":   ps.Running,
			"pending":   ps.Pending,
			"watermark": ps.Watermark,
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/accounts", func(w http.ResponseWriter, r *http.Request) {
		statuses := registry.Statuses()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":    len(statuses),
			"accounts": statuses,
		})
	})

	mux.Handle("/debug/stats", stats)
	mux.Handle("/stream", streamHandler)

	return mux
}
