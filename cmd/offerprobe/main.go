// offerprobe exercises the trade offer API and a running offerwatch from the
// command line.
//
// Usage:
//
//	offerprobe -config configs/offerwatch.local.yaml fetch -account bot1
//	offerprobe -config ... wait -account bot1 -offer 123456 -state active -timeout 10m
//	offerprobe -config ... summary -account bot1
//	offerprobe tail -url ws://localhost:8080/stream
//	offerprobe -config ... tail -redis
//	offerprobe -config ... console
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/rickgao/offerwatch/internal/account"
	"github.com/rickgao/offerwatch/internal/config"
	"github.com/rickgao/offerwatch/internal/model"
	"github.com/rickgao/offerwatch/internal/poller"
	"github.com/rickgao/offerwatch/internal/relay"
	"github.com/rickgao/offerwatch/internal/stream"
)

func main() {
	configPath := flag.String("config", "configs/offerwatch.local.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Usage = usage
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cmd, args := flag.Arg(0), flag.Args()[1:]

	var err error
	switch cmd {
	case "fetch":
		err = runFetch(ctx, *configPath, args, logger)
	case "wait":
		err = runWait(ctx, *configPath, args, logger)
	case "summary":
		err = runSummary(ctx, *configPath, args, logger)
	case "tail":
		err = runTail(ctx, *configPath, args, logger)
	case "console":
		err = runConsole(ctx, cancel, *configPath, logger)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil && ctx.Err() == nil {
		logger.Error(cmd+" failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: offerprobe [-config path] [-verbose] <fetch|wait|summary|tail|console> [flags]\n")
	flag.PrintDefaults()
}

// loadAccounts builds the account registry without starting its refresh loop.
func loadAccounts(path string, logger *slog.Logger) (*config.Config, *account.Registry, error) {
	cfg, err := config.LoadAndValidate(path)
	if err != nil {
		return nil, nil, err
	}
	reg, err := account.New(account.DefaultConfig(), cfg.API, cfg.Accounts, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, reg, nil
}

func lookup(reg *account.Registry, key string) (*account.Account, error) {
	if key == "" {
		keys := reg.Keys()
		if len(keys) != 1 {
			return nil, fmt.Errorf("-account is required, configured: %s", strings.Join(keys, ", "))
		}
		key = keys[0]
	}
	a, ok := reg.Get(key)
	if !ok {
		return nil, fmt.Errorf("unknown account %q", key)
	}
	return a, nil
}

func parseDirection(s string) (model.Direction, error) {
	switch strings.ToLower(s) {
	case "", "any":
		return model.DirectionAny, nil
	case "sent":
		return model.DirectionSent, nil
	case "received":
		return model.DirectionReceived, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

func runFetch(ctx context.Context, path string, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	key := fs.String("account", "", "account key")
	historical := fs.Bool("historical", false, "include offers that are no longer active")
	since := fs.Duration("since", 0, "only offers updated within this window")
	dir := fs.String("direction", "any", "any, sent or received")
	asJSON := fs.Bool("json", false, "print offers as JSON")
	fs.Parse(args)

	_, reg, err := loadAccounts(path, logger)
	if err != nil {
		return err
	}
	a, err := lookup(reg, *key)
	if err != nil {
		return err
	}
	d, err := parseDirection(*dir)
	if err != nil {
		return err
	}

	req := poller.FetchRequest{
		Sent:       d.WantsSent(),
		Received:   d.WantsReceived(),
		Historical: *historical,
	}
	if *since > 0 {
		req.Since = time.Now().Add(-*since)
	}

	start := time.Now()
	offers, err := a.Source.FetchOffers(ctx, req)
	if err != nil {
		return err
	}
	logger.Debug("fetched offers", "account", a.Key, "duration", time.Since(start))

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(offers)
	}
	printOffers(os.Stdout, a.Key, offers)
	return nil
}

func runWait(ctx context.Context, path string, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("wait", flag.ExitOnError)
	key := fs.String("account", "", "account key")
	offerID := fs.String("offer", "", "trade offer id")
	state := fs.String("state", "", "state to wait to leave (default: current state)")
	dir := fs.String("direction", "any", "any, sent or received")
	timeout := fs.Duration("timeout", 0, "give up after this long (0 waits forever)")
	interval := fs.Duration("interval", 0, "poll interval (default: poller.interval from config)")
	fs.Parse(args)

	if *offerID == "" {
		return fmt.Errorf("-offer is required")
	}

	cfg, reg, err := loadAccounts(path, logger)
	if err != nil {
		return err
	}
	a, err := lookup(reg, *key)
	if err != nil {
		return err
	}
	d, err := parseDirection(*dir)
	if err != nil {
		return err
	}

	original := model.OfferState(0)
	if *state != "" {
		original, err = model.ParseOfferState(*state)
	} else {
		original, err = a.Client.GetOfferState(ctx, *offerID)
	}
	if err != nil {
		return err
	}
	if err := checkWaitable(*offerID, original); err != nil {
		return err
	}

	pollCfg := poller.Config{
		Interval:       cfg.Poller.Interval,
		Concurrency:    cfg.Poller.Concurrency,
		Timeout:        cfg.Poller.Timeout,
		WatermarkSlack: cfg.Poller.WatermarkSlack,
	}
	if *interval > 0 {
		pollCfg.Interval = *interval
	}
	p := poller.New(pollCfg, logger)
	defer p.Stop(context.Background())

	req := poller.Request{
		Account:       a.Source,
		AccountKey:    a.Key,
		OfferID:       *offerID,
		OriginalState: original,
		Direction:     d,
	}
	if *timeout > 0 {
		req.Deadline = time.Now().Add(*timeout)
	}

	fmt.Printf("waiting for offer %s on %s to leave %s (every %s)\n", *offerID, a.Key, original, p.Interval())
	fut, err := p.Subscribe(ctx, req)
	if err != nil {
		return err
	}
	next, err := fut.Wait(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("offer %s: %s -> %s\n", *offerID, original, next)
	return nil
}

// checkWaitable rejects waits on offers that can no longer change, which
// would otherwise poll until the deadline.
func checkWaitable(offerID string, original model.OfferState) error {
	if original.IsTerminal() {
		return fmt.Errorf("offer %s is already %s and will not change", offerID, original)
	}
	return nil
}

func runSummary(ctx context.Context, path string, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	key := fs.String("account", "", "account key")
	since := fs.Duration("since", 0, "counters since this long ago (0 means all)")
	fs.Parse(args)

	_, reg, err := loadAccounts(path, logger)
	if err != nil {
		return err
	}
	a, err := lookup(reg, *key)
	if err != nil {
		return err
	}

	var lastVisit time.Time
	if *since > 0 {
		lastVisit = time.Now().Add(-*since)
	}
	sum, err := a.Client.GetTradeOffersSummary(ctx, lastVisit)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

func runTail(ctx context.Context, path string, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("tail", flag.ExitOnError)
	url := fs.String("url", "", "stream endpoint, e.g. ws://localhost:8080/stream")
	acct := fs.String("account", "", "only events for this account (stream only)")
	useRedis := fs.Bool("redis", false, "subscribe to the relay channel from config instead")
	fs.Parse(args)

	var events <-chan model.NewOfferEvent
	switch {
	case *useRedis:
		cfg, err := config.LoadWithDefaults(path)
		if err != nil {
			return err
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		events, err = relay.Listen(ctx, rdb, cfg.Relay.Channel, logger)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", cfg.Relay.Channel, err)
		}
		logger.Info("listening", "channel", cfg.Relay.Channel)
	case *url != "":
		target := *url
		if *acct != "" {
			target += "?account=" + *acct
		}
		c, err := stream.Dial(ctx, stream.ClientConfig{URL: target}, logger)
		if err != nil {
			return err
		}
		defer c.Close()
		events = c.Events()
		logger.Info("connected", "url", target)
	default:
		return fmt.Errorf("one of -url or -redis is required")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("event stream closed")
			}
			printEvent(os.Stdout, ev)
		}
	}
}
