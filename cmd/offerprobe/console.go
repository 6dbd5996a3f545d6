package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/rickgao/offerwatch/internal/account"
	"github.com/rickgao/offerwatch/internal/model"
	"github.com/rickgao/offerwatch/internal/poller"
)

// console is an interactive session sharing one poller across commands, so
// several waits on the same account collapse into one fetch per tick.
type console struct {
	reg    *account.Registry
	poller *poller.Poller
	lp     *poller.LongPoller
	rl     *readline.Instance
	out    io.Writer
}

func runConsole(ctx context.Context, cancel context.CancelFunc, path string, logger *slog.Logger) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "offers> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("accounts"),
			readline.PcItem("fetch"),
			readline.PcItem("state"),
			readline.PcItem("wait"),
			readline.PcItem("watch"),
			readline.PcItem("unwatch"),
			readline.PcItem("pending"),
			readline.PcItem("stats"),
			readline.PcItem("interval"),
			readline.PcItem("help"),
			readline.PcItem("exit"),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	// Log through readline so output does not trample the prompt
	logger = slog.New(slog.NewTextHandler(rl.Stderr(), &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, reg, err := loadAccounts(path, logger)
	if err != nil {
		return err
	}

	p := poller.New(poller.Config{
		Interval:       cfg.Poller.Interval,
		Concurrency:    cfg.Poller.Concurrency,
		Timeout:        cfg.Poller.Timeout,
		WatermarkSlack: cfg.Poller.WatermarkSlack,
	}, logger)
	defer p.Stop(context.Background())

	lp := poller.NewLongPoller(p, nil, nil, logger)
	defer lp.Close()

	c := &console{reg: reg, poller: p, lp: lp, rl: rl, out: rl.Stdout()}

	obs := lp.Observe("console", 0)
	go func() {
		for {
			ev, ok := obs.Receive()
			if !ok {
				return
			}
			printEvent(c.out, ev)
		}
	}()

	c.printHelp()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return nil
		}

		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}
		cmd, args := strings.ToLower(parts[0]), parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()
		case "accounts", "a":
			c.cmdAccounts()
		case "fetch", "f":
			c.cmdFetch(ctx, args)
		case "state", "s":
			c.cmdState(ctx, args)
		case "wait", "w":
			c.cmdWait(ctx, args)
		case "watch":
			c.cmdWatch(args)
		case "unwatch":
			c.cmdUnwatch(args)
		case "pending", "p":
			c.cmdPending()
		case "stats":
			c.cmdStats()
		case "interval":
			c.cmdInterval(args)
		case "exit", "quit", "q":
			cancel()
			return nil
		default:
			fmt.Fprintf(c.out, "unknown command %q, type help\n", cmd)
		}
	}
}

func (c *console) printHelp() {
	fmt.Fprintln(c.out, `Commands:
  accounts                         list configured accounts
  fetch <account> [historical]     list the account's offers
  state <account> <offer>          fetch one offer's state
  wait <account> <offer> [timeout] wait in the background for the offer to change
  watch <account>                  announce new offers on the account
  unwatch <account>                stop announcing new offers
  pending                          outstanding subscriptions per account
  stats                            poller and long poller counters
  interval <duration>              change the poll interval
  exit                             quit`)
}

func (c *console) account(key string) (*account.Account, bool) {
	a, ok := c.reg.Get(key)
	if !ok {
		fmt.Fprintf(c.out, "unknown account %q\n", key)
	}
	return a, ok
}

func (c *console) cmdAccounts() {
	watched := make(map[string]bool)
	for _, k := range c.lp.Accounts() {
		watched[k] = true
	}
	for _, st := range c.reg.Statuses() {
		fmt.Fprintf(c.out, "  %-16s session=%-5v watched=%-5v key=%s\n", st.Key, st.HasSession, watched[st.Key], st.APIKey)
	}
}

func (c *console) cmdFetch(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "usage: fetch <account> [historical]")
		return
	}
	a, ok := c.account(args[0])
	if !ok {
		return
	}
	req := poller.FetchRequest{
		Sent:       true,
		Received:   true,
		Historical: len(args) > 1 && args[1] == "historical",
	}
	fctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	offers, err := a.Source.FetchOffers(fctx, req)
	if err != nil {
		fmt.Fprintf(c.out, "fetch failed: %v\n", err)
		return
	}
	printOffers(c.out, a.Key, offers)
}

func (c *console) cmdState(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "usage: state <account> <offer>")
		return
	}
	a, ok := c.account(args[0])
	if !ok {
		return
	}
	fctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	st, err := a.Client.GetOfferState(fctx, args[1])
	if err != nil {
		fmt.Fprintf(c.out, "state failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "offer %s: %s\n", args[1], st)
}

func (c *console) cmdWait(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "usage: wait <account> <offer> [timeout]")
		return
	}
	a, ok := c.account(args[0])
	if !ok {
		return
	}
	offerID := args[1]

	req := poller.Request{
		Account:    a.Source,
		AccountKey: a.Key,
		OfferID:    offerID,
	}
	if len(args) > 2 {
		d, err := time.ParseDuration(args[2])
		if err != nil {
			fmt.Fprintf(c.out, "invalid timeout: %v\n", err)
			return
		}
		req.Deadline = time.Now().Add(d)
	}

	fctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	original, err := a.Client.GetOfferState(fctx, offerID)
	cancel()
	if err != nil {
		fmt.Fprintf(c.out, "state failed: %v\n", err)
		return
	}
	if err := checkWaitable(offerID, original); err != nil {
		fmt.Fprintln(c.out, err)
		return
	}
	req.OriginalState = original

	fut, err := c.poller.Subscribe(ctx, req)
	if err != nil {
		fmt.Fprintf(c.out, "subscribe failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "waiting on offer %s (%s), subscription %s\n", offerID, original, fut.ID())

	go func() {
		next, err := fut.Wait(ctx)
		if err != nil {
			fmt.Fprintf(c.out, "wait %s: %v\n", offerID, err)
			return
		}
		fmt.Fprintf(c.out, "offer %s: %s -> %s\n", offerID, original, next)
	}()
}

func (c *console) cmdWatch(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "usage: watch <account>")
		return
	}
	a, ok := c.account(args[0])
	if !ok {
		return
	}
	if err := c.lp.AddAccount(a.Key, a.Source); err != nil {
		fmt.Fprintf(c.out, "watch failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "watching %s for new offers\n", a.Key)
}

func (c *console) cmdUnwatch(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "usage: unwatch <account>")
		return
	}
	if err := c.lp.RemoveAccount(args[0]); err != nil {
		fmt.Fprintf(c.out, "unwatch failed: %v\n", err)
	}
}

func (c *console) cmdPending() {
	byAccount := c.poller.PendingByAccount()
	if len(byAccount) == 0 {
		fmt.Fprintln(c.out, "  nothing pending")
		return
	}
	for key, n := range byAccount {
		fmt.Fprintf(c.out, "  %-16s %d\n", key, n)
	}
}

func (c *console) cmdStats() {
	ps := c.poller.Stats()
	fmt.Fprintf(c.out, "  poller: running=%v pending=%d ticks=%d fetches=%d errors=%d resolved=%d not_found=%d timed_out=%d canceled=%d\n",
		ps.Running, ps.Pending, ps.Ticks, ps.Fetches, ps.FetchErrors, ps.Resolved, ps.NotFound, ps.TimedOut, ps.Canceled)
	if !ps.Watermark.IsZero() {
		fmt.Fprintf(c.out, "  watermark: %s\n", ps.Watermark.Format(time.RFC3339))
	}
	ls := c.lp.Stats()
	fmt.Fprintf(c.out, "  longpoll: accounts=%d observers=%d announced=%d seen_errors=%d\n",
		ls.Accounts, ls.Observers, ls.Announced, ls.SeenErrors)
}

func (c *console) cmdInterval(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(c.out, "  interval: %s\n", c.poller.Interval())
		return
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "invalid interval: %v\n", err)
		return
	}
	if err := c.poller.SetInterval(d); err != nil {
		fmt.Fprintf(c.out, "set interval: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "  interval: %s\n", c.poller.Interval())
}

func printOffers(w io.Writer, key string, offers *model.OffersResponse) {
	fmt.Fprintf(w, "%s: %d sent, %d received\n", key, len(offers.Sent), len(offers.Received))
	for _, o := range offers.All() {
		side := "recv"
		if o.IsOurOffer {
			side = "sent"
		}
		give, recv := o.ItemCount()
		fmt.Fprintf(w, "  %s %-4s %-20s partner=%d give=%d receive=%d updated=%s\n",
			o.ID, side, o.State, o.PartnerSteamID(), give, recv, o.UpdatedAt.Format(time.RFC3339))
	}
}

func printEvent(w io.Writer, ev model.NewOfferEvent) {
	give, recv := ev.Offer.ItemCount()
	fmt.Fprintf(w, "[%s] new offer %s on %s: %s partner=%d give=%d receive=%d\n",
		ev.SeenAt.Format("15:04:05"), ev.Offer.ID, ev.AccountKey, ev.Offer.State,
		ev.Offer.PartnerSteamID(), give, recv)
}
