package journal

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/offerwatch/internal/model"
)

const insertOfferSQL = `
	INSERT INTO new_offers (account_key, offer_id, partner_steamid, is_our_offer, state, message,
		items_to_give, items_to_receive, created_at, seen_at, instance_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (account_key, offer_id) DO NOTHING
`

// Config configures the offer writer.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	InstanceID    string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
	}
}

// Metrics are cumulative writer counters.
type Metrics struct {
	Inserts   int64 `json:"inserts"`
	Conflicts int64 `json:"conflicts"`
	Errors    int64 `json:"errors"`
	Flushes   int64 `json:"flushes"`
}

// EventSource is a non-blocking event feed, usually a notify.Observer.
type EventSource interface {
	TryReceive() (model.NewOfferEvent, bool)
}

// BatchSender is the subset of pgxpool.Pool the writer needs.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type offerRow struct {
	AccountKey     string
	OfferID        string
	PartnerSteamID string
	IsOurOffer     bool
	State          int16
	Message        string
	ItemsToGive    int32
	ItemsToReceive int32
	CreatedAt      *time.Time
	SeenAt         time.Time
	InstanceID     string
}

// OfferWriter consumes NewOfferEvent values and writes them to new_offers.
type OfferWriter struct {
	cfg    Config
	logger *slog.Logger

	input EventSource
	db    BatchSender

	// Batching
	batch       []offerRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewOfferWriter creates a new OfferWriter.
func NewOfferWriter(cfg Config, input EventSource, db BatchSender, logger *slog.Logger) *OfferWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &OfferWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]offerRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming events and writing to the database.
func (w *OfferWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("offer journal started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts down the writer and flushes what is left in the batch.
func (w *OfferWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping offer journal")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("offer journal stop timed out")
	}

	// Pick up anything published before the loop exited.
	for {
		ev, ok := w.input.TryReceive()
		if !ok {
			break
		}
		w.appendRow(w.transform(ev))
	}
	w.flush(ctx)

	w.logger.Info("offer journal stopped")
	return nil
}

// Stats returns current metrics.
func (w *OfferWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *OfferWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			ev, ok := w.input.TryReceive()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			w.handleEvent(ev)
		}
	}
}

func (w *OfferWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

func (w *OfferWriter) handleEvent(ev model.NewOfferEvent) {
	if w.appendRow(w.transform(ev)) {
		w.flush(w.ctx)
	}
}

// appendRow adds a row and reports whether the batch is full.
func (w *OfferWriter) appendRow(row offerRow) bool {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

func (w *OfferWriter) transform(ev model.NewOfferEvent) offerRow {
	give, receive := ev.Offer.ItemCount()
	row := offerRow{
		AccountKey:     ev.AccountKey,
		OfferID:        ev.Offer.ID,
		IsOurOffer:     ev.Offer.IsOurOffer,
		State:          int16(ev.Offer.State),
		Message:        ev.Offer.Message,
		ItemsToGive:    int32(give),
		ItemsToReceive: int32(receive),
		SeenAt:         ev.SeenAt,
		InstanceID:     w.cfg.InstanceID,
	}
	if id := ev.Offer.PartnerSteamID(); id != 0 {
		row.PartnerSteamID = strconv.FormatUint(id, 10)
	}
	if !ev.Offer.CreatedAt.IsZero() {
		created := ev.Offer.CreatedAt
		row.CreatedAt = &created
	}
	return row
}

func (w *OfferWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]offerRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed new offers",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *OfferWriter) batchInsert(ctx context.Context, rows []offerRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertOfferSQL,
			r.AccountKey, r.OfferID, r.PartnerSteamID, r.IsOurOffer, r.State, r.Message,
			r.ItemsToGive, r.ItemsToReceive, r.CreatedAt, r.SeenAt, r.InstanceID)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
