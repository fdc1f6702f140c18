package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/pricewatch/internal/connection"
	"github.com/rickgao/pricewatch/internal/queue"
	"github.com/rickgao/pricewatch/internal/transport"
)

const insertSQL = `
	INSERT INTO feed_messages (adapter_id, seq, received_at, kind, payload, decoded)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (adapter_id, seq) DO NOTHING
`

// Config holds recorder settings.
type Config struct {
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Max time a row waits before being flushed
	BufferSize    int           // Max queued rows before new messages are dropped
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Metrics tracks recorder performance.
type Metrics struct {
	Received  int64 // Messages accepted into the buffer
	Dropped   int64 // Messages rejected because the buffer was full or stopped
	Inserts   int64
	Conflicts int64 // Rows skipped by ON CONFLICT
	Flushes   int64
	Errors    int64
}

// Record is one row of feed_messages.
type Record struct {
	AdapterID  string
	Seq        uint64
	ReceivedAt time.Time
	Kind       string
	Payload    []byte
	Decoded    bool
}

// FromMessage converts a received message to a row.
func FromMessage(msg connection.Message) Record {
	payload := msg.Raw.Data
	if payload == nil {
		payload = []byte{} // payload is NOT NULL
	}
	return Record{
		AdapterID:  msg.AdapterID,
		Seq:        msg.Seq,
		ReceivedAt: msg.ReceivedAt,
		Kind:       kindName(msg.Raw.Kind),
		Payload:    payload,
		Decoded:    msg.Decoded,
	}
}

func kindName(k transport.Kind) string {
	if k == transport.KindBinary {
		return "binary"
	}
	return "text"
}

// Batcher sends a pgx batch. Satisfied by *pgxpool.Pool.
type Batcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Recorder consumes received messages and writes them to feed_messages.
type Recorder struct {
	cfg    Config
	logger *slog.Logger

	// Input from the client's OnMessage hook
	input *queue.Queue[Record]

	// Database
	db Batcher

	// Batching
	batch       []Record
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle. loopCtx stops the flush ticker; writeCtx carries inserts
	// and is only canceled by Stop, so a canceled parent cannot fail the
	// drain.
	loopCtx      context.Context
	cancel       context.CancelFunc
	writeCtx     context.Context
	writeCancel  context.CancelFunc
	wg           sync.WaitGroup
	consumerDone chan struct{}

	// Metrics
	metrics Metrics
}

// New creates a Recorder.
func New(cfg Config, db Batcher, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &Recorder{
		cfg:    cfg,
		logger: logger,
		input:  queue.New[Record](min(cfg.BatchSize, 1024)),
		db:     db,
		batch:  make([]Record, 0, cfg.BatchSize),
	}
}

// Record queues a message for writing. Returns false if it was dropped.
// Safe to call from the client's OnMessage hook.
func (r *Recorder) Record(msg connection.Message) bool {
	if r.cfg.BufferSize > 0 && r.input.Len() >= r.cfg.BufferSize {
		r.countDrop()
		return false
	}
	if !r.input.Push(FromMessage(msg)) {
		r.countDrop()
		return false
	}

	r.batchMu.Lock()
	r.metrics.Received++
	r.batchMu.Unlock()
	return true
}

func (r *Recorder) countDrop() {
	r.batchMu.Lock()
	r.metrics.Dropped++
	dropped := r.metrics.Dropped
	r.batchMu.Unlock()

	if dropped == 1 || dropped%1000 == 0 {
		r.logger.Warn("recorder buffer full, dropping messages",
			"dropped", dropped,
			"buffer_size", r.cfg.BufferSize,
		)
	}
}

// Start begins consuming messages and writing to the database.
func (r *Recorder) Start(ctx context.Context) error {
	r.loopCtx, r.cancel = context.WithCancel(ctx)
	r.writeCtx, r.writeCancel = context.WithCancel(context.WithoutCancel(ctx))
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)
	r.consumerDone = make(chan struct{})

	go r.consumeLoop()

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
		"buffer_size", r.cfg.BufferSize,
	)
	return nil
}

// Stop drains buffered messages, writes them, and shuts down.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping recorder")

	// Writes during the drain give up when the stop deadline passes.
	if r.writeCancel != nil {
		stopWrites := context.AfterFunc(ctx, r.writeCancel)
		defer stopWrites()
		defer r.writeCancel()
	}

	// Closing the input lets the consumer drain what is already queued.
	r.input.Close()
	if r.consumerDone != nil {
		select {
		case <-r.consumerDone:
		case <-ctx.Done():
			r.logger.Warn("recorder drain timed out", "pending", r.input.Len())
		}
	}

	if r.cancel != nil {
		r.cancel()
	}
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("recorder stop timed out")
	}

	// Final flush
	r.flush(ctx)

	r.logger.Info("recorder stopped", "inserts", r.Stats().Inserts)
	return nil
}

// Stats returns current metrics.
func (r *Recorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

// consumeLoop moves records from the input buffer into the batch until
// the buffer is closed and empty.
func (r *Recorder) consumeLoop() {
	defer close(r.consumerDone)

	for {
		rec, ok := r.input.Pop()
		if !ok {
			return
		}
		r.add(rec)

		for _, rec := range r.input.Drain(r.cfg.BatchSize) {
			r.add(rec)
		}
	}
}

// flushLoop periodically flushes the batch.
func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.loopCtx.Done():
			return
		case <-r.flushTicker.C:
			r.flush(r.writeCtx)
		}
	}
}

// add appends a record and flushes when the batch is full.
func (r *Recorder) add(rec Record) {
	r.batchMu.Lock()
	r.batch = append(r.batch, rec)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush(r.writeCtx)
	}
}

// flush writes the current batch to the database.
func (r *Recorder) flush(ctx context.Context) {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := r.batch
	r.batch = make([]Record, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	conflicts, err := r.batchInsert(ctx, batch)
	if err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(batch))
		r.batchMu.Lock()
		r.metrics.Errors++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	r.metrics.Inserts += int64(len(batch) - conflicts)
	r.metrics.Conflicts += int64(conflicts)
	r.metrics.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed feed messages",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (r *Recorder) batchInsert(ctx context.Context, rows []Record) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(insertSQL,
			row.AdapterID, int64(row.Seq), row.ReceivedAt, row.Kind, row.Payload, row.Decoded)
	}

	results := r.db.SendBatch(ctx, batch)
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
