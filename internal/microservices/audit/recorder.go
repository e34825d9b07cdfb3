// Package audit persists subscriber lifecycle events.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"newsdist/internal/microservices/tcp"
)

const (
	DefaultQueueSize     = 10000
	DefaultBatchSize     = 200
	DefaultFlushInterval = 2 * time.Second
)

var ErrRecorderClosed = errors.New("audit: recorder closed")

type RecorderOption func(*Recorder)

func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

func WithBatchSize(n int) RecorderOption {
	return func(r *Recorder) { r.batchSize = n }
}

func WithFlushInterval(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.flushInterval = d }
}

func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) { r.queue = make(chan SubscriptionEvent, n) }
}

// Recorder queues lifecycle events and writes them to the repository in
// batches from a single background writer. Enqueueing never blocks the
// server: when the queue is full the event is dropped and counted.
type Recorder struct {
	repo   Repository
	queue  chan SubscriptionEvent
	logger *slog.Logger

	batchSize     int
	flushInterval time.Duration

	closed  atomic.Bool
	dropped atomic.Int64
	done    chan struct{}
}

func NewRecorder(repo Repository, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		repo:          repo,
		queue:         make(chan SubscriptionEvent, DefaultQueueSize),
		logger:        slog.Default(),
		batchSize:     DefaultBatchSize,
		flushInterval: DefaultFlushInterval,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Listener returns the function to register with tcp.Server.OnEvent.
func (r *Recorder) Listener() tcp.EventListener {
	return func(e tcp.Event) {
		if err := r.Record(e); err != nil && !errors.Is(err, ErrRecorderClosed) {
			r.logger.Warn("audit_event_dropped", "name", e.Name, "event", string(e.Type), "error", err)
		}
	}
}

var errQueueFull = errors.New("audit queue full")

func (r *Recorder) Record(e tcp.Event) error {
	if r.closed.Load() {
		return ErrRecorderClosed
	}

	queueDepth := len(r.queue)
	if queueDepth > cap(r.queue)/2 {
		r.logger.Warn("audit_queue_high_watermark", "queue_depth", queueDepth)
	}

	select {
	case r.queue <- fromEvent(e):
		return nil
	default:
		r.dropped.Add(1)
		return errQueueFull
	}
}

// Dropped reports how many events were discarded on a full queue.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Run writes queued events until ctx is done, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]SubscriptionEvent, 0, r.batchSize)
	r.logger.Info("audit_writer_started", "interval", r.flushInterval.String(), "batch_size", r.batchSize)

	for {
		select {
		case <-ctx.Done():
			r.closed.Store(true)
		drain:
			for {
				select {
				case e := <-r.queue:
					batch = append(batch, e)
				default:
					break drain
				}
			}
			r.logger.Info("audit_writer_shutting_down", "remaining", len(batch))
			r.flush(batch)
			return

		case e := <-r.queue:
			batch = append(batch, e)
			if len(batch) >= r.batchSize {
				r.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// Done is closed when Run has returned.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

func (r *Recorder) flush(batch []SubscriptionEvent) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := r.repo.SaveBatch(ctx, batch); err != nil {
		r.logger.Error("audit_batch_insert_failed",
			"count", len(batch),
			"error", err,
		)
		return
	}
	r.logger.Debug("audit_batch_insert_success",
		"count", len(batch),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
