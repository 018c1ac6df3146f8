package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrQueueFull is returned by Worker.Emit when the buffer is saturated.
var ErrQueueFull = errors.New("audit queue full")

// Worker decouples request handling from the sink: Emit enqueues and Run
// drains the queue into the sink. Delivery failures are logged and dropped.
type Worker struct {
	sink   Sink
	inbox  chan Event
	logger *slog.Logger
	// sendTimeout bounds each delivery so a stuck broker cannot stall the queue.
	sendTimeout time.Duration
}

func NewWorker(sink Sink, size int, logger *slog.Logger) *Worker {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sink: sink, inbox: make(chan Event, size), logger: logger, sendTimeout: 10 * time.Second}
}

// Emit enqueues without blocking.
func (w *Worker) Emit(_ context.Context, event Event) error {
	select {
	case w.inbox <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is
// already buffered before returning.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event := <-w.inbox:
			w.deliver(context.WithoutCancel(ctx), event)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case event := <-w.inbox:
			w.deliver(context.Background(), event)
		default:
			return
		}
	}
}

func (w *Worker) deliver(ctx context.Context, event Event) {
	ctx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()
	if err := w.sink.Emit(ctx, event); err != nil {
		w.logger.ErrorContext(ctx, "failed to deliver change event",
			"event_id", event.ID,
			"event_type", event.Type,
			"subject", event.Subject,
			"error", err,
		)
	}
}
