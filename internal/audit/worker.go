package audit

import (
	"context"
	"log/slog"
)

// Worker consumes audit events from a channel, persists them, and optionally
// mirrors them to a publisher. Persistence failures are logged and skipped:
// the audit log is a side effect, never a reason to take the service down.
type Worker struct {
	store     Store
	publisher Publisher
	inbox     <-chan Event
	log       *slog.Logger
}

// NewWorker builds a worker. publisher may be nil.
func NewWorker(store Store, publisher Publisher, inbox <-chan Event, log *slog.Logger) *Worker {
	return &Worker{store: store, publisher: publisher, inbox: inbox, log: log}
}

// Run processes events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				w.log.ErrorContext(ctx, "append audit event failed",
					"type", string(event.Type),
					"error", err,
				)
			}
			if w.publisher != nil {
				w.publisher.Publish(ctx, event)
			}
		}
	}
}
