package audit

import (
	"log/slog"
	"time"

	"fortuna/pkg/domain"
)

// Recorder accepts events from request paths without blocking them. Events are
// buffered on a channel and persisted by the Worker. When the buffer is full
// the event is dropped and counted in the logs; audit here is write-behind by
// design and losing an entry is preferable to stalling a request.
//
// The one exception is the spin event, which is written in-transaction by the
// coupon store so issuance and its audit trail commit together.
type Recorder struct {
	inbox chan Event
	log   *slog.Logger
	now   func() time.Time
}

// NewRecorder builds a recorder with the given buffer size.
func NewRecorder(buffer int, log *slog.Logger) *Recorder {
	return &Recorder{
		inbox: make(chan Event, buffer),
		log:   log,
		now:   time.Now,
	}
}

// Record enqueues an event. Never blocks.
func (r *Recorder) Record(ownerID *domain.IdentityID, typ EventType, meta map[string]any) {
	event := NewEvent(ownerID, typ, r.now(), meta)
	select {
	case r.inbox <- event:
	default:
		r.log.Warn("audit buffer full, dropping event", "type", string(typ))
	}
}

// Events exposes the inbox for the worker.
func (r *Recorder) Events() <-chan Event {
	return r.inbox
}
