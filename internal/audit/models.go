// Package audit captures key domain actions as append-only events. The core
// never reads these back; they exist for operators and downstream analytics.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fortuna/pkg/domain"
)

// EventType names a recorded action.
type EventType string

const (
	EventIdentify   EventType = "identify"
	EventSpin       EventType = "spin"
	EventAdminLogin EventType = "admin_login"
	EventCouponUsed EventType = "coupon_used"
)

// Event is one audit log entry. OwnerID is nil for events with no visitor
// context (admin logins). Meta is an opaque structured payload.
type Event struct {
	ID        uuid.UUID
	OwnerID   *domain.IdentityID
	Type      EventType
	CreatedAt time.Time
	Meta      map[string]any
}

// NewEvent builds an event with a fresh id.
func NewEvent(ownerID *domain.IdentityID, typ EventType, createdAt time.Time, meta map[string]any) Event {
	return Event{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Type:      typ,
		CreatedAt: createdAt,
		Meta:      meta,
	}
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher mirrors audit events to an external sink. Implementations must be
// fire-and-forget; a slow or failing sink must not stall the worker.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}
