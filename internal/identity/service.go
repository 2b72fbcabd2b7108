package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fortuna/internal/audit"
	"fortuna/internal/platform/metrics"
	"fortuna/pkg/domain"
	domainerrors "fortuna/pkg/domain-errors"
	"fortuna/pkg/platform/sentinel"
)

// Service implements the identify flow: find or create the Identity for a
// client-generated external id.
type Service struct {
	store   Store
	audit   *audit.Recorder
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

// NewService wires the identify service.
func NewService(store Store, rec *audit.Recorder, m *metrics.Metrics, log *slog.Logger) *Service {
	return &Service{
		store:   store,
		audit:   rec,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// Identify returns the Identity bound to externalID, creating it on first
// contact. Two concurrent first contacts race on the external id uniqueness
// constraint; the loser re-reads the winner's row.
func (s *Service) Identify(ctx context.Context, externalID string) (*Identity, error) {
	if externalID == "" {
		return nil, domainerrors.New(domainerrors.CodeInvalidInput, "client_id is required")
	}

	ident, err := s.store.FindByExternalID(ctx, externalID)
	switch {
	case err == nil:
		s.metrics.IdentifyTotal.Inc()
		s.audit.Record(&ident.ID, audit.EventIdentify, map[string]any{"client_id": externalID})
		return ident, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "lookup identity")
	}

	ident = &Identity{
		ID:         domain.NewIdentityID(),
		ExternalID: externalID,
		CreatedAt:  s.now(),
	}
	if err := s.store.Create(ctx, ident); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			ident, err = s.store.FindByExternalID(ctx, externalID)
			if err != nil {
				return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "lookup identity after create race")
			}
		} else {
			return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "create identity")
		}
	} else {
		s.log.InfoContext(ctx, "identity created", "identity_id", ident.ID.String())
	}

	s.metrics.IdentifyTotal.Inc()
	s.audit.Record(&ident.ID, audit.EventIdentify, map[string]any{"client_id": externalID})
	return ident, nil
}

// Get loads an identity by id. Used by the session middleware to confirm a
// verified token still points at a real row.
func (s *Service) Get(ctx context.Context, id domain.IdentityID) (*Identity, error) {
	ident, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerrors.New(domainerrors.CodeUnauthorized, "unknown identity")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "lookup identity")
	}
	return ident, nil
}
