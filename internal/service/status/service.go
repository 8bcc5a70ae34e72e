// Package status drives the event lifecycle: active, postponed,
// cancelled, completed. It validates transitions against the lifecycle
// graph, writes the authoritative row, and fans notifications out to
// registrants after the write.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eventhub/eventhub-go/internal/domain"
	"github.com/eventhub/eventhub-go/internal/repository"
)

type Inventory interface {
	Get(ctx context.Context, id int64) (*domain.Event, error)
}

type Writer interface {
	UpdateStatus(ctx context.Context, id int64, ch domain.StatusChange) error
}

type SideEffects interface {
	StatusChanged(eventID int64, newStatus domain.EventStatus, reason string)
}

type Service struct {
	inventory Inventory
	writer    Writer
	effects   SideEffects
	logger    *slog.Logger
	now       func() time.Time
}

func New(inventory Inventory, writer Writer, effects SideEffects, logger *slog.Logger) *Service {
	return &Service{
		inventory: inventory,
		writer:    writer,
		effects:   effects,
		logger:    logger,
		now:       time.Now,
	}
}

// ChangeStatus moves an event to a new lifecycle status on behalf of its
// organizer. Postponing shifts the event date to the supplied future
// date. Registrants are notified after the write commits; notification
// failures never surface here.
//
// Returns:
//   - *domain.Event: the event after the change.
//   - error: ErrEventNotFound, ErrNotOwner, ErrInvalidStatus,
//     ErrInvalidTransition, ErrPostponedDateRequired or ErrPostponedDatePast.
func (s *Service) ChangeStatus(
	ctx context.Context,
	organizerID, eventID int64,
	newStatus domain.EventStatus,
	reason string,
	postponedTo *time.Time,
) (*domain.Event, error) {
	const op = "status.Service.ChangeStatus"

	if !newStatus.Valid() {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidStatus)
	}

	event, err := s.inventory.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if event.OrganizerID != organizerID {
		return nil, fmt.Errorf("%s: %w", op, ErrNotOwner)
	}

	if !event.Status.CanTransitionTo(newStatus) {
		return nil, fmt.Errorf("%s: %w (%s -> %s)",
			op, ErrInvalidTransition, event.Status, newStatus)
	}

	change, err := s.buildChange(newStatus, reason, postponedTo)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.writer.UpdateStatus(ctx, eventID, change); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("event status changed",
		"event_id", eventID,
		"from", event.Status,
		"to", newStatus,
		"reason", reason,
	)
	s.effects.StatusChanged(eventID, newStatus, reason)

	updated, err := s.inventory.Get(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return updated, nil
}

func (s *Service) buildChange(newStatus domain.EventStatus, reason string, postponedTo *time.Time) (domain.StatusChange, error) {
	ch := domain.StatusChange{
		Status: newStatus,
		Reason: reason,
	}

	switch newStatus {
	case domain.EventCancelled:
		now := s.now()
		ch.CancelledAt = &now
		ch.IsActive = false
	case domain.EventPostponed:
		if postponedTo == nil {
			return domain.StatusChange{}, ErrPostponedDateRequired
		}
		if !postponedTo.After(s.now()) {
			return domain.StatusChange{}, ErrPostponedDatePast
		}
		// The event date follows the postponement so ordering and the
		// registration window stay coherent.
		ch.PostponedTo = postponedTo
		ch.EventDate = postponedTo
		ch.IsActive = true
	case domain.EventActive:
		ch.IsActive = true
	case domain.EventCompleted:
		ch.IsActive = false
	}

	return ch, nil
}
