// Package organizer covers the event owner's operations: creating
// events, resizing capacity, deleting events and checking participants
// in at the door.
package organizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eventhub/eventhub-go/internal/domain"
	"github.com/eventhub/eventhub-go/internal/repository"
)

type Inventory interface {
	Get(ctx context.Context, id int64) (*domain.Event, error)
	Create(ctx context.Context, e *domain.Event) (int64, error)
	Resize(ctx context.Context, id int64, newMax int) (*domain.Event, error)
	Delete(ctx context.Context, id int64) error
}

type Ledger interface {
	FindByID(ctx context.Context, id int64) (*domain.Registration, error)
	MarkAttended(ctx context.Context, id int64) (*domain.Registration, error)
}

// Drainer backfills freed seats from the waitlist after a capacity
// increase. Runs after the resize committed; failures only log.
type Drainer interface {
	Drain(ctx context.Context, eventID int64) ([]domain.Registration, error)
}

type SideEffects interface {
	EventChanged(eventID int64)
	EventDeleted(eventID int64)
}

type Service struct {
	inventory Inventory
	ledger    Ledger
	drainer   Drainer
	effects   SideEffects
	logger    *slog.Logger
	now       func() time.Time
}

func New(
	inventory Inventory,
	ledger Ledger,
	drainer Drainer,
	effects SideEffects,
	logger *slog.Logger,
) *Service {
	return &Service{
		inventory: inventory,
		ledger:    ledger,
		drainer:   drainer,
		effects:   effects,
		logger:    logger,
		now:       time.Now,
	}
}

type CreateEventInput struct {
	OrganizerID          int64
	Title                string
	Description          string
	EventDate            time.Time
	RegistrationDeadline time.Time
	MaxParticipants      int
	IsPaid               bool
	PriceCents           int
	AllowWaitlist        bool
}

// CreateEvent validates the input and creates an active event with a
// full seat pool.
//
// Returns:
//   - *domain.Event: the created event.
//   - error: ErrInvalidTitle, ErrInvalidCapacity, ErrInvalidSchedule or
//     ErrInvalidPrice.
func (s *Service) CreateEvent(ctx context.Context, in CreateEventInput) (*domain.Event, error) {
	const op = "organizer.Service.CreateEvent"

	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidTitle)
	}
	if in.MaxParticipants <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCapacity)
	}
	if !in.RegistrationDeadline.Before(in.EventDate) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidSchedule)
	}
	if in.IsPaid && in.PriceCents <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPrice)
	}

	event := &domain.Event{
		OrganizerID:          in.OrganizerID,
		Title:                strings.TrimSpace(in.Title),
		Description:          in.Description,
		EventDate:            in.EventDate,
		RegistrationDeadline: in.RegistrationDeadline,
		MaxParticipants:      in.MaxParticipants,
		IsPaid:               in.IsPaid,
		PriceCents:           in.PriceCents,
		AllowWaitlist:        in.AllowWaitlist,
	}

	id, err := s.inventory.Create(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	created, err := s.inventory.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("event created",
		"event_id", id, "organizer_id", in.OrganizerID, "capacity", in.MaxParticipants)

	return created, nil
}

// ResizeCapacity changes max_participants and recomputes the free pool
// from confirmed registrations. Growing the pool promotes waitlisted
// registrants into the new seats; shrinking never cancels anyone, it
// only stops new confirmations until attrition catches up.
//
// Returns:
//   - *domain.Event: the event after the resize.
//   - error: ErrEventNotFound, ErrNotOwner or ErrInvalidCapacity.
func (s *Service) ResizeCapacity(ctx context.Context, organizerID, eventID int64, newMax int) (*domain.Event, error) {
	const op = "organizer.Service.ResizeCapacity"

	if newMax <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCapacity)
	}

	if err := s.authorize(ctx, organizerID, eventID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	event, err := s.inventory.Resize(ctx, eventID, newMax)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("event capacity resized",
		"event_id", eventID, "max_participants", newMax,
		"available_seats", event.AvailableSeats)

	if event.AvailableSeats > 0 {
		promoted, err := s.drainer.Drain(ctx, eventID)
		if err != nil {
			s.logger.Warn("waitlist drain after resize failed",
				"event_id", eventID, "error", err)
		}
		if len(promoted) > 0 {
			event, err = s.inventory.Get(ctx, eventID)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	s.effects.EventChanged(eventID)

	return event, nil
}

// DeleteEvent removes the event and its ledger rows.
//
// Returns:
//   - error: ErrEventNotFound or ErrNotOwner.
func (s *Service) DeleteEvent(ctx context.Context, organizerID, eventID int64) error {
	const op = "organizer.Service.DeleteEvent"

	if err := s.authorize(ctx, organizerID, eventID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.inventory.Delete(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("event deleted", "event_id", eventID, "organizer_id", organizerID)
	s.effects.EventDeleted(eventID)

	return nil
}

// MarkAttendance checks a registration in at the door. Marking twice is
// allowed; the first attendance time sticks.
//
// Returns:
//   - *domain.Registration: the row after marking.
//   - error: ErrRegistrationNotFound, ErrEventNotFound or ErrNotOwner.
func (s *Service) MarkAttendance(ctx context.Context, organizerID, registrationID int64) (*domain.Registration, error) {
	const op = "organizer.Service.MarkAttendance"

	reg, err := s.ledger.FindByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrRegistrationNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.authorize(ctx, organizerID, reg.EventID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	marked, err := s.ledger.MarkAttended(ctx, registrationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrRegistrationNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("attendance marked",
		"registration_id", registrationID, "event_id", reg.EventID)

	return marked, nil
}

func (s *Service) authorize(ctx context.Context, organizerID, eventID int64) error {
	event, err := s.inventory.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEventNotFound
		}
		return err
	}
	if event.OrganizerID != organizerID {
		return ErrNotOwner
	}
	return nil
}
