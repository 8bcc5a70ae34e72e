// Package allocator owns the seat ledger: registering participants into
// seats or onto the waitlist, and cancelling registrations back out.
package allocator

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

type Ledger interface {
	Register(ctx context.Context, userID, eventID int64) (*domain.Registration, error)
	Cancel(ctx context.Context, userID, registrationID int64) (eventID int64, wasConfirmed bool, err error)
}

// Promoter fills a freed seat from the waitlist. Cancellation calls it
// after its own transaction committed; a promotion failure never fails
// the cancel.
type Promoter interface {
	Promote(ctx context.Context, eventID int64) (*domain.Registration, error)
}

type SideEffects interface {
	RegistrationConfirmed(reg domain.Registration)
	Waitlisted(reg domain.Registration)
	RegistrationCancelled(userID, eventID int64)
}

type Service struct {
	inventory Inventory
	ledger    Ledger
	promoter  Promoter
	effects   SideEffects
	logger    *slog.Logger
	now       func() time.Time
}

func New(
	inventory Inventory,
	ledger Ledger,
	promoter Promoter,
	effects SideEffects,
	logger *slog.Logger,
) *Service {
	return &Service{
		inventory: inventory,
		ledger:    ledger,
		promoter:  promoter,
		effects:   effects,
		logger:    logger,
		now:       time.Now,
	}
}

// Register books a seat for the user or queues them when the event is
// sold out and has a waitlist. The lifecycle gate is checked before the
// write: only active events inside their registration window accept
// registrations.
//
// Returns:
//   - *domain.Registration: confirmed or waitlisted row.
//   - error: ErrEventNotFound, ErrRegistrationClosed, ErrAlreadyRegistered
//     or ErrEventFull.
func (s *Service) Register(ctx context.Context, userID, eventID int64) (*domain.Registration, error) {
	const op = "allocator.Service.Register"

	event, err := s.inventory.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !event.Bookable() || event.DeadlinePassed(s.now()) {
		return nil, fmt.Errorf("%s: %w", op, ErrRegistrationClosed)
	}

	reg, err := s.ledger.Register(ctx, userID, eventID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		case errors.Is(err, repository.ErrAlreadyRegistered):
			return nil, fmt.Errorf("%s: %w", op, ErrAlreadyRegistered)
		case errors.Is(err, repository.ErrEventFull):
			return nil, fmt.Errorf("%s: %w", op, ErrEventFull)
		default:
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	switch reg.Status {
	case domain.RegistrationConfirmed:
		s.logger.Info("registration confirmed",
			"event_id", eventID, "user_id", userID, "registration_id", reg.ID)
		s.effects.RegistrationConfirmed(*reg)
	case domain.RegistrationWaitlist:
		s.logger.Info("registration waitlisted",
			"event_id", eventID, "user_id", userID, "registration_id", reg.ID)
		s.effects.Waitlisted(*reg)
	}

	return reg, nil
}

// Cancel releases the user's registration. When the cancelled row held a
// seat, the freed seat is offered to the waitlist after the cancel has
// committed; a failed promotion leaves the seat free and is only logged.
//
// Cancelling twice fails with ErrAlreadyCancelled; the first cancel is
// the only one that moves a seat.
//
// Returns:
//   - error: ErrRegistrationNotFound, ErrCannotCancelAttended or
//     ErrAlreadyCancelled.
func (s *Service) Cancel(ctx context.Context, userID, registrationID int64) error {
	const op = "allocator.Service.Cancel"

	eventID, wasConfirmed, err := s.ledger.Cancel(ctx, userID, registrationID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("%s: %w", op, ErrRegistrationNotFound)
		case errors.Is(err, repository.ErrAttended):
			return fmt.Errorf("%s: %w", op, ErrCannotCancelAttended)
		case errors.Is(err, repository.ErrAlreadyCancelled):
			return fmt.Errorf("%s: %w", op, ErrAlreadyCancelled)
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	s.logger.Info("registration cancelled",
		"event_id", eventID, "user_id", userID,
		"registration_id", registrationID, "seat_released", wasConfirmed)
	s.effects.RegistrationCancelled(userID, eventID)

	if wasConfirmed {
		if _, err := s.promoter.Promote(ctx, eventID); err != nil {
			s.logger.Warn("promotion after cancel failed",
				"event_id", eventID, "error", err)
		}
	}

	return nil
}
