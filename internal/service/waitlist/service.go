// Package waitlist promotes queued registrations into freed seats in
// FIFO order. Promotion is the only path from waitlist to confirmed.
package waitlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eventhub/eventhub-go/internal/domain"
	"github.com/eventhub/eventhub-go/internal/repository"
)

type Ledger interface {
	PromoteOldest(ctx context.Context, eventID int64) (*domain.Registration, error)
}

type SideEffects interface {
	WaitlistPromoted(reg domain.Registration)
}

type Service struct {
	ledger  Ledger
	effects SideEffects
	logger  *slog.Logger
}

func New(ledger Ledger, effects SideEffects, logger *slog.Logger) *Service {
	return &Service{
		ledger:  ledger,
		effects: effects,
		logger:  logger,
	}
}

// Promote moves the oldest waitlisted registration of the event into a
// free seat. Having no free seat or no waiting row is a normal outcome,
// not an error; both return (nil, nil).
//
// Returns:
//   - *domain.Registration: the promoted row, or nil if nothing moved.
//   - error: ErrEventNotFound if the event is missing.
func (s *Service) Promote(ctx context.Context, eventID int64) (*domain.Registration, error) {
	const op = "waitlist.Service.Promote"

	reg, err := s.ledger.PromoteOldest(ctx, eventID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNothingToPromote):
			return nil, nil
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		default:
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	s.logger.Info("waitlist promotion",
		"event_id", eventID,
		"registration_id", reg.ID,
		"user_id", reg.UserID,
	)
	s.effects.WaitlistPromoted(*reg)

	return reg, nil
}

// Drain promotes until no seat or no waiting row remains. Used after a
// capacity increase frees several seats at once.
//
// Returns the promoted rows in promotion order.
func (s *Service) Drain(ctx context.Context, eventID int64) ([]domain.Registration, error) {
	const op = "waitlist.Service.Drain"

	var promoted []domain.Registration
	for {
		reg, err := s.Promote(ctx, eventID)
		if err != nil {
			return promoted, fmt.Errorf("%s: %w", op, err)
		}
		if reg == nil {
			return promoted, nil
		}
		promoted = append(promoted, *reg)
	}
}
