// Package query serves the read side: event summaries, listings and the
// polled seat snapshot. Reads prefer the cache and the mirror but always
// degrade to the authoritative store; the mirror is never trusted for
// correctness.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eventhub/eventhub-go/internal/domain"
	"github.com/eventhub/eventhub-go/internal/repository"
	redisrepo "github.com/eventhub/eventhub-go/internal/repository/redis"
)

type Inventory interface {
	Get(ctx context.Context, id int64) (*domain.Event, error)
	List(ctx context.Context, limit, offset int) ([]domain.Event, error)
	Snapshot(ctx context.Context, id int64) (*domain.EventSnapshot, error)
}

type MirrorStore interface {
	Project(ctx context.Context, eventID int64, snap domain.EventSnapshot) error
	Snapshot(ctx context.Context, eventID int64) (domain.EventSnapshot, bool, error)
	Invalidate(ctx context.Context, eventID int64) error
}

const (
	defaultListLimit = 20
	maxListLimit     = 100

	summaryTTL = 30 * time.Second
)

type Service struct {
	inventory Inventory
	mirror    MirrorStore
	cache     *redisrepo.Cache
	logger    *slog.Logger
}

func New(inventory Inventory, mirror MirrorStore, cache *redisrepo.Cache, logger *slog.Logger) *Service {
	return &Service{
		inventory: inventory,
		mirror:    mirror,
		cache:     cache,
		logger:    logger,
	}
}

// GetEvent returns the full event, cached briefly. A cache outage falls
// back to the authoritative store instead of failing the read.
//
// Returns:
//   - error: ErrEventNotFound if the event is missing.
func (s *Service) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "query.Service.GetEvent"

	event, err := redisrepo.GetOrSetJSON(
		ctx, s.cache, redisrepo.KeyEventSummary(id), summaryTTL,
		func(ctx context.Context) (*domain.Event, error) {
			return s.inventory.Get(ctx, id)
		},
	)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}

		s.logger.Warn("event cache unavailable, reading through",
			"event_id", id, "error", err)

		event, err = s.inventory.Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return event, nil
}

// ListEvents lists events ordered by date. Limit is clamped to
// [1, maxListLimit]; a non-positive limit takes the default.
func (s *Service) ListEvents(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	const op = "query.Service.ListEvents"

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	events, err := s.inventory.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return events, nil
}

// EventStatus returns the polled seat snapshot. The mirror answers when
// it can; a miss or a mirror failure reads the authoritative store and
// re-projects the result to heal the mirror.
//
// Returns:
//   - error: ErrEventNotFound if the event is missing.
func (s *Service) EventStatus(ctx context.Context, id int64) (*domain.EventSnapshot, error) {
	const op = "query.Service.EventStatus"

	snap, ok, err := s.mirror.Snapshot(ctx, id)
	if err != nil {
		s.logger.Warn("mirror read failed, falling back",
			"event_id", id, "error", err)
	}
	if err == nil && ok {
		return &snap, nil
	}

	fresh, err := s.inventory.Snapshot(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.mirror.Project(ctx, id, *fresh); err != nil {
		s.logger.Warn("mirror heal failed", "event_id", id, "error", err)
	}

	return fresh, nil
}

// RepairMirror re-projects the authoritative snapshot of an event into
// the mirror and returns it. A deleted event drops its mirror entry
// instead.
//
// Returns:
//   - *domain.EventSnapshot: the snapshot that was projected.
//   - error: ErrEventNotFound if the event is missing.
func (s *Service) RepairMirror(ctx context.Context, id int64) (*domain.EventSnapshot, error) {
	const op = "query.Service.RepairMirror"

	snap, err := s.inventory.Snapshot(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if derr := s.mirror.Invalidate(ctx, id); derr != nil {
				s.logger.Warn("mirror invalidate failed",
					"event_id", id, "error", derr)
			}
			return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.mirror.Project(ctx, id, *snap); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return snap, nil
}
