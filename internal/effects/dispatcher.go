// Package effects runs the post-commit side effects of the seat
// subsystem: ticket asset generation, notifications, mirror projection
// and change publishing. Everything here is fire-and-forget; failures
// are logged and never reach the caller that committed the transaction.
package effects

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eventhub/eventhub-go/internal/domain"
)

type Notifier interface {
	Notify(ctx context.Context, eventType string, recipientID int64, payload map[string]any) error
}

type TicketGenerator interface {
	Generate(ctx context.Context, reg domain.Registration) (string, error)
}

type TicketStore interface {
	AttachTicket(ctx context.Context, registrationID int64, ref string) error
}

type Projector interface {
	Project(ctx context.Context, eventID int64, snap domain.EventSnapshot) error
	Invalidate(ctx context.Context, eventID int64) error
}

type Invalidator interface {
	InvalidateEvent(ctx context.Context, eventID int64) error
}

type Publisher interface {
	PublishEventChanged(ctx context.Context, eventID int64) error
}

type SnapshotSource interface {
	Snapshot(ctx context.Context, eventID int64) (*domain.EventSnapshot, error)
}

type RecipientSource interface {
	ListActiveByEvent(ctx context.Context, eventID int64) ([]domain.Registration, error)
}

const (
	TypeRegistrationConfirmed = "registration_confirmed"
	TypeWaitlisted            = "waitlist_joined"
	TypeRegistrationCancelled = "registration_cancelled"
	TypeWaitlistPromoted      = "waitlist_promoted"
	TypeEventStatusChanged    = "event_status_change"
)

type Dispatcher struct {
	notifier   Notifier
	tickets    TicketGenerator
	store      TicketStore
	mirror     Projector
	pubsub     Publisher
	snapshots  SnapshotSource
	recipients RecipientSource
	cache      Invalidator
	logger     *slog.Logger
	timeout    time.Duration

	wg sync.WaitGroup
}

func NewDispatcher(
	notifier Notifier,
	tickets TicketGenerator,
	store TicketStore,
	mirror Projector,
	pubsub Publisher,
	snapshots SnapshotSource,
	recipients RecipientSource,
	cache Invalidator,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		notifier:   notifier,
		tickets:    tickets,
		store:      store,
		mirror:     mirror,
		pubsub:     pubsub,
		snapshots:  snapshots,
		recipients: recipients,
		cache:      cache,
		logger:     logger,
		timeout:    30 * time.Second,
	}
}

// run executes fn detached from the request that triggered it. The
// request context may already be done by the time fn runs, so each task
// gets its own bounded context.
func (d *Dispatcher) run(fn func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until all dispatched tasks finish. Used on shutdown and in
// tests; normal operation never waits.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// RegistrationConfirmed fans out after a register call confirmed a seat:
// ticket asset, participant notification, mirror projection.
func (d *Dispatcher) RegistrationConfirmed(reg domain.Registration) {
	d.run(func(ctx context.Context) {
		d.attachTicket(ctx, reg)
		d.notify(ctx, TypeRegistrationConfirmed, reg.UserID, map[string]any{
			"registration_id": reg.ID,
			"event_id":        reg.EventID,
		})
		d.project(ctx, reg.EventID)
	})
}

// Waitlisted fans out after a register call queued the participant.
// No seat moved, so the mirror is left alone.
func (d *Dispatcher) Waitlisted(reg domain.Registration) {
	d.run(func(ctx context.Context) {
		d.notify(ctx, TypeWaitlisted, reg.UserID, map[string]any{
			"registration_id": reg.ID,
			"event_id":        reg.EventID,
		})
	})
}

// RegistrationCancelled fans out after a cancel released a seat.
func (d *Dispatcher) RegistrationCancelled(userID, eventID int64) {
	d.run(func(ctx context.Context) {
		d.notify(ctx, TypeRegistrationCancelled, userID, map[string]any{
			"event_id": eventID,
		})
		d.project(ctx, eventID)
	})
}

// WaitlistPromoted fans out after a promotion: ticket asset for the
// promoted participant, notification, mirror projection.
func (d *Dispatcher) WaitlistPromoted(reg domain.Registration) {
	d.run(func(ctx context.Context) {
		d.attachTicket(ctx, reg)
		d.notify(ctx, TypeWaitlistPromoted, reg.UserID, map[string]any{
			"registration_id": reg.ID,
			"event_id":        reg.EventID,
		})
		d.project(ctx, reg.EventID)
	})
}

// StatusChanged projects the new lifecycle state and notifies every
// confirmed and waitlisted registrant. Per-recipient failures are logged
// and do not stop the blast.
func (d *Dispatcher) StatusChanged(eventID int64, newStatus domain.EventStatus, reason string) {
	d.run(func(ctx context.Context) {
		d.project(ctx, eventID)

		regs, err := d.recipients.ListActiveByEvent(ctx, eventID)
		if err != nil {
			d.logger.Warn("status blast: listing recipients failed",
				"event_id", eventID, "error", err)
			return
		}

		payload := map[string]any{
			"event_id": eventID,
			"status":   string(newStatus),
			"reason":   reason,
		}
		for _, reg := range regs {
			if err := d.notifier.Notify(ctx, TypeEventStatusChanged, reg.UserID, payload); err != nil {
				d.logger.Warn("status blast: notify failed",
					"event_id", eventID, "user_id", reg.UserID, "error", err)
			}
		}
	})
}

// EventChanged re-projects an event without any notification. Used after
// organizer edits such as a capacity resize.
func (d *Dispatcher) EventChanged(eventID int64) {
	d.run(func(ctx context.Context) {
		d.project(ctx, eventID)
	})
}

// EventDeleted drops every derived view of the event and publishes the
// change so other replicas drop theirs too.
func (d *Dispatcher) EventDeleted(eventID int64) {
	d.run(func(ctx context.Context) {
		if err := d.cache.InvalidateEvent(ctx, eventID); err != nil {
			d.logger.Warn("cache invalidation failed",
				"event_id", eventID, "error", err)
		}
		if err := d.mirror.Invalidate(ctx, eventID); err != nil {
			d.logger.Warn("mirror invalidation failed",
				"event_id", eventID, "error", err)
		}
		if err := d.pubsub.PublishEventChanged(ctx, eventID); err != nil {
			d.logger.Warn("event change publish failed",
				"event_id", eventID, "error", err)
		}
	})
}

func (d *Dispatcher) attachTicket(ctx context.Context, reg domain.Registration) {
	ref, err := d.tickets.Generate(ctx, reg)
	if err != nil {
		d.logger.Warn("ticket generation failed",
			"registration_id", reg.ID, "error", err)
		return
	}

	if err := d.store.AttachTicket(ctx, reg.ID, ref); err != nil {
		d.logger.Warn("ticket attach failed",
			"registration_id", reg.ID, "error", err)
	}
}

func (d *Dispatcher) notify(ctx context.Context, eventType string, recipientID int64, payload map[string]any) {
	if err := d.notifier.Notify(ctx, eventType, recipientID, payload); err != nil {
		d.logger.Warn("notification failed",
			"type", eventType, "user_id", recipientID, "error", err)
	}
}

// project pushes a fresh authoritative snapshot to the mirror and
// publishes the change. The mirror is disposable, so a failed projection
// only logs; the polling fallback reads the authoritative store.
func (d *Dispatcher) project(ctx context.Context, eventID int64) {
	if err := d.cache.InvalidateEvent(ctx, eventID); err != nil {
		d.logger.Warn("cache invalidation failed",
			"event_id", eventID, "error", err)
	}

	snap, err := d.snapshots.Snapshot(ctx, eventID)
	if err != nil {
		d.logger.Warn("snapshot read for projection failed",
			"event_id", eventID, "error", err)
		return
	}

	if err := d.mirror.Project(ctx, eventID, *snap); err != nil {
		d.logger.Warn("mirror projection failed",
			"event_id", eventID, "error", err)
	}

	if err := d.pubsub.PublishEventChanged(ctx, eventID); err != nil {
		d.logger.Warn("event change publish failed",
			"event_id", eventID, "error", err)
	}
}
