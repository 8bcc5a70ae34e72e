package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventhub/eventhub-go/internal/domain"
	"github.com/eventhub/eventhub-go/internal/repository"
)

type EventRepo struct {
	pool  *pgxpool.Pool
	store *Store
	db    DB
}

func (r *EventRepo) With(db DB) *EventRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *EventRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const eventColumns = `id, organizer_id, title, description, event_date,
	registration_deadline, max_participants, available_seats, is_paid,
	price_cents, allow_waitlist, is_active, status, status_reason,
	postponed_to, cancelled_at, created_at, updated_at`

func scanEvent(row interface{ Scan(dest ...any) error }) (*domain.Event, error) {
	var e domain.Event
	err := row.Scan(
		&e.ID, &e.OrganizerID, &e.Title, &e.Description, &e.EventDate,
		&e.RegistrationDeadline, &e.MaxParticipants, &e.AvailableSeats,
		&e.IsPaid, &e.PriceCents, &e.AllowWaitlist, &e.IsActive,
		&e.Status, &e.StatusReason, &e.PostponedTo, &e.CancelledAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts an event with a full seat pool (available = max) and an
// active lifecycle status.
//
// Returns:
//   - int64: the created event ID.
//   - error: repository.ErrConflict on a uniqueness violation.
func (r *EventRepo) Create(ctx context.Context, e *domain.Event) (int64, error) {
	const op = "postgres.EventRepo.Create"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO events(
			organizer_id, title, description, event_date, registration_deadline,
			max_participants, available_seats, is_paid, price_cents,
			allow_waitlist, is_active, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $6, $7, $8, $9, true, 'active')
		 RETURNING id`,
		e.OrganizerID, e.Title, e.Description, e.EventDate,
		e.RegistrationDeadline, e.MaxParticipants, e.IsPaid, e.PriceCents,
		e.AllowWaitlist,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

// Get retrieves an event by its ID.
//
// Returns:
//   - *domain.Event: the event when found.
//   - error: repository.ErrNotFound if the event is not found.
func (r *EventRepo) Get(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "postgres.EventRepo.Get"

	db := r.handle()

	e, err := scanEvent(db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return e, nil
}

// List lists events ordered by event date ascending.
func (r *EventRepo) List(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	const op = "postgres.EventRepo.List"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+eventColumns+` FROM events
		 ORDER BY event_date ASC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return events, nil
}

// Snapshot reads the authoritative projection view of an event.
//
// Returns:
//   - *domain.EventSnapshot: the snapshot when the event exists.
//   - error: repository.ErrNotFound if the event is not found.
func (r *EventRepo) Snapshot(ctx context.Context, id int64) (*domain.EventSnapshot, error) {
	const op = "postgres.EventRepo.Snapshot"

	db := r.handle()

	var s domain.EventSnapshot
	if err := db.QueryRow(ctx,
		`SELECT id, available_seats, max_participants, status, status_reason,
			postponed_to, updated_at
		 FROM events WHERE id = $1`,
		id,
	).Scan(
		&s.EventID, &s.AvailableSeats, &s.MaxParticipants, &s.Status,
		&s.StatusReason, &s.PostponedTo, &s.UpdatedAt,
	); err != nil {
		return nil, wrapDBErr(op, err)
	}
	s.SoldOut = s.AvailableSeats <= 0

	return &s, nil
}

// UpdateStatus writes the lifecycle fields decided by the status service.
// The event date shifts only when the change carries a new one (postpone).
//
// Returns:
//   - error: repository.ErrNotFound if the event is not found.
func (r *EventRepo) UpdateStatus(ctx context.Context, id int64, ch domain.StatusChange) error {
	const op = "postgres.EventRepo.UpdateStatus"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE events
		 SET status = $2,
		     status_reason = $3,
		     postponed_to = $4,
		     cancelled_at = $5,
		     is_active = $6,
		     event_date = COALESCE($7, event_date),
		     updated_at = now()
		 WHERE id = $1`,
		id, ch.Status, ch.Reason, ch.PostponedTo, ch.CancelledAt,
		ch.IsActive, ch.EventDate,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}

// Resize changes the capacity and recomputes the seat pool from the count
// of confirmed registrations, clamped at zero. Single statement so the
// recompute cannot race a concurrent confirmation.
//
// Returns:
//   - *domain.Event: the event after the resize.
//   - error: repository.ErrNotFound if the event is not found.
func (r *EventRepo) Resize(ctx context.Context, id int64, newMax int) (*domain.Event, error) {
	const op = "postgres.EventRepo.Resize"

	db := r.handle()

	e, err := scanEvent(db.QueryRow(ctx,
		`UPDATE events
		 SET max_participants = $2,
		     available_seats = GREATEST(0, $2 - (
		         SELECT COUNT(*) FROM registrations
		         WHERE event_id = $1 AND status = 'confirmed')),
		     updated_at = now()
		 WHERE id = $1
		 RETURNING `+eventColumns,
		id, newMax,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return e, nil
}

// Delete removes an event and cascades to its ledger rows in one
// transaction.
//
// Returns:
//   - error: repository.ErrNotFound if the event is not found.
func (r *EventRepo) Delete(ctx context.Context, id int64) error {
	const op = "postgres.EventRepo.Delete"

	if r.db != nil {
		return wrapDBErr(op, r.deleteCore(ctx, r.db, id))
	}

	err := r.store.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		return r.deleteCore(ctx, tx, id)
	})

	return wrapDBErr(op, err)
}

func (r *EventRepo) deleteCore(ctx context.Context, db DB, id int64) error {
	if _, err := db.Exec(ctx,
		`DELETE FROM registrations WHERE event_id = $1`, id,
	); err != nil {
		return err
	}

	tag, err := db.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}
