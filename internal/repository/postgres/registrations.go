package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventhub/eventhub-go/internal/domain"
	"github.com/eventhub/eventhub-go/internal/repository"
)

type RegistrationRepo struct {
	pool  *pgxpool.Pool
	store *Store
	db    DB
}

func (r *RegistrationRepo) With(db DB) *RegistrationRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *RegistrationRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const registrationColumns = `id, user_id, event_id, status, payment_status,
	ticket_ref, attended, attendance_time, created_at`

func scanRegistration(row interface{ Scan(dest ...any) error }) (*domain.Registration, error) {
	var reg domain.Registration
	err := row.Scan(
		&reg.ID, &reg.UserID, &reg.EventID, &reg.Status, &reg.PaymentStatus,
		&reg.TicketRef, &reg.Attended, &reg.AttendanceTime, &reg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// Register creates or reopens a ledger row for (user, event), consuming a
// seat when one is available. The seat decrement is a single conditional
// statement; its affected-row count is the only success signal, so two
// racers on the last seat cannot both confirm. The decrement and the
// ledger write commit as one transaction.
//
// Returns:
//   - *domain.Registration: the row, with Status confirmed or waitlist.
//   - error: repository.ErrNotFound if the event is missing.
//   - error: repository.ErrAlreadyRegistered if an active row exists.
//   - error: repository.ErrEventFull if sold out and the event has no waitlist.
func (r *RegistrationRepo) Register(ctx context.Context, userID, eventID int64) (*domain.Registration, error) {
	const op = "postgres.RegistrationRepo.Register"

	if r.db != nil {
		reg, err := r.registerCore(ctx, r.db, userID, eventID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
		}
		return reg, nil
	}

	var reg *domain.Registration
	err := r.store.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		var err error
		reg, err = r.registerCore(ctx, tx, userID, eventID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return reg, nil
}

func (r *RegistrationRepo) registerCore(ctx context.Context, db DB, userID, eventID int64) (*domain.Registration, error) {
	var allowWaitlist, isPaid bool
	if err := db.QueryRow(ctx,
		`SELECT allow_waitlist, is_paid FROM events WHERE id = $1`,
		eventID,
	).Scan(&allowWaitlist, &isPaid); err != nil {
		return nil, err
	}

	// A cancelled row is reopened instead of inserting a duplicate; any
	// other existing row means the user already holds a registration.
	var reuseID int64
	var prior domain.RegistrationStatus
	err := db.QueryRow(ctx,
		`SELECT id, status FROM registrations
		 WHERE user_id = $1 AND event_id = $2`,
		userID, eventID,
	).Scan(&reuseID, &prior)
	switch {
	case err == nil:
		if prior != domain.RegistrationCancelled {
			return nil, repository.ErrAlreadyRegistered
		}
	case errors.Is(err, pgx.ErrNoRows):
		reuseID = 0
	default:
		return nil, err
	}

	tag, err := db.Exec(ctx,
		`UPDATE events
		 SET available_seats = available_seats - 1, updated_at = now()
		 WHERE id = $1 AND available_seats > 0`,
		eventID,
	)
	if err != nil {
		return nil, err
	}

	status := domain.RegistrationConfirmed
	payment := domain.PaymentNotRequired
	if isPaid {
		payment = domain.PaymentPending
	}

	if tag.RowsAffected() == 0 {
		// No seat. Waitlist rows never consume one.
		if !allowWaitlist {
			return nil, repository.ErrEventFull
		}
		status = domain.RegistrationWaitlist
		payment = domain.PaymentNotRequired
	}

	if reuseID != 0 {
		return scanRegistration(db.QueryRow(ctx,
			`UPDATE registrations
			 SET status = $2, payment_status = $3, ticket_ref = '',
			     attended = false, attendance_time = NULL, created_at = now()
			 WHERE id = $1
			 RETURNING `+registrationColumns,
			reuseID, status, payment,
		))
	}

	return scanRegistration(db.QueryRow(ctx,
		`INSERT INTO registrations(user_id, event_id, status, payment_status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+registrationColumns,
		userID, eventID, status, payment,
	))
}

// Cancel marks the caller's registration cancelled and, when it was
// confirmed, returns the seat to the pool in the same transaction.
//
// Returns:
//   - int64: the event ID the row belonged to.
//   - bool: whether the row was confirmed (a seat was released).
//   - error: repository.ErrNotFound if no such row is owned by the user.
//   - error: repository.ErrAttended if the registration was already attended.
//   - error: repository.ErrAlreadyCancelled on a second cancel.
func (r *RegistrationRepo) Cancel(ctx context.Context, userID, registrationID int64) (int64, bool, error) {
	const op = "postgres.RegistrationRepo.Cancel"

	if r.db != nil {
		eventID, wasConfirmed, err := r.cancelCore(ctx, r.db, userID, registrationID)
		if err != nil {
			return 0, false, fmt.Errorf("%s: %w", op, translateDBErr(err))
		}
		return eventID, wasConfirmed, nil
	}

	var eventID int64
	var wasConfirmed bool
	err := r.store.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		var err error
		eventID, wasConfirmed, err = r.cancelCore(ctx, tx, userID, registrationID)
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return eventID, wasConfirmed, nil
}

func (r *RegistrationRepo) cancelCore(ctx context.Context, db DB, userID, registrationID int64) (int64, bool, error) {
	var eventID int64
	var status domain.RegistrationStatus
	var attended bool
	if err := db.QueryRow(ctx,
		`SELECT event_id, status, attended FROM registrations
		 WHERE id = $1 AND user_id = $2
		 FOR UPDATE`,
		registrationID, userID,
	).Scan(&eventID, &status, &attended); err != nil {
		return 0, false, err
	}

	if attended {
		return 0, false, repository.ErrAttended
	}
	if status == domain.RegistrationCancelled {
		return 0, false, repository.ErrAlreadyCancelled
	}

	wasConfirmed := status == domain.RegistrationConfirmed

	if _, err := db.Exec(ctx,
		`UPDATE registrations
		 SET status = 'cancelled', ticket_ref = '',
		     payment_status = CASE WHEN payment_status = 'paid'
		                           THEN 'refunded' ELSE payment_status END
		 WHERE id = $1`,
		registrationID,
	); err != nil {
		return 0, false, err
	}

	if wasConfirmed {
		// Bounded increment keeps the counter within the invariant even
		// if a resize shrank the pool underneath us.
		if _, err := db.Exec(ctx,
			`UPDATE events
			 SET available_seats = available_seats + 1, updated_at = now()
			 WHERE id = $1 AND available_seats < max_participants`,
			eventID,
		); err != nil {
			return 0, false, err
		}
	}

	return eventID, wasConfirmed, nil
}

// PromoteOldest promotes the chronologically oldest waitlisted row of the
// event, consuming one free seat. The event row is read fresh and locked,
// so concurrent promoters serialize and a single freed seat can never be
// consumed twice.
//
// Returns:
//   - *domain.Registration: the promoted row.
//   - error: repository.ErrNotFound if the event is missing.
//   - error: repository.ErrNothingToPromote if no seat is free or no row waits.
func (r *RegistrationRepo) PromoteOldest(ctx context.Context, eventID int64) (*domain.Registration, error) {
	const op = "postgres.RegistrationRepo.PromoteOldest"

	if r.db != nil {
		reg, err := r.promoteCore(ctx, r.db, eventID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
		}
		return reg, nil
	}

	var reg *domain.Registration
	err := r.store.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		var err error
		reg, err = r.promoteCore(ctx, tx, eventID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return reg, nil
}

func (r *RegistrationRepo) promoteCore(ctx context.Context, db DB, eventID int64) (*domain.Registration, error) {
	var available int
	var isPaid bool
	if err := db.QueryRow(ctx,
		`SELECT available_seats, is_paid FROM events
		 WHERE id = $1
		 FOR UPDATE`,
		eventID,
	).Scan(&available, &isPaid); err != nil {
		return nil, err
	}

	if available <= 0 {
		return nil, repository.ErrNothingToPromote
	}

	var regID int64
	err := db.QueryRow(ctx,
		`SELECT id FROM registrations
		 WHERE event_id = $1 AND status = 'waitlist'
		 ORDER BY created_at ASC, id ASC
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`,
		eventID,
	).Scan(&regID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNothingToPromote
		}
		return nil, err
	}

	tag, err := db.Exec(ctx,
		`UPDATE events
		 SET available_seats = available_seats - 1, updated_at = now()
		 WHERE id = $1 AND available_seats > 0`,
		eventID,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		// Seat went to a racer between the read and the write.
		return nil, repository.ErrNothingToPromote
	}

	payment := domain.PaymentNotRequired
	if isPaid {
		payment = domain.PaymentPending
	}

	return scanRegistration(db.QueryRow(ctx,
		`UPDATE registrations
		 SET status = 'confirmed', payment_status = $2
		 WHERE id = $1
		 RETURNING `+registrationColumns,
		regID, payment,
	))
}

// FindByID retrieves a registration by its ID.
//
// Returns:
//   - error: repository.ErrNotFound if the row is not found.
func (r *RegistrationRepo) FindByID(ctx context.Context, id int64) (*domain.Registration, error) {
	const op = "postgres.RegistrationRepo.FindByID"

	db := r.handle()

	reg, err := scanRegistration(db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return reg, nil
}

// FindByUserEvent retrieves the single row for a (user, event) pair.
//
// Returns:
//   - error: repository.ErrNotFound if no row exists.
func (r *RegistrationRepo) FindByUserEvent(ctx context.Context, userID, eventID int64) (*domain.Registration, error) {
	const op = "postgres.RegistrationRepo.FindByUserEvent"

	db := r.handle()

	reg, err := scanRegistration(db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE user_id = $1 AND event_id = $2`,
		userID, eventID,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return reg, nil
}

// ListActiveByEvent lists confirmed and waitlisted rows for an event in
// FIFO order. Used for notification fan-out on status changes.
func (r *RegistrationRepo) ListActiveByEvent(ctx context.Context, eventID int64) ([]domain.Registration, error) {
	const op = "postgres.RegistrationRepo.ListActiveByEvent"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = $1 AND status IN ('confirmed', 'waitlist')
		 ORDER BY created_at ASC, id ASC`,
		eventID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var regs []domain.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		regs = append(regs, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return regs, nil
}

// MarkAttended flags a registration as attended. Marking twice is not an
// error; the attendance time of the first marking wins.
//
// Returns:
//   - *domain.Registration: the row after marking.
//   - error: repository.ErrNotFound if the row is not found.
func (r *RegistrationRepo) MarkAttended(ctx context.Context, id int64) (*domain.Registration, error) {
	const op = "postgres.RegistrationRepo.MarkAttended"

	db := r.handle()

	reg, err := scanRegistration(db.QueryRow(ctx,
		`UPDATE registrations
		 SET attended = true,
		     attendance_time = COALESCE(attendance_time, now())
		 WHERE id = $1
		 RETURNING `+registrationColumns,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return reg, nil
}

// AttachTicket stores the generated ticket asset reference on a confirmed
// row. Best-effort follow-up to confirmation; a missing or no longer
// confirmed row is reported as repository.ErrNotFound.
func (r *RegistrationRepo) AttachTicket(ctx context.Context, id int64, ref string) error {
	const op = "postgres.RegistrationRepo.AttachTicket"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE registrations SET ticket_ref = $2
		 WHERE id = $1 AND status = 'confirmed'`,
		id, ref,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}
