package domain

import (
	"time"
)

type EventStatus string

const (
	EventActive    EventStatus = "active"
	EventCancelled EventStatus = "cancelled"
	EventPostponed EventStatus = "postponed"
	EventCompleted EventStatus = "completed"
)

// lifecycleTransitions encodes the allowed status graph.
// cancelled and completed are terminal.
var lifecycleTransitions = map[EventStatus][]EventStatus{
	EventActive:    {EventCancelled, EventPostponed, EventCompleted},
	EventPostponed: {EventActive, EventCancelled, EventCompleted},
	EventCancelled: {},
	EventCompleted: {},
}

func (s EventStatus) Valid() bool {
	_, ok := lifecycleTransitions[s]
	return ok
}

func (s EventStatus) Terminal() bool {
	next, ok := lifecycleTransitions[s]
	return ok && len(next) == 0
}

func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	for _, allowed := range lifecycleTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationCancelled RegistrationStatus = "cancelled"
	RegistrationWaitlist  RegistrationStatus = "waitlist"
)

type PaymentStatus string

const (
	PaymentNotRequired PaymentStatus = "not_required"
	PaymentPending     PaymentStatus = "pending"
	PaymentPaid        PaymentStatus = "paid"
	PaymentRefunded    PaymentStatus = "refunded"
)

type Event struct {
	ID                   int64       `json:"id"`
	OrganizerID          int64       `json:"organizer_id"`
	Title                string      `json:"title"`
	Description          string      `json:"description"`
	EventDate            time.Time   `json:"event_date"`
	RegistrationDeadline time.Time   `json:"registration_deadline"`
	MaxParticipants      int         `json:"max_participants"`
	AvailableSeats       int         `json:"available_seats"`
	IsPaid               bool        `json:"is_paid"`
	PriceCents           int         `json:"price_cents"`
	AllowWaitlist        bool        `json:"allow_waitlist"`
	IsActive             bool        `json:"is_active"`
	Status               EventStatus `json:"status"`
	StatusReason         string      `json:"status_reason,omitempty"`
	PostponedTo          *time.Time  `json:"postponed_to,omitempty"`
	CancelledAt          *time.Time  `json:"cancelled_at,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// ConfirmedCount derives the number of confirmed registrations from the
// seat counter. Holds as long as the seat invariant holds.
func (e *Event) ConfirmedCount() int {
	return e.MaxParticipants - e.AvailableSeats
}

func (e *Event) SoldOut() bool {
	return e.AvailableSeats <= 0
}

// Bookable reports whether the lifecycle state permits new registrations.
// Postponed events stay visible but do not accept registrations.
func (e *Event) Bookable() bool {
	return e.IsActive && e.Status == EventActive
}

func (e *Event) DeadlinePassed(now time.Time) bool {
	return now.After(e.RegistrationDeadline)
}

// PaymentStatusFor returns the payment sub-state a newly confirmed
// registration should carry for this event.
func (e *Event) PaymentStatusFor() PaymentStatus {
	if e.IsPaid {
		return PaymentPending
	}
	return PaymentNotRequired
}

// StatusChange carries the resolved lifecycle write for an event. EventDate
// is non-nil only when the change shifts the date (postpone).
type StatusChange struct {
	Status      EventStatus
	Reason      string
	PostponedTo *time.Time
	CancelledAt *time.Time
	IsActive    bool
	EventDate   *time.Time
}

type Registration struct {
	ID             int64              `json:"id"`
	UserID         int64              `json:"user_id"`
	EventID        int64              `json:"event_id"`
	Status         RegistrationStatus `json:"status"`
	PaymentStatus  PaymentStatus      `json:"payment_status"`
	TicketRef      string             `json:"ticket_ref,omitempty"`
	Attended       bool               `json:"attended"`
	AttendanceTime *time.Time         `json:"attendance_time,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

func (r *Registration) Active() bool {
	return r.Status != RegistrationCancelled
}

// EventSnapshot is the polled UI view of an event and the unit the
// mirror store projects. Never authoritative.
type EventSnapshot struct {
	EventID         int64       `json:"event_id"`
	AvailableSeats  int         `json:"available_seats"`
	MaxParticipants int         `json:"max_participants"`
	SoldOut         bool        `json:"is_sold_out"`
	Status          EventStatus `json:"status"`
	StatusReason    string      `json:"status_reason"`
	PostponedTo     *time.Time  `json:"postponed_to,omitempty"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Snapshot builds the projection view from an authoritative event row.
func (e *Event) Snapshot() EventSnapshot {
	return EventSnapshot{
		EventID:         e.ID,
		AvailableSeats:  e.AvailableSeats,
		MaxParticipants: e.MaxParticipants,
		SoldOut:         e.SoldOut(),
		Status:          e.Status,
		StatusReason:    e.StatusReason,
		PostponedTo:     e.PostponedTo,
		UpdatedAt:       e.UpdatedAt,
	}
}
