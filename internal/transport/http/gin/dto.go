package httpgin

import "time"

type CreateEventRequest struct {
	Title                string `json:"title" binding:"required"`
	Description          string `json:"description"`
	EventDate            string `json:"event_date" binding:"required"`
	RegistrationDeadline string `json:"registration_deadline" binding:"required"`
	MaxParticipants      int    `json:"max_participants" binding:"required,gt=0"`
	IsPaid               bool   `json:"is_paid"`
	PriceCents           int    `json:"price_cents"`
	AllowWaitlist        bool   `json:"allow_waitlist"`
}

// UserRef is the optional request body carrying the acting user. The
// X-User-ID header wins when both are present.
type UserRef struct {
	UserID int64 `json:"user_id"`
}

type ChangeStatusRequest struct {
	Status      string `json:"status" binding:"required"`
	Reason      string `json:"reason"`
	PostponedTo string `json:"postponed_to"`
}

type ResizeCapacityRequest struct {
	MaxParticipants int `json:"max_participants" binding:"required,gt=0"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
