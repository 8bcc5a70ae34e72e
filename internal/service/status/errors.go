package status

import "errors"

var (
	ErrEventNotFound         = errors.New("event not found")
	ErrNotOwner              = errors.New("caller does not organize this event")
	ErrInvalidStatus         = errors.New("invalid event status")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrPostponedDateRequired = errors.New("postponed status requires a new date")
	ErrPostponedDatePast     = errors.New("postponed date must be in the future")
)
