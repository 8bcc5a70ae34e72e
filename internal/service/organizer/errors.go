package organizer

import "errors"

var (
	ErrEventNotFound        = errors.New("event not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrNotOwner             = errors.New("caller does not organize this event")
	ErrInvalidCapacity      = errors.New("capacity must be positive")
	ErrInvalidSchedule      = errors.New("registration deadline must precede the event date")
	ErrInvalidTitle         = errors.New("title must not be empty")
	ErrInvalidPrice         = errors.New("paid event needs a positive price")
)
