package allocator

import "errors"

var (
	ErrEventNotFound        = errors.New("event not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrRegistrationClosed   = errors.New("registration closed")
	ErrAlreadyRegistered    = errors.New("already registered")
	ErrEventFull            = errors.New("event full")
	ErrCannotCancelAttended = errors.New("cannot cancel attended registration")
	ErrAlreadyCancelled     = errors.New("registration already cancelled")
)
