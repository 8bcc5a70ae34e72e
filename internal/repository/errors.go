package repository

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrEventFull         = errors.New("event is full")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrAlreadyCancelled  = errors.New("registration already cancelled")
	ErrAttended          = errors.New("registration already attended")
	ErrNothingToPromote  = errors.New("nothing to promote")
)
