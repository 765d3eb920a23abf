package labcore

import "errors"

// Custom errors
var (
	ErrNotFound           = errors.New("job not found")
	ErrForbidden          = errors.New("actor not authorized for this transition")
	ErrInvalidTransition  = errors.New("invalid job state transition")
	ErrSeparationOfDuties = errors.New("reviewer must differ from the submitting technician")
	ErrJobFrozen          = errors.New("job is invoiced and frozen")
	ErrConfiguration      = errors.New("invalid role registry configuration")
	ErrPersistence        = errors.New("persistence collaborator failure")
	ErrInvalidInput       = errors.New("invalid input")
)
