package services

import (
	"errors"

	"taskmarket/internal/db"
	"taskmarket/internal/negotiation"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("actor has no standing on this application")
	ErrInvalidTransition      = negotiation.ErrInvalidTransition
	ErrInsufficientCredit     = errors.New("insufficient credit")
	ErrConcurrentModification = db.ErrConcurrentModification

	ErrInvalidPrice          = errors.New("invalid price")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrSelfHire              = errors.New("poster cannot be the worker on their own task")
	ErrTaskClosed            = errors.New("task is not open")
	ErrDuplicateApplication  = errors.New("worker already has an application on this task")
	ErrDuplicateTopUp        = errors.New("top-up reference already processed")
	ErrMissingTopUpReference = errors.New("top-up reference is required")
)
