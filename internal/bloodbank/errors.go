package bloodbank

import (
	"errors"
	"fmt"
)

// Families. Concrete errors below wrap one of these so callers can match
// either the family or the precise case with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrAlreadyClaimed    = errors.New("request already claimed by another organization")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrIneligible        = errors.New("donor is not eligible")
	ErrInvalidInput      = errors.New("invalid input")
)

var (
	ErrBatchNotFound       = fmt.Errorf("batch %w", ErrNotFound)
	ErrRequestNotFound     = fmt.Errorf("request %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
	ErrDonorNotFound       = fmt.Errorf("donor %w", ErrNotFound)
	ErrContactNotFound     = fmt.Errorf("contact %w", ErrNotFound)

	ErrBatchNotAvailable      = fmt.Errorf("%w: batch is not available", ErrInvalidState)
	ErrBatchNotReserved       = fmt.Errorf("%w: batch is not reserved", ErrInvalidState)
	ErrAppointmentNotApproved = fmt.Errorf("%w: appointment must be APPROVED before completion", ErrInvalidState)
	ErrAlreadyCompleted       = fmt.Errorf("%w: appointment already completed", ErrInvalidState)
	ErrInvalidTransition      = fmt.Errorf("%w: transition not allowed", ErrInvalidState)
	ErrNotRequester           = fmt.Errorf("%w: only the requester may cancel", ErrInvalidState)
)

// Storage-level conditions. Workflows translate or retry these; they should
// not normally reach the HTTP layer.
var (
	ErrDuplicateID   = errors.New("duplicate id")
	ErrStaleSnapshot = errors.New("stale snapshot")
)

// IneligibleError carries the evaluator's verdict out of Book.
type IneligibleError struct {
	Reason           string
	DaysRemaining    int
	NextEligibleDate string
}

func (e *IneligibleError) Error() string { return "donor is not eligible: " + e.Reason }

func (e *IneligibleError) Unwrap() error { return ErrIneligible }

// InsufficientStockError reports how short a FEFO deduction was.
type InsufficientStockError struct {
	OrgID     string
	Group     BloodGroup
	Required  int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: org=%s group=%s required=%d available=%d",
		e.OrgID, e.Group, e.Required, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }
