package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrNoFeeStructure      = errors.New("no fee structure configured")
	ErrInvalidAmount       = errors.New("amount must be a positive number with at most 2 decimal places")
	ErrAlreadySettled      = errors.New("invoice is already fully paid")
	ErrOverpayment         = errors.New("payment exceeds outstanding balance")
	ErrConflict            = errors.New("invoice was modified concurrently, retry the request")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidFeeStructure = errors.New("invalid fee structure")
	ErrInvalidPeriod       = errors.New("invalid billing period")
	ErrInvalidArgument     = errors.New("invalid argument")
)

// FieldError points at the offending field of a rejected fee configuration.
type FieldError struct {
	Field   string
	Message string
	Err     error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// OverpaymentError carries the balance the caller can still pay.
type OverpaymentError struct {
	Outstanding decimal.Decimal
	Attempted   decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %s exceeds outstanding balance of %s", e.Attempted.StringFixed(2), e.Outstanding.StringFixed(2))
}

func (e *OverpaymentError) Is(target error) bool {
	return target == ErrOverpayment
}
