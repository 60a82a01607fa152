package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type FeeHead struct {
	ID          string
	Name        string
	Description *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type FeeStructureHead struct {
	HeadID string          `json:"head_id"`
	Amount decimal.Decimal `json:"amount"`
}

// FeeStructure is keyed by class and the literal calendar year the invoices are raised for.
type FeeStructure struct {
	ClassID string
	Year    int
	Heads   []FeeStructureHead
	LateFee decimal.Decimal
	DueDay  int

	UpdatedAt time.Time
}

func (fs FeeStructure) Total() decimal.Decimal {
	total := decimal.Zero
	for _, h := range fs.Heads {
		total = total.Add(h.Amount)
	}
	return total
}

func (fs FeeStructure) Validate() error {
	if strings.TrimSpace(fs.ClassID) == "" {
		return invalidField("class_id", "class_id is required")
	}
	if fs.Year <= 0 {
		return invalidField("year", "year must be positive")
	}
	if fs.DueDay < 1 || fs.DueDay > 31 {
		return invalidField("due_day", "due_day must be between 1 and 31")
	}
	if fs.LateFee.IsNegative() {
		return invalidField("late_fee", "late_fee must not be negative")
	}
	if !WholeCents(fs.LateFee) {
		return invalidField("late_fee", "late_fee must have at most 2 decimal places")
	}

	seen := make(map[string]struct{}, len(fs.Heads))
	for i, h := range fs.Heads {
		field := fmt.Sprintf("heads[%d]", i)
		if strings.TrimSpace(h.HeadID) == "" {
			return invalidField(field+".head_id", "head_id is required")
		}
		if h.Amount.IsNegative() {
			return invalidField(field+".amount", "amount must not be negative")
		}
		if !WholeCents(h.Amount) {
			return invalidField(field+".amount", "amount must have at most 2 decimal places")
		}
		if _, dup := seen[h.HeadID]; dup {
			return invalidField(field+".head_id", fmt.Sprintf("fee head %s is listed more than once", h.HeadID))
		}
		seen[h.HeadID] = struct{}{}
	}
	return nil
}

func invalidField(field, msg string) error {
	return &FieldError{Field: field, Message: msg, Err: ErrInvalidFeeStructure}
}
