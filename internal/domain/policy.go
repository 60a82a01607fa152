package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	StatusPending InvoiceStatus = "Pending"
	StatusPartial InvoiceStatus = "Partial"
	StatusPaid    InvoiceStatus = "Paid"
)

func ParseInvoiceStatus(s string) (InvoiceStatus, bool) {
	switch InvoiceStatus(s) {
	case StatusPending, StatusPartial, StatusPaid:
		return InvoiceStatus(s), true
	}
	return "", false
}

// DeriveStatus maps the amounts of an invoice to its status.
// An invoice with nothing due (free invoice) is Paid even when nothing was paid.
func DeriveStatus(totalAmount, lateFine, paidAmount decimal.Decimal) InvoiceStatus {
	due := totalAmount.Add(lateFine)
	switch {
	case !due.IsPositive():
		return StatusPaid
	case !paidAmount.IsPositive():
		return StatusPending
	case paidAmount.LessThan(due):
		return StatusPartial
	default:
		return StatusPaid
	}
}

// DueDate builds the due date of a billing period. dueDay is clamped into the month.
func DueDate(dueDay, month, year int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	last := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, loc).Day()
	day := dueDay
	if day < 1 {
		day = 1
	}
	if day > last {
		day = last
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
}

// IsLate reports whether a payment made on paymentDate falls strictly after the due date.
// Only the calendar date of paymentDate counts, so any time on the due day is on time.
func IsLate(dueDay, month, year int, paymentDate time.Time) bool {
	loc := paymentDate.Location()
	due := DueDate(dueDay, month, year, loc)
	y, m, d := paymentDate.Date()
	paid := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return paid.After(due)
}
