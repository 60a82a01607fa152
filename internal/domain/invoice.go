package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceLine struct {
	HeadID string          `json:"head_id"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

type Payment struct {
	ID         string
	Amount     decimal.Decimal
	Date       time.Time
	RecordedAt time.Time
}

type Invoice struct {
	ID            string
	SchoolID      string
	StudentID     string
	ClassID       string
	Month         int
	Year          int
	ChallanNumber int64

	Lines       []InvoiceLine
	TotalAmount decimal.Decimal

	// snapshot of the fee structure at generation time
	LateFee decimal.Decimal
	DueDay  int

	LateFine   decimal.Decimal
	PaidAmount decimal.Decimal
	Status     InvoiceStatus
	Payments   []Payment

	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Due is the amount owed including any late fine.
func (inv Invoice) Due() decimal.Decimal {
	return inv.TotalAmount.Add(inv.LateFine)
}

// Outstanding is the unpaid part of Due, never negative.
func (inv Invoice) Outstanding() decimal.Decimal {
	return decimal.Max(decimal.Zero, inv.Due().Sub(inv.PaidAmount))
}

// MoneyScale is the number of decimal places money is stored with.
const MoneyScale = 2

// WholeCents reports whether a carries no digits past MoneyScale.
func WholeCents(a decimal.Decimal) bool {
	return a.Equal(a.Round(MoneyScale))
}

// ValidPaymentAmount reports whether a can be recorded as a payment.
func ValidPaymentAmount(a decimal.Decimal) bool {
	return a.IsPositive() && WholeCents(a)
}

func ValidPeriod(month, year int) bool {
	return month >= 1 && month <= 12 && year > 0
}

// NewInvoice builds an unpaid invoice for one student from a fee structure snapshot.
// names maps fee head ids to their display names.
func NewInvoice(id string, st Student, fs FeeStructure, names map[string]string, month, year int, challan int64, now time.Time) Invoice {
	lines := make([]InvoiceLine, 0, len(fs.Heads))
	for _, h := range fs.Heads {
		lines = append(lines, InvoiceLine{HeadID: h.HeadID, Name: names[h.HeadID], Amount: h.Amount})
	}

	total := fs.Total()
	return Invoice{
		ID:            id,
		SchoolID:      st.SchoolID,
		StudentID:     st.ID,
		ClassID:       fs.ClassID,
		Month:         month,
		Year:          year,
		ChallanNumber: challan,
		Lines:         lines,
		TotalAmount:   total,
		LateFee:       fs.LateFee,
		DueDay:        fs.DueDay,
		LateFine:      decimal.Zero,
		PaidAmount:    decimal.Zero,
		Status:        DeriveStatus(total, decimal.Zero, decimal.Zero),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ApplyPayment records p against the invoice. The late fine is charged on the first
// late payment only. The invoice is left untouched when an error is returned.
func (inv *Invoice) ApplyPayment(p Payment) error {
	if !ValidPaymentAmount(p.Amount) {
		return ErrInvalidAmount
	}
	if inv.Status == StatusPaid {
		return ErrAlreadySettled
	}

	fine := inv.LateFine
	if fine.IsZero() && IsLate(inv.DueDay, inv.Month, inv.Year, p.Date) {
		fine = inv.LateFee
	}

	outstanding := decimal.Max(decimal.Zero, inv.TotalAmount.Add(fine).Sub(inv.PaidAmount))
	if p.Amount.GreaterThan(outstanding) {
		return &OverpaymentError{Outstanding: outstanding, Attempted: p.Amount}
	}

	inv.LateFine = fine
	inv.Payments = append(inv.Payments, p)
	inv.PaidAmount = inv.PaidAmount.Add(p.Amount)
	inv.Status = DeriveStatus(inv.TotalAmount, inv.LateFine, inv.PaidAmount)
	inv.UpdatedAt = p.RecordedAt
	inv.Version++
	return nil
}

// PaymentsTotal sums the payment history; it always equals PaidAmount.
func (inv Invoice) PaymentsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range inv.Payments {
		total = total.Add(p.Amount)
	}
	return total
}
