package rest

import (
	"time"

	"school-fees/internal/domain"
	"school-fees/internal/service"

	"github.com/shopspring/decimal"
)

type PaymentView struct {
	ID         string          `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Date       string          `json:"date"`
	RecordedAt time.Time       `json:"recorded_at"`
}

type InvoiceView struct {
	ID            string               `json:"id"`
	SchoolID      string               `json:"school_id"`
	StudentID     string               `json:"student_id"`
	ClassID       string               `json:"class_id"`
	Month         int                  `json:"month"`
	Year          int                  `json:"year"`
	ChallanNumber int64                `json:"challan_number"`
	Lines         []domain.InvoiceLine `json:"lines"`
	TotalAmount   decimal.Decimal      `json:"total_amount"`
	LateFee       decimal.Decimal      `json:"late_fee"`
	DueDate       string               `json:"due_date"`
	LateFine      decimal.Decimal      `json:"late_fine"`
	PaidAmount    decimal.Decimal      `json:"paid_amount"`
	Outstanding   decimal.Decimal      `json:"outstanding"`
	Status        domain.InvoiceStatus `json:"status"`
	Payments      []PaymentView        `json:"payments,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`

	StudentName string `json:"student_name,omitempty"`
	RollNum     string `json:"roll_num,omitempty"`
}

func toInvoiceView(inv domain.Invoice) InvoiceView {
	v := InvoiceView{
		ID:            inv.ID,
		SchoolID:      inv.SchoolID,
		StudentID:     inv.StudentID,
		ClassID:       inv.ClassID,
		Month:         inv.Month,
		Year:          inv.Year,
		ChallanNumber: inv.ChallanNumber,
		Lines:         inv.Lines,
		TotalAmount:   inv.TotalAmount,
		LateFee:       inv.LateFee,
		DueDate:       domain.DueDate(inv.DueDay, inv.Month, inv.Year, time.UTC).Format(dateLayout),
		LateFine:      inv.LateFine,
		PaidAmount:    inv.PaidAmount,
		Outstanding:   inv.Outstanding(),
		Status:        inv.Status,
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
	}
	if v.Lines == nil {
		v.Lines = []domain.InvoiceLine{}
	}
	for _, p := range inv.Payments {
		v.Payments = append(v.Payments, PaymentView{
			ID:         p.ID,
			Amount:     p.Amount,
			Date:       p.Date.Format(dateLayout),
			RecordedAt: p.RecordedAt,
		})
	}
	return v
}

func toInvoiceViews(invoices []domain.Invoice) []InvoiceView {
	out := make([]InvoiceView, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceView(inv))
	}
	return out
}

type GenerateResultView struct {
	Created []InvoiceView               `json:"created"`
	Skipped []string                    `json:"skipped"`
	Failed  []service.GenerationFailure `json:"failed"`
	Message string                      `json:"message"`
}

func toGenerateResultView(res service.GenerateResult) GenerateResultView {
	v := GenerateResultView{
		Created: toInvoiceViews(res.Created),
		Skipped: res.Skipped,
		Failed:  res.Failed,
		Message: res.Message,
	}
	if v.Skipped == nil {
		v.Skipped = []string{}
	}
	if v.Failed == nil {
		v.Failed = []service.GenerationFailure{}
	}
	return v
}

type DefaulterView struct {
	StudentID   string          `json:"student_id"`
	StudentName string          `json:"student_name"`
	RollNum     string          `json:"roll_num"`
	TotalDue    decimal.Decimal `json:"total_due"`
}

type SearchResultView struct {
	StudentID   string          `json:"student_id"`
	RollNum     string          `json:"roll_num"`
	StudentName string          `json:"student_name"`
	ClassName   string          `json:"class_name"`
	TotalPaid   decimal.Decimal `json:"total_paid"`
	TotalDue    decimal.Decimal `json:"total_due"`
}

type FeeHistoryView struct {
	StudentID   string          `json:"student_id"`
	StudentName string          `json:"student_name"`
	ClassName   string          `json:"class_name"`
	TotalDue    decimal.Decimal `json:"total_due"`
	TotalPaid   decimal.Decimal `json:"total_paid"`
	Invoices    []InvoiceView   `json:"invoices"`
}

type FeeHeadView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toFeeHeadView(h domain.FeeHead) FeeHeadView {
	return FeeHeadView{
		ID:          h.ID,
		Name:        h.Name,
		Description: h.Description,
		CreatedAt:   h.CreatedAt,
		UpdatedAt:   h.UpdatedAt,
	}
}

type FeeStructureView struct {
	ClassID   string                    `json:"class_id"`
	Year      int                       `json:"year"`
	Heads     []domain.FeeStructureHead `json:"heads"`
	Total     decimal.Decimal           `json:"total"`
	LateFee   decimal.Decimal           `json:"late_fee"`
	DueDay    int                       `json:"due_day"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

func toFeeStructureView(fs domain.FeeStructure) FeeStructureView {
	v := FeeStructureView{
		ClassID:   fs.ClassID,
		Year:      fs.Year,
		Heads:     fs.Heads,
		Total:     fs.Total(),
		LateFee:   fs.LateFee,
		DueDay:    fs.DueDay,
		UpdatedAt: fs.UpdatedAt,
	}
	if v.Heads == nil {
		v.Heads = []domain.FeeStructureHead{}
	}
	return v
}
