package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"school-fees/internal/domain"
	"school-fees/internal/repository"

	"github.com/shopspring/decimal"
)

type InvoiceQuery struct {
	ClassID  string
	Month    int
	Year     int
	Statuses []domain.InvoiceStatus
}

// SearchQuery selects students of a school. Nil filters are ignored, so an empty
// query returns the whole school.
type SearchQuery struct {
	SchoolID string
	RollNum  *string
	ClassID  *string
}

// QueryService answers read-only questions over invoices joined with the roster.
type QueryService struct {
	roster   RosterRepository
	invoices InvoiceRepository
}

func NewQueryService(roster RosterRepository, invoices InvoiceRepository) *QueryService {
	return &QueryService{roster: roster, invoices: invoices}
}

func (s *QueryService) ListInvoices(ctx context.Context, q InvoiceQuery) ([]domain.InvoiceView, error) {
	if !domain.ValidPeriod(q.Month, q.Year) {
		return nil, fmt.Errorf("%w: month %d / year %d", domain.ErrInvalidPeriod, q.Month, q.Year)
	}
	if strings.TrimSpace(q.ClassID) == "" {
		return nil, &domain.FieldError{Field: "class_id", Message: "class_id is required", Err: domain.ErrInvalidArgument}
	}

	invoices, err := s.invoices.ListInvoices(ctx, repository.InvoiceFilter{
		ClassID:  &q.ClassID,
		Month:    &q.Month,
		Year:     &q.Year,
		Statuses: q.Statuses,
	})
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}

	ids := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.StudentID)
	}
	students, err := s.studentsByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]domain.InvoiceView, 0, len(invoices))
	for _, inv := range invoices {
		st := students[inv.StudentID]
		views = append(views, domain.InvoiceView{Invoice: inv, StudentName: st.Name, RollNum: st.RollNum})
	}
	slices.SortFunc(views, func(a, b domain.InvoiceView) int {
		return cmp.Or(domain.CompareRollNum(a.RollNum, b.RollNum), strings.Compare(a.StudentID, b.StudentID))
	})
	return views, nil
}

// ListDefaulters sums the outstanding balance of every invoice held by the students
// currently in the class and keeps those who still owe something.
func (s *QueryService) ListDefaulters(ctx context.Context, classID string) ([]domain.DefaulterRow, error) {
	if strings.TrimSpace(classID) == "" {
		return nil, &domain.FieldError{Field: "class_id", Message: "class_id is required", Err: domain.ErrInvalidArgument}
	}

	students, err := s.roster.ListStudents(ctx, repository.StudentFilter{ClassID: &classID})
	if err != nil {
		return nil, fmt.Errorf("load roster of class %s: %w", classID, err)
	}
	totals, err := s.totals(ctx, students)
	if err != nil {
		return nil, err
	}

	rows := []domain.DefaulterRow{}
	for _, st := range students {
		due := totals[st.ID].due
		if !due.IsPositive() {
			continue
		}
		rows = append(rows, domain.DefaulterRow{
			StudentID:   st.ID,
			StudentName: st.Name,
			RollNum:     st.RollNum,
			TotalDue:    due,
		})
	}

	slices.SortFunc(rows, func(a, b domain.DefaulterRow) int {
		return cmp.Or(
			b.TotalDue.Cmp(a.TotalDue),
			domain.CompareRollNum(a.RollNum, b.RollNum),
			strings.Compare(a.StudentID, b.StudentID),
		)
	})
	return rows, nil
}

func (s *QueryService) Search(ctx context.Context, q SearchQuery) ([]domain.SearchResultRow, error) {
	if strings.TrimSpace(q.SchoolID) == "" {
		return nil, &domain.FieldError{Field: "school_id", Message: "school_id is required", Err: domain.ErrInvalidArgument}
	}

	students, err := s.roster.ListStudents(ctx, repository.StudentFilter{
		SchoolID: &q.SchoolID,
		ClassID:  q.ClassID,
		RollNum:  q.RollNum,
	})
	if err != nil {
		return nil, fmt.Errorf("search students: %w", err)
	}
	totals, err := s.totals(ctx, students)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.SearchResultRow, 0, len(students))
	for _, st := range students {
		t := totals[st.ID]
		rows = append(rows, domain.SearchResultRow{
			StudentID:   st.ID,
			RollNum:     st.RollNum,
			StudentName: st.Name,
			ClassName:   st.ClassName,
			TotalPaid:   t.paid,
			TotalDue:    t.due,
		})
	}

	slices.SortFunc(rows, func(a, b domain.SearchResultRow) int {
		return cmp.Or(
			strings.Compare(a.ClassName, b.ClassName),
			domain.CompareRollNum(a.RollNum, b.RollNum),
			strings.Compare(a.StudentID, b.StudentID),
		)
	})
	return rows, nil
}

func (s *QueryService) GetStudentFeeHistory(ctx context.Context, studentID string) (domain.FeeHistory, error) {
	st, err := s.roster.GetStudent(ctx, studentID)
	if err != nil {
		return domain.FeeHistory{}, fmt.Errorf("student %s: %w", studentID, err)
	}

	invoices, err := s.invoices.ListInvoices(ctx, repository.InvoiceFilter{
		StudentIDs:   []string{studentID},
		WithPayments: true,
	})
	if err != nil {
		return domain.FeeHistory{}, fmt.Errorf("list invoices of student %s: %w", studentID, err)
	}
	slices.SortStableFunc(invoices, func(a, b domain.Invoice) int {
		return cmp.Or(cmp.Compare(a.Year, b.Year), cmp.Compare(a.Month, b.Month))
	})
	if invoices == nil {
		invoices = []domain.Invoice{}
	}

	h := domain.FeeHistory{
		StudentID:   st.ID,
		StudentName: st.Name,
		ClassName:   st.ClassName,
		TotalDue:    decimal.Zero,
		TotalPaid:   decimal.Zero,
		Invoices:    invoices,
	}
	for _, inv := range invoices {
		h.TotalDue = h.TotalDue.Add(inv.Outstanding())
		h.TotalPaid = h.TotalPaid.Add(inv.PaidAmount)
	}
	return h, nil
}

type studentTotals struct {
	due  decimal.Decimal
	paid decimal.Decimal
}

// totals aggregates every invoice of the given students, whatever class it was raised in.
func (s *QueryService) totals(ctx context.Context, students []domain.Student) (map[string]studentTotals, error) {
	out := make(map[string]studentTotals, len(students))
	if len(students) == 0 {
		return out, nil
	}

	ids := make([]string, len(students))
	for k, st := range students {
		ids[k] = st.ID
		out[st.ID] = studentTotals{due: decimal.Zero, paid: decimal.Zero}
	}

	invoices, err := s.invoices.ListInvoices(ctx, repository.InvoiceFilter{StudentIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	for _, inv := range invoices {
		t := out[inv.StudentID]
		t.due = t.due.Add(inv.Outstanding())
		t.paid = t.paid.Add(inv.PaidAmount)
		out[inv.StudentID] = t
	}
	return out, nil
}

func (s *QueryService) studentsByID(ctx context.Context, ids []string) (map[string]domain.Student, error) {
	out := make(map[string]domain.Student, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	students, err := s.roster.ListStudents(ctx, repository.StudentFilter{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}
	for _, st := range students {
		out[st.ID] = st
	}
	return out, nil
}
