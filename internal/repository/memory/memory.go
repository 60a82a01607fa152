// Package memory keeps every repository in process memory. It backs the
// "memory" storage driver and the service tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"school-fees/internal/domain"
	"school-fees/internal/repository"
)

type structureKey struct {
	classID string
	year    int
}

type periodKey struct {
	studentID string
	month     int
	year      int
}

type Store struct {
	mutex sync.RWMutex

	heads      map[string]domain.FeeHead
	structures map[structureKey]domain.FeeStructure
	students   map[string]domain.Student
	classes    map[string]string
	invoices   map[string]domain.Invoice
	periods    map[periodKey]string
	challans   map[string]int64
}

func NewStore() *Store {
	return &Store{
		heads:      make(map[string]domain.FeeHead),
		structures: make(map[structureKey]domain.FeeStructure),
		students:   make(map[string]domain.Student),
		classes:    make(map[string]string),
		invoices:   make(map[string]domain.Invoice),
		periods:    make(map[periodKey]string),
		challans:   make(map[string]int64),
	}
}

// AddStudent seeds the roster. ClassName, when set, also names the class.
func (s *Store) AddStudent(st domain.Student) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if st.ClassName != "" {
		s.classes[st.ClassID] = st.ClassName
	}
	s.students[st.ID] = st
}

// fee heads

func (s *Store) CreateHead(_ context.Context, h domain.FeeHead) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.heads[h.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.heads[h.ID] = h
	return nil
}

func (s *Store) UpdateHead(_ context.Context, h domain.FeeHead) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cur, ok := s.heads[h.ID]
	if !ok {
		return domain.ErrNotFound
	}
	h.CreatedAt = cur.CreatedAt
	s.heads[h.ID] = h
	return nil
}

func (s *Store) GetHead(_ context.Context, id string) (domain.FeeHead, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if h, ok := s.heads[id]; ok {
		return h, nil
	}
	return domain.FeeHead{}, domain.ErrNotFound
}

func (s *Store) ListHeads(_ context.Context) ([]domain.FeeHead, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]domain.FeeHead, 0, len(s.heads))
	for _, h := range s.heads {
		out = append(out, h)
	}
	slices.SortFunc(out, func(a, b domain.FeeHead) int {
		return cmp.Or(strings.Compare(a.Name, b.Name), strings.Compare(a.ID, b.ID))
	})
	return out, nil
}

// fee structures

func (s *Store) GetStructure(_ context.Context, classID string, year int) (domain.FeeStructure, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	fs, ok := s.structures[structureKey{classID, year}]
	if !ok {
		return domain.FeeStructure{}, domain.ErrNotFound
	}
	fs.Heads = slices.Clone(fs.Heads)
	return fs, nil
}

func (s *Store) UpsertStructure(_ context.Context, fs domain.FeeStructure) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	fs.Heads = slices.Clone(fs.Heads)
	s.structures[structureKey{fs.ClassID, fs.Year}] = fs
	return nil
}

// roster

func (s *Store) GetStudent(_ context.Context, id string) (domain.Student, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	st, ok := s.students[id]
	if !ok {
		return domain.Student{}, domain.ErrNotFound
	}
	return s.withClassName(st), nil
}

func (s *Store) ListStudents(_ context.Context, f repository.StudentFilter) ([]domain.Student, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var ids map[string]bool
	if f.IDs != nil {
		ids = make(map[string]bool, len(f.IDs))
		for _, id := range f.IDs {
			ids[id] = true
		}
	}

	var out []domain.Student
	for _, st := range s.students {
		if f.SchoolID != nil && st.SchoolID != *f.SchoolID {
			continue
		}
		if f.ClassID != nil && st.ClassID != *f.ClassID {
			continue
		}
		if f.RollNum != nil && st.RollNum != *f.RollNum {
			continue
		}
		if ids != nil && !ids[st.ID] {
			continue
		}
		out = append(out, s.withClassName(st))
	}
	return out, nil
}

func (s *Store) withClassName(st domain.Student) domain.Student {
	if name, ok := s.classes[st.ClassID]; ok {
		st.ClassName = name
	}
	return st
}

// invoices

func (s *Store) CreateInvoice(_ context.Context, inv domain.Invoice) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := periodKey{inv.StudentID, inv.Month, inv.Year}
	if _, ok := s.periods[key]; ok {
		return domain.ErrAlreadyExists
	}
	if _, ok := s.invoices[inv.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.invoices[inv.ID] = cloneInvoice(inv)
	s.periods[key] = inv.ID
	return nil
}

func (s *Store) InvoiceExists(_ context.Context, studentID string, month, year int) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, ok := s.periods[periodKey{studentID, month, year}]
	return ok, nil
}

func (s *Store) GetInvoice(_ context.Context, id string) (domain.Invoice, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return domain.Invoice{}, domain.ErrNotFound
	}
	return cloneInvoice(inv), nil
}

func (s *Store) ListInvoices(_ context.Context, f repository.InvoiceFilter) ([]domain.Invoice, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var students map[string]bool
	if f.StudentIDs != nil {
		students = make(map[string]bool, len(f.StudentIDs))
		for _, id := range f.StudentIDs {
			students[id] = true
		}
	}

	var out []domain.Invoice
	for _, inv := range s.invoices {
		if f.ClassID != nil && inv.ClassID != *f.ClassID {
			continue
		}
		if f.Month != nil && inv.Month != *f.Month {
			continue
		}
		if f.Year != nil && inv.Year != *f.Year {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, inv.Status) {
			continue
		}
		if students != nil && !students[inv.StudentID] {
			continue
		}

		c := cloneInvoice(inv)
		if !f.WithPayments {
			c.Payments = nil
		}
		out = append(out, c)
	}

	slices.SortFunc(out, func(a, b domain.Invoice) int {
		return cmp.Or(
			cmp.Compare(a.Year, b.Year),
			cmp.Compare(a.Month, b.Month),
			cmp.Compare(a.ChallanNumber, b.ChallanNumber),
		)
	})
	return out, nil
}

func (s *Store) SavePayment(_ context.Context, inv domain.Invoice, p domain.Payment, expectedVersion int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cur, ok := s.invoices[inv.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return domain.ErrConflict
	}

	cur.LateFine = inv.LateFine
	cur.PaidAmount = inv.PaidAmount
	cur.Status = inv.Status
	cur.Version = inv.Version
	cur.UpdatedAt = inv.UpdatedAt
	cur.Payments = append(slices.Clone(cur.Payments), p)
	s.invoices[inv.ID] = cur
	return nil
}

func (s *Store) NextChallanNumber(_ context.Context, schoolID string) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.challans[schoolID]++
	return s.challans[schoolID], nil
}

func cloneInvoice(inv domain.Invoice) domain.Invoice {
	inv.Lines = slices.Clone(inv.Lines)
	inv.Payments = slices.Clone(inv.Payments)
	return inv
}
