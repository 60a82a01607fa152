package service

import (
	"context"
	"time"

	"school-fees/internal/domain"
	"school-fees/internal/repository"
)

type FeeHeadRepository interface {
	CreateHead(ctx context.Context, h domain.FeeHead) error
	UpdateHead(ctx context.Context, h domain.FeeHead) error
	GetHead(ctx context.Context, id string) (domain.FeeHead, error)
	ListHeads(ctx context.Context) ([]domain.FeeHead, error)
}

type FeeStructureRepository interface {
	GetStructure(ctx context.Context, classID string, year int) (domain.FeeStructure, error)
	UpsertStructure(ctx context.Context, fs domain.FeeStructure) error
}

type RosterRepository interface {
	GetStudent(ctx context.Context, id string) (domain.Student, error)
	ListStudents(ctx context.Context, f repository.StudentFilter) ([]domain.Student, error)
}

type InvoiceRepository interface {
	CreateInvoice(ctx context.Context, inv domain.Invoice) error
	InvoiceExists(ctx context.Context, studentID string, month, year int) (bool, error)
	GetInvoice(ctx context.Context, id string) (domain.Invoice, error)
	ListInvoices(ctx context.Context, f repository.InvoiceFilter) ([]domain.Invoice, error)
	SavePayment(ctx context.Context, inv domain.Invoice, p domain.Payment, expectedVersion int64) error
	NextChallanNumber(ctx context.Context, schoolID string) (int64, error)
}

// Locker hands out exclusive leases on a key. The returned func releases the lease.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// InvoiceNotifier publishes invoice changes to live dashboards. Delivery is best effort.
type InvoiceNotifier interface {
	NotifyInvoiceUpdated(ctx context.Context, inv domain.Invoice) error
	NotifyInvoicesGenerated(ctx context.Context, classID string, month, year, created int) error
}

type Clock func() time.Time
