package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"school-fees/internal/domain"
	"school-fees/internal/lock"
	"school-fees/internal/repository/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSchool = "sch-1"
	testClass  = "class-7a"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(year int, month time.Month, dd int) time.Time {
	return time.Date(year, month, dd, 12, 0, 0, 0, time.UTC)
}

type recordingNotifier struct {
	mu        sync.Mutex
	updated   []domain.Invoice
	generated []int
}

func (n *recordingNotifier) NotifyInvoiceUpdated(_ context.Context, inv domain.Invoice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updated = append(n.updated, inv)
	return nil
}

func (n *recordingNotifier) NotifyInvoicesGenerated(_ context.Context, _ string, _, _, created int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.generated = append(n.generated, created)
	return nil
}

func (n *recordingNotifier) updates() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.updated)
}

type fixture struct {
	store     *memory.Store
	notifier  *recordingNotifier
	generator *InvoiceGenerator
	ledger    *PaymentLedger
	query     *QueryService
	config    *FeeConfigService
	tuition   domain.FeeHead
	sports    domain.FeeHead
}

// newFixture seeds class 7A for 2026 with Tuition 5000 + Sports 500, late fee 200,
// due on the 10th, and two enrolled students.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	notifier := &recordingNotifier{}
	logger := zap.NewNop()

	f := &fixture{
		store:     store,
		notifier:  notifier,
		generator: NewInvoiceGenerator(store, store, store, store, lock.NewKeyedMutex(), notifier, logger),
		ledger:    NewPaymentLedger(store, notifier, logger, 3),
		query:     NewQueryService(store, store),
		config:    NewFeeConfigService(store, store),
	}

	ctx := context.Background()
	var err error
	f.tuition, err = f.config.CreateHead(ctx, "Tuition", nil)
	require.NoError(t, err)
	f.sports, err = f.config.CreateHead(ctx, "Sports", nil)
	require.NoError(t, err)

	_, err = f.config.PutStructure(ctx, domain.FeeStructure{
		ClassID: testClass,
		Year:    2026,
		Heads: []domain.FeeStructureHead{
			{HeadID: f.tuition.ID, Amount: d("5000")},
			{HeadID: f.sports.ID, Amount: d("500")},
		},
		LateFee: d("200"),
		DueDay:  10,
	})
	require.NoError(t, err)

	f.addStudent("st-1", testClass, "1", "Amina")
	f.addStudent("st-2", testClass, "2", "Brian")
	return f
}

func (f *fixture) addStudent(id, classID, roll, name string) {
	f.store.AddStudent(domain.Student{
		ID:        id,
		SchoolID:  testSchool,
		ClassID:   classID,
		ClassName: "Grade " + classID,
		Name:      name,
		RollNum:   roll,
	})
}

func (f *fixture) generate(t *testing.T, month, year int) GenerateResult {
	t.Helper()
	res, err := f.generator.Generate(context.Background(), GenerateRequest{
		SchoolID: testSchool, ClassID: testClass, Month: month, Year: year,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) invoiceOf(t *testing.T, res GenerateResult, studentID string) domain.Invoice {
	t.Helper()
	for _, inv := range res.Created {
		if inv.StudentID == studentID {
			return inv
		}
	}
	t.Fatalf("no invoice generated for %s", studentID)
	return domain.Invoice{}
}

// flakyInvoices fails selected writes of the wrapped repository.
type flakyInvoices struct {
	InvoiceRepository

	mu             sync.Mutex
	failCreateFor  map[string]error
	conflictsLeft  int
	savePaymentCnt int
}

var errDiskFull = errors.New("disk full")

func (r *flakyInvoices) CreateInvoice(ctx context.Context, inv domain.Invoice) error {
	if err, ok := r.failCreateFor[inv.StudentID]; ok {
		return err
	}
	return r.InvoiceRepository.CreateInvoice(ctx, inv)
}

func (r *flakyInvoices) SavePayment(ctx context.Context, inv domain.Invoice, p domain.Payment, expected int64) error {
	r.mu.Lock()
	r.savePaymentCnt++
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		r.mu.Unlock()
		return domain.ErrConflict
	}
	r.mu.Unlock()
	return r.InvoiceRepository.SavePayment(ctx, inv, p, expected)
}
