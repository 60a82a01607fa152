package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"school-fees/internal/domain"
	"school-fees/internal/lock"
	"school-fees/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGenerate_CreatesPendingInvoices(t *testing.T) {
	f := newFixture(t)

	res := f.generate(t, 3, 2026)

	require.Len(t, res.Created, 2)
	assert.Empty(t, res.Skipped)
	assert.Empty(t, res.Failed)
	assert.Equal(t, "2 invoice(s) generated, 0 skipped, 0 failed", res.Message)

	for i, inv := range res.Created {
		assert.True(t, inv.TotalAmount.Equal(d("5500")), "total %s", inv.TotalAmount)
		assert.True(t, inv.LateFine.IsZero())
		assert.True(t, inv.PaidAmount.IsZero())
		assert.Equal(t, domain.StatusPending, inv.Status)
		assert.Equal(t, testSchool, inv.SchoolID)
		assert.Equal(t, int64(i+1), inv.ChallanNumber)
		assert.Len(t, inv.Lines, 2)
	}
	assert.Equal(t, "st-1", res.Created[0].StudentID)
	assert.Equal(t, "Tuition", res.Created[0].Lines[0].Name)
	assert.Equal(t, []int{2}, f.notifier.generated)
}

func TestGenerate_IsIdempotent(t *testing.T) {
	f := newFixture(t)

	f.generate(t, 3, 2026)
	again := f.generate(t, 3, 2026)

	assert.Empty(t, again.Created)
	assert.ElementsMatch(t, []string{"st-1", "st-2"}, again.Skipped)
	assert.Equal(t, "0 invoice(s) generated, 2 skipped, 0 failed", again.Message)

	month, year, class := 3, 2026, testClass
	all, err := f.store.ListInvoices(context.Background(), repository.InvoiceFilter{ClassID: &class, Month: &month, Year: &year})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	// nothing new to announce
	assert.Equal(t, []int{2}, f.notifier.generated)
}

func TestGenerate_NewStudentOnSecondRun(t *testing.T) {
	f := newFixture(t)
	f.generate(t, 3, 2026)

	f.addStudent("st-3", testClass, "3", "Chen")
	res := f.generate(t, 3, 2026)

	require.Len(t, res.Created, 1)
	assert.Equal(t, "st-3", res.Created[0].StudentID)
	assert.Equal(t, int64(3), res.Created[0].ChallanNumber)
	assert.Len(t, res.Skipped, 2)
}

func TestGenerate_NoFeeStructure(t *testing.T) {
	f := newFixture(t)

	_, err := f.generator.Generate(context.Background(), GenerateRequest{SchoolID: testSchool, ClassID: testClass, Month: 3, Year: 2027})
	require.ErrorIs(t, err, domain.ErrNoFeeStructure)
	assert.Contains(t, err.Error(), testClass)

	exists, err := f.store.InvoiceExists(context.Background(), "st-1", 3, 2027)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGenerate_RejectsInvalidRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, req := range []GenerateRequest{
		{ClassID: testClass, Month: 0, Year: 2026},
		{ClassID: testClass, Month: 13, Year: 2026},
		{ClassID: testClass, Month: 3, Year: 0},
	} {
		_, err := f.generator.Generate(ctx, req)
		assert.ErrorIs(t, err, domain.ErrInvalidPeriod, "%+v", req)
	}

	_, err := f.generator.Generate(ctx, GenerateRequest{Month: 3, Year: 2026})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestGenerate_ZeroTotalStructureIsPaid(t *testing.T) {
	f := newFixture(t)
	_, err := f.config.PutStructure(context.Background(), domain.FeeStructure{
		ClassID: testClass, Year: 2030, DueDay: 5, LateFee: d("0"),
	})
	require.NoError(t, err)

	res := f.generate(t, 1, 2030)

	require.Len(t, res.Created, 2)
	assert.Equal(t, domain.StatusPaid, res.Created[0].Status)
}

func TestGenerate_ReportsFailuresAndContinues(t *testing.T) {
	f := newFixture(t)
	invoices := &flakyInvoices{InvoiceRepository: f.store, failCreateFor: map[string]error{"st-1": errDiskFull}}
	gen := NewInvoiceGenerator(f.store, f.store, f.store, invoices, lock.NewKeyedMutex(), nil, zap.NewNop())

	res, err := gen.Generate(context.Background(), GenerateRequest{SchoolID: testSchool, ClassID: testClass, Month: 3, Year: 2026})
	require.NoError(t, err)

	require.Len(t, res.Created, 1)
	assert.Equal(t, "st-2", res.Created[0].StudentID)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "st-1", res.Failed[0].StudentID)
	assert.Contains(t, res.Failed[0].Reason, "disk full")
	assert.Equal(t, "1 invoice(s) generated, 0 skipped, 1 failed", res.Message)
}

func TestGenerate_LostCreateRaceIsSkip(t *testing.T) {
	f := newFixture(t)
	invoices := &flakyInvoices{InvoiceRepository: f.store, failCreateFor: map[string]error{"st-2": domain.ErrAlreadyExists}}
	gen := NewInvoiceGenerator(f.store, f.store, f.store, invoices, lock.NewKeyedMutex(), nil, zap.NewNop())

	res, err := gen.Generate(context.Background(), GenerateRequest{SchoolID: testSchool, ClassID: testClass, Month: 3, Year: 2026})
	require.NoError(t, err)
	assert.Len(t, res.Created, 1)
	assert.Equal(t, []string{"st-2"}, res.Skipped)
	assert.Empty(t, res.Failed)
}

func TestGenerate_ConcurrentCallsCreateEachInvoiceOnce(t *testing.T) {
	f := newFixture(t)
	for i := 3; i <= 20; i++ {
		f.addStudent(fmt.Sprintf("st-%d", i), testClass, strconv.Itoa(i), "Student")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.generator.Generate(context.Background(), GenerateRequest{SchoolID: testSchool, ClassID: testClass, Month: 4, Year: 2026})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			created += len(res.Created)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, created)

	month, year, class := 4, 2026, testClass
	all, err := f.store.ListInvoices(context.Background(), repository.InvoiceFilter{ClassID: &class, Month: &month, Year: &year})
	require.NoError(t, err)
	assert.Len(t, all, 20)

	seen := map[int64]bool{}
	for _, inv := range all {
		assert.False(t, seen[inv.ChallanNumber], "duplicate challan %d", inv.ChallanNumber)
		seen[inv.ChallanNumber] = true
	}
}

func TestGenerate_InvoiceKeepsStructureSnapshot(t *testing.T) {
	f := newFixture(t)
	res := f.generate(t, 3, 2026)

	_, err := f.config.PutStructure(context.Background(), domain.FeeStructure{
		ClassID: testClass,
		Year:    2026,
		Heads:   []domain.FeeStructureHead{{HeadID: f.tuition.ID, Amount: d("9000")}},
		LateFee: d("999"),
		DueDay:  28,
	})
	require.NoError(t, err)

	inv, err := f.ledger.RecordPayment(context.Background(), f.invoiceOf(t, res, "st-1").ID, d("100"), day(2026, 3, 20))
	require.NoError(t, err)
	assert.True(t, inv.TotalAmount.Equal(d("5500")))
	assert.True(t, inv.LateFine.Equal(d("200")), "fine %s", inv.LateFine)
}
