package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"school-fees/internal/domain"
	"school-fees/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type GenerateRequest struct {
	SchoolID string
	ClassID  string
	Month    int
	Year     int
}

type GenerationFailure struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

type GenerateResult struct {
	Created []domain.Invoice
	Skipped []string
	Failed  []GenerationFailure
	Message string
}

type InvoiceGenerator struct {
	heads      FeeHeadRepository
	structures FeeStructureRepository
	roster     RosterRepository
	invoices   InvoiceRepository
	locker     Locker
	notifier   InvoiceNotifier
	log        *zap.Logger
	now        Clock
}

func NewInvoiceGenerator(
	heads FeeHeadRepository,
	structures FeeStructureRepository,
	roster RosterRepository,
	invoices InvoiceRepository,
	locker Locker,
	notifier InvoiceNotifier,
	logger *zap.Logger,
) *InvoiceGenerator {
	return &InvoiceGenerator{
		heads:      heads,
		structures: structures,
		roster:     roster,
		invoices:   invoices,
		locker:     locker,
		notifier:   notifier,
		log:        logger.Named("generator"),
		now:        time.Now,
	}
}

// Generate raises one invoice per enrolled student of the class for the period.
// Students that already have an invoice for the period are skipped, so calling it
// again for the same period creates nothing new.
func (g *InvoiceGenerator) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	if !domain.ValidPeriod(req.Month, req.Year) {
		return GenerateResult{}, fmt.Errorf("%w: month %d / year %d", domain.ErrInvalidPeriod, req.Month, req.Year)
	}
	if strings.TrimSpace(req.ClassID) == "" {
		return GenerateResult{}, &domain.FieldError{Field: "class_id", Message: "class_id is required", Err: domain.ErrInvalidArgument}
	}

	unlock, err := g.locker.Lock(ctx, fmt.Sprintf("generate:%s:%d:%d", req.ClassID, req.Month, req.Year))
	if err != nil {
		return GenerateResult{}, fmt.Errorf("lock generation of class %s: %w", req.ClassID, err)
	}
	defer unlock()

	fs, err := g.structures.GetStructure(ctx, req.ClassID, req.Year)
	if errors.Is(err, domain.ErrNotFound) {
		return GenerateResult{}, fmt.Errorf("%w for class %s / year %d", domain.ErrNoFeeStructure, req.ClassID, req.Year)
	}
	if err != nil {
		return GenerateResult{}, fmt.Errorf("load fee structure: %w", err)
	}

	names, err := g.headNames(ctx)
	if err != nil {
		return GenerateResult{}, err
	}

	filter := repository.StudentFilter{ClassID: &req.ClassID}
	if req.SchoolID != "" {
		filter.SchoolID = &req.SchoolID
	}
	students, err := g.roster.ListStudents(ctx, filter)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("load roster of class %s: %w", req.ClassID, err)
	}
	// challan numbers follow roll order
	slices.SortFunc(students, func(a, b domain.Student) int {
		return domain.CompareRollNum(a.RollNum, b.RollNum)
	})

	res := GenerateResult{Created: []domain.Invoice{}, Skipped: []string{}, Failed: []GenerationFailure{}}
	for _, st := range students {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		inv, err := g.generateOne(ctx, st, fs, names, req.Month, req.Year)
		switch {
		case errors.Is(err, domain.ErrAlreadyExists):
			res.Skipped = append(res.Skipped, st.ID)
		case err != nil:
			g.log.Warn("invoice generation failed",
				zap.String("student_id", st.ID), zap.String("class_id", req.ClassID), zap.Error(err))
			res.Failed = append(res.Failed, GenerationFailure{StudentID: st.ID, Reason: err.Error()})
		default:
			res.Created = append(res.Created, inv)
		}
	}

	res.Message = fmt.Sprintf("%d invoice(s) generated, %d skipped, %d failed", len(res.Created), len(res.Skipped), len(res.Failed))
	g.log.Info("invoices generated",
		zap.String("class_id", req.ClassID),
		zap.Int("month", req.Month),
		zap.Int("year", req.Year),
		zap.Int("created", len(res.Created)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Failed)),
	)

	if len(res.Created) > 0 && g.notifier != nil {
		if err := g.notifier.NotifyInvoicesGenerated(ctx, req.ClassID, req.Month, req.Year, len(res.Created)); err != nil {
			g.log.Warn("notify generation failed", zap.Error(err))
		}
	}
	return res, nil
}

// generateOne returns domain.ErrAlreadyExists when the student is already invoiced.
func (g *InvoiceGenerator) generateOne(ctx context.Context, st domain.Student, fs domain.FeeStructure, names map[string]string, month, year int) (domain.Invoice, error) {
	exists, err := g.invoices.InvoiceExists(ctx, st.ID, month, year)
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("check existing invoice: %w", err)
	}
	if exists {
		return domain.Invoice{}, domain.ErrAlreadyExists
	}

	challan, err := g.invoices.NextChallanNumber(ctx, st.SchoolID)
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("next challan number: %w", err)
	}

	inv := domain.NewInvoice(uuid.NewString(), st, fs, names, month, year, challan, g.now())
	if err := g.invoices.CreateInvoice(ctx, inv); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.Invoice{}, err
		}
		return domain.Invoice{}, fmt.Errorf("create invoice: %w", err)
	}
	return inv, nil
}

func (g *InvoiceGenerator) headNames(ctx context.Context) (map[string]string, error) {
	heads, err := g.heads.ListHeads(ctx)
	if err != nil {
		return nil, fmt.Errorf("load fee heads: %w", err)
	}
	names := make(map[string]string, len(heads))
	for _, h := range heads {
		names[h.ID] = h.Name
	}
	return names, nil
}
