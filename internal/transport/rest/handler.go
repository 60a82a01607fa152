package rest

import (
	"context"
	"net/http"
	"time"

	"school-fees/internal/domain"
	"school-fees/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type InvoiceGenerator interface {
	Generate(ctx context.Context, req service.GenerateRequest) (service.GenerateResult, error)
}

type PaymentLedger interface {
	RecordPayment(ctx context.Context, invoiceID string, amount decimal.Decimal, date time.Time) (domain.Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (domain.Invoice, error)
}

type InvoiceQueries interface {
	ListInvoices(ctx context.Context, q service.InvoiceQuery) ([]domain.InvoiceView, error)
	ListDefaulters(ctx context.Context, classID string) ([]domain.DefaulterRow, error)
	Search(ctx context.Context, q service.SearchQuery) ([]domain.SearchResultRow, error)
	GetStudentFeeHistory(ctx context.Context, studentID string) (domain.FeeHistory, error)
}

type FeeConfig interface {
	ListHeads(ctx context.Context) ([]domain.FeeHead, error)
	CreateHead(ctx context.Context, name string, description *string) (domain.FeeHead, error)
	UpdateHead(ctx context.Context, id string, name, description *string) (domain.FeeHead, error)
	GetStructure(ctx context.Context, classID string, year int) (domain.FeeStructure, error)
	PutStructure(ctx context.Context, fs domain.FeeStructure) (domain.FeeStructure, error)
}

type Exports interface {
	StartDefaultersExport(ctx context.Context, operatorID int64, classID string) (string, error)
	StartInvoicesExport(ctx context.Context, operatorID int64, q service.InvoiceQuery) (string, error)
	GetExports(ctx context.Context, operatorID int64) ([]service.ExportStatus, error)
	GetExport(ctx context.Context, exportID string, operatorID int64) (service.ExportStatus, error)
}

type Handler struct {
	generator InvoiceGenerator
	ledger    PaymentLedger
	queries   InvoiceQueries
	config    FeeConfig
	exports   Exports
	log       *zap.Logger
}

func NewHandler(generator InvoiceGenerator, ledger PaymentLedger, queries InvoiceQueries, config FeeConfig, exports Exports, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		generator: generator,
		ledger:    ledger,
		queries:   queries,
		config:    config,
		exports:   exports,
		log:       logger.Named("http"),
	}
}

func (h *Handler) InitRouter() *chi.Mux {
	return h.InitRouterWithAuth(nil)
}

// InitRouterWithAuth builds the API router. /health stays public, every other
// route goes through authMiddleware when one is given.
func (h *Handler) InitRouterWithAuth(authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		Success(w, "ok", nil)
	})

	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.listInvoices)
			r.Post("/generate", h.generateInvoices)
			r.Get("/{invoice_id}", h.getInvoice)
			r.Post("/{invoice_id}/payments", h.recordPayment)
		})

		r.Get("/defaulters", h.listDefaulters)
		r.Get("/search", h.search)
		r.Get("/students/{student_id}/fee-history", h.feeHistory)

		r.Route("/fee-heads", func(r chi.Router) {
			r.Get("/", h.listFeeHeads)
			r.Post("/", h.createFeeHead)
			r.Patch("/{head_id}", h.updateFeeHead)
		})

		r.Route("/fee-structures/{class_id}/{year}", func(r chi.Router) {
			r.Get("/", h.getFeeStructure)
			r.Put("/", h.putFeeStructure)
		})

		r.Route("/export", func(r chi.Router) {
			r.Get("/", h.listExports)
			r.Get("/{export_id}", h.getExport)
			r.Post("/defaulters", h.exportDefaulters)
			r.Post("/invoices", h.exportInvoices)
		})
	})

	return r
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
