package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"school-fees/internal/clients"
	"school-fees/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// KeyValueStore keeps export statuses. RedisClient and MemoryCache satisfy it.
type KeyValueStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	SAdd(ctx context.Context, key string, members ...any) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SRem(ctx context.Context, key string, members ...any) error
}

type FileStore interface {
	Store(ctx context.Context, fileName string, data []byte) (clients.StoredFile, error)
}

type ExportNotifier interface {
	NotifyExportProgress(ctx context.Context, operatorID int64, exportID string, progress float64, stage string) error
	NotifyExportComplete(ctx context.Context, operatorID int64, exportID string, url string, filename string) error
	NotifyExportFailed(ctx context.Context, operatorID int64, exportID string, errMsg string) error
}

// ExportSource supplies the rows of an export; QueryService implements it.
type ExportSource interface {
	ListDefaulters(ctx context.Context, classID string) ([]domain.DefaulterRow, error)
	ListInvoices(ctx context.Context, q InvoiceQuery) ([]domain.InvoiceView, error)
}

const (
	ExportDefaulters = "defaulters"
	ExportInvoices   = "invoices"

	defaultExportTTL = 20 * time.Minute
	exportTimeout    = 5 * time.Minute
)

type ExportStatus struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	OperatorID int64          `json:"operator_id"`
	Filters    map[string]any `json:"filters"`
	Progress   float64        `json:"progress"`
	FileURL    *string        `json:"file_url"`
	Error      *string        `json:"error"`
	Created    time.Time      `json:"created_at"`
	CreatedAgo string         `json:"created_ago,omitempty"`
}

type exportColumn[T any] struct {
	Header string
	Money  bool
	Value  func(row T) any
}

var defaulterColumns = []exportColumn[domain.DefaulterRow]{
	{Header: "Roll No", Value: func(r domain.DefaulterRow) any { return r.RollNum }},
	{Header: "Student", Value: func(r domain.DefaulterRow) any { return r.StudentName }},
	{Header: "Total Due", Money: true, Value: func(r domain.DefaulterRow) any { return money(r.TotalDue) }},
}

var invoiceColumns = []exportColumn[domain.InvoiceView]{
	{Header: "Challan No", Value: func(v domain.InvoiceView) any { return v.ChallanNumber }},
	{Header: "Roll No", Value: func(v domain.InvoiceView) any { return v.RollNum }},
	{Header: "Student", Value: func(v domain.InvoiceView) any { return v.StudentName }},
	{Header: "Total", Money: true, Value: func(v domain.InvoiceView) any { return money(v.TotalAmount) }},
	{Header: "Late Fine", Money: true, Value: func(v domain.InvoiceView) any { return money(v.LateFine) }},
	{Header: "Paid", Money: true, Value: func(v domain.InvoiceView) any { return money(v.PaidAmount) }},
	{Header: "Outstanding", Money: true, Value: func(v domain.InvoiceView) any { return money(v.Outstanding()) }},
	{Header: "Status", Value: func(v domain.InvoiceView) any { return string(v.Status) }},
}

// spreadsheet cells are display only, amounts stay decimal everywhere else
func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

type ExportService struct {
	source ExportSource
	cache  KeyValueStore
	files  FileStore
	ws     ExportNotifier
	log    *zap.Logger
	prefix string
	ttl    time.Duration
	now    Clock

	running sync.WaitGroup
}

func NewExportService(source ExportSource, cache KeyValueStore, files FileStore, ws ExportNotifier, logger *zap.Logger, prefix string, ttl time.Duration) *ExportService {
	if ttl <= 0 {
		ttl = defaultExportTTL
	}
	return &ExportService{
		source: source,
		cache:  cache,
		files:  files,
		ws:     ws,
		log:    logger.Named("export"),
		prefix: strings.TrimSuffix(prefix, ":"),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *ExportService) statusKey(id string) string { return s.prefix + ":" + id }
func (s *ExportService) setKey() string           { return s.prefix + ":ids" }

// Wait blocks until every export started so far has finished.
func (s *ExportService) Wait() {
	s.running.Wait()
}

func (s *ExportService) StartDefaultersExport(ctx context.Context, operatorID int64, classID string) (string, error) {
	if strings.TrimSpace(classID) == "" {
		return "", &domain.FieldError{Field: "class_id", Message: "class_id is required", Err: domain.ErrInvalidArgument}
	}

	filters := map[string]any{"class_id": classID}
	return s.start(ctx, ExportDefaulters, operatorID, filters, func(ctx context.Context) (*excelize.File, error) {
		rows, err := s.source.ListDefaulters(ctx, classID)
		if err != nil {
			return nil, err
		}
		return buildWorkbook("Defaulters", defaulterColumns, rows, operatorID)
	})
}

func (s *ExportService) StartInvoicesExport(ctx context.Context, operatorID int64, q InvoiceQuery) (string, error) {
	if !domain.ValidPeriod(q.Month, q.Year) {
		return "", fmt.Errorf("%w: month %d / year %d", domain.ErrInvalidPeriod, q.Month, q.Year)
	}
	if strings.TrimSpace(q.ClassID) == "" {
		return "", &domain.FieldError{Field: "class_id", Message: "class_id is required", Err: domain.ErrInvalidArgument}
	}

	statuses := make([]string, len(q.Statuses))
	for i, st := range q.Statuses {
		statuses[i] = string(st)
	}
	filters := map[string]any{"class_id": q.ClassID, "month": q.Month, "year": q.Year, "status": statuses}

	return s.start(ctx, ExportInvoices, operatorID, filters, func(ctx context.Context) (*excelize.File, error) {
		views, err := s.source.ListInvoices(ctx, q)
		if err != nil {
			return nil, err
		}
		return buildWorkbook("Invoices", invoiceColumns, views, operatorID)
	})
}

func (s *ExportService) start(
	ctx context.Context,
	exportType string,
	operatorID int64,
	filters map[string]any,
	build func(ctx context.Context) (*excelize.File, error),
) (string, error) {
	status := &ExportStatus{
		ID:         uuid.NewString(),
		Type:       exportType,
		OperatorID: operatorID,
		Filters:    filters,
		Created:    s.now(),
	}
	if err := s.saveStatus(ctx, status); err != nil {
		return "", fmt.Errorf("save export status: %w", err)
	}

	s.running.Add(1)
	go func() {
		defer s.running.Done()

		// the request that started the export is already answered
		runCtx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()
		s.run(runCtx, status, build)
	}()

	return status.ID, nil
}

func (s *ExportService) run(ctx context.Context, status *ExportStatus, build func(ctx context.Context) (*excelize.File, error)) {
	s.progress(ctx, status, 10, "loading")

	f, err := build(ctx)
	if err != nil {
		s.fail(ctx, status, fmt.Errorf("build %s export: %w", status.Type, err))
		return
	}
	defer f.Close()

	s.progress(ctx, status, 60, "generating")
	buf, err := f.WriteToBuffer()
	if err != nil {
		s.fail(ctx, status, fmt.Errorf("write workbook: %w", err))
		return
	}

	s.progress(ctx, status, 90, "uploading")
	fileName := fmt.Sprintf("%s_%s.xlsx", status.Type, s.now().Format("20060102_150405"))
	stored, err := s.files.Store(ctx, fileName, buf.Bytes())
	if err != nil {
		s.fail(ctx, status, fmt.Errorf("save export failed: %w", err))
		return
	}

	status.FileURL = &stored.URL
	s.progress(ctx, status, 100, "ready")
	if s.ws != nil {
		_ = s.ws.NotifyExportComplete(ctx, status.OperatorID, status.ID, stored.URL, fileName)
	}
	s.log.Info("export ready", zap.String("export_id", status.ID), zap.String("type", status.Type))
}

func (s *ExportService) progress(ctx context.Context, status *ExportStatus, progress float64, stage string) {
	status.Progress = progress
	if err := s.saveStatus(ctx, status); err != nil {
		s.log.Warn("save export status failed", zap.String("export_id", status.ID), zap.Error(err))
	}
	if s.ws != nil {
		_ = s.ws.NotifyExportProgress(ctx, status.OperatorID, status.ID, progress, stage)
	}
}

func (s *ExportService) fail(ctx context.Context, status *ExportStatus, err error) {
	s.log.Error("export failed", zap.String("export_id", status.ID), zap.Error(err))

	msg := err.Error()
	status.Error = &msg
	status.Progress = 100
	if err := s.saveStatus(ctx, status); err != nil {
		s.log.Warn("save export status failed", zap.String("export_id", status.ID), zap.Error(err))
	}
	if s.ws != nil {
		_ = s.ws.NotifyExportFailed(ctx, status.OperatorID, status.ID, msg)
	}
}

func (s *ExportService) saveStatus(ctx context.Context, st *ExportStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, s.statusKey(st.ID), string(data), s.ttl); err != nil {
		return err
	}
	return s.cache.SAdd(ctx, s.setKey(), st.ID)
}

func (s *ExportService) load(ctx context.Context, id string) (ExportStatus, error) {
	data, err := s.cache.Get(ctx, s.statusKey(id))
	if err != nil {
		return ExportStatus{}, err
	}
	var st ExportStatus
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return ExportStatus{}, fmt.Errorf("failed to parse export status: %w", err)
	}
	st.CreatedAgo = humanizeAgo(s.now(), st.Created)
	return st, nil
}

// GetExports lists the operator's exports that have not expired yet, newest first.
func (s *ExportService) GetExports(ctx context.Context, operatorID int64) ([]ExportStatus, error) {
	ids, err := s.cache.SMembers(ctx, s.setKey())
	if err != nil {
		return nil, fmt.Errorf("failed to get export keys: %w", err)
	}

	out := []ExportStatus{}
	for _, id := range ids {
		st, err := s.load(ctx, id)
		if isCacheMiss(err) {
			// expired, forget it
			_ = s.cache.SRem(ctx, s.setKey(), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load export %s: %w", id, err)
		}
		if st.OperatorID == operatorID {
			out = append(out, st)
		}
	}

	slices.SortFunc(out, func(a, b ExportStatus) int {
		return b.Created.Compare(a.Created)
	})
	return out, nil
}

func (s *ExportService) GetExport(ctx context.Context, exportID string, operatorID int64) (ExportStatus, error) {
	st, err := s.load(ctx, exportID)
	if err != nil {
		if isCacheMiss(err) {
			return ExportStatus{}, fmt.Errorf("export %s: %w", exportID, domain.ErrNotFound)
		}
		return ExportStatus{}, err
	}
	if st.OperatorID != operatorID {
		return ExportStatus{}, fmt.Errorf("export %s: %w", exportID, domain.ErrNotFound)
	}
	return st, nil
}

func buildWorkbook[T any](sheet string, cols []exportColumn[T], rows []T, operatorID int64) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}
	_ = f.SetDocProps(&excelize.DocProperties{Creator: fmt.Sprintf("operator_%d", operatorID)})

	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, err
	}

	for i, col := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, col.Header); err != nil {
			return nil, err
		}
		if col.Money {
			name, _ := excelize.ColumnNumberToName(i + 1)
			if err := f.SetColStyle(sheet, name, moneyStyle); err != nil {
				return nil, err
			}
		}
	}

	for r, row := range rows {
		for i, col := range cols {
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			if err := f.SetCellValue(sheet, cell, col.Value(row)); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

func humanizeAgo(now, t time.Time) string {
	if t.After(now) {
		return "just now"
	}

	minutes := int(now.Sub(t).Minutes())
	if minutes < 1 {
		return "just now"
	}
	if minutes < 60 {
		return fmt.Sprintf("%d %s ago", minutes, plural(minutes, "minute", "minutes"))
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%d %s ago", hours, plural(hours, "hour", "hours"))
	}
	days := hours / 24
	if days < 30 {
		return fmt.Sprintf("%d %s ago", days, plural(days, "day", "days"))
	}
	return t.Format("02.01.2006 15:04")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func isCacheMiss(err error) bool {
	return errors.Is(err, clients.ErrCacheMiss) || clients.IsRedisNil(err)
}
