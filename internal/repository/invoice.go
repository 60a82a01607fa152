package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"school-fees/internal/domain"
)

type InvoiceFilter struct {
	ClassID  *string
	Month    *int
	Year     *int
	Statuses []domain.InvoiceStatus
	// nil means no restriction, an empty slice matches nothing
	StudentIDs   []string
	WithPayments bool
}

type InvoiceRepository struct {
	db *sql.DB
}

func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `id, school_id, student_id, class_id, month, year, challan_number, lines, total_amount, late_fee, due_day, late_fine, paid_amount, status, version, created_at, updated_at`

func (r *InvoiceRepository) CreateInvoice(ctx context.Context, inv domain.Invoice) error {
	lines := inv.Lines
	if lines == nil {
		lines = []domain.InvoiceLine{}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		inv.ID, inv.SchoolID, inv.StudentID, inv.ClassID, inv.Month, inv.Year, inv.ChallanNumber,
		string(raw), inv.TotalAmount, inv.LateFee, inv.DueDay, inv.LateFine, inv.PaidAmount,
		string(inv.Status), inv.Version, inv.CreatedAt, inv.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *InvoiceRepository) InvoiceExists(ctx context.Context, studentID string, month, year int) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM invoices WHERE student_id = $1 AND month = $2 AND year = $3)`,
		studentID, month, year,
	).Scan(&exists)
	return exists, err
}

func (r *InvoiceRepository) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	if !validID(id) {
		return domain.Invoice{}, domain.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)

	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Invoice{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Invoice{}, err
	}

	payments, err := r.payments(ctx, []string{inv.ID})
	if err != nil {
		return domain.Invoice{}, err
	}
	inv.Payments = payments[inv.ID]
	return inv, nil
}

func (r *InvoiceRepository) ListInvoices(ctx context.Context, f InvoiceFilter) ([]domain.Invoice, error) {
	where := []string{"1=1"}
	args := []any{}
	i := 1

	if f.ClassID != nil {
		where = append(where, fmt.Sprintf("class_id = $%d", i))
		args = append(args, *f.ClassID)
		i++
	}
	if f.Month != nil {
		where = append(where, fmt.Sprintf("month = $%d", i))
		args = append(args, *f.Month)
		i++
	}
	if f.Year != nil {
		where = append(where, fmt.Sprintf("year = $%d", i))
		args = append(args, *f.Year)
		i++
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for k, st := range f.Statuses {
			statuses[k] = string(st)
		}
		where = append(where, fmt.Sprintf("status = ANY($%d)", i))
		args = append(args, statuses)
		i++
	}
	if f.StudentIDs != nil {
		if len(f.StudentIDs) == 0 {
			return nil, nil
		}
		where = append(where, fmt.Sprintf("student_id = ANY($%d)", i))
		args = append(args, f.StudentIDs)
		i++
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE ` + strings.Join(where, " AND ") + ` ORDER BY year, month, challan_number`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if f.WithPayments && len(out) > 0 {
		ids := make([]string, len(out))
		for k := range out {
			ids[k] = out[k].ID
		}
		payments, err := r.payments(ctx, ids)
		if err != nil {
			return nil, err
		}
		for k := range out {
			out[k].Payments = payments[out[k].ID]
		}
	}
	return out, nil
}

// SavePayment persists the mutated invoice together with its new payment row. The
// update only applies while the stored version still equals expectedVersion.
func (r *InvoiceRepository) SavePayment(ctx context.Context, inv domain.Invoice, p domain.Payment, expectedVersion int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE invoices
		SET late_fine = $1, paid_amount = $2, status = $3, version = $4, updated_at = $5
		WHERE id = $6 AND version = $7`,
		inv.LateFine, inv.PaidAmount, string(inv.Status), inv.Version, inv.UpdatedAt, inv.ID, expectedVersion,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrConflict
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO invoice_payments (id, invoice_id, amount, payment_date, recorded_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, inv.ID, p.Amount, p.Date, p.RecordedAt,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *InvoiceRepository) NextChallanNumber(ctx context.Context, schoolID string) (int64, error) {
	var next int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO challan_sequences (school_id, last_value) VALUES ($1, 1)
		ON CONFLICT (school_id) DO UPDATE SET last_value = challan_sequences.last_value + 1
		RETURNING last_value`,
		schoolID,
	).Scan(&next)
	return next, err
}

func (r *InvoiceRepository) payments(ctx context.Context, invoiceIDs []string) (map[string][]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT invoice_id, id, amount, payment_date, recorded_at FROM invoice_payments
		WHERE invoice_id = ANY($1) ORDER BY recorded_at, id`,
		invoiceIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.Payment, len(invoiceIDs))
	for rows.Next() {
		var invoiceID string
		var p domain.Payment
		if err := rows.Scan(&invoiceID, &p.ID, &p.Amount, &p.Date, &p.RecordedAt); err != nil {
			return nil, err
		}
		out[invoiceID] = append(out[invoiceID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanInvoice(s scanner) (domain.Invoice, error) {
	var inv domain.Invoice
	var lines []byte
	var status string
	if err := s.Scan(
		&inv.ID,
		&inv.SchoolID,
		&inv.StudentID,
		&inv.ClassID,
		&inv.Month,
		&inv.Year,
		&inv.ChallanNumber,
		&lines,
		&inv.TotalAmount,
		&inv.LateFee,
		&inv.DueDay,
		&inv.LateFine,
		&inv.PaidAmount,
		&status,
		&inv.Version,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	); err != nil {
		return domain.Invoice{}, err
	}
	inv.Status = domain.InvoiceStatus(status)

	if err := json.Unmarshal(lines, &inv.Lines); err != nil {
		return domain.Invoice{}, fmt.Errorf("decode lines of invoice %s: %w", inv.ID, err)
	}
	return inv, nil
}
