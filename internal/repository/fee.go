package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"school-fees/internal/domain"
)

type FeeHeadRepository struct {
	db *sql.DB
}

func NewFeeHeadRepository(db *sql.DB) *FeeHeadRepository {
	return &FeeHeadRepository{db: db}
}

func (r *FeeHeadRepository) CreateHead(ctx context.Context, h domain.FeeHead) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO fee_heads (id, name, description, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		h.ID, h.Name, h.Description, h.CreatedAt, h.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *FeeHeadRepository) UpdateHead(ctx context.Context, h domain.FeeHead) error {
	if !validID(h.ID) {
		return domain.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE fee_heads SET name = $2, description = $3, updated_at = $4 WHERE id = $1`,
		h.ID, h.Name, h.Description, h.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *FeeHeadRepository) GetHead(ctx context.Context, id string) (domain.FeeHead, error) {
	if !validID(id) {
		return domain.FeeHead{}, domain.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at, updated_at FROM fee_heads WHERE id = $1`, id)

	h, err := scanFeeHead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FeeHead{}, domain.ErrNotFound
	}
	return h, err
}

func (r *FeeHeadRepository) ListHeads(ctx context.Context) ([]domain.FeeHead, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, created_at, updated_at FROM fee_heads ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FeeHead
	for rows.Next() {
		h, err := scanFeeHead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFeeHead(s scanner) (domain.FeeHead, error) {
	var h domain.FeeHead
	var desc sql.NullString
	if err := s.Scan(&h.ID, &h.Name, &desc, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return domain.FeeHead{}, err
	}
	if desc.Valid {
		h.Description = &desc.String
	}
	return h, nil
}

type FeeStructureRepository struct {
	db *sql.DB
}

func NewFeeStructureRepository(db *sql.DB) *FeeStructureRepository {
	return &FeeStructureRepository{db: db}
}

func (r *FeeStructureRepository) GetStructure(ctx context.Context, classID string, year int) (domain.FeeStructure, error) {
	fs := domain.FeeStructure{ClassID: classID, Year: year}
	var heads []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT heads, late_fee, due_day, updated_at FROM fee_structures WHERE class_id = $1 AND year = $2`,
		classID, year,
	).Scan(&heads, &fs.LateFee, &fs.DueDay, &fs.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FeeStructure{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.FeeStructure{}, err
	}

	if err := json.Unmarshal(heads, &fs.Heads); err != nil {
		return domain.FeeStructure{}, fmt.Errorf("decode heads of %s/%d: %w", classID, year, err)
	}
	return fs, nil
}

func (r *FeeStructureRepository) UpsertStructure(ctx context.Context, fs domain.FeeStructure) error {
	heads := fs.Heads
	if heads == nil {
		heads = []domain.FeeStructureHead{}
	}
	raw, err := json.Marshal(heads)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO fee_structures (class_id, year, heads, late_fee, due_day, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (class_id, year) DO UPDATE
		SET heads = EXCLUDED.heads, late_fee = EXCLUDED.late_fee, due_day = EXCLUDED.due_day, updated_at = EXCLUDED.updated_at`,
		fs.ClassID, fs.Year, string(raw), fs.LateFee, fs.DueDay, fs.UpdatedAt,
	)
	return err
}
