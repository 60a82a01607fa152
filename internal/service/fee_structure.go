package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"school-fees/internal/domain"

	"github.com/google/uuid"
)

type FeeConfigService struct {
	heads      FeeHeadRepository
	structures FeeStructureRepository
	now        Clock
}

func NewFeeConfigService(heads FeeHeadRepository, structures FeeStructureRepository) *FeeConfigService {
	return &FeeConfigService{heads: heads, structures: structures, now: time.Now}
}

func (s *FeeConfigService) ListHeads(ctx context.Context) ([]domain.FeeHead, error) {
	heads, err := s.heads.ListHeads(ctx)
	if err != nil {
		return nil, err
	}
	if heads == nil {
		heads = []domain.FeeHead{}
	}
	return heads, nil
}

func (s *FeeConfigService) CreateHead(ctx context.Context, name string, description *string) (domain.FeeHead, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.FeeHead{}, &domain.FieldError{Field: "name", Message: "name is required", Err: domain.ErrInvalidArgument}
	}

	now := s.now()
	h := domain.FeeHead{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.heads.CreateHead(ctx, h); err != nil {
		return domain.FeeHead{}, fmt.Errorf("create fee head: %w", err)
	}
	return h, nil
}

// UpdateHead renames a head or changes its description. Nil fields stay unchanged.
func (s *FeeConfigService) UpdateHead(ctx context.Context, id string, name, description *string) (domain.FeeHead, error) {
	h, err := s.heads.GetHead(ctx, id)
	if err != nil {
		return domain.FeeHead{}, fmt.Errorf("fee head %s: %w", id, err)
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return domain.FeeHead{}, &domain.FieldError{Field: "name", Message: "name must not be empty", Err: domain.ErrInvalidArgument}
		}
		h.Name = trimmed
	}
	if description != nil {
		h.Description = description
	}
	h.UpdatedAt = s.now()

	if err := s.heads.UpdateHead(ctx, h); err != nil {
		return domain.FeeHead{}, fmt.Errorf("update fee head %s: %w", id, err)
	}
	return h, nil
}

func (s *FeeConfigService) GetStructure(ctx context.Context, classID string, year int) (domain.FeeStructure, error) {
	fs, err := s.structures.GetStructure(ctx, classID, year)
	if err != nil {
		return domain.FeeStructure{}, fmt.Errorf("fee structure %s/%d: %w", classID, year, err)
	}
	return fs, nil
}

// PutStructure replaces the structure of (class, year). Invoices that were already
// generated keep the amounts they were raised with.
func (s *FeeConfigService) PutStructure(ctx context.Context, fs domain.FeeStructure) (domain.FeeStructure, error) {
	if err := fs.Validate(); err != nil {
		return domain.FeeStructure{}, err
	}

	heads, err := s.heads.ListHeads(ctx)
	if err != nil {
		return domain.FeeStructure{}, fmt.Errorf("load fee heads: %w", err)
	}
	known := make(map[string]bool, len(heads))
	for _, h := range heads {
		known[h.ID] = true
	}
	for i, h := range fs.Heads {
		if !known[h.HeadID] {
			return domain.FeeStructure{}, &domain.FieldError{
				Field:   fmt.Sprintf("heads[%d].head_id", i),
				Message: fmt.Sprintf("unknown fee head %s", h.HeadID),
				Err:     domain.ErrInvalidFeeStructure,
			}
		}
	}

	if fs.Heads == nil {
		fs.Heads = []domain.FeeStructureHead{}
	}
	fs.UpdatedAt = s.now()
	if err := s.structures.UpsertStructure(ctx, fs); err != nil {
		return domain.FeeStructure{}, fmt.Errorf("save fee structure: %w", err)
	}
	return fs, nil
}
