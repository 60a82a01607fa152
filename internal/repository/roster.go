package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"school-fees/internal/domain"
)

// RosterRepository reads students and classes owned by the student registry.
type RosterRepository struct {
	db *sql.DB
}

func NewRosterRepository(db *sql.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

const rosterSelect = `SELECT s.id, s.school_id, s.class_id, c.name, s.name, s.roll_num FROM students s JOIN classes c ON c.id = s.class_id`

type StudentFilter struct {
	SchoolID *string
	ClassID  *string
	RollNum  *string
	IDs      []string
}

func (r *RosterRepository) GetStudent(ctx context.Context, id string) (domain.Student, error) {
	row := r.db.QueryRowContext(ctx, rosterSelect+` WHERE s.id = $1`, id)

	var st domain.Student
	err := row.Scan(&st.ID, &st.SchoolID, &st.ClassID, &st.ClassName, &st.Name, &st.RollNum)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Student{}, domain.ErrNotFound
	}
	return st, err
}

func (r *RosterRepository) ListStudents(ctx context.Context, f StudentFilter) ([]domain.Student, error) {
	where := []string{"1=1"}
	args := []any{}
	i := 1

	if f.SchoolID != nil {
		where = append(where, fmt.Sprintf("s.school_id = $%d", i))
		args = append(args, *f.SchoolID)
		i++
	}
	if f.ClassID != nil {
		where = append(where, fmt.Sprintf("s.class_id = $%d", i))
		args = append(args, *f.ClassID)
		i++
	}
	if f.RollNum != nil {
		where = append(where, fmt.Sprintf("s.roll_num = $%d", i))
		args = append(args, *f.RollNum)
		i++
	}
	if f.IDs != nil {
		if len(f.IDs) == 0 {
			return nil, nil
		}
		where = append(where, fmt.Sprintf("s.id = ANY($%d)", i))
		args = append(args, f.IDs)
		i++
	}

	query := rosterSelect + " WHERE " + strings.Join(where, " AND ")

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Student
	for rows.Next() {
		var st domain.Student
		if err := rows.Scan(&st.ID, &st.SchoolID, &st.ClassID, &st.ClassName, &st.Name, &st.RollNum); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
