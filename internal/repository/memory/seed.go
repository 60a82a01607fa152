package memory

import (
	"encoding/json"
	"fmt"
	"io"

	"school-fees/internal/domain"
)

type rosterEntry struct {
	ID        string `json:"id"`
	SchoolID  string `json:"school_id"`
	ClassID   string `json:"class_id"`
	ClassName string `json:"class_name"`
	Name      string `json:"name"`
	RollNum   string `json:"roll_num"`
}

// LoadRoster reads a JSON array of students and adds each one to the store.
func (s *Store) LoadRoster(r io.Reader) (int, error) {
	var entries []rosterEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return 0, fmt.Errorf("decode roster: %w", err)
	}

	for i, e := range entries {
		if e.ID == "" || e.SchoolID == "" || e.ClassID == "" {
			return i, fmt.Errorf("roster entry %d: id, school_id and class_id are required", i)
		}
		s.AddStudent(domain.Student{
			ID:        e.ID,
			SchoolID:  e.SchoolID,
			ClassID:   e.ClassID,
			ClassName: e.ClassName,
			Name:      e.Name,
			RollNum:   e.RollNum,
		})
	}
	return len(entries), nil
}
