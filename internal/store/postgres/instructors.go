package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/classmgr/attendbot/internal/store"
)

// GetInstructor retrieves an instructor by handle.
func (s *Store) GetInstructor(ctx context.Context, handle int64) (*store.Instructor, error) {
	query := `
		SELECT handle, full_name, state, metadata, joined_at, last_activity
		FROM instructors
		WHERE handle = $1
	`

	var inst store.Instructor
	var state int
	err := s.pool.QueryRow(ctx, query, handle).Scan(
		&inst.Handle, &inst.FullName, &state, &inst.Metadata, &inst.JoinedAt, &inst.LastActivity,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query instructor: %w", err)
	}
	inst.State = store.InstructorState(state)
	return &inst, nil
}

// SetInstructorState overwrites the conversation state and metadata in one
// statement.
func (s *Store) SetInstructorState(ctx context.Context, handle int64, state store.InstructorState, metadata string) error {
	res, err := s.pool.Exec(ctx,
		"UPDATE instructors SET state = $1, metadata = $2 WHERE handle = $3",
		int(state), metadata, handle,
	)
	if err != nil {
		return fmt.Errorf("update instructor state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update instructor state: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// TouchInstructor updates the last-activity timestamp.
func (s *Store) TouchInstructor(ctx context.Context, handle int64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE instructors SET last_activity = $1 WHERE handle = $2",
		at, handle,
	)
	if err != nil {
		return fmt.Errorf("touch instructor: %w", err)
	}
	return nil
}
