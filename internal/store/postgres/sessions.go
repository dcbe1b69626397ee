package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/classmgr/attendbot/internal/store"
)

// GetSession retrieves a class session by presentation code.
func (s *Store) GetSession(ctx context.Context, code string) (*store.ClassSession, error) {
	query := `
		SELECT code, name, instructor_handle, starts_at, ends_at, exam_at, room
		FROM class_sessions
		WHERE code = $1
	`

	var cs store.ClassSession
	var examAt sql.NullTime
	err := s.pool.QueryRow(ctx, query, code).Scan(
		&cs.Code, &cs.Name, &cs.InstructorHandle, &cs.StartsAt, &cs.EndsAt, &examAt, &cs.Room,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	if examAt.Valid {
		cs.ExamAt = examAt.Time
	}
	return &cs, nil
}

// ListInstructorSessions lists the sessions owned by an instructor.
func (s *Store) ListInstructorSessions(ctx context.Context, handle int64) ([]store.ClassSession, error) {
	query := `
		SELECT code, name, instructor_handle, starts_at, ends_at, exam_at, room
		FROM class_sessions
		WHERE instructor_handle = $1
		ORDER BY code
	`

	rows, err := s.pool.Query(ctx, query, handle)
	if err != nil {
		return nil, fmt.Errorf("query instructor sessions: %w", err)
	}
	defer rows.Close()

	var sessions []store.ClassSession
	for rows.Next() {
		var cs store.ClassSession
		var examAt sql.NullTime
		if err := rows.Scan(&cs.Code, &cs.Name, &cs.InstructorHandle, &cs.StartsAt, &cs.EndsAt, &examAt, &cs.Room); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if examAt.Valid {
			cs.ExamAt = examAt.Time
		}
		sessions = append(sessions, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}
