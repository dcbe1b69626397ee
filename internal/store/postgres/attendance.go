package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/classmgr/attendbot/internal/store"
)

// AttendanceExists checks whether a record exists for the natural key.
func (s *Store) AttendanceExists(ctx context.Context, ref store.EnrolleeRef, sessionCode string, date time.Time) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM attendance
			WHERE enrollee_ref = $1 AND session_code = $2 AND attended_on = $3
		)
	`, ref.String(), sessionCode, store.DateKey(date)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check attendance exists: %w", err)
	}
	return exists, nil
}

// InsertAttendance writes the record idempotently: a concurrent insert for
// the same natural key loses the race silently and the surviving row is
// returned to both callers.
func (s *Store) InsertAttendance(ctx context.Context, rec *store.AttendanceRecord) (*store.AttendanceRecord, error) {
	if err := rec.Enrollee.Validate(); err != nil {
		return nil, err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO attendance (enrollee_ref, session_code, attended_on, recorded_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`, rec.Enrollee.String(), rec.SessionCode, store.DateKey(rec.AttendedOn), rec.RecordedBy)
	if err != nil {
		return nil, fmt.Errorf("insert attendance: %w", err)
	}

	return s.getAttendance(ctx, rec.Enrollee, rec.SessionCode, rec.AttendedOn)
}

func (s *Store) getAttendance(ctx context.Context, ref store.EnrolleeRef, sessionCode string, date time.Time) (*store.AttendanceRecord, error) {
	query := `
		SELECT enrollee_ref, session_code, attended_on, recorded_by, created_at
		FROM attendance
		WHERE enrollee_ref = $1 AND session_code = $2 AND attended_on = $3
	`

	var rec store.AttendanceRecord
	var refKey string
	err := s.pool.QueryRow(ctx, query, ref.String(), sessionCode, store.DateKey(date)).Scan(
		&refKey, &rec.SessionCode, &rec.AttendedOn, &rec.RecordedBy, &rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch attendance: %w", err)
	}
	rec.Enrollee, err = store.ParseRef(refKey)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListAttendance lists the records for a session on a date.
func (s *Store) ListAttendance(ctx context.Context, sessionCode string, date time.Time) ([]store.AttendanceRecord, error) {
	query := `
		SELECT enrollee_ref, session_code, attended_on, recorded_by, created_at
		FROM attendance
		WHERE session_code = $1 AND attended_on = $2
		ORDER BY created_at
	`

	rows, err := s.pool.Query(ctx, query, sessionCode, store.DateKey(date))
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var records []store.AttendanceRecord
	for rows.Next() {
		var rec store.AttendanceRecord
		var refKey string
		if err := rows.Scan(&refKey, &rec.SessionCode, &rec.AttendedOn, &rec.RecordedBy, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		rec.Enrollee, err = store.ParseRef(refKey)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return records, nil
}
