package mysql

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
		WHERE handle = ?
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
		"UPDATE instructors SET state = ?, metadata = ? WHERE handle = ?",
		int(state), metadata, handle,
	)
	if err != nil {
		return fmt.Errorf("update instructor state: %w", err)
	}
	// MySQL reports zero affected rows for no-op updates as well, so check
	// existence separately before reporting not-found.
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update instructor state: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM instructors WHERE handle = ?)", handle).Scan(&exists); err != nil {
			return fmt.Errorf("check instructor exists: %w", err)
		}
		if !exists {
			return store.ErrNotFound
		}
	}
	return nil
}

// TouchInstructor updates the last-activity timestamp.
func (s *Store) TouchInstructor(ctx context.Context, handle int64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE instructors SET last_activity = ? WHERE handle = ?",
		at, handle,
	)
	if err != nil {
		return fmt.Errorf("touch instructor: %w", err)
	}
	return nil
}

const enrolleeColumns = "label, handle, guid, first_name, last_name, joined_at"

func scanEnrollee(row *sql.Row) (*store.Enrollee, error) {
	var e store.Enrollee
	var handle sql.NullInt64
	var guid sql.NullString
	err := row.Scan(&e.Label, &handle, &guid, &e.FirstName, &e.LastName, &e.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan enrollee: %w", err)
	}
	switch {
	case handle.Valid:
		e.Ref = store.RefByHandle(handle.Int64)
	case guid.Valid:
		e.Ref = store.RefByGuid(guid.String)
	default:
		return nil, store.ErrInvalidReference
	}
	return &e, nil
}

// GetEnrollee retrieves an enrollee by reference, branching on which variant
// is present.
func (s *Store) GetEnrollee(ctx context.Context, ref store.EnrolleeRef) (*store.Enrollee, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	if handle, ok := ref.Handle(); ok {
		row := s.pool.QueryRow(ctx,
			"SELECT "+enrolleeColumns+" FROM enrollees WHERE handle = ?", handle)
		return scanEnrollee(row)
	}
	guid, _ := ref.Guid()
	row := s.pool.QueryRow(ctx,
		"SELECT "+enrolleeColumns+" FROM enrollees WHERE guid = ?", guid)
	return scanEnrollee(row)
}

// GetEnrolleeByLabel retrieves an enrollee by classifier label.
func (s *Store) GetEnrolleeByLabel(ctx context.Context, label int) (*store.Enrollee, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+enrolleeColumns+" FROM enrollees WHERE label = ?", label)
	return scanEnrollee(row)
}

// CreateEnrollee inserts the enrollee, letting AUTO_INCREMENT assign its
// classifier label. On a reference conflict the existing record is loaded
// into e instead.
func (s *Store) CreateEnrollee(ctx context.Context, e *store.Enrollee) error {
	if err := e.Ref.Validate(); err != nil {
		return err
	}

	var handle sql.NullInt64
	var guid sql.NullString
	if h, ok := e.Ref.Handle(); ok {
		handle = sql.NullInt64{Int64: h, Valid: true}
	} else {
		g, _ := e.Ref.Guid()
		guid = sql.NullString{String: g, Valid: true}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT IGNORE INTO enrollees (handle, guid, first_name, last_name)
		VALUES (?, ?, ?, ?)
	`, handle, guid, e.FirstName, e.LastName)
	if err != nil {
		return fmt.Errorf("insert enrollee: %w", err)
	}

	created, err := s.GetEnrollee(ctx, e.Ref)
	if err != nil {
		return fmt.Errorf("fetch created enrollee: %w", err)
	}
	*e = *created
	return nil
}

// GetSession retrieves a class session by presentation code.
func (s *Store) GetSession(ctx context.Context, code string) (*store.ClassSession, error) {
	query := `
		SELECT code, name, instructor_handle, starts_at, ends_at, exam_at, room
		FROM class_sessions
		WHERE code = ?
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
		WHERE instructor_handle = ?
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

// AttendanceExists checks whether a record exists for the natural key.
func (s *Store) AttendanceExists(ctx context.Context, ref store.EnrolleeRef, sessionCode string, date time.Time) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM attendance
			WHERE enrollee_ref = ? AND session_code = ? AND attended_on = ?
		)
	`, ref.String(), sessionCode, store.DateKey(date)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check attendance exists: %w", err)
	}
	return exists, nil
}

// InsertAttendance writes the record idempotently via INSERT IGNORE; the
// surviving row is returned to racing callers.
func (s *Store) InsertAttendance(ctx context.Context, rec *store.AttendanceRecord) (*store.AttendanceRecord, error) {
	if err := rec.Enrollee.Validate(); err != nil {
		return nil, err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT IGNORE INTO attendance (enrollee_ref, session_code, attended_on, recorded_by)
		VALUES (?, ?, ?, ?)
	`, rec.Enrollee.String(), rec.SessionCode, store.DateKey(rec.AttendedOn), rec.RecordedBy)
	if err != nil {
		return nil, fmt.Errorf("insert attendance: %w", err)
	}

	query := `
		SELECT enrollee_ref, session_code, attended_on, recorded_by, created_at
		FROM attendance
		WHERE enrollee_ref = ? AND session_code = ? AND attended_on = ?
	`

	var out store.AttendanceRecord
	var refKey string
	err = s.pool.QueryRow(ctx, query, rec.Enrollee.String(), rec.SessionCode, store.DateKey(rec.AttendedOn)).Scan(
		&refKey, &out.SessionCode, &out.AttendedOn, &out.RecordedBy, &out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch attendance: %w", err)
	}
	out.Enrollee, err = store.ParseRef(refKey)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAttendance lists the records for a session on a date.
func (s *Store) ListAttendance(ctx context.Context, sessionCode string, date time.Time) ([]store.AttendanceRecord, error) {
	query := `
		SELECT enrollee_ref, session_code, attended_on, recorded_by, created_at
		FROM attendance
		WHERE session_code = ? AND attended_on = ?
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

// AddFaceSample appends one enrolled face sample.
func (s *Store) AddFaceSample(ctx context.Context, sample *store.FaceSample) error {
	res, err := s.pool.Exec(ctx, `
		INSERT INTO face_samples (label, image_path, embedding)
		VALUES (?, ?, ?)
	`, sample.Label, sample.ImagePath, encodeEmbedding(sample.Embedding))
	if err != nil {
		return fmt.Errorf("insert face sample: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert face sample: %w", err)
	}
	sample.ID = id
	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = time.Now()
	}
	return nil
}

// ListFaceSamples returns all enrolled samples, oldest first.
func (s *Store) ListFaceSamples(ctx context.Context) ([]store.FaceSample, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, label, image_path, embedding, created_at
		FROM face_samples
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query face samples: %w", err)
	}
	defer rows.Close()

	var samples []store.FaceSample
	for rows.Next() {
		var sample store.FaceSample
		var blob []byte
		if err := rows.Scan(&sample.ID, &sample.Label, &sample.ImagePath, &blob, &sample.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan face sample: %w", err)
		}
		sample.Embedding, err = decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("decode face sample %d: %w", sample.ID, err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face samples: %w", err)
	}
	return samples, nil
}

// CountFaceSamples returns the total number of enrolled samples.
func (s *Store) CountFaceSamples(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_samples").Scan(&count); err != nil {
		return 0, fmt.Errorf("count face samples: %w", err)
	}
	return count, nil
}
