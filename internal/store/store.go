// Package store defines the identity-store entities and the storage
// interfaces the workflow operates against. Concrete backends live in the
// postgres, mysql and memory subpackages.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a looked-up entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidReference is returned when an enrollee reference carries neither
// a handle nor a guid. This indicates a programming error in the caller.
var ErrInvalidReference = errors.New("invalid enrollee reference")

// InstructorStore provides access to instructor records. Instructors are
// created out-of-band; the workflow only reads them and overwrites their
// conversation state.
type InstructorStore interface {
	GetInstructor(ctx context.Context, handle int64) (*Instructor, error)
	// SetInstructorState overwrites the instructor's conversation state and
	// metadata in a single write.
	SetInstructorState(ctx context.Context, handle int64, state InstructorState, metadata string) error
	// TouchInstructor updates the instructor's last-activity timestamp.
	TouchInstructor(ctx context.Context, handle int64, at time.Time) error
}

// EnrolleeStore provides access to enrollee records.
type EnrolleeStore interface {
	GetEnrollee(ctx context.Context, ref EnrolleeRef) (*Enrollee, error)
	GetEnrolleeByLabel(ctx context.Context, label int) (*Enrollee, error)
	// CreateEnrollee inserts the enrollee and assigns its classifier label,
	// written back to e.Label. If an enrollee with the same reference already
	// exists, the existing record is loaded into e instead.
	CreateEnrollee(ctx context.Context, e *Enrollee) error
}

// SessionStore provides read access to class sessions. Sessions are
// provisioned out-of-band.
type SessionStore interface {
	GetSession(ctx context.Context, code string) (*ClassSession, error)
	ListInstructorSessions(ctx context.Context, handle int64) ([]ClassSession, error)
}

// AttendanceStore persists attendance records. At most one record may exist
// per (enrollee reference, session code, date); InsertAttendance must be
// idempotent with respect to that key.
type AttendanceStore interface {
	AttendanceExists(ctx context.Context, ref EnrolleeRef, sessionCode string, date time.Time) (bool, error)
	// InsertAttendance writes the record, or returns the already-existing
	// record for the same natural key without error.
	InsertAttendance(ctx context.Context, rec *AttendanceRecord) (*AttendanceRecord, error)
	ListAttendance(ctx context.Context, sessionCode string, date time.Time) ([]AttendanceRecord, error)
}

// FaceSampleStore persists enrolled face samples. Samples are append-only;
// one label may own many samples.
type FaceSampleStore interface {
	AddFaceSample(ctx context.Context, s *FaceSample) error
	ListFaceSamples(ctx context.Context) ([]FaceSample, error)
	CountFaceSamples(ctx context.Context) (int, error)
}

// Store combines all storage interfaces for a single backend.
type Store interface {
	InstructorStore
	EnrolleeStore
	SessionStore
	AttendanceStore
	FaceSampleStore

	Close() error
}

// DateKey formats a timestamp as the calendar-date component of the
// attendance natural key.
func DateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}
