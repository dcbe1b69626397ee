// Package ledger commits attendance facts. It sits between the workflow and
// the attendance store and guarantees that recording the same enrollee for
// the same session on the same date twice is a no-op.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/classmgr/attendbot/internal/store"
)

// Ledger records and queries attendance facts.
type Ledger struct {
	attendance store.AttendanceStore
}

// New creates a ledger over the given attendance store.
func New(attendance store.AttendanceStore) *Ledger {
	return &Ledger{attendance: attendance}
}

// Result describes the outcome of a Record call.
type Result struct {
	Record *store.AttendanceRecord
	// Duplicate is true when a record for the same natural key already
	// existed and no new row was written.
	Duplicate bool
}

// Record commits one attendance fact for the date of `at`. Concurrent calls
// with the same (ref, session, date) all succeed; exactly one row survives.
func (l *Ledger) Record(ctx context.Context, ref store.EnrolleeRef, sessionCode string, recordedBy int64, at time.Time) (*Result, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if sessionCode == "" {
		return nil, fmt.Errorf("session code is required")
	}

	exists, err := l.attendance.AttendanceExists(ctx, ref, sessionCode, at)
	if err != nil {
		return nil, fmt.Errorf("checking attendance: %w", err)
	}

	rec, err := l.attendance.InsertAttendance(ctx, &store.AttendanceRecord{
		Enrollee:    ref,
		SessionCode: sessionCode,
		AttendedOn:  at,
		RecordedBy:  recordedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("recording attendance: %w", err)
	}

	return &Result{Record: rec, Duplicate: exists}, nil
}

// Exists reports whether an attendance fact is already committed for the
// date of `at`.
func (l *Ledger) Exists(ctx context.Context, ref store.EnrolleeRef, sessionCode string, at time.Time) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}
	return l.attendance.AttendanceExists(ctx, ref, sessionCode, at)
}

// List returns the committed records for a session on the date of `at`.
func (l *Ledger) List(ctx context.Context, sessionCode string, at time.Time) ([]store.AttendanceRecord, error) {
	return l.attendance.ListAttendance(ctx, sessionCode, at)
}
