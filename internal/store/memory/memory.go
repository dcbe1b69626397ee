// Package memory provides an in-memory store.Store implementation used by
// tests and local development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/classmgr/attendbot/internal/store"
)

// Store is a map-backed store.Store. Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	instructors map[int64]*store.Instructor
	enrollees   map[string]*store.Enrollee // keyed by EnrolleeRef.String()
	sessions    map[string]*store.ClassSession
	attendance  map[string]*store.AttendanceRecord // keyed by ref|code|date
	samples     []store.FaceSample
	nextLabel   int
	nextSample  int64

	// Error injection for failure-path tests.
	GetInstructorError    error
	SetStateError         error
	InsertAttendanceError error
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		instructors: make(map[int64]*store.Instructor),
		enrollees:   make(map[string]*store.Enrollee),
		sessions:    make(map[string]*store.ClassSession),
		attendance:  make(map[string]*store.AttendanceRecord),
		nextLabel:   1,
		nextSample:  1,
	}
}

// AddInstructor seeds an instructor record.
func (m *Store) AddInstructor(inst store.Instructor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instructors[inst.Handle] = &inst
}

// AddSession seeds a class session.
func (m *Store) AddSession(s store.ClassSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Code] = &s
}

// AddEnrollee seeds an enrollee, assigning a label if it has none.
func (m *Store) AddEnrollee(e store.Enrollee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Label == 0 {
		e.Label = m.nextLabel
	}
	if e.Label >= m.nextLabel {
		m.nextLabel = e.Label + 1
	}
	m.enrollees[e.Ref.String()] = &e
}

func (m *Store) GetInstructor(ctx context.Context, handle int64) (*store.Instructor, error) {
	if m.GetInstructorError != nil {
		return nil, m.GetInstructorError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instructors[handle]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *inst
	return &cp, nil
}

func (m *Store) SetInstructorState(ctx context.Context, handle int64, state store.InstructorState, metadata string) error {
	if m.SetStateError != nil {
		return m.SetStateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instructors[handle]
	if !ok {
		return store.ErrNotFound
	}
	inst.State = state
	inst.Metadata = metadata
	return nil
}

func (m *Store) TouchInstructor(ctx context.Context, handle int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.instructors[handle]; ok {
		inst.LastActivity = at
	}
	return nil
}

func (m *Store) GetEnrollee(ctx context.Context, ref store.EnrolleeRef) (*store.Enrollee, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.enrollees[ref.String()]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *Store) GetEnrolleeByLabel(ctx context.Context, label int) (*store.Enrollee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.enrollees {
		if e.Label == label {
			cp := *e
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Store) CreateEnrollee(ctx context.Context, e *store.Enrollee) error {
	if err := e.Ref.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.enrollees[e.Ref.String()]; ok {
		*e = *existing
		return nil
	}
	if e.Label == 0 {
		e.Label = m.nextLabel
		m.nextLabel++
	}
	cp := *e
	m.enrollees[e.Ref.String()] = &cp
	return nil
}

func (m *Store) GetSession(ctx context.Context, code string) (*store.ClassSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Store) ListInstructorSessions(ctx context.Context, handle int64) ([]store.ClassSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.ClassSession
	for _, s := range m.sessions {
		if s.InstructorHandle == handle {
			out = append(out, *s)
		}
	}
	return out, nil
}

func attendanceKey(ref store.EnrolleeRef, code string, date time.Time) string {
	return ref.String() + "|" + code + "|" + store.DateKey(date)
}

func (m *Store) AttendanceExists(ctx context.Context, ref store.EnrolleeRef, sessionCode string, date time.Time) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.attendance[attendanceKey(ref, sessionCode, date)]
	return ok, nil
}

func (m *Store) InsertAttendance(ctx context.Context, rec *store.AttendanceRecord) (*store.AttendanceRecord, error) {
	if m.InsertAttendanceError != nil {
		return nil, m.InsertAttendanceError
	}
	if err := rec.Enrollee.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := attendanceKey(rec.Enrollee, rec.SessionCode, rec.AttendedOn)
	if existing, ok := m.attendance[key]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.attendance[key] = &cp
	out := cp
	return &out, nil
}

func (m *Store) ListAttendance(ctx context.Context, sessionCode string, date time.Time) ([]store.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.AttendanceRecord
	for _, rec := range m.attendance {
		if rec.SessionCode == sessionCode && store.DateKey(rec.AttendedOn) == store.DateKey(date) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *Store) AddFaceSample(ctx context.Context, s *store.FaceSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.nextSample
	m.nextSample++
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	m.samples = append(m.samples, *s)
	return nil
}

func (m *Store) ListFaceSamples(ctx context.Context) ([]store.FaceSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]store.FaceSample, len(m.samples))
	copy(out, m.samples)
	return out, nil
}

func (m *Store) CountFaceSamples(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.samples), nil
}

// AttendanceCount returns the total number of attendance rows, for tests.
func (m *Store) AttendanceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.attendance)
}

func (m *Store) Close() error { return nil }
