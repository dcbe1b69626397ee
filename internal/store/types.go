package store

import (
	"time"
)

// InstructorState is the conversation state of an instructor. Exactly one
// state is active per instructor at any time; it is stored as a single field
// and overwritten on every transition.
type InstructorState int

const (
	StateMainMenu InstructorState = iota
	StateViewingSessions
	StateCheckingAttendance
	StateIdentifyingFace
)

// String returns a readable name for logs.
func (s InstructorState) String() string {
	switch s {
	case StateMainMenu:
		return "main_menu"
	case StateViewingSessions:
		return "viewing_sessions"
	case StateCheckingAttendance:
		return "checking_attendance"
	case StateIdentifyingFace:
		return "identifying_face"
	default:
		return "unknown"
	}
}

// Instructor is the human operating the attendance workflow.
type Instructor struct {
	Handle       int64
	FullName     string
	State        InstructorState
	Metadata     string // active session code while checking attendance
	JoinedAt     time.Time
	LastActivity time.Time
}

// Enrollee is a person who may be attended for. The reference is either a
// durable chat handle or, for blind registrations, a generated guid.
type Enrollee struct {
	Ref       EnrolleeRef
	FirstName string
	LastName  string
	Label     int // classifier label correlating predictions to this enrollee
	JoinedAt  time.Time
}

// FullName returns the display name, falling back to the reference key when
// no name is recorded.
func (e *Enrollee) FullName() string {
	switch {
	case e.FirstName != "" && e.LastName != "":
		return e.FirstName + " " + e.LastName
	case e.FirstName != "":
		return e.FirstName
	default:
		return e.Ref.String()
	}
}

// ClassSession is one scheduled offering of a course, bound to an instructor
// and a weekly time window.
type ClassSession struct {
	Code             string // presentation code, primary key
	Name             string
	InstructorHandle int64
	StartsAt         time.Time // scheduled start; weekday and time-of-day are the window
	EndsAt           time.Time // scheduled end; only time-of-day is used
	ExamAt           time.Time
	Room             string
}

// InWindow reports whether now falls inside the session's scheduled window:
// same weekday as the scheduled start, time-of-day within [start, end].
func (s *ClassSession) InWindow(now time.Time) bool {
	if now.Weekday() != s.StartsAt.Weekday() {
		return false
	}
	start := secondsOfDay(s.StartsAt)
	end := secondsOfDay(s.EndsAt)
	cur := secondsOfDay(now)
	return cur >= start && cur <= end
}

func secondsOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// AttendanceRecord is a committed fact that an enrollee was present at a
// session on a date. Records are never updated.
type AttendanceRecord struct {
	Enrollee    EnrolleeRef
	SessionCode string
	AttendedOn  time.Time // calendar date component only
	RecordedBy  int64     // instructor handle
	CreatedAt   time.Time
}

// FaceSample is one enrolled face image under a classifier label.
type FaceSample struct {
	ID        int64
	Label     int
	ImagePath string
	Embedding []float32
	CreatedAt time.Time
}
