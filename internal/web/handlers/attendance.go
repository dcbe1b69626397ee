package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/classmgr/attendbot/internal/ledger"
)

// AttendanceHandler exposes read-only ledger listings.
type AttendanceHandler struct {
	ledger *ledger.Ledger
}

// NewAttendanceHandler creates an attendance handler.
func NewAttendanceHandler(led *ledger.Ledger) *AttendanceHandler {
	return &AttendanceHandler{ledger: led}
}

type attendanceRow struct {
	Enrollee   string `json:"enrollee"`
	AttendedOn string `json:"attended_on"`
	RecordedBy int64  `json:"recorded_by"`
	CreatedAt  string `json:"created_at"`
}

// List handles GET /api/v1/sessions/{code}/attendance?date=YYYY-MM-DD.
// The date defaults to today.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		respondError(w, http.StatusBadRequest, "session code is required")
		return
	}

	date := time.Now()
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.Parse(time.DateOnly, d)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	records, err := h.ledger.List(r.Context(), code, date)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list attendance")
		return
	}

	rows := make([]attendanceRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, attendanceRow{
			Enrollee:   rec.Enrollee.String(),
			AttendedOn: rec.AttendedOn.Format(time.DateOnly),
			RecordedBy: rec.RecordedBy,
			CreatedAt:  rec.CreatedAt.Format(time.RFC3339),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session":    code,
		"attendance": rows,
	})
}
