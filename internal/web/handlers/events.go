package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/classmgr/attendbot/internal/bot"
)

// EventsHandler receives transport events over the webhook and feeds them to
// the dispatcher.
type EventsHandler struct {
	dispatcher *bot.Dispatcher
}

// NewEventsHandler creates an events handler.
func NewEventsHandler(dispatcher *bot.Dispatcher) *EventsHandler {
	return &EventsHandler{dispatcher: dispatcher}
}

// Receive handles POST /api/v1/events. Accepted events are processed
// asynchronously; the webhook answers as soon as the event is queued.
func (h *EventsHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var ev bot.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	switch err := h.dispatcher.Dispatch(ev); {
	case err == nil:
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, bot.ErrStopped):
		respondError(w, http.StatusServiceUnavailable, "shutting down")
	case errors.Is(err, bot.ErrQueueFull):
		respondError(w, http.StatusTooManyRequests, "instructor queue full")
	default:
		respondError(w, http.StatusBadRequest, err.Error())
	}
}
