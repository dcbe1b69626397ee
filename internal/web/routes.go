package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/classmgr/attendbot/internal/bot"
	"github.com/classmgr/attendbot/internal/ledger"
	"github.com/classmgr/attendbot/internal/web/handlers"
)

func (s *Server) setupRoutes(dispatcher *bot.Dispatcher, led *ledger.Ledger) {
	eventsHandler := handlers.NewEventsHandler(dispatcher)
	attendanceHandler := handlers.NewAttendanceHandler(led)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/events", eventsHandler.Receive)
		r.Get("/sessions/{code}/attendance", attendanceHandler.List)
	})
}
