// Package web serves the dashboard, the JSON API and the live websocket
// feed. It is the manual write path into the event store: manual
// entries skip the debounce filter and mapping table but still pass
// through the session reconciler.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/babylog/internal/analytics"
	"github.com/sweeney/babylog/internal/care"
	"github.com/sweeney/babylog/internal/dispatch"
	"github.com/sweeney/babylog/internal/status"
	"github.com/sweeney/babylog/internal/store"
)

// Recorder is the session-reconciling append pipeline for manual
// entries.
type Recorder interface {
	Record(ctx context.Context, d care.Draft) ([]care.Event, error)
	OpenSessions() map[care.SessionKind]time.Time
}

// Server serves the web interface.
type Server struct {
	httpServer *http.Server
	store      *store.Store
	analytics  *analytics.Analytics
	recorder   Recorder
	disp       *dispatch.Dispatcher
	tracker    *status.Tracker
	loc        *time.Location
	log        *zap.Logger
}

// New creates a Server. loc sets the day boundary for daily stats; nil
// means UTC.
func New(addr string, st *store.Store, an *analytics.Analytics, rec Recorder,
	disp *dispatch.Dispatcher, tracker *status.Tracker, loc *time.Location, log *zap.Logger) *Server {
	if loc == nil {
		loc = time.UTC
	}
	s := &Server{
		store:     st,
		analytics: an,
		recorder:  rec,
		disp:      disp,
		tracker:   tracker,
		loc:       loc,
		log:       log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /api/events", s.handleListEvents)
	mux.HandleFunc("POST /api/events", s.handleAddEvent)
	mux.HandleFunc("GET /api/mappings", s.handleListMappings)
	mux.HandleFunc("POST /api/mappings", s.handleUpsertMapping)
	mux.HandleFunc("DELETE /api/mappings/{device}/{action}", s.handleRemoveMapping)
	mux.HandleFunc("GET /api/stats/daily", s.handleDailyStats)
	mux.HandleFunc("GET /api/analytics/feeding", s.handleFeedingAnalytics)
	mux.HandleFunc("GET /api/analytics/sleep", s.handleSleepAnalytics)
	mux.HandleFunc("GET /api/analytics/diaper", s.handleDiaperAnalytics)
	mux.HandleFunc("GET /api/export/{format}", s.handleExport)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebsocket)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut
// down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
