// Package web provides an HTTP status server for the BMS controller.
package web

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sweeney/bms-controller/internal/recorder"
	"github.com/sweeney/bms-controller/internal/status"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// History provides recorded transitions for /events.json.
type History interface {
	Recent(limit int) ([]recorder.Event, error)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	history    History
}

// New creates a Server that reads state from the given tracker.
// history may be nil, in which case /events.json returns an empty list.
func New(addr string, tracker *status.Tracker, history History) *Server {
	s := &Server{tracker: tracker, history: history}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/events.json", s.handleEvents)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the request multiplexer.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
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

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// EventJSON is one recorded transition in the /events.json response.
type EventJSON struct {
	Timestamp   string   `json:"timestamp"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	Errors      []string `json:"errors"`
	PackVoltage float64  `json:"pack_voltage"`
	PackCurrent float64  `json:"pack_current"`
	CellMin     float64  `json:"cell_min"`
	CellMax     float64  `json:"cell_max"`
	TempMax     float64  `json:"temp_max"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxEventLimit)
	}

	var events []recorder.Event
	if s.history != nil {
		var err error
		events, err = s.history.Recent(limit)
		if err != nil {
			log.Printf("web: recent events: %v", err)
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
	}

	out := make([]EventJSON, 0, len(events))
	for _, e := range events {
		errs := e.ErrorFlags.Names()
		if errs == nil {
			errs = []string{}
		}
		out = append(out, EventJSON{
			Timestamp:   e.Timestamp.UTC().Format(time.RFC3339Nano),
			From:        string(e.From),
			To:          string(e.To),
			Errors:      errs,
			PackVoltage: e.PackVoltage,
			PackCurrent: e.PackCurrent,
			CellMin:     e.CellMin,
			CellMax:     e.CellMax,
			TempMax:     e.TempMax,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
