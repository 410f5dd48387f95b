package visualization

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nvandessel/orgsim/internal/constants"
	"github.com/nvandessel/orgsim/internal/controls"
	"github.com/nvandessel/orgsim/internal/logging"
	"github.com/nvandessel/orgsim/internal/models"
	"github.com/nvandessel/orgsim/internal/ratelimit"
	"github.com/nvandessel/orgsim/internal/simulation"
)

// Backend is the running simulation as seen by the dashboard.
// *simulation.Driver satisfies it.
type Backend interface {
	Status(ctx context.Context) (simulation.Status, error)
	Reset(ctx context.Context) error
}

// Options configure a Server.
type Options struct {
	// Listen is the bind address; "" means an OS-assigned localhost port.
	Listen string

	Board   *Board
	Panel   *controls.Panel
	Backend Backend

	// Limiters throttle the mutating endpoints; nil disables throttling.
	Limiters ratelimit.ToolLimiters

	// Poll is how often the page refreshes; defaults to the tick interval.
	Poll time.Duration

	Logger *slog.Logger
}

// Server serves the dashboard page and its JSON API.
type Server struct {
	opts       Options
	page       *template.Template
	handler    http.Handler
	httpServer *http.Server
	mu         sync.Mutex
	addr       string
}

// NewServer creates a dashboard server. The page template is parsed here so
// a broken template fails at construction.
func NewServer(opts Options) (*Server, error) {
	if opts.Board == nil || opts.Panel == nil || opts.Backend == nil {
		return nil, fmt.Errorf("dashboard needs a board, a control panel and a backend")
	}
	if opts.Poll <= 0 {
		opts.Poll = constants.DefaultTickInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	page, err := template.ParseFS(templates, "templates/index.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing dashboard template: %w", err)
	}

	s := &Server{opts: opts, page: page}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/points", s.handlePoints)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/controls", s.handleGetControls)
	mux.Handle("POST /api/controls",
		ratelimit.Middleware(opts.Limiters, "dashboard_controls", http.HandlerFunc(s.handleSetControls)))
	mux.Handle("POST /api/reset",
		ratelimit.Middleware(opts.Limiters, "dashboard_reset", http.HandlerFunc(s.handleReset)))
	s.handler = mux

	return s, nil
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the address the server is listening on (e.g., "127.0.0.1:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// URL returns the dashboard URL, or "" before the server is listening.
func (s *Server) URL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	return "http://" + addr + "/"
}

// ListenAndServe starts the HTTP server and blocks until the context is
// cancelled. It returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listen := s.opts.Listen
	if listen == "" {
		listen = "localhost:0"
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.handler, ReadHeaderTimeout: 5 * time.Second}
	srv := s.httpServer
	s.mu.Unlock()

	s.opts.Logger.Info("dashboard listening", "url", s.URL())

	// Graceful shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

type pageData struct {
	Title           string
	XLabel          string
	YLabel          string
	ChartMin        float64
	ChartMax        float64
	Window          int
	PollMillis      int64
	Bounds          controls.Bounds
	Inputs          models.ControlInputs
	FinishedMessage string
}

// handleIndex renders the dashboard page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Title:           "Organizational Resilience",
		XLabel:          "Quarters since foundation",
		YLabel:          "Performance (ROA)",
		ChartMin:        constants.ChartMin,
		ChartMax:        constants.ChartMax,
		Window:          s.opts.Board.Window(),
		PollMillis:      s.opts.Poll.Milliseconds(),
		Bounds:          s.opts.Panel.Bounds(),
		Inputs:          s.opts.Panel.Snapshot(),
		FinishedMessage: "Simulation finished! Run again?",
	}

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handlePoints returns the visible chart window.
func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"points": s.opts.Board.Points(),
		"min":    constants.ChartMin,
		"max":    constants.ChartMax,
		"window": s.opts.Board.Window(),
	})
}

type statusResponse struct {
	Text       string             `json:"text"`
	Simulation *simulation.Status `json:"simulation,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// handleStatus returns the status line and the session status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Text: s.opts.Board.Text()}
	st, err := s.opts.Backend.Status(r.Context())
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Simulation = &st
	writeJSON(w, http.StatusOK, resp)
}

type controlsResponse struct {
	Inputs models.ControlInputs `json:"inputs"`
	Bounds controls.Bounds      `json:"bounds"`
}

func (s *Server) controls() controlsResponse {
	return controlsResponse{Inputs: s.opts.Panel.Snapshot(), Bounds: s.opts.Panel.Bounds()}
}

// handleGetControls returns the current control values and their bounds.
func (s *Server) handleGetControls(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controls())
}

// controlsRequest carries a partial update; omitted fields keep their value.
type controlsRequest struct {
	Modularity      *float64 `json:"modularity"`
	Diversification *float64 `json:"diversification"`
	Slack           *float64 `json:"slack"`
}

// handleSetControls applies a partial control update.
func (s *Server) handleSetControls(w http.ResponseWriter, r *http.Request) {
	var req controlsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid controls body: %w", err))
		return
	}

	in, err := s.opts.Panel.Update(req.Modularity, req.Diversification, req.Slack)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, controls.ErrOutOfRange) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	s.opts.Logger.Debug("controls updated", "inputs", in.String())
	writeJSON(w, http.StatusOK, s.controls())
}

// handleReset discards the current run and starts a fresh one.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Backend.Reset(r.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, simulation.ErrNotRunning) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	s.opts.Logger.Info("reset requested from dashboard")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
