package visualization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/rajithv/CausalLoop/internal/grammar"
	"github.com/rajithv/CausalLoop/internal/graph"
	"github.com/rajithv/CausalLoop/internal/logging"
	"github.com/rajithv/CausalLoop/internal/metrics"
	"github.com/rajithv/CausalLoop/internal/propagation"
	"github.com/rajithv/CausalLoop/internal/ratelimit"
	"github.com/rajithv/CausalLoop/internal/sanitize"
)

const (
	maxDefinitionBytes = 1 << 20
	wsWriteTimeout     = 10 * time.Second
	wsPongTimeout      = 60 * time.Second
	wsPingInterval     = 54 * time.Second
)

// ServerOption configures optional Server behavior.
type ServerOption func(*Server)

// WithMetrics records HTTP requests and serves /metrics from r.
func WithMetrics(r *metrics.Registry) ServerOption {
	return func(s *Server) { s.metrics = r }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithRateLimit limits control requests per client to rate per second with
// the given burst.
func WithRateLimit(rate float64, burst int) ServerOption {
	return func(s *Server) { s.limiter = ratelimit.NewLimiter(rate, burst) }
}

// WithSubscriberBuffer sets the per-WebSocket event buffer.
func WithSubscriberBuffer(n int) ServerOption {
	return func(s *Server) { s.buffer = n }
}

// WithTitle sets the page title. Markup and control characters are removed.
func WithTitle(title string) ServerOption {
	return func(s *Server) { s.title = sanitize.Title(title) }
}

// Server serves the live simulation page, a JSON control API and a WebSocket
// stream of session events. All simulation state lives in the session.
type Server struct {
	session  *propagation.Session
	metrics  *metrics.Registry
	logger   *slog.Logger
	limiter  *ratelimit.Limiter
	upgrader websocket.Upgrader
	buffer   int
	title    string
	router   chi.Router

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
}

// NewServer creates a server around session. The caller keeps ownership of
// the session and closes it after the server stops.
func NewServer(session *propagation.Session, opts ...ServerOption) *Server {
	s := &Server{
		session: session,
		buffer:  64,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP implements the http.Handler interface, delegating to the chi router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/graph", s.handleGetGraph)
		r.Get("/render/{format}", s.handleRender)

		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.limiter.Middleware)
			}
			r.Post("/start", s.handleStart)
			r.Post("/stop", s.handleStop)
			r.Post("/reset", s.handleReset)
			r.Post("/perturb", s.handlePerturb)
			r.Post("/value", s.handleValue)
			r.Post("/amount", s.handleAmount)
			r.Post("/tuning", s.handleTuning)
			r.Post("/graph", s.handleLoadGraph)
		})
	})
	return r
}

// instrument records request count and latency per route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(status), time.Since(start))
	})
}

// Addr returns the address the server is listening on.
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe listens on addr and blocks until the context is cancelled.
// An addr with port 0 lets the OS pick a free port; Addr reports it.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until the context is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("serving causal loop view", "addr", s.Addr())

	// Graceful shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	def, err := s.session.Definition(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := RenderHTML(w, snap, PageOptions{Title: s.title, Live: true, Text: grammar.Serialize(def)}); err != nil {
		s.logger.Error("rendering page", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "session": s.session.ID()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	def, err := s.session.Definition(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, grammar.Serialize(def)+"\n")
}

var contentTypes = map[Format]string{
	FormatDOT:  "text/vnd.graphviz; charset=utf-8",
	FormatJSON: "application/json",
	FormatSVG:  "image/svg+xml",
	FormatHTML: "text/html; charset=utf-8",
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	format, err := ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	snap, err := s.session.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	if err := Render(w, snap, format, Options{Title: s.title}); err != nil {
		s.logger.Error("rendering graph", "format", format, "error", err)
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	started, err := s.session.Start(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"started": started})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	stopped, err := s.session.Stop(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Reset(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.handleState(w, r)
}

// PerturbRequest is the body of POST /api/perturb.
type PerturbRequest struct {
	Node      string `json:"node"`
	Direction string `json:"direction"`
}

func (s *Server) handlePerturb(w http.ResponseWriter, r *http.Request) {
	var req PerturbRequest
	if !decode(w, r, &req) {
		return
	}
	dir, err := graph.ParseDirection(req.Direction)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	value, err := s.session.Perturb(r.Context(), req.Node, dir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"node": req.Node, "value": value})
}

// ValueRequest is the body of POST /api/value and POST /api/amount.
type ValueRequest struct {
	Node   string  `json:"node"`
	Value  float64 `json:"value"`
	Amount float64 `json:"amount"`
}

func (s *Server) handleValue(w http.ResponseWriter, r *http.Request) {
	var req ValueRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.session.SetValue(r.Context(), req.Node, req.Value); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAmount(w http.ResponseWriter, r *http.Request) {
	var req ValueRequest
	if !decode(w, r, &req) {
		return
	}
	if !(req.Amount > 0) {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}
	if err := s.session.SetPerturbationAmount(r.Context(), req.Node, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TuningRequest is the body of POST /api/tuning. Absent fields are unchanged.
type TuningRequest struct {
	DampingFactor *float64 `json:"damping_factor,omitempty"`
	StepDelayMs   *int64   `json:"step_delay_ms,omitempty"`
	MaxSteps      *int     `json:"max_steps,omitempty"`
}

func (s *Server) handleTuning(w http.ResponseWriter, r *http.Request) {
	var req TuningRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	if req.DampingFactor != nil {
		if err := s.session.SetDampingFactor(ctx, *req.DampingFactor); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.StepDelayMs != nil {
		if err := s.session.SetStepDelay(ctx, time.Duration(*req.StepDelayMs)*time.Millisecond); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.MaxSteps != nil {
		if err := s.session.SetMaxSteps(ctx, *req.MaxSteps); err != nil {
			writeError(w, err)
			return
		}
	}
	s.handleState(w, r)
}

func (s *Server) handleLoadGraph(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDefinitionBytes))
	if err != nil {
		http.Error(w, "reading body: "+err.Error(), http.StatusBadRequest)
		return
	}
	g, err := grammar.Compile(string(body))
	if err != nil {
		s.metrics.RecordGraphLoad(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.session.Load(r.Context(), g); err != nil {
		writeError(w, err)
		return
	}
	s.handleState(w, r)
}

// handleWebSocket streams session events to the client as JSON messages. The
// first message is a state event with a full snapshot.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := s.session.Subscribe(s.buffer)
	defer cancel()

	snap, err := s.session.Snapshot(r.Context())
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(propagation.Event{Type: propagation.EventState, Session: s.session.ID(), Snapshot: &snap}); err != nil {
		return
	}

	// The reader only watches for the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxDefinitionBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, graph.ErrUnknownNode):
		status = http.StatusNotFound
	case errors.Is(err, propagation.ErrSessionClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	}
	http.Error(w, err.Error(), status)
}
