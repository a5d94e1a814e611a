package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quotecraft/drew"
	"github.com/quotecraft/drew/internal/logging"
	"github.com/quotecraft/drew/pkg/domain"
	"github.com/quotecraft/drew/pkg/observability"
	"github.com/quotecraft/drew/pkg/ports"
	"github.com/quotecraft/drew/pkg/runner"
	"github.com/quotecraft/drew/pkg/session"
)

// maxBodyBytes bounds request bodies. A full context with a long transcript
// stays well below it.
const maxBodyBytes = 1 << 20

// Server exposes the engine over JSON/HTTP.
//
// The stateless endpoint (POST /v1/dispatch) takes the whole request and
// returns the whole response. The conversation endpoints keep the context
// server side through a session.Manager and stream diffs over SSE.
type Server struct {
	engine   ports.Dispatcher
	sessions *session.Manager
	streams  *StreamManager
	metrics  *observability.Metrics
	settings domain.Settings
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithSessions enables the /v1/conversations endpoints.
func WithSessions(m *session.Manager) Option {
	return func(s *Server) {
		s.sessions = m
	}
}

// WithMetrics counts turns and serves /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithSettings sets the defaults applied to fields a client leaves zero.
func WithSettings(settings domain.Settings) Option {
	return func(s *Server) {
		s.settings = settings
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a Server for engine.
func NewServer(engine ports.Dispatcher, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.streams = NewStreamManager(s.logger)
	return s
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine ports.Dispatcher, opts ...Option) http.Handler {
	return NewServer(engine, opts...).Routes()
}

// Streams exposes the SSE fan-out.
func (s *Server) Streams() *StreamManager {
	return s.streams
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/dispatch", s.Dispatch)
		r.Get("/machine", s.GetMachine)

		r.Route("/conversations", func(r chi.Router) {
			r.Use(s.requireSessions)
			r.Get("/", s.ListConversations)
			r.Post("/", s.StartConversation)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.GetConversation)
				r.Delete("/", s.DeleteConversation)
				r.Post("/turns", s.Turn)
				r.Get("/events", s.SubscribeEvents)
			})
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireSessions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.sessions == nil {
			s.writeError(w, r, http.StatusNotImplemented, errors.New("conversation storage is not configured"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Dispatch handles POST /v1/dispatch.
func (s *Server) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req domain.Request
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	in, err := runner.SanitizeTurn(req.Input)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	req.Input = in
	req.Settings = s.merge(req.Settings)

	resp, err := s.engine.Dispatch(r.Context(), req)
	s.observe(err)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// StartRequest is the body of POST /v1/conversations.
type StartRequest struct {
	Settings domain.Settings `json:"settings"`
}

// StartResponse carries the new conversation id and its greeting.
type StartResponse struct {
	ID       string           `json:"id"`
	Response *domain.Response `json:"response"`
}

// StartConversation handles POST /v1/conversations.
func (s *Server) StartConversation(w http.ResponseWriter, r *http.Request) {
	var body StartRequest
	if err := decode(w, r, &body); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	conv, resp, err := s.sessions.Start(r.Context(), s.engine, s.merge(body.Settings))
	s.observe(err)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	w.Header().Set("Location", "/v1/conversations/"+conv.ID)
	s.writeJSON(w, http.StatusCreated, StartResponse{ID: conv.ID, Response: resp})
}

// TurnRequest is the body of POST /v1/conversations/{id}/turns.
type TurnRequest struct {
	Input    domain.Input    `json:"input"`
	Settings domain.Settings `json:"settings"`
}

// TurnResponse carries the rendered turn and what changed.
type TurnResponse struct {
	Response *domain.Response         `json:"response"`
	Diff     *domain.ConversationDiff `json:"diff,omitempty"`
}

// Turn handles POST /v1/conversations/{id}/turns.
func (s *Server) Turn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body TurnRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	in, err := runner.SanitizeTurn(body.Input)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	resp, diff, err := s.sessions.Turn(r.Context(), s.engine, id, in, s.merge(body.Settings))
	s.observe(err)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}

	if diff != nil {
		if payload, err := json.Marshal(diff); err == nil {
			s.streams.Broadcast(id, string(payload))
		}
	} else {
		s.logger.Debug("Turn: No diff calculated", "conversation_id", id)
	}
	s.writeJSON(w, http.StatusOK, TurnResponse{Response: resp, Diff: diff})
}

// GetConversation handles GET /v1/conversations/{id}.
func (s *Server) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.sessions.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

// DeleteConversation handles DELETE /v1/conversations/{id}.
func (s *Server) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListConversations handles GET /v1/conversations.
func (s *Server) ListConversations(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"ids": ids})
}

// GetMachine handles GET /v1/machine.
func (s *Server) GetMachine(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Describe())
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "drew-http",
		"version": strings.TrimSpace(drew.Version),
	})
}

// SubscribeEvents handles GET /v1/conversations/{id}/events (SSE).
// The optional watch parameter is a comma separated list of diff fields
// (state, items, labor, markup, transcript); other diffs are skipped.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Store().Load(r.Context(), id); err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}

	var watch []string
	if raw := r.URL.Query().Get("watch"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				watch = append(watch, f)
			}
		}
	}

	ch, cancel := s.streams.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("SSE: Subscribed", "conversation_id", id, "watch", watch)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: Client disconnected", "conversation_id", id)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watch) > 0 && !matchesWatch(msg, watch) {
				continue
			}
			fmt.Fprintf(w, "event: diff\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func matchesWatch(msg string, watch []string) bool {
	var diff domain.ConversationDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return true
	}
	for _, field := range watch {
		switch field {
		case "state":
			if diff.State != nil {
				return true
			}
		case "items":
			if len(diff.Items) > 0 || len(diff.RemovedItems) > 0 {
				return true
			}
		case "labor":
			if diff.Labor != nil {
				return true
			}
		case "markup":
			if diff.Markup != nil {
				return true
			}
		case "transcript":
			if len(diff.Transcript) > 0 {
				return true
			}
		}
	}
	return false
}

// merge fills the zero fields of req from the server defaults.
func (s *Server) merge(req domain.Settings) domain.Settings {
	if req.DefaultLaborRate == 0 {
		req.DefaultLaborRate = s.settings.DefaultLaborRate
	}
	if req.DefaultMarkupPercent == 0 {
		req.DefaultMarkupPercent = s.settings.DefaultMarkupPercent
	}
	if req.Currency == "" {
		req.Currency = s.settings.Currency
	}
	return req
}

func (s *Server) observe(err error) {
	if s.metrics != nil {
		s.metrics.ObserveTurn("http", err)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

// statusFor maps domain and transport errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, runner.ErrInputTooLarge),
		errors.Is(err, runner.ErrInvalidUTF8),
		errors.Is(err, runner.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	reqID := middleware.GetReqID(r.Context())
	if status >= http.StatusInternalServerError {
		s.logger.Error("HTTP request failed", "method", r.Method, "path", r.URL.Path, "status", status, "request_id", reqID, "err", err)
	} else {
		s.logger.Warn("HTTP request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "request_id", reqID, "err", err)
	}
	s.writeJSON(w, status, errorBody{Error: err.Error(), RequestID: reqID})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("HTTP response encode failed", "err", err)
	}
}
