package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/campus-kb/internal/kb"
	"github.com/JakeFAU/campus-kb/internal/metrics"
	"github.com/JakeFAU/campus-kb/internal/middleware"
)

const (
	// ErrorAnswer accompanies every internal failure.
	ErrorAnswer     = "An error occurred while processing your question."
	noQueryMessage  = "No query provided"
	maxRequestBytes = 1 << 20
)

// Retriever answers one query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (kb.Result, error)
}

// Config controls handler behavior.
type Config struct {
	// StrictStatus maps errors to 4xx/5xx. By default errors are reported
	// in-band with HTTP 200, which existing clients depend on.
	StrictStatus   bool
	RequestTimeout time.Duration
}

// Server wires the query handlers. It reports "starting" until SetRetriever
// is called.
type Server struct {
	router    chi.Router
	cfg       Config
	logger    *zap.Logger
	retriever atomic.Pointer[retrieverRef]
}

type retrieverRef struct {
	Retriever
}

type chatRequest struct {
	Query string `json:"query"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Answer string `json:"answer,omitempty"`
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(logger))
	r.Use(metrics.Middleware)
	r.Use(middleware.Recover(logger, func(w http.ResponseWriter, _ *http.Request) {
		s.writeFailure(w, http.StatusInternalServerError, "internal server error")
	}))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", s.health)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/chatbot", s.chatbot)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetRetriever marks the service ready.
func (s *Server) SetRetriever(r Retriever) {
	s.retriever.Store(&retrieverRef{Retriever: r})
}

// Ready reports whether a retriever has been installed.
func (s *Server) Ready() bool {
	return s.retriever.Load() != nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	if !s.Ready() {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) chatbot(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger := s.logger.With(zap.String("request_id", middleware.RequestIDFrom(r.Context())))

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		metrics.ObserveQuery(metrics.QueryInvalid, 0)
		logger.Warn("malformed chatbot request", zap.Error(err))
		s.writeFailure(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		metrics.ObserveQuery(metrics.QueryInvalid, 0)
		s.writeJSON(w, s.status(http.StatusBadRequest), errorResponse{Error: noQueryMessage})
		return
	}

	ref := s.retriever.Load()
	if ref == nil {
		metrics.ObserveQuery(metrics.QueryError, time.Since(start))
		s.writeFailure(w, http.StatusServiceUnavailable, "service is starting")
		return
	}

	res, err := ref.Retrieve(r.Context(), req.Query)
	if err != nil {
		metrics.ObserveQuery(metrics.QueryError, time.Since(start))
		logger.Error("retrieval failed", zap.Error(err))
		msg := "internal error"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "request timed out"
		}
		s.writeFailure(w, http.StatusInternalServerError, msg)
		return
	}

	outcome := metrics.QueryNoMatch
	if res.Matched {
		outcome = metrics.QueryMatched
	}
	metrics.ObserveQuery(outcome, time.Since(start))
	if res.Sources == nil {
		res.Sources = []string{}
	}
	if res.ContactInfo == nil {
		res.ContactInfo = []kb.ContactInfo{}
	}
	logger.Debug("query answered",
		zap.Bool("matched", res.Matched),
		zap.Int("sources", len(res.Sources)),
		zap.Duration("duration", time.Since(start)),
	)
	s.writeJSON(w, http.StatusOK, res)
}

// status returns code in strict mode and 200 otherwise.
func (s *Server) status(code int) int {
	if s.cfg.StrictStatus {
		return code
	}
	return http.StatusOK
}

func (s *Server) writeFailure(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, s.status(code), errorResponse{Error: msg, Answer: ErrorAnswer})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Int("status", status), zap.Error(err))
	}
}
