// ============================================================================
// Dispatch HTTP API
// ============================================================================
//
// Package: internal/server
// File: server.go
// Function: chi control surface over the scheduler
//
// Routes:
//   POST /v1/campaigns/{id}/start   start a run      201 | 400 | 409 | 422
//   POST /v1/campaigns/{id}/cancel  cancel a run     200 | 404
//   GET  /v1/campaigns/{id}         run status       200 | 404
//   GET  /v1/campaigns              all run statuses 200
//   POST /v1/config/validate        validate config  200
//   GET  /v1/estimate               ETA calculator   200 | 400
//   GET  /healthz                   liveness         200
//   GET  /metrics                   Prometheus text  (when enabled)
//
// ============================================================================

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ChuLiYu/campaign-dispatch/internal/humanize"
	"github.com/ChuLiYu/campaign-dispatch/internal/scheduler"
	"github.com/ChuLiYu/campaign-dispatch/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Campaigns is the part of the scheduler the API drives
type Campaigns interface {
	Start(id types.CampaignID, cfg types.HumanizationConfig, contacts []types.Contact) (types.RunID, error)
	Cancel(id types.CampaignID) error
	Status(id types.CampaignID) (types.Status, error)
	List() []types.Status
}

// Option configures a Server
type Option func(*Server)

// WithMetrics mounts h on /metrics
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the request logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithCORS allows browser calls from origins; empty disables CORS handling
func WithCORS(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithProcessingSeconds sets the avg_processing default of /v1/estimate
func WithProcessingSeconds(sec float64) Option {
	return func(s *Server) { s.processingSeconds = sec }
}

// Server serves the HTTP API
type Server struct {
	campaigns         Campaigns
	metrics           http.Handler
	log               *zap.Logger
	processingSeconds float64
	corsOrigins       []string

	mux *chi.Mux
	srv *http.Server
}

// New builds the router. Call Run to listen on addr.
func New(addr string, campaigns Campaigns, opts ...Option) *Server {
	s := &Server{
		campaigns:         campaigns,
		log:               zap.NewNop(),
		processingSeconds: humanize.DefaultProcessingSeconds,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux = s.routes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler { return s.mux }

// Run listens until Shutdown is called
func (s *Server) Run() error {
	s.log.Info("HTTP API listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/campaigns", s.handleList)
		r.Route("/campaigns/{id}", func(r chi.Router) {
			r.Get("/", s.handleStatus)
			r.Post("/start", s.handleStart)
			r.Post("/cancel", s.handleCancel)
		})
		r.Post("/config/validate", s.handleValidate)
		r.Get("/estimate", s.handleEstimate)
	})
	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

type startRequest struct {
	Config   map[string]any  `json:"config"`
	Contacts []types.Contact `json:"contacts"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := types.CampaignID(chi.URLParam(r, "id"))

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	cfg, err := humanize.ParseConfig(req.Config)
	if err != nil {
		writeValidation(w, err)
		return
	}

	if _, err := s.campaigns.Start(id, cfg, req.Contacts); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrAlreadyRunning):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, scheduler.ErrSchedulerStopped):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeValidation(w, err)
		}
		return
	}

	st, err := s.campaigns.Status(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := types.CampaignID(chi.URLParam(r, "id"))
	if err := s.campaigns.Cancel(id); err != nil {
		s.writeLookupError(w, err)
		return
	}
	st, err := s.campaigns.Status(id)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.campaigns.Status(types.CampaignID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"campaigns": s.campaigns.List()})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, humanize.ValidateConfig(raw))
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// negative counts are accepted and estimate to zero
	remaining, err := strconv.Atoi(q.Get("remaining"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "remaining must be an integer")
		return
	}
	avgDelay, err := strconv.ParseFloat(q.Get("avg_delay"), 64)
	if err != nil || avgDelay < 0 {
		writeError(w, http.StatusBadRequest, "avg_delay must be a non-negative number")
		return
	}
	avgProcessing := s.processingSeconds
	if v := q.Get("avg_processing"); v != "" {
		avgProcessing, err = strconv.ParseFloat(v, 64)
		if err != nil || avgProcessing < 0 {
			writeError(w, http.StatusBadRequest, "avg_processing must be a non-negative number")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]float64{
		"seconds": humanize.EstimateRemainingTime(remaining, avgDelay, avgProcessing),
	})
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, scheduler.ErrUnknownCampaign) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Error("Campaign lookup failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeValidation(w http.ResponseWriter, err error) {
	var ve *humanize.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string][]string{"errors": ve.Errors})
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
