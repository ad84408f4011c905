// Package server exposes the analysis service over a small JSON API and
// serves the stored artifacts.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"igprofiler/internal/service"
	"igprofiler/pkg/config"
	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/logger"
	"igprofiler/pkg/ratelimit"
	"igprofiler/pkg/report"
	"igprofiler/pkg/storage"
)

const (
	maxBodyBytes   = 1 << 20
	defaultResults = 10
	maxResults     = 50
)

// Analyses is the part of the service the HTTP layer drives.
type Analyses interface {
	StartAnalysis(ctx context.Context, profile string, limit int) (string, string, error)
	GetStatus(id string) (service.Status, error)
	ListSessions() []service.Status
	GetReport(ctx context.Context, id string) (*report.Report, error)
}

// Health reports which upstream credentials are present.
type Health struct {
	Status              string `json:"status"`
	ApifyConfigured     bool   `json:"apify_configured"`
	AnthropicConfigured bool   `json:"anthropic_configured"`
}

// Server handles the HTTP API.
type Server struct {
	svc     Analyses
	store   storage.ArtifactStore
	limiter *ratelimit.SlidingWindow
	health  Health
	logger  logger.Logger

	defaultLimit int
	maxLimit     int
}

// Option configures a Server
type Option func(*Server)

// WithLimiter throttles analysis requests.
func WithLimiter(l *ratelimit.SlidingWindow) Option {
	return func(s *Server) { s.limiter = l }
}

// WithLimits sets the results_limit used when a request omits it and the
// largest one accepted.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(s *Server) {
		if maxLimit > 0 {
			s.maxLimit = maxLimit
		}
		if defaultLimit > 0 {
			s.defaultLimit = defaultLimit
		}
	}
}

// WithCredentials sets what the health endpoint reports.
func WithCredentials(apify, anthropic bool) Option {
	return func(s *Server) {
		s.health.ApifyConfigured = apify
		s.health.AnthropicConfigured = anthropic
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server.
func New(svc Analyses, store storage.ArtifactStore, opts ...Option) *Server {
	s := &Server{
		svc:    svc,
		store:  store,
		health: Health{Status: "healthy"},
		logger: logger.GetLogger(),

		defaultLimit: defaultResults,
		maxLimit:     maxResults,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("component", "http")
	return s
}

// Handler returns the routed handler with access logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/status/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/report/{id}", s.handleReport)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /collages/{name}", s.handleArtifact)
	return accessLog(mux)
}

// ListenAndServe serves until ctx is done, then drains connections for at
// most cfg.ShutdownTimeout. HTTP/2 is accepted without TLS.
func (s *Server) ListenAndServe(ctx context.Context, cfg config.ServerConfig) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.LogComponentStart("http", map[string]interface{}{"addr": cfg.Addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}
	logger.LogComponentStop("http", "shutdown")
	return nil
}

type analyzeRequest struct {
	ProfileURL   string `json:"profile_url"`
	ResultsLimit *int   `json:"results_limit"`
}

type analyzeResponse struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.ErrorTypeValidation, err, "invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.ProfileURL) == "" {
		writeError(w, errs.New(errs.ErrorTypeValidation, "profile_url is required"))
		return
	}
	limit := s.defaultLimit
	if req.ResultsLimit != nil {
		limit = *req.ResultsLimit
	}
	if limit < 1 || limit > s.maxLimit {
		writeError(w, errs.New(errs.ErrorTypeValidation, fmt.Sprintf("results_limit must be between 1 and %d", s.maxLimit)))
		return
	}

	if s.limiter != nil && !s.limiter.Allow() {
		secs := int(math.Ceil(s.limiter.RetryAfter().Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
		writeError(w, errs.Capacity("too many analysis requests, try again later"))
		return
	}

	id, username, err := s.svc.StartAnalysis(r.Context(), req.ProfileURL, limit)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to start analysis")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{
		SessionID: id,
		Username:  username,
		Message:   "Analysis started",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.GetStatus(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type sessionsResponse struct {
	Sessions []service.Status `json:"sessions"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: s.svc.ListSessions()})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.GetReport(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := rep.Encode(w); err != nil {
		s.logger.WithError(err).Warn("Failed to write report")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	rc, info, err := s.store.Open(r.Context(), name)
	if err != nil {
		if errs.IsType(err, errs.ErrorTypeValidation) {
			err = errs.New(errs.ErrorTypeNotFound, "artifact not found")
		}
		writeError(w, err)
		return
	}
	defer rc.Close()

	ct := info.ContentType
	if ct == "" {
		ct = storage.ContentTypeFor(name)
	}
	w.Header().Set("Content-Type", ct)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.WithError(err).WarnWithFields("Failed to send artifact", map[string]interface{}{"name": name})
	}
}
