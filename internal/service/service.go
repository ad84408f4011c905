// Package service runs profile analyses in the background and answers
// status and report queries about them.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"

	"igprofiler/internal/pipeline"
	"igprofiler/pkg/analyzer"
	"igprofiler/pkg/cache"
	"igprofiler/pkg/database"
	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/logger"
	"igprofiler/pkg/models"
	"igprofiler/pkg/report"
	"igprofiler/pkg/session"
)

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = session.ErrNotFound
	// ErrNotReady is returned by GetReport until the session has completed.
	ErrNotReady = errs.New(errs.ErrorTypeConflict, "analysis not completed")
)

// Progress milestones.
const (
	progressScraping  = 10
	progressScraped   = 20
	progressMediaSpan = 40
	progressAnalyzing = 70
)

// Scraper retrieves a profile and its posts.
type Scraper interface {
	FetchProfilePosts(ctx context.Context, username string, limit int) (*models.Profile, []models.Post, error)
}

// Processor turns posts into artifacts.
type Processor interface {
	Process(ctx context.Context, owner string, posts []models.Post, concurrency int, progress pipeline.Progress) []pipeline.Outcome
}

// Analyzer writes the narrative analysis.
type Analyzer interface {
	Analyze(ctx context.Context, in analyzer.Input) (*models.Analysis, error)
}

// WebsiteFetcher scrapes the profile's personal website.
type WebsiteFetcher interface {
	Fetch(ctx context.Context, url string) (*models.WebsiteData, error)
}

// Recorder persists runs.
type Recorder interface {
	SavePosts(ctx context.Context, profile *models.Profile, posts []models.Post) (database.Stats, error)
	SaveAnalysis(ctx context.Context, username string, a *models.Analysis) error
	LogSession(ctx context.Context, r database.SessionRecord) error
}

// Status is the poll response for one session.
type Status struct {
	SessionID string               `json:"session_id"`
	Status    session.Status       `json:"status"`
	Progress  int                  `json:"progress"`
	Message   string               `json:"message"`
	Username  string               `json:"username"`
	Preview   []models.PostPreview `json:"posts_preview,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// Service orchestrates analyses.
type Service struct {
	tracker   *session.Tracker
	scraper   Scraper
	processor Processor
	analyzer  Analyzer
	website   WebsiteFetcher
	recorder  Recorder
	cache     cache.ReportCache
	cacheTTL  time.Duration

	defaultLimit int
	maxLimit     int
	concurrency  int
	maxActive    int64
	active       atomic.Int64

	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Service
type Option func(*Service)

// WithAnalyzer enables AI analysis. Without one the fallback analysis is used.
func WithAnalyzer(a Analyzer) Option {
	return func(s *Service) { s.analyzer = a }
}

// WithWebsite enables personal website scraping.
func WithWebsite(w WebsiteFetcher) Option {
	return func(s *Service) { s.website = w }
}

// WithRecorder enables persistence.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithCache stores completed reports for ttl.
func WithCache(c cache.ReportCache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithLimits sets the default and maximum post limit.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(s *Service) {
		s.defaultLimit = defaultLimit
		s.maxLimit = maxLimit
	}
}

// WithConcurrency sets how many posts are processed at once.
func WithConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}

// WithMaxActive caps running analyses; further requests get a Capacity error.
func WithMaxActive(n int) Option {
	return func(s *Service) { s.maxActive = int64(n) }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service.
func New(tracker *session.Tracker, scraper Scraper, processor Processor, opts ...Option) *Service {
	s := &Service{
		tracker:      tracker,
		scraper:      scraper,
		processor:    processor,
		defaultLimit: 10,
		maxLimit:     50,
		concurrency:  4,
		logger:       logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("component", "service")
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// StartAnalysis validates the request, registers a session and runs the
// analysis in the background. A limit of zero selects the default.
func (s *Service) StartAnalysis(ctx context.Context, profile string, limit int) (string, string, error) {
	username, err := ExtractUsername(profile)
	if err != nil {
		return "", "", err
	}
	if limit == 0 {
		limit = s.defaultLimit
	}
	if limit < 1 || limit > s.maxLimit {
		return "", "", errs.New(errs.ErrorTypeValidation, fmt.Sprintf("results_limit must be between 1 and %d", s.maxLimit))
	}
	if err := s.ctx.Err(); err != nil {
		return "", "", errs.Capacity("service is shutting down")
	}

	if n := s.active.Add(1); s.maxActive > 0 && n > s.maxActive {
		s.active.Add(-1)
		return "", "", errs.Capacity(fmt.Sprintf("too many analyses in progress (max %d)", s.maxActive))
	}

	u, err := uuid.NewV4()
	if err != nil {
		s.active.Add(-1)
		return "", "", fmt.Errorf("failed to generate session id: %w", err)
	}
	id := username + "_" + u.String()
	if _, err := s.tracker.Create(id); err != nil {
		s.active.Add(-1)
		return "", "", err
	}

	s.logger.InfoWithFields("Analysis started", map[string]interface{}{
		"session_id": id,
		"username":   username,
		"limit":      limit,
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)
		s.run(s.ctx, id, username, limit)
	}()
	return id, username, nil
}

// GetStatus reads the session state.
func (s *Service) GetStatus(id string) (Status, error) {
	sess, err := s.tracker.Get(id)
	if err != nil {
		return Status{}, err
	}
	return statusOf(sess), nil
}

// ListSessions returns every tracked session, newest first.
func (s *Service) ListSessions() []Status {
	sessions := s.tracker.List()
	slices.SortFunc(sessions, func(a, b session.Session) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	out := make([]Status, len(sessions))
	for i, sess := range sessions {
		out[i] = statusOf(sess)
	}
	return out
}

func statusOf(sess session.Session) Status {
	return Status{
		SessionID: sess.ID,
		Status:    sess.Status,
		Progress:  sess.Progress,
		Message:   sess.Message,
		Username:  usernameFromID(sess.ID),
		Preview:   sess.Preview,
		Error:     sess.Error,
	}
}

// GetReport returns the report of a completed session. Sessions already swept
// from the tracker are served from the report cache when possible.
func (s *Service) GetReport(ctx context.Context, id string) (*report.Report, error) {
	sess, err := s.tracker.Get(id)
	if err != nil {
		if errs.IsType(err, errs.ErrorTypeNotFound) {
			if r := s.cachedReport(ctx, id); r != nil {
				return r, nil
			}
		}
		return nil, err
	}
	if sess.Status != session.StatusCompleted {
		return nil, ErrNotReady
	}
	r, ok := sess.Result.(*report.Report)
	if !ok {
		return nil, errs.New(errs.ErrorTypeUnknown, "session has no report")
	}
	return r, nil
}

// Subscribe forwards to the tracker.
func (s *Service) Subscribe(id string) (<-chan session.Session, func(), error) {
	return s.tracker.Subscribe(id)
}

// Wait blocks until every started analysis has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting work, cancels running analyses and waits for them
// to finalize or for ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) cachedReport(ctx context.Context, id string) *report.Report {
	if s.cache == nil {
		return nil
	}
	data, ok, err := s.cache.Get(ctx, id)
	if err != nil {
		s.logger.WithError(err).Warn("Report cache lookup failed")
		return nil
	}
	if !ok {
		return nil
	}
	var r report.Report
	if err := json.Unmarshal(data, &r); err != nil {
		s.logger.WithError(err).Warn("Cached report is corrupt")
		return nil
	}
	return &r
}
