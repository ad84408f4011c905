package main

import (
	"context"
	"fmt"

	"igprofiler/internal/fetcher"
	"igprofiler/internal/pipeline"
	"igprofiler/internal/service"
	"igprofiler/pkg/analyzer"
	"igprofiler/pkg/apify"
	"igprofiler/pkg/cache"
	"igprofiler/pkg/config"
	"igprofiler/pkg/database"
	"igprofiler/pkg/frames"
	"igprofiler/pkg/logger"
	"igprofiler/pkg/session"
	"igprofiler/pkg/storage"
	"igprofiler/pkg/website"
)

// app holds every long-lived component built from one configuration.
type app struct {
	cfg     *config.Config
	tracker *session.Tracker
	store   storage.ArtifactStore
	cache   cache.ReportCache
	db      *database.DB
	svc     *service.Service
	logger  logger.Logger
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logger.GetLogger()
	a := &app{cfg: cfg, logger: log}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact storage: %w", err)
	}
	a.store = store

	decoder := frames.NewFFmpegDecoder(cfg.Pipeline.FFmpegPath, cfg.Pipeline.FFprobePath)
	if err := decoder.CheckDependencies(); err != nil {
		log.WithError(err).Warn("Video frame extraction unavailable, video posts will fall back to thumbnails")
	}
	sampler := frames.NewSampler(decoder, frames.WithLogger(log))

	pipe := pipeline.New(
		fetcher.New(cfg.Fetcher, fetcher.WithLogger(log)),
		sampler,
		store,
		pipeline.ConfigFrom(cfg),
		pipeline.WithLogger(log),
	)

	a.tracker = session.NewTracker(cfg.Session.TTL, session.WithLogger(log))
	a.cache = cache.New(cfg.Cache, log)

	opts := []service.Option{
		service.WithLimits(cfg.Pipeline.DefaultLimit, cfg.Pipeline.MaxPostLimit),
		service.WithConcurrency(cfg.Pipeline.Concurrency),
		service.WithMaxActive(cfg.Pipeline.MaxActiveSessions),
		service.WithCache(a.cache, cfg.Cache.TTL),
		service.WithLogger(log),
	}

	if cfg.AnthropicConfigured() {
		opts = append(opts, service.WithAnalyzer(analyzer.New(cfg.Anthropic, analyzer.WithLogger(log))))
	} else {
		log.Warn("Anthropic API key not configured, reports will use the basic analysis")
	}

	if cfg.Website.Enabled {
		opts = append(opts, service.WithWebsite(website.New(cfg.Website, website.WithLogger(log))))
	}

	if cfg.Database.Path != "" {
		db, err := database.Open(cfg.Database.Path)
		if err != nil {
			a.cache.Close()
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db
		opts = append(opts, service.WithRecorder(db))
		if counts, err := db.Counts(ctx); err == nil {
			log.InfoWithFields("Database opened", map[string]interface{}{
				"path":     cfg.Database.Path,
				"profiles": counts.Users,
				"posts":    counts.Posts,
			})
		}
	}

	scraper := apify.NewClient(cfg.Apify, apify.WithLogger(log))
	a.svc = service.New(a.tracker, scraper, pipe, opts...)

	log.InfoWithFields("Application initialized", map[string]interface{}{
		"storage":   cfg.Storage.Backend,
		"database":  cfg.Database.Path,
		"redis":     cfg.Cache.RedisAddr != "",
		"ai":        cfg.AnthropicConfigured(),
		"website":   cfg.Website.Enabled,
		"max_posts": cfg.Pipeline.MaxPostLimit,
	})
	return a, nil
}

// Close stops running analyses within ctx and releases storage handles.
func (a *app) Close(ctx context.Context) {
	if err := a.svc.Shutdown(ctx); err != nil {
		a.logger.WithError(err).Warn("Analyses did not stop in time")
	}
	if err := a.cache.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close report cache")
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close database")
		}
	}
}
