package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"igprofiler/internal/pipeline"
	"igprofiler/pkg/analyzer"
	"igprofiler/pkg/database"
	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/logger"
	"igprofiler/pkg/models"
	"igprofiler/pkg/report"
	"igprofiler/pkg/session"
)

const skippedAnalysisMessage = "AI analysis skipped (API key not configured)"

// run executes one analysis and always finalizes the session.
func (s *Service) run(ctx context.Context, id, username string, limit int) {
	started := time.Now()
	ctx = logger.ContextWithSession(ctx, id)
	log := s.logger.WithContext(ctx).WithField("username", username)

	var (
		result *report.Report
		posts  int
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errs.New(errs.ErrorTypeUnknown, fmt.Sprintf("analysis crashed: %v", r))
			}
		}()
		result, posts, err = s.execute(ctx, id, username, limit, started)
	}()

	if _, ferr := s.tracker.Finalize(id, result, err); ferr != nil {
		log.WithError(ferr).Warn("Failed to finalize session")
	}

	status := string(session.StatusCompleted)
	if err != nil {
		status = string(session.StatusError)
		log.WithError(err).Error("Analysis failed")
	} else {
		log.InfoWithFields("Analysis completed", map[string]interface{}{
			"posts":       posts,
			"duration_ms": time.Since(started).Milliseconds(),
		})
	}

	if s.recorder != nil {
		rec := database.SessionRecord{
			SessionID:    id,
			Username:     username,
			PostsFetched: posts,
			Status:       status,
			Error:        errs.Sanitize(err),
			StartedAt:    started,
		}
		// the run context may already be cancelled
		if lerr := s.recorder.LogSession(context.Background(), rec); lerr != nil {
			log.WithError(lerr).Warn("Failed to record session")
		}
	}
}

func (s *Service) execute(ctx context.Context, id, username string, limit int, started time.Time) (*report.Report, int, error) {
	log := s.logger.WithContext(ctx)

	if err := s.update(id, session.StatusScraping, progressScraping, "Fetching Instagram profile...", nil); err != nil {
		return nil, 0, err
	}
	profile, posts, err := s.scraper.FetchProfilePosts(ctx, username, limit)
	if err != nil {
		return nil, 0, err
	}
	if len(posts) == 0 {
		return nil, 0, errs.Upstream(0, nil, fmt.Sprintf("no posts found for @%s", username))
	}
	if len(posts) > limit {
		posts = posts[:limit]
	}
	if err := s.update(id, session.StatusScraping, progressScraped,
		fmt.Sprintf("Downloading %d posts...", len(posts)), report.PostsPreview(posts)); err != nil {
		return nil, len(posts), err
	}

	if s.recorder != nil {
		if stats, err := s.recorder.SavePosts(ctx, profile, posts); err != nil {
			log.WithError(err).Warn("Failed to save posts")
		} else {
			log.DebugWithFields("Posts saved", map[string]interface{}{
				"posts":  stats.Posts,
				"images": stats.Images,
				"videos": stats.Videos,
			})
		}
	}

	if err := s.update(id, session.StatusProcessingMedia, progressScraped, "Creating collages...", nil); err != nil {
		return nil, len(posts), err
	}
	outcomes := s.processor.Process(ctx, username, posts, s.concurrency, pipeline.Progress{
		Base: progressScraped,
		Span: progressMediaSpan,
		Report: func(percent, done, total int) {
			msg := fmt.Sprintf("Processed %d/%d posts", done, total)
			if err := s.update(id, "", percent, msg, nil); err != nil {
				log.WithError(err).Debug("Progress update rejected")
			}
		},
	})
	if err := ctx.Err(); err != nil {
		return nil, len(posts), err
	}

	var site *models.WebsiteData
	if s.website != nil && profile.Website != "" {
		site, err = s.website.Fetch(ctx, profile.Website)
		if err != nil {
			log.WithError(err).WarnWithFields("Website scraping failed", map[string]interface{}{
				"url": profile.Website,
			})
		}
	}

	analyzingMsg := "Analyzing profile with AI..."
	if s.analyzer == nil {
		analyzingMsg = skippedAnalysisMessage
	}
	if err := s.update(id, session.StatusAnalyzing, progressAnalyzing, analyzingMsg, nil); err != nil {
		return nil, len(posts), err
	}

	results := make([]report.PostResult, len(outcomes))
	var images [][]byte
	for i, o := range outcomes {
		results[i] = report.PostResult{Post: o.Post, Artifact: o.Artifact, Err: o.Err, Degraded: o.Degraded}
		if o.Err == nil && len(o.Image) > 0 {
			images = append(images, o.Image)
		}
	}

	var analysis *models.Analysis
	if s.analyzer != nil {
		analysis, err = s.analyzer.Analyze(ctx, analyzer.Input{
			Profile: profile,
			Posts:   posts,
			Website: site,
			Images:  images,
		})
		if err != nil {
			return nil, len(posts), err
		}
	} else {
		log.Info(skippedAnalysisMessage)
		analysis = analyzer.Fallback(profile, posts)
	}

	if s.recorder != nil {
		if err := s.recorder.SaveAnalysis(ctx, username, analysis); err != nil {
			log.WithError(err).Warn("Failed to save analysis")
		}
	}

	r := report.Assemble(report.Input{
		SessionID:   id,
		Profile:     profile,
		Posts:       results,
		Analysis:    analysis,
		Website:     site,
		StartedAt:   started,
		CompletedAt: time.Now(),
	})
	s.store(ctx, id, r)
	return r, len(posts), nil
}

func (s *Service) update(id string, status session.Status, progress int, msg string, preview []models.PostPreview) error {
	_, err := s.tracker.Update(id, session.Update{
		Status:   status,
		Progress: progress,
		Message:  msg,
		Preview:  preview,
	})
	return err
}

func (s *Service) store(ctx context.Context, id string, r *report.Report) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to encode report for cache")
		return
	}
	if err := s.cache.Set(ctx, id, data, s.cacheTTL); err != nil {
		s.logger.WithError(err).Warn("Failed to cache report")
	}
}
