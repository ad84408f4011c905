// Package pipeline turns scraped posts into stored visual artifacts, one
// collage or frame grid per post, processing several posts at once.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"igprofiler/internal/fetcher"
	"igprofiler/pkg/collage"
	"igprofiler/pkg/config"
	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/frames"
	"igprofiler/pkg/logger"
	"igprofiler/pkg/models"
	"igprofiler/pkg/storage"
)

// ArtifactURLPrefix is where the HTTP layer serves stored artifacts.
const ArtifactURLPrefix = "/collages/"

// MediaFetcher downloads batches of URLs, one result per URL in order.
type MediaFetcher interface {
	FetchAll(ctx context.Context, urls []string, maxConcurrency int) []fetcher.Result
	FetchAllWithTimeout(ctx context.Context, urls []string, maxConcurrency int, timeout time.Duration) []fetcher.Result
}

// FrameSampler extracts stills from downloaded video bytes.
type FrameSampler interface {
	ExtractBytes(ctx context.Context, data []byte, count int) ([]frames.Frame, error)
}

// Outcome is the result for one post. Err and Artifact are exclusive;
// Degraded marks an artifact built with some media missing.
type Outcome struct {
	Post     models.Post
	Artifact *models.Artifact
	// Image is the encoded artifact, kept for callers that attach it elsewhere.
	Image    []byte
	Err      error
	Degraded bool
}

// Progress maps completed posts onto a percentage range.
type Progress struct {
	Base   int
	Span   int
	Report func(percent, done, total int)
}

func (p Progress) percent(done, total int) int {
	if total == 0 {
		return p.Base + p.Span
	}
	return p.Base + done*p.Span/total
}

// Config holds the knobs the pipeline reads.
type Config struct {
	FrameCount       int
	CaptionBand      bool
	FetchConcurrency int
	VideoTimeout     time.Duration
	CellSize         int
	Quality          int
}

// ConfigFrom extracts pipeline settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		FrameCount:       cfg.Pipeline.FrameCount,
		CaptionBand:      cfg.Pipeline.CaptionBand,
		FetchConcurrency: cfg.Fetcher.MaxConcurrency,
		VideoTimeout:     cfg.Fetcher.VideoTimeout,
	}
}

// Pipeline processes posts into artifacts.
type Pipeline struct {
	fetcher MediaFetcher
	sampler FrameSampler
	store   storage.ArtifactStore
	cfg     Config
	logger  logger.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline.
func New(f MediaFetcher, s FrameSampler, store storage.ArtifactStore, cfg Config, opts ...Option) *Pipeline {
	if cfg.FrameCount <= 0 || cfg.FrameCount > frames.MaxFrames {
		cfg.FrameCount = frames.MaxFrames
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 5
	}
	p := &Pipeline{
		fetcher: f,
		sampler: s,
		store:   store,
		cfg:     cfg,
		logger:  logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithField("component", "pipeline")
	return p
}

// Process builds an artifact for every post with at most concurrency posts
// in flight. The result has one Outcome per post in input order; a failed
// post never affects the others. Artifacts are named after owner.
func (p *Pipeline) Process(ctx context.Context, owner string, posts []models.Post, concurrency int, progress Progress) []Outcome {
	outcomes := make([]Outcome, len(posts))
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu   sync.Mutex
		done int
	)
	finish := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if progress.Report != nil {
			progress.Report(progress.percent(done, len(posts)), done, len(posts))
		}
	}

	log := p.logger.WithContext(ctx)
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, post := range posts {
		g.Go(func() error {
			defer finish()
			start := time.Now()
			out := p.processPost(ctx, owner, post)
			outcomes[i] = out

			fields := map[string]interface{}{
				"post":        post.Key(),
				"type":        string(post.Type),
				"duration_ms": time.Since(start).Milliseconds(),
				"degraded":    out.Degraded,
			}
			if out.Err != nil {
				log.WithError(out.Err).WarnWithFields("Post processing failed", fields)
			} else {
				log.DebugWithFields("Post processed", fields)
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (p *Pipeline) processPost(ctx context.Context, owner string, post models.Post) Outcome {
	out := Outcome{Post: post}
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}

	var (
		res  *collage.Result
		kind models.ArtifactKind
		nfr  int
		miss []string
		err  error
	)
	switch post.Type {
	case models.PostTypeImage, models.PostTypeCarousel:
		kind = models.ArtifactCollage
		res, miss, err = p.imageCollage(ctx, post)
	case models.PostTypeVideo:
		kind = models.ArtifactFrameGrid
		res, nfr, err = p.frameGrid(ctx, post)
		if err != nil && len(post.Images) > 0 && ctx.Err() == nil {
			// Keep the post visible through its thumbnail.
			p.logger.WithError(err).WarnWithFields("Frame extraction failed, using thumbnail", map[string]interface{}{"post": post.Key()})
			miss = append(miss, fmt.Sprintf("video: %s", errs.Sanitize(err)))
			kind = models.ArtifactCollage
			var thumbMiss []string
			res, thumbMiss, err = p.imageCollage(ctx, post)
			miss = append(miss, thumbMiss...)
		}
	default:
		err = errs.New(errs.ErrorTypeValidation, fmt.Sprintf("unsupported post type %q", post.Type))
	}
	if err != nil {
		out.Err = err
		return out
	}

	for _, f := range res.Failures {
		miss = append(miss, fmt.Sprintf("%s: %s", f.Name, errs.Sanitize(f.Err)))
	}

	data, err := res.Bytes(p.cfg.Quality)
	if err != nil {
		out.Err = fmt.Errorf("failed to encode artifact: %w", err)
		return out
	}

	name := ArtifactName(owner, post, kind)
	path, err := p.store.Put(ctx, name, bytes.NewReader(data), int64(len(data)), "image/jpeg")
	if err != nil {
		out.Err = err
		return out
	}

	out.Image = data
	out.Degraded = len(miss) > 0
	out.Artifact = &models.Artifact{
		Kind:     kind,
		Name:     name,
		Path:     path,
		URL:      ArtifactURLPrefix + name,
		Cells:    res.Cells,
		Filled:   res.Filled,
		Blank:    res.Blank,
		Frames:   nfr,
		Failures: miss,
	}
	return out
}

// imageCollage downloads every image of the post before composing them.
// Failed downloads become blank slots.
func (p *Pipeline) imageCollage(ctx context.Context, post models.Post) (*collage.Result, []string, error) {
	if len(post.Images) == 0 {
		return nil, nil, errs.New(errs.ErrorTypeValidation, "post has no images")
	}
	urls := post.Images
	if len(urls) > collage.DefaultMaxCount {
		urls = urls[:collage.DefaultMaxCount]
	}

	results := p.fetcher.FetchAll(ctx, urls, p.cfg.FetchConcurrency)

	var (
		sources []collage.Source
		missing []string
		lastErr error
	)
	for _, r := range results {
		if !r.OK() {
			lastErr = r.Err
			missing = append(missing, fmt.Sprintf("%s: %s", r.URL, errs.Sanitize(r.Err)))
			// An empty source keeps the slot so the layout matches the post.
			sources = append(sources, collage.Source{Name: r.URL})
			continue
		}
		sources = append(sources, collage.Source{Name: r.URL, Data: r.Data})
	}
	if len(missing) == len(results) {
		return nil, nil, lastErr
	}

	res, err := collage.Build(sources, p.options(post, collage.KindLabel(false, len(urls)), 0, 0))
	if err != nil {
		return nil, nil, err
	}
	// Slots already reported as download failures are not decode failures.
	failures := res.Failures[:0]
	for _, f := range res.Failures {
		if len(sources[f.Index].Data) > 0 {
			failures = append(failures, f)
		}
	}
	res.Failures = failures
	return res, missing, nil
}

// frameGrid downloads the video and lays its frames out on a 3x3 grid.
func (p *Pipeline) frameGrid(ctx context.Context, post models.Post) (*collage.Result, int, error) {
	if len(post.Videos) == 0 || p.sampler == nil {
		return nil, 0, errs.New(errs.ErrorTypeValidation, "post has no video")
	}

	results := p.fetcher.FetchAllWithTimeout(ctx, post.Videos[:1], 1, p.cfg.VideoTimeout)
	if !results[0].OK() {
		return nil, 0, results[0].Err
	}

	stills, err := p.sampler.ExtractBytes(ctx, results[0].Data, p.cfg.FrameCount)
	if err != nil {
		return nil, 0, err
	}

	sources := make([]collage.Source, len(stills))
	for i, f := range stills {
		sources[i] = collage.Source{Name: fmt.Sprintf("frame@%s", f.Timestamp), Image: f.Image}
	}
	res, err := collage.Build(sources, p.options(post, collage.KindLabel(true, len(stills)), 3, 3))
	if err != nil {
		return nil, 0, err
	}
	return res, len(stills), nil
}

func (p *Pipeline) options(post models.Post, kind string, cols, rows int) collage.Options {
	opts := collage.Options{
		CellSize: p.cfg.CellSize,
		Quality:  p.cfg.Quality,
		Columns:  cols,
		Rows:     rows,
	}
	if p.cfg.CaptionBand {
		opts.Caption = &collage.Caption{
			Likes:     post.Likes,
			Comments:  post.Comments,
			Views:     post.Views,
			ShowViews: post.Type == models.PostTypeVideo,
			Text:      post.Caption,
			Kind:      kind,
		}
	}
	return opts
}

// ArtifactName is the store key for a post's artifact.
func ArtifactName(owner string, post models.Post, kind models.ArtifactKind) string {
	suffix := "collage"
	if kind == models.ArtifactFrameGrid {
		suffix = "frames"
	}
	if owner == "" {
		return fmt.Sprintf("%s_%s.jpg", post.Key(), suffix)
	}
	return fmt.Sprintf("%s_%s_%s.jpg", owner, post.Key(), suffix)
}
