// Package analyzer produces the narrative profile report with Claude.
package analyzer

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"igprofiler/pkg/config"
	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/logger"
	"igprofiler/pkg/models"
)

// Input is everything the analyzer looks at for one profile.
type Input struct {
	Profile *models.Profile
	Posts   []models.Post
	Website *models.WebsiteData
	// Images are encoded JPEG collages in post order.
	Images [][]byte
}

// Analyzer calls the Messages API with the profile prompt and collages.
type Analyzer struct {
	client      *anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	maxImages   int
	logger      logger.Logger
}

// Option configures an Analyzer
type Option func(*settings)

type settings struct {
	logger     logger.Logger
	maxRetries int
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMaxRetries overrides the SDK's retry count.
func WithMaxRetries(n int) Option {
	return func(s *settings) { s.maxRetries = n }
}

// New creates an analyzer. The API key must be set; callers without one use
// Fallback directly.
func New(cfg config.AnthropicConfig, opts ...Option) *Analyzer {
	s := settings{logger: logger.GetLogger(), maxRetries: 2}
	for _, opt := range opts {
		opt(&s)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(s.maxRetries),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.Timeout))
	}
	client := anthropic.NewClient(reqOpts...)

	a := &Analyzer{
		client:      &client,
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
		maxImages:   cfg.MaxImages,
		logger:      s.logger.WithField("component", "analyzer"),
	}
	if a.maxTokens <= 0 {
		a.maxTokens = 4096
	}
	if a.maxImages <= 0 {
		a.maxImages = 10
	}
	return a
}

// Analyze sends the prompt and up to maxImages collages to Claude. A failed
// call is an Upstream error. An answer that is not valid JSON degrades to the
// fallback analysis.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*models.Analysis, error) {
	prompt := BuildPrompt(in.Profile, in.Posts, in.Website)

	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(prompt)}
	attached := 0
	for _, img := range in.Images {
		if attached == a.maxImages {
			break
		}
		if len(img) == 0 {
			continue
		}
		blocks = append(blocks, anthropic.NewImageBlockBase64("image/jpeg", base64.StdEncoding.EncodeToString(img)))
		attached++
	}

	start := time.Now()
	a.logger.InfoWithFields("Starting AI profile analysis", map[string]interface{}{
		"model":  a.model,
		"posts":  len(in.Posts),
		"images": attached,
	})

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		Temperature: anthropic.Float(a.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		code := 0
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			code = apiErr.StatusCode
		}
		a.logger.WithError(err).ErrorWithFields("AI analysis failed", map[string]interface{}{
			"status":   code,
			"duration": time.Since(start).String(),
		})
		return nil, errs.Upstream(code, err, "AI analysis failed")
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}
	if responseText == "" {
		return nil, errs.Upstream(0, nil, "AI service returned an empty response")
	}

	analysis, err := ParseResponse(responseText)
	if err != nil {
		a.logger.WithError(err).Warn("AI response was not valid JSON, using fallback analysis")
		return Fallback(in.Profile, in.Posts), nil
	}

	a.logger.InfoWithFields("AI analysis complete", map[string]interface{}{
		"duration": time.Since(start).String(),
	})
	return analysis, nil
}
