// Package frames samples evenly spaced still frames from a video.
package frames

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"time"

	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/logger"
)

// MaxFrames is the most frames one sample returns, enough for a 3x3 grid.
const MaxFrames = 9

// Info describes a probed video.
type Info struct {
	Duration time.Duration
	// FrameRate in frames per second; zero when unknown.
	FrameRate float64
}

// Decoder reads video metadata and single frames.
type Decoder interface {
	Probe(ctx context.Context, path string) (Info, error)
	FrameAt(ctx context.Context, path string, ts time.Duration) (image.Image, error)
}

// Frame is one decoded still.
type Frame struct {
	Timestamp time.Duration
	Image     image.Image
}

// Sampler extracts frame sets through a Decoder.
type Sampler struct {
	decoder Decoder
	tempDir string
	logger  logger.Logger
}

// Option configures a Sampler
type Option func(*Sampler)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Sampler) { s.logger = l }
}

// WithTempDir sets where ExtractBytes spools video data.
func WithTempDir(dir string) Option {
	return func(s *Sampler) { s.tempDir = dir }
}

// NewSampler creates a Sampler.
func NewSampler(d Decoder, opts ...Option) *Sampler {
	s := &Sampler{decoder: d, logger: logger.GetLogger()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("component", "frames")
	return s
}

// Timestamps returns up to count positions t_i = d*i/count. When fps is known
// positions that land on the same frame are collapsed, so short videos yield
// fewer, distinct timestamps in strictly increasing order.
func Timestamps(d time.Duration, fps float64, count int) []time.Duration {
	if d <= 0 || count <= 0 {
		return nil
	}
	if count > MaxFrames {
		count = MaxFrames
	}

	out := make([]time.Duration, 0, count)
	lastFrame := int64(-1)
	for i := 0; i < count; i++ {
		ts := d * time.Duration(i) / time.Duration(count)
		if fps > 0 {
			frame := int64(math.Floor(ts.Seconds() * fps))
			if frame <= lastFrame {
				continue
			}
			lastFrame = frame
		} else if len(out) > 0 && ts <= out[len(out)-1] {
			continue
		}
		out = append(out, ts)
	}
	return out
}

// Extract decodes up to count frames spread over the video at path.
// Individual frames that fail to decode are skipped; an error is returned
// only when the video cannot be probed or yields no frame at all.
func (s *Sampler) Extract(ctx context.Context, path string, count int) ([]Frame, error) {
	info, err := s.decoder.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	if info.Duration <= 0 {
		return nil, errs.Decode(nil, "video has no duration")
	}

	stamps := Timestamps(info.Duration, info.FrameRate, count)
	frames := make([]Frame, 0, len(stamps))
	var lastErr error
	for _, ts := range stamps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := s.decoder.FrameAt(ctx, path, ts)
		if err != nil {
			lastErr = err
			s.logger.WarnWithFields("Frame decode failed", map[string]interface{}{
				"timestamp_ms": ts.Milliseconds(),
				"error":        err.Error(),
			})
			continue
		}
		frames = append(frames, Frame{Timestamp: ts, Image: img})
	}

	if len(frames) == 0 {
		return nil, errs.Decode(lastErr, "no frames could be decoded")
	}
	s.logger.DebugWithFields("Frames extracted", map[string]interface{}{
		"requested":   count,
		"extracted":   len(frames),
		"duration_ms": info.Duration.Milliseconds(),
		"fps":         info.FrameRate,
	})
	return frames, nil
}

// ExtractBytes spools video data to a temporary file and extracts from it.
func (s *Sampler) ExtractBytes(ctx context.Context, data []byte, count int) ([]Frame, error) {
	if len(data) == 0 {
		return nil, errs.Decode(nil, "empty video data")
	}
	f, err := os.CreateTemp(s.tempDir, "igprofiler-video-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp video: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write temp video: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp video: %w", err)
	}
	return s.Extract(ctx, path, count)
}
