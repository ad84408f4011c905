package frames

import (
	"context"
	"errors"
	"image"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/logger"
)

type fakeDecoder struct {
	info     Info
	probeErr error
	failAt   map[time.Duration]bool

	mu    sync.Mutex
	calls []time.Duration
}

func (f *fakeDecoder) Probe(ctx context.Context, path string) (Info, error) {
	return f.info, f.probeErr
}

func (f *fakeDecoder) FrameAt(ctx context.Context, path string, ts time.Duration) (image.Image, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ts)
	f.mu.Unlock()
	if f.failAt[ts] {
		return nil, errs.Decode(nil, "corrupt frame")
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func TestTimestamps(t *testing.T) {
	t.Run("evenly spaced", func(t *testing.T) {
		got := Timestamps(9*time.Second, 30, 9)
		require.Len(t, got, 9)
		for i, ts := range got {
			assert.Equal(t, time.Duration(i)*time.Second, ts)
		}
	})

	t.Run("short video collapses duplicates", func(t *testing.T) {
		// 200ms at 10fps has only two distinct frames
		got := Timestamps(200*time.Millisecond, 10, 9)
		require.Len(t, got, 2)
		assert.Equal(t, time.Duration(0), got[0])
		assert.Greater(t, got[1], 100*time.Millisecond)
	})

	t.Run("count is capped", func(t *testing.T) {
		assert.Len(t, Timestamps(time.Minute, 25, 20), MaxFrames)
	})

	t.Run("unknown frame rate still distinct", func(t *testing.T) {
		got := Timestamps(3*time.Nanosecond, 0, 9)
		assert.Equal(t, []time.Duration{0, 1, 2}, got)
	})

	t.Run("degenerate input", func(t *testing.T) {
		assert.Empty(t, Timestamps(0, 30, 9))
		assert.Empty(t, Timestamps(time.Second, 30, 0))
	})
}

func TestTimestampsStrictlyIncreasingWithinDuration(t *testing.T) {
	durations := []time.Duration{time.Millisecond, 333 * time.Millisecond, 7 * time.Second, 95 * time.Second}
	rates := []float64{0, 1, 23.976, 60}
	for _, d := range durations {
		for _, fps := range rates {
			got := Timestamps(d, fps, 9)
			for i, ts := range got {
				if ts < 0 || ts >= d {
					t.Errorf("d=%s fps=%v: ts %s out of range", d, fps, ts)
				}
				if i > 0 && ts <= got[i-1] {
					t.Errorf("d=%s fps=%v: not strictly increasing at %d", d, fps, i)
				}
			}
		}
	}
}

func TestExtract(t *testing.T) {
	dec := &fakeDecoder{info: Info{Duration: 9 * time.Second, FrameRate: 30}}
	s := NewSampler(dec, WithLogger(logger.NewNopLogger()))

	frames, err := s.Extract(context.Background(), "video.mp4", 9)
	require.NoError(t, err)
	require.Len(t, frames, 9)
	for i := 1; i < len(frames); i++ {
		assert.Greater(t, frames[i].Timestamp, frames[i-1].Timestamp)
	}
}

func TestExtractSkipsBadFrames(t *testing.T) {
	dec := &fakeDecoder{
		info:   Info{Duration: 9 * time.Second, FrameRate: 30},
		failAt: map[time.Duration]bool{2 * time.Second: true, 5 * time.Second: true},
	}
	s := NewSampler(dec, WithLogger(logger.NewNopLogger()))

	frames, err := s.Extract(context.Background(), "video.mp4", 9)
	require.NoError(t, err)
	assert.Len(t, frames, 7)
	assert.Len(t, dec.calls, 9)
}

func TestExtractErrors(t *testing.T) {
	t.Run("probe failure", func(t *testing.T) {
		probeErr := errs.Decode(errors.New("moov atom not found"), "video decode failed")
		s := NewSampler(&fakeDecoder{probeErr: probeErr}, WithLogger(logger.NewNopLogger()))
		_, err := s.Extract(context.Background(), "v.mp4", 9)
		assert.ErrorIs(t, err, probeErr)
	})

	t.Run("no duration", func(t *testing.T) {
		s := NewSampler(&fakeDecoder{}, WithLogger(logger.NewNopLogger()))
		_, err := s.Extract(context.Background(), "v.mp4", 9)
		assert.True(t, errs.IsType(err, errs.ErrorTypeDecode))
	})

	t.Run("every frame fails", func(t *testing.T) {
		dec := &fakeDecoder{
			info:   Info{Duration: 2 * time.Second},
			failAt: map[time.Duration]bool{0: true, time.Second: true},
		}
		s := NewSampler(dec, WithLogger(logger.NewNopLogger()))
		_, err := s.Extract(context.Background(), "v.mp4", 2)
		assert.True(t, errs.IsType(err, errs.ErrorTypeDecode))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s := NewSampler(&fakeDecoder{info: Info{Duration: time.Second}}, WithLogger(logger.NewNopLogger()))
		_, err := s.Extract(ctx, "v.mp4", 9)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestExtractBytesCleansUp(t *testing.T) {
	dir := t.TempDir()
	dec := &fakeDecoder{info: Info{Duration: time.Second, FrameRate: 30}}
	s := NewSampler(dec, WithLogger(logger.NewNopLogger()), WithTempDir(dir))

	frames, err := s.ExtractBytes(context.Background(), []byte("fake mp4"), 3)
	require.NoError(t, err)
	assert.Len(t, frames, 3)

	_, err = s.ExtractBytes(context.Background(), nil, 3)
	assert.True(t, errs.IsType(err, errs.ErrorTypeDecode))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
