package frames

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "igprofiler/pkg/errors"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestFFmpegDecoderWithFakeBinaries(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	dir := t.TempDir()

	img := image.NewRGBA(image.Rect(0, 0, 6, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	framePath := filepath.Join(dir, "frame.png")
	require.NoError(t, os.WriteFile(framePath, buf.Bytes(), 0o644))

	ffprobe := writeScript(t, dir, "ffprobe", `cat <<'JSON'
{"streams":[{"r_frame_rate":"30/1","avg_frame_rate":"30000/1001"}],"format":{"duration":"12.500000"}}
JSON
`)
	ffmpeg := writeScript(t, dir, "ffmpeg", "cat '"+framePath+"'\n")

	dec := NewFFmpegDecoder(ffmpeg, ffprobe)
	require.NoError(t, dec.CheckDependencies())

	info, err := dec.Probe(context.Background(), "video.mp4")
	require.NoError(t, err)
	assert.Equal(t, 12500*time.Millisecond, info.Duration)
	assert.InDelta(t, 29.97, info.FrameRate, 0.01)

	frame, err := dec.FrameAt(context.Background(), "video.mp4", time.Second)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 6, 4), frame.Bounds())
}

func TestFFmpegDecoderFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	dir := t.TempDir()
	ffmpeg := writeScript(t, dir, "ffmpeg", "echo 'Invalid data found when processing input' >&2\nexit 1\n")
	empty := writeScript(t, dir, "ffmpeg-empty", "exit 0\n")

	_, err := NewFFmpegDecoder(ffmpeg, "").FrameAt(context.Background(), "v.mp4", 0)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeDecode))
	assert.Contains(t, err.Error(), "Invalid data found")

	_, err = NewFFmpegDecoder(empty, "").FrameAt(context.Background(), "v.mp4", 0)
	assert.True(t, errs.IsType(err, errs.ErrorTypeDecode))
}

func TestCheckDependenciesMissing(t *testing.T) {
	dec := NewFFmpegDecoder("/nonexistent/ffmpeg-igprofiler", "/nonexistent/ffprobe-igprofiler")
	assert.Error(t, dec.CheckDependencies())
}

func TestParseRate(t *testing.T) {
	assert.InDelta(t, 23.976, parseRate("24000/1001"), 0.001)
	assert.Equal(t, 25.0, parseRate("25/1"))
	assert.Equal(t, 0.0, parseRate("0/0"))
	assert.Equal(t, 30.0, parseRate("30"))
	assert.Equal(t, 0.0, parseRate(""))
}
