package frames

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/png" // ffmpeg emits png frames
	"os/exec"
	"strconv"
	"strings"
	"time"

	errs "igprofiler/pkg/errors"
)

// FFmpegDecoder probes with ffprobe and grabs frames with ffmpeg.
type FFmpegDecoder struct {
	FFmpegPath  string
	FFprobePath string
}

// NewFFmpegDecoder returns a decoder using the given binaries, defaulting to
// whatever is on PATH.
func NewFFmpegDecoder(ffmpegPath, ffprobePath string) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegDecoder{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

// CheckDependencies reports a missing ffmpeg or ffprobe binary.
func (d *FFmpegDecoder) CheckDependencies() error {
	for _, bin := range []string{d.FFmpegPath, d.FFprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing dependency: %s is not installed or not on PATH", bin)
		}
	}
	return nil
}

type probeOutput struct {
	Streams []struct {
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads duration and frame rate of the first video stream.
func (d *FFmpegDecoder) Probe(ctx context.Context, path string) (Info, error) {
	out, err := d.run(ctx, d.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate,avg_frame_rate,duration:format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return Info{}, err
	}

	var po probeOutput
	if err := json.Unmarshal(out, &po); err != nil {
		return Info{}, errs.Decode(err, "unreadable ffprobe output")
	}

	info := Info{}
	seconds := po.Format.Duration
	if len(po.Streams) > 0 {
		s := po.Streams[0]
		info.FrameRate = parseRate(s.AvgFrameRate)
		if info.FrameRate == 0 {
			info.FrameRate = parseRate(s.RFrameRate)
		}
		if seconds == "" || seconds == "N/A" {
			seconds = s.Duration
		}
	}
	if v, err := strconv.ParseFloat(seconds, 64); err == nil && v > 0 {
		info.Duration = time.Duration(v * float64(time.Second))
	}
	return info, nil
}

// FrameAt seeks to ts and decodes a single frame.
func (d *FFmpegDecoder) FrameAt(ctx context.Context, path string, ts time.Duration) (image.Image, error) {
	out, err := d.run(ctx, d.FFmpegPath,
		"-v", "error",
		"-ss", strconv.FormatFloat(ts.Seconds(), 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errs.Decode(nil, fmt.Sprintf("no frame at %s", ts))
	}
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, errs.Decode(err, "frame decode failed")
	}
	return img, nil
}

func (d *FFmpegDecoder) run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Decode(fmt.Errorf("%s failed: %w: %s", bin, err, strings.TrimSpace(stderr.String())), "video decode failed")
	}
	return stdout.Bytes(), nil
}

// parseRate parses ffprobe rates like "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	dd, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || dd == 0 {
		return 0
	}
	return n / dd
}
