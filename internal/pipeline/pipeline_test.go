package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"igprofiler/internal/fetcher"
	"igprofiler/pkg/config"
	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/frames"
	"igprofiler/pkg/logger"
	"igprofiler/pkg/models"
	"igprofiler/pkg/storage"
)

func pngData(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 12, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeFetcher serves fixed bytes and fails any URL containing "missing".
type fakeFetcher struct {
	data  []byte
	delay time.Duration

	mu       sync.Mutex
	inflight int
	peak     int
}

func (f *fakeFetcher) FetchAll(ctx context.Context, urls []string, maxConcurrency int) []fetcher.Result {
	return f.FetchAllWithTimeout(ctx, urls, maxConcurrency, 0)
}

func (f *fakeFetcher) FetchAllWithTimeout(ctx context.Context, urls []string, maxConcurrency int, timeout time.Duration) []fetcher.Result {
	f.mu.Lock()
	f.inflight++
	if f.inflight > f.peak {
		f.peak = f.inflight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()
	time.Sleep(f.delay)

	out := make([]fetcher.Result, len(urls))
	for i, u := range urls {
		out[i] = fetcher.Result{Index: i, URL: u}
		if strings.Contains(u, "missing") {
			out[i].Err = errs.New(errs.ErrorTypeNotFound, "unexpected status 404")
			continue
		}
		out[i].Data = f.data
	}
	return out
}

type fakeSampler struct {
	frames int
	err    error
}

func (s *fakeSampler) ExtractBytes(ctx context.Context, data []byte, count int) ([]frames.Frame, error) {
	if s.err != nil {
		return nil, s.err
	}
	n := min(s.frames, count)
	out := make([]frames.Frame, n)
	for i := range out {
		out[i] = frames.Frame{Timestamp: time.Duration(i) * time.Second, Image: image.NewRGBA(image.Rect(0, 0, 16, 9))}
	}
	return out, nil
}

func testPipeline(t *testing.T, f MediaFetcher, s FrameSampler) (*Pipeline, *storage.FileStore) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	p := New(f, s, store, Config{
		FrameCount:       9,
		CaptionBand:      true,
		FetchConcurrency: 3,
		CellSize:         40,
	}, WithLogger(logger.NewNopLogger()))
	return p, store
}

func samplePosts() []models.Post {
	return []models.Post{
		{ShortCode: "img1", Type: models.PostTypeImage, Images: []string{"https://cdn/a.jpg"}, Caption: "sunset", Likes: 10},
		{ShortCode: "car1", Type: models.PostTypeCarousel, Images: []string{"https://cdn/b.jpg", "https://cdn/missing.jpg", "https://cdn/c.jpg"}},
		{ShortCode: "vid1", Type: models.PostTypeVideo, Images: []string{"https://cdn/thumb.jpg"}, Videos: []string{"https://cdn/v.mp4"}, Views: 500},
		{ShortCode: "odd1", Type: "reel_remix", Images: []string{"https://cdn/d.jpg"}},
		{ShortCode: "gone", Type: models.PostTypeImage, Images: []string{"https://cdn/missing1.jpg", "https://cdn/missing2.jpg"}},
	}
}

func TestProcessOrderAndIsolation(t *testing.T) {
	p, store := testPipeline(t, &fakeFetcher{data: pngData(t)}, &fakeSampler{frames: 9})
	posts := samplePosts()

	outcomes := p.Process(context.Background(), "alice", posts, 2, Progress{})
	require.Len(t, outcomes, len(posts))
	for i, out := range outcomes {
		assert.Equal(t, posts[i].ShortCode, out.Post.ShortCode)
	}

	img := outcomes[0]
	require.NoError(t, img.Err)
	assert.False(t, img.Degraded)
	assert.Equal(t, models.ArtifactCollage, img.Artifact.Kind)
	assert.Equal(t, "alice_img1_collage.jpg", img.Artifact.Name)
	assert.Equal(t, "/collages/alice_img1_collage.jpg", img.Artifact.URL)
	assert.Equal(t, 0, img.Artifact.Blank)

	car := outcomes[1]
	require.NoError(t, car.Err)
	assert.True(t, car.Degraded)
	assert.Equal(t, 4, car.Artifact.Cells)
	assert.Equal(t, 2, car.Artifact.Filled)
	assert.Equal(t, 2, car.Artifact.Blank)
	require.Len(t, car.Artifact.Failures, 1)
	assert.Contains(t, car.Artifact.Failures[0], "missing.jpg")

	vid := outcomes[2]
	require.NoError(t, vid.Err)
	assert.Equal(t, models.ArtifactFrameGrid, vid.Artifact.Kind)
	assert.Equal(t, 9, vid.Artifact.Frames)
	assert.Equal(t, "alice_vid1_frames.jpg", vid.Artifact.Name)

	assert.True(t, errs.IsType(outcomes[3].Err, errs.ErrorTypeValidation))
	assert.Nil(t, outcomes[3].Artifact)

	assert.Error(t, outcomes[4].Err)
	assert.Nil(t, outcomes[4].Artifact)

	for _, out := range outcomes[:3] {
		exists, err := store.Exists(context.Background(), out.Artifact.Name)
		require.NoError(t, err)
		assert.True(t, exists)

		decoded, err := jpeg.Decode(bytes.NewReader(out.Image))
		require.NoError(t, err)
		assert.Equal(t, out.Artifact.Path, store.Dir()+string(os.PathSeparator)+out.Artifact.Name)
		assert.Greater(t, decoded.Bounds().Dy(), 40, "caption band present")
	}
}

func TestProcessProgress(t *testing.T) {
	p, _ := testPipeline(t, &fakeFetcher{data: pngData(t)}, &fakeSampler{frames: 3})

	posts := samplePosts()[:4]
	var (
		mu       sync.Mutex
		percents []int
	)
	p.Process(context.Background(), "alice", posts, 3, Progress{
		Base: 20,
		Span: 40,
		Report: func(percent, done, total int) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 4, total)
			percents = append(percents, percent)
		},
	})

	assert.Equal(t, []int{30, 40, 50, 60}, percents)
}

func TestProgressPercent(t *testing.T) {
	p := Progress{Base: 20, Span: 40}
	assert.Equal(t, 20, p.percent(0, 3))
	assert.Equal(t, 33, p.percent(1, 3))
	assert.Equal(t, 46, p.percent(2, 3))
	assert.Equal(t, 60, p.percent(3, 3))
	assert.Equal(t, 60, p.percent(0, 0))
}

func TestProcessBoundsConcurrency(t *testing.T) {
	f := &fakeFetcher{data: pngData(t), delay: 20 * time.Millisecond}
	p, _ := testPipeline(t, f, &fakeSampler{frames: 1})

	posts := make([]models.Post, 8)
	for i := range posts {
		posts[i] = models.Post{ShortCode: string(rune('a' + i)), Type: models.PostTypeImage, Images: []string{"https://cdn/x.jpg"}}
	}
	outcomes := p.Process(context.Background(), "bob", posts, 2, Progress{})

	assert.LessOrEqual(t, f.peak, 2)
	for _, out := range outcomes {
		assert.NoError(t, out.Err)
	}
}

func TestVideoFallsBackToThumbnail(t *testing.T) {
	p, _ := testPipeline(t, &fakeFetcher{data: pngData(t)}, &fakeSampler{err: errs.Decode(errors.New("moov atom not found"), "video decode failed")})

	post := samplePosts()[2]
	out := p.Process(context.Background(), "alice", []models.Post{post}, 1, Progress{})[0]

	require.NoError(t, out.Err)
	assert.True(t, out.Degraded)
	assert.Equal(t, models.ArtifactCollage, out.Artifact.Kind)
	assert.Equal(t, 1, out.Artifact.Filled)
}

func TestVideoWithoutThumbnailFails(t *testing.T) {
	p, _ := testPipeline(t, &fakeFetcher{data: pngData(t)}, &fakeSampler{err: errs.Decode(nil, "no frames could be decoded")})

	post := models.Post{ShortCode: "v", Type: models.PostTypeVideo, Videos: []string{"https://cdn/v.mp4"}}
	out := p.Process(context.Background(), "alice", []models.Post{post}, 1, Progress{})[0]
	assert.True(t, errs.IsType(out.Err, errs.ErrorTypeDecode))
}

func TestProcessCancelled(t *testing.T) {
	p, _ := testPipeline(t, &fakeFetcher{data: pngData(t)}, &fakeSampler{frames: 9})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := p.Process(ctx, "alice", samplePosts(), 2, Progress{})
	require.Len(t, outcomes, 5)
	for _, out := range outcomes {
		assert.ErrorIs(t, out.Err, context.Canceled)
	}
}

func TestProcessWithHTTPFetcher(t *testing.T) {
	data := pngData(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "broken.jpg") {
			w.Write([]byte("<html>not an image</html>"))
			return
		}
		w.Write(data)
	}))
	defer server.Close()

	fcfg := config.DefaultConfig().Fetcher
	fcfg.MaxRetries = 0
	f := fetcher.New(fcfg, fetcher.WithLogger(logger.NewNopLogger()))
	p, _ := testPipeline(t, f, nil)

	post := models.Post{
		ShortCode: "mix",
		Type:      models.PostTypeCarousel,
		Images:    []string{server.URL + "/one.jpg", server.URL + "/broken.jpg"},
	}
	out := p.Process(context.Background(), "carol", []models.Post{post}, 1, Progress{})[0]

	require.NoError(t, out.Err)
	assert.True(t, out.Degraded)
	assert.Equal(t, 1, out.Artifact.Filled)
	assert.Equal(t, 1, out.Artifact.Blank)
	require.Len(t, out.Artifact.Failures, 1)
	assert.Contains(t, out.Artifact.Failures[0], "broken.jpg")
}

func TestArtifactName(t *testing.T) {
	post := models.Post{ShortCode: "Cx1"}
	assert.Equal(t, "alice_Cx1_collage.jpg", ArtifactName("alice", post, models.ArtifactCollage))
	assert.Equal(t, "alice_Cx1_frames.jpg", ArtifactName("alice", post, models.ArtifactFrameGrid))
	assert.Equal(t, "Cx1_collage.jpg", ArtifactName("", post, models.ArtifactCollage))
}
