package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"igprofiler/internal/fetcher"
	"igprofiler/internal/pipeline"
	"igprofiler/pkg/analyzer"
	"igprofiler/pkg/cache"
	"igprofiler/pkg/database"
	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/frames"
	"igprofiler/pkg/logger"
	"igprofiler/pkg/models"
	"igprofiler/pkg/session"
	"igprofiler/pkg/storage"
)

type fakeScraper struct {
	profile *models.Profile
	posts   []models.Post
	err     error
	gate    chan struct{}
}

func (f *fakeScraper) FetchProfilePosts(ctx context.Context, username string, limit int) (*models.Profile, []models.Post, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.profile, f.posts, nil
}

type fakeFetcher struct {
	data []byte
}

func (f *fakeFetcher) FetchAll(ctx context.Context, urls []string, maxConcurrency int) []fetcher.Result {
	return f.FetchAllWithTimeout(ctx, urls, maxConcurrency, 0)
}

func (f *fakeFetcher) FetchAllWithTimeout(ctx context.Context, urls []string, maxConcurrency int, timeout time.Duration) []fetcher.Result {
	out := make([]fetcher.Result, len(urls))
	for i, u := range urls {
		out[i] = fetcher.Result{Index: i, URL: u, Data: f.data}
	}
	return out
}

type fakeSampler struct{}

func (fakeSampler) ExtractBytes(ctx context.Context, data []byte, count int) ([]frames.Frame, error) {
	out := make([]frames.Frame, min(4, count))
	for i := range out {
		out[i] = frames.Frame{Timestamp: time.Duration(i) * time.Second, Image: image.NewRGBA(image.Rect(0, 0, 16, 9))}
	}
	return out, nil
}

type fakeAnalyzer struct {
	mu     sync.Mutex
	inputs []analyzer.Input
	err    error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, in analyzer.Input) (*models.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Analysis{Summary: models.Summary{OneSentence: "Alice likes sunsets."}}, nil
}

type fakeWebsite struct {
	urls []string
}

func (f *fakeWebsite) Fetch(ctx context.Context, url string) (*models.WebsiteData, error) {
	f.urls = append(f.urls, url)
	return &models.WebsiteData{URL: url, Title: "Alice"}, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	saved    int
	analyses int
	sessions []database.SessionRecord
}

func (f *fakeRecorder) SavePosts(ctx context.Context, profile *models.Profile, posts []models.Post) (database.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved += len(posts)
	return database.Stats{Posts: len(posts)}, nil
}

func (f *fakeRecorder) SaveAnalysis(ctx context.Context, username string, a *models.Analysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyses++
	return nil
}

func (f *fakeRecorder) LogSession(ctx context.Context, r database.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, r)
	return nil
}

func pngData(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func alicePosts() []models.Post {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []models.Post{
		{ShortCode: "p1", Type: models.PostTypeImage, Caption: "beach day", Likes: 10, Timestamp: ts, Images: []string{"https://cdn/1.jpg"}},
		{ShortCode: "p2", Type: models.PostTypeCarousel, Caption: "hiking", Likes: 20, Timestamp: ts, Images: []string{"https://cdn/2a.jpg", "https://cdn/2b.jpg"}},
		{ShortCode: "p3", Type: models.PostTypeVideo, Caption: "surfing", Views: 300, Timestamp: ts, Images: []string{"https://cdn/3.jpg"}, Videos: []string{"https://cdn/3.mp4"}},
	}
}

func testProcessor(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return pipeline.New(&fakeFetcher{data: pngData(t)}, fakeSampler{}, store, pipeline.Config{
		FrameCount: 4,
		CellSize:   32,
	}, pipeline.WithLogger(logger.NewNopLogger()))
}

func testService(t *testing.T, scraper Scraper, opts ...Option) (*Service, *session.Tracker) {
	t.Helper()
	tracker := session.NewTracker(time.Hour, session.WithLogger(logger.NewNopLogger()))
	opts = append([]Option{WithLogger(logger.NewNopLogger())}, opts...)
	svc := New(tracker, scraper, testProcessor(t), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, tracker
}

func aliceScraper() *fakeScraper {
	return &fakeScraper{
		profile: &models.Profile{Username: "alice", FullName: "Alice A.", Website: "https://alice.example"},
		posts:   alicePosts(),
	}
}

// transitions returns the statuses logged for id, in order.
func transitions(tl *logger.TestLogger, id string) []string {
	var out []string
	for _, m := range tl.GetMessages() {
		if m.Fields["session_id"] != id {
			continue
		}
		if s, ok := m.Fields["status"].(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func TestAliceEndToEnd(t *testing.T) {
	prev := logger.GetLogger()
	tl := logger.NewTestLogger()
	logger.SetLogger(tl)
	defer logger.SetLogger(prev)

	ai := &fakeAnalyzer{}
	site := &fakeWebsite{}
	rec := &fakeRecorder{}
	reports := cache.NewMemoryCache()
	svc, _ := testService(t, aliceScraper(),
		WithAnalyzer(ai),
		WithWebsite(site),
		WithRecorder(rec),
		WithCache(reports, time.Hour),
	)

	id, username, err := svc.StartAnalysis(context.Background(), "alice", 3)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
	assert.True(t, strings.HasPrefix(id, "alice_"))
	svc.Wait()

	assert.Equal(t, []string{"queued", "scraping", "processing_media", "analyzing", "completed"}, transitions(tl, id))

	st, err := svc.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, st.Status)
	assert.Equal(t, 100, st.Progress)
	assert.Equal(t, "alice", st.Username)
	assert.Len(t, st.Preview, 3)
	assert.Empty(t, st.Error)

	r, err := svc.GetReport(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "alice", r.Username)
	assert.Equal(t, id, r.SessionID)
	require.Len(t, r.Gallery, 3)

	var collages, grids int
	for i, e := range r.Gallery {
		assert.Equal(t, i+1, e.PostNumber)
		require.NotEmpty(t, e.CollagePath)
		switch e.ArtifactKind {
		case models.ArtifactCollage:
			collages++
			assert.True(t, strings.HasSuffix(e.CollagePath, "_collage.jpg"), e.CollagePath)
		case models.ArtifactFrameGrid:
			grids++
			assert.True(t, strings.HasSuffix(e.CollagePath, "_frames.jpg"), e.CollagePath)
		}
	}
	assert.Equal(t, 2, collages)
	assert.Equal(t, 1, grids)
	assert.Equal(t, models.ArtifactFrameGrid, r.Gallery[2].ArtifactKind)
	assert.Equal(t, 2, r.Totals.Collages)
	assert.Equal(t, 1, r.Totals.FrameGrids)

	require.Len(t, ai.inputs, 1)
	assert.Len(t, ai.inputs[0].Images, 3)
	assert.Equal(t, "https://alice.example", ai.inputs[0].Website.URL)
	assert.Equal(t, "Alice likes sunsets.", r.Analysis.Summary.OneSentence)
	assert.Equal(t, []string{"https://alice.example"}, site.urls)

	assert.Equal(t, 3, rec.saved)
	assert.Equal(t, 1, rec.analyses)
	require.Len(t, rec.sessions, 1)
	assert.Equal(t, "completed", rec.sessions[0].Status)
	assert.Equal(t, 3, rec.sessions[0].PostsFetched)

	_, ok, err := reports.Get(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExtractUsername(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"alice", "alice", true},
		{"@alice", "alice", true},
		{"  alice.b_c  ", "alice.b_c", true},
		{"https://www.instagram.com/alice/", "alice", true},
		{"https://instagram.com/alice?hl=en", "alice", true},
		{"instagram.com/alice/reels/", "alice", true},
		{"", "", false},
		{"bad name", "", false},
		{"https://instagram.com/", "", false},
		{strings.Repeat("a", 31), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ExtractUsername(tt.in)
			if !tt.ok {
				assert.True(t, errs.IsType(err, errs.ErrorTypeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUsernameFromID(t *testing.T) {
	assert.Equal(t, "alice_b", usernameFromID("alice_b_6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
	assert.Equal(t, "plain", usernameFromID("plain"))
}

func TestStartAnalysisValidation(t *testing.T) {
	svc, _ := testService(t, aliceScraper(), WithLimits(10, 50))

	_, _, err := svc.StartAnalysis(context.Background(), "not a user!", 3)
	assert.True(t, errs.IsType(err, errs.ErrorTypeValidation))

	_, _, err = svc.StartAnalysis(context.Background(), "alice", 51)
	assert.True(t, errs.IsType(err, errs.ErrorTypeValidation))

	_, _, err = svc.StartAnalysis(context.Background(), "alice", -1)
	assert.True(t, errs.IsType(err, errs.ErrorTypeValidation))

	id, _, err := svc.StartAnalysis(context.Background(), "alice", 0)
	require.NoError(t, err)
	svc.Wait()
	st, err := svc.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, st.Status)
}

func TestListSessionsNewestFirst(t *testing.T) {
	svc, tracker := testService(t, aliceScraper())
	assert.Empty(t, svc.ListSessions())

	_, err := tracker.Create("alice_1")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = tracker.Create("bob_2")
	require.NoError(t, err)

	list := svc.ListSessions()
	require.Len(t, list, 2)
	assert.Equal(t, "bob_2", list[0].SessionID)
	assert.Equal(t, "bob", list[0].Username)
	assert.Equal(t, "alice_1", list[1].SessionID)
	assert.Equal(t, session.StatusQueued, list[1].Status)
}

func TestUnknownSession(t *testing.T) {
	svc, _ := testService(t, aliceScraper())

	_, err := svc.GetStatus("nobody_123")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = svc.GetReport(context.Background(), "nobody_123")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestReportNotReadyWhileRunning(t *testing.T) {
	scraper := aliceScraper()
	scraper.gate = make(chan struct{})
	svc, _ := testService(t, scraper)

	id, _, err := svc.StartAnalysis(context.Background(), "alice", 3)
	require.NoError(t, err)

	_, err = svc.GetReport(context.Background(), id)
	assert.True(t, errors.Is(err, ErrNotReady))

	close(scraper.gate)
	svc.Wait()

	r, err := svc.GetReport(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, r.Gallery, 3)
}

func TestCapacity(t *testing.T) {
	scraper := aliceScraper()
	scraper.gate = make(chan struct{})
	svc, _ := testService(t, scraper, WithMaxActive(1))

	_, _, err := svc.StartAnalysis(context.Background(), "alice", 3)
	require.NoError(t, err)

	_, _, err = svc.StartAnalysis(context.Background(), "bob", 3)
	assert.True(t, errs.IsType(err, errs.ErrorTypeCapacity))

	close(scraper.gate)
	svc.Wait()

	_, _, err = svc.StartAnalysis(context.Background(), "bob", 3)
	assert.NoError(t, err)
}

func TestScraperFailure(t *testing.T) {
	scraper := &fakeScraper{err: errs.Upstream(0, nil, "no posts found for @ghost")}
	rec := &fakeRecorder{}
	svc, _ := testService(t, scraper, WithRecorder(rec))

	id, _, err := svc.StartAnalysis(context.Background(), "ghost", 3)
	require.NoError(t, err)
	svc.Wait()

	st, err := svc.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, session.StatusError, st.Status)
	assert.Equal(t, progressScraping, st.Progress)
	assert.Contains(t, st.Error, "no posts found for @ghost")

	require.Len(t, rec.sessions, 1)
	assert.Equal(t, "error", rec.sessions[0].Status)
	assert.Contains(t, rec.sessions[0].Error, "no posts found")
}

func TestScraperReturnsNoPosts(t *testing.T) {
	scraper := &fakeScraper{profile: &models.Profile{Username: "quiet"}}
	rec := &fakeRecorder{}
	svc, _ := testService(t, scraper, WithRecorder(rec))

	id, _, err := svc.StartAnalysis(context.Background(), "quiet", 3)
	require.NoError(t, err)
	svc.Wait()

	st, err := svc.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, session.StatusError, st.Status)
	assert.Equal(t, progressScraping, st.Progress)
	assert.Contains(t, st.Error, "no posts found for @quiet")
	assert.Empty(t, st.Preview)

	_, err = svc.GetReport(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotReady)
	require.Len(t, rec.sessions, 1)
	assert.Equal(t, "error", rec.sessions[0].Status)
}

func TestAnalyzerFailure(t *testing.T) {
	ai := &fakeAnalyzer{err: errs.Upstream(401, errors.New("invalid x-api-key"), "AI analysis failed")}
	svc, _ := testService(t, aliceScraper(), WithAnalyzer(ai))

	id, _, err := svc.StartAnalysis(context.Background(), "alice", 3)
	require.NoError(t, err)
	svc.Wait()

	st, err := svc.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, session.StatusError, st.Status)
	assert.Equal(t, progressAnalyzing, st.Progress)
	assert.Contains(t, st.Error, "AI analysis failed")

	_, err = svc.GetReport(context.Background(), id)
	assert.True(t, errors.Is(err, ErrNotReady))
}

func TestNoAnalyzerUsesFallback(t *testing.T) {
	svc, _ := testService(t, aliceScraper())

	id, _, err := svc.StartAnalysis(context.Background(), "alice", 3)
	require.NoError(t, err)
	svc.Wait()

	r, err := svc.GetReport(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, r.Analysis)
	assert.True(t, r.Analysis.Fallback)
	assert.Nil(t, r.Website)
}

func TestReportServedFromCacheAfterEviction(t *testing.T) {
	reports := cache.NewMemoryCache()
	svc, tracker := testService(t, aliceScraper(), WithCache(reports, time.Hour))

	id, _, err := svc.StartAnalysis(context.Background(), "alice", 3)
	require.NoError(t, err)
	svc.Wait()

	require.NoError(t, tracker.Delete(id))
	_, err = svc.GetStatus(id)
	assert.True(t, errors.Is(err, ErrNotFound))

	r, err := svc.GetReport(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "alice", r.Username)
	assert.Len(t, r.Gallery, 3)
}

func TestShutdownCancelsRunningAnalysis(t *testing.T) {
	scraper := aliceScraper()
	scraper.gate = make(chan struct{})
	tracker := session.NewTracker(time.Hour, session.WithLogger(logger.NewNopLogger()))
	svc := New(tracker, scraper, testProcessor(t), WithLogger(logger.NewNopLogger()))

	id, _, err := svc.StartAnalysis(context.Background(), "alice", 3)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	st, err := svc.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, session.StatusError, st.Status)

	_, _, err = svc.StartAnalysis(context.Background(), "bob", 3)
	assert.True(t, errs.IsType(err, errs.ErrorTypeCapacity))
}
