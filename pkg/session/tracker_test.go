package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/logger"
	"igprofiler/pkg/models"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTracker(ttl time.Duration) (*Tracker, *clock) {
	c := &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewTracker(ttl, WithClock(c.Now), WithLogger(logger.NewNopLogger())), c
}

func TestCreate(t *testing.T) {
	tr, _ := newTracker(time.Hour)

	s, err := tr.Create("alice_1")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, s.Status)
	assert.Equal(t, 0, s.Progress)

	_, err = tr.Create("alice_1")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = tr.Create("")
	assert.True(t, errs.IsType(err, errs.ErrorTypeValidation))
}

func TestGetUnknown(t *testing.T) {
	tr, _ := newTracker(time.Hour)
	_, err := tr.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, errs.IsType(err, errs.ErrorTypeNotFound))
}

func TestUpdateMovesForward(t *testing.T) {
	tr, _ := newTracker(time.Hour)
	_, err := tr.Create("s")
	require.NoError(t, err)

	steps := []Update{
		{Status: StatusScraping, Progress: 10, Message: "Scraping Instagram profile..."},
		{Progress: 20, Message: "Scraped 3 posts"},
		{Status: StatusProcessingMedia, Progress: 20},
		{Progress: 40},
		{Status: StatusAnalyzing, Progress: 70, Message: "Running AI analysis..."},
	}
	for _, u := range steps {
		_, err := tr.Update("s", u)
		require.NoError(t, err)
	}

	s, err := tr.Get("s")
	require.NoError(t, err)
	assert.Equal(t, StatusAnalyzing, s.Status)
	assert.Equal(t, 70, s.Progress)
	assert.Equal(t, "Running AI analysis...", s.Message)
}

func TestUpdateRejectsRegression(t *testing.T) {
	tr, _ := newTracker(time.Hour)
	tr.Create("s")
	_, err := tr.Update("s", Update{Status: StatusProcessingMedia, Progress: 40})
	require.NoError(t, err)

	_, err = tr.Update("s", Update{Progress: 30})
	assert.ErrorIs(t, err, ErrConflict, "backward progress")

	_, err = tr.Update("s", Update{Status: StatusScraping, Progress: 50})
	assert.ErrorIs(t, err, ErrConflict, "phase regression")

	_, err = tr.Update("s", Update{Status: StatusCompleted, Progress: 100})
	assert.True(t, errs.IsType(err, errs.ErrorTypeValidation))

	_, err = tr.Update("s", Update{Progress: 101})
	assert.True(t, errs.IsType(err, errs.ErrorTypeValidation))

	_, err = tr.Update("s", Update{Status: "paused", Progress: 50})
	assert.True(t, errs.IsType(err, errs.ErrorTypeValidation))

	s, _ := tr.Get("s")
	assert.Equal(t, 40, s.Progress)
	assert.Equal(t, StatusProcessingMedia, s.Status)
}

func TestFinalizeCompleted(t *testing.T) {
	tr, c := newTracker(time.Hour)
	tr.Create("s")
	tr.Update("s", Update{Status: StatusAnalyzing, Progress: 70})

	c.Advance(time.Minute)
	s, err := tr.Finalize("s", "report", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, s.Status)
	assert.Equal(t, 100, s.Progress)
	assert.Equal(t, "report", s.Result)
	assert.Equal(t, c.Now(), s.FinishedAt)

	_, err = tr.Finalize("s", nil, errors.New("late failure"))
	assert.ErrorIs(t, err, ErrConflict)

	_, err = tr.Update("s", Update{Progress: 100})
	assert.ErrorIs(t, err, ErrConflict)

	s, _ = tr.Get("s")
	assert.Equal(t, StatusCompleted, s.Status)
	assert.Empty(t, s.Error)
}

func TestFinalizeErrorFreezesProgress(t *testing.T) {
	tr, _ := newTracker(time.Hour)
	tr.Create("s")
	tr.Update("s", Update{Status: StatusScraping, Progress: 10})

	upstream := errs.Upstream(401, errors.New("GET https://api.apify.com/v2/x?token=apify_api_SECRET"), "scraping service failed")
	s, err := tr.Finalize("s", nil, upstream)
	require.NoError(t, err)
	assert.Equal(t, StatusError, s.Status)
	assert.Equal(t, 10, s.Progress)
	assert.NotContains(t, s.Error, "SECRET")
	assert.Contains(t, s.Message, "scraping service failed")

	_, err = tr.Finalize("s", "report", nil)
	assert.ErrorIs(t, err, ErrConflict)
	s, _ = tr.Get("s")
	assert.Equal(t, StatusError, s.Status)
	assert.Nil(t, s.Result)
}

func TestGetReturnsCopy(t *testing.T) {
	tr, _ := newTracker(time.Hour)
	tr.Create("s")
	preview := []models.PostPreview{{URL: "u", Images: []string{"a"}, Type: models.PostTypeImage}}
	tr.Update("s", Update{Status: StatusScraping, Progress: 20, Preview: preview})

	s, _ := tr.Get("s")
	s.Preview[0].Images[0] = "mutated"
	s.Preview[0].URL = "mutated"

	again, _ := tr.Get("s")
	assert.Equal(t, "u", again.Preview[0].URL)
	assert.Equal(t, "a", again.Preview[0].Images[0])
}

func TestConcurrentPollersSeeNonDecreasingProgress(t *testing.T) {
	tr, _ := newTracker(time.Hour)
	tr.Create("s")

	done := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := -1
			for {
				s, err := tr.Get("s")
				if err != nil {
					t.Errorf("get: %v", err)
					return
				}
				if s.Progress < last {
					t.Errorf("progress went from %d to %d", last, s.Progress)
					return
				}
				// Status and progress come from the same write.
				if s.Progress >= 60 && s.Status == StatusQueued {
					t.Errorf("torn read: %d with status %s", s.Progress, s.Status)
				}
				last = s.Progress
				select {
				case <-done:
					return
				default:
				}
			}
		}()
	}

	var writers sync.WaitGroup
	var mu sync.Mutex
	next := 0
	for w := 0; w < 4; w++ {
		writers.Add(1)
		go func() {
			defer writers.Done()
			for i := 0; i < 50; i++ {
				mu.Lock()
				next++
				p := next * 99 / 200
				mu.Unlock()
				// Concurrent writers may race; losers get a conflict, never a regression.
				_, _ = tr.Update("s", Update{Status: StatusProcessingMedia, Progress: p})
			}
		}()
	}
	writers.Wait()
	close(done)
	wg.Wait()
}

func TestSubscribe(t *testing.T) {
	tr, _ := newTracker(time.Hour)
	tr.Create("s")

	ch, cancel, err := tr.Subscribe("s")
	require.NoError(t, err)
	defer cancel()

	first := <-ch
	assert.Equal(t, StatusQueued, first.Status)

	tr.Update("s", Update{Status: StatusScraping, Progress: 10})
	tr.Update("s", Update{Progress: 20})

	// only the latest snapshot is buffered
	latest := <-ch
	assert.Equal(t, 20, latest.Progress)

	tr.Finalize("s", nil, nil)
	final, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, final.Status)

	_, ok = <-ch
	assert.False(t, ok, "channel closed after terminal snapshot")
}

func TestSubscribeTerminalAndCancel(t *testing.T) {
	tr, _ := newTracker(time.Hour)
	tr.Create("done")
	tr.Finalize("done", nil, nil)

	ch, cancel, err := tr.Subscribe("done")
	require.NoError(t, err)
	cancel()
	s := <-ch
	assert.Equal(t, StatusCompleted, s.Status)
	_, ok := <-ch
	assert.False(t, ok)

	tr.Create("live")
	ch, cancel, err = tr.Subscribe("live")
	require.NoError(t, err)
	<-ch
	cancel()
	cancel()
	_, ok = <-ch
	assert.False(t, ok)

	// updates after unsubscribe do not block or panic
	_, err = tr.Update("live", Update{Status: StatusScraping, Progress: 10})
	assert.NoError(t, err)

	_, _, err = tr.Subscribe("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweep(t *testing.T) {
	tr, c := newTracker(time.Hour)
	for i := 0; i < 3; i++ {
		tr.Create(fmt.Sprintf("s%d", i))
	}
	tr.Finalize("s0", nil, nil)
	tr.Finalize("s1", nil, errors.New("boom"))

	c.Advance(30 * time.Minute)
	assert.Equal(t, 0, tr.Sweep(c.Now()))

	c.Advance(31 * time.Minute)
	tr.SweepNow()
	assert.Equal(t, 1, tr.Len())

	_, err := tr.Get("s2")
	assert.NoError(t, err, "active sessions are never evicted")
	_, err = tr.Get("s0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweepDisabled(t *testing.T) {
	tr, c := newTracker(0)
	tr.Create("s")
	tr.Finalize("s", nil, nil)
	c.Advance(24 * time.Hour)
	assert.Equal(t, 0, tr.Sweep(c.Now()))
}

func TestDelete(t *testing.T) {
	tr, _ := newTracker(time.Hour)
	tr.Create("s")
	ch, _, err := tr.Subscribe("s")
	require.NoError(t, err)
	<-ch

	require.NoError(t, tr.Delete("s"))
	_, ok := <-ch
	assert.False(t, ok)
	assert.ErrorIs(t, tr.Delete("s"), ErrNotFound)
	assert.Empty(t, tr.List())
}
