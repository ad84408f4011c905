package apify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"igprofiler/pkg/config"
	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/logger"
	"igprofiler/pkg/models"
	"igprofiler/pkg/ratelimit"
	"igprofiler/pkg/retry"
)

const aliceDataset = `[
  {
    "id": "1", "shortCode": "AAA", "type": "Image", "caption": "beach day",
    "timestamp": "2024-05-01T10:00:00.000Z", "likesCount": 120, "commentsCount": 4,
    "url": "https://www.instagram.com/p/AAA/", "displayUrl": "https://cdn/aaa.jpg",
    "ownerUsername": "alice", "ownerFullName": "Alice A", "ownerId": "42",
    "profilePicUrlHD": "https://cdn/alice_hd.jpg", "profilePicUrl": "https://cdn/alice.jpg",
    "biography": "photographer", "externalUrl": "https://alice.example",
    "followersCount": 1000, "followsCount": 200, "verified": true
  },
  {
    "id": "2", "shortCode": "BBB", "type": "Sidecar", "caption": "trip",
    "likesCount": 80, "commentsCount": 2, "displayUrl": "https://cdn/bbb.jpg",
    "childPosts": [
      {"type": "Image", "displayUrl": "https://cdn/b1.jpg"},
      {"type": "Video", "displayUrl": "https://cdn/b2.jpg", "videoUrl": "https://cdn/b2.mp4"}
    ]
  },
  {
    "id": "3", "shortCode": "CCC", "type": "Video", "caption": "clip",
    "likesCount": -1, "commentsCount": 9, "videoViewCount": 5000,
    "displayUrl": "https://cdn/ccc.jpg", "videoUrl": "https://cdn/ccc.mp4"
  }
]`

func testClient(baseURL string, retries int) *Client {
	return NewClient(config.ApifyConfig{
		Token:      "apify_api_test",
		BaseURL:    baseURL,
		ActorID:    "shu8hvrXbJbY3Eb9W",
		Timeout:    5 * time.Second,
		MaxRetries: retries,
	}, WithLogger(logger.NewNopLogger()), WithBackoff(&retry.ConstantBackoff{Delay: time.Millisecond}))
}

func TestFetchProfilePosts(t *testing.T) {
	var input RunInput
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/acts/shu8hvrXbJbY3Eb9W/run-sync-get-dataset-items", r.URL.Path)
		assert.Equal(t, "Bearer apify_api_test", r.Header.Get("Authorization"))
		assert.Empty(t, r.URL.Query().Get("token"), "token must not travel in the URL")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(aliceDataset))
	}))
	defer server.Close()

	profile, posts, err := testClient(server.URL, 0).FetchProfilePosts(context.Background(), "alice", 3)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://www.instagram.com/alice/"}, input.DirectURLs)
	assert.Equal(t, "posts", input.ResultsType)
	assert.Equal(t, 3, input.ResultsLimit)
	assert.True(t, input.AddParentData)

	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, "Alice A", profile.FullName)
	assert.Equal(t, "https://cdn/alice_hd.jpg", profile.ProfilePicURL)
	assert.Equal(t, "photographer", profile.Bio)
	assert.Equal(t, "https://alice.example", profile.Website)
	assert.Equal(t, 1000, profile.Followers)
	assert.Equal(t, 200, profile.Following)
	assert.True(t, profile.Verified)

	require.Len(t, posts, 3)

	assert.Equal(t, models.PostTypeImage, posts[0].Type)
	assert.Equal(t, []string{"https://cdn/aaa.jpg"}, posts[0].Images)
	assert.True(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC).Equal(posts[0].Timestamp))

	assert.Equal(t, models.PostTypeCarousel, posts[1].Type)
	assert.Equal(t, []string{"https://cdn/b1.jpg", "https://cdn/b2.jpg"}, posts[1].Images)
	assert.Equal(t, []string{"https://cdn/b2.mp4"}, posts[1].Videos)
	assert.Equal(t, "https://www.instagram.com/p/BBB/", posts[1].URL)

	assert.Equal(t, models.PostTypeVideo, posts[2].Type)
	assert.Equal(t, []string{"https://cdn/ccc.jpg"}, posts[2].Images)
	assert.Equal(t, []string{"https://cdn/ccc.mp4"}, posts[2].Videos)
	assert.Equal(t, 5000, posts[2].Views)
	assert.Equal(t, 0, posts[2].Likes, "hidden like counts are reported as zero")
}

func TestFetchProfilePostsTruncatesToLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(aliceDataset))
	}))
	defer server.Close()

	_, posts, err := testClient(server.URL, 0).FetchProfilePosts(context.Background(), "alice", 2)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}

func TestFetchProfilePostsEmptyDataset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	_, _, err := testClient(server.URL, 0).FetchProfilePosts(context.Background(), "ghost", 5)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeUpstream))
	assert.Contains(t, err.Error(), "no posts found for @ghost")
}

func TestFetchProfilePostsActorErrorItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"error":"not_found","errorDescription":"Profile is private"}]`))
	}))
	defer server.Close()

	_, _, err := testClient(server.URL, 0).FetchProfilePosts(context.Background(), "hidden", 5)
	assert.True(t, errs.IsType(err, errs.ErrorTypeUpstream))
	assert.Contains(t, err.Error(), "Profile is private")
}

func TestRunActorRetriesTransientFailures(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(aliceDataset))
	}))
	defer server.Close()

	_, posts, err := testClient(server.URL, 2).FetchProfilePosts(context.Background(), "alice", 3)
	require.NoError(t, err)
	assert.Len(t, posts, 3)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestRunActorRetriesWaitForLimiter(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := testClient(server.URL, 2)
	WithLimiter(ratelimit.NewTokenBucket(1, time.Hour))(c)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, _, err := c.FetchProfilePosts(ctx, "alice", 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestNewClientPacesRunsFromConfig(t *testing.T) {
	c := NewClient(config.ApifyConfig{RunsPerMinute: 30})
	assert.NotNil(t, c.limiter)

	c = NewClient(config.ApifyConfig{})
	assert.Nil(t, c.limiter)
}

func TestRunActorGivesUpAsUpstream(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, _, err := testClient(server.URL, 2).FetchProfilePosts(context.Background(), "alice", 3)
	assert.True(t, errs.IsType(err, errs.ErrorTypeUpstream))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestRunActorAuthFailureNotRetried(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"type":"user-or-token-not-found","message":"User was not found or authentication token is not valid"}}`))
	}))
	defer server.Close()

	_, _, err := testClient(server.URL, 3).FetchProfilePosts(context.Background(), "alice", 3)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeUpstream))
	assert.Contains(t, err.Error(), "authentication token is not valid")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.NotContains(t, errs.Sanitize(err), "apify_api_test")
}

func TestFetchProfilePostsRequiresToken(t *testing.T) {
	c := NewClient(config.ApifyConfig{BaseURL: "http://unused"}, WithLogger(logger.NewNopLogger()))
	_, _, err := c.FetchProfilePosts(context.Background(), "alice", 3)
	assert.True(t, errs.IsType(err, errs.ErrorTypeValidation))
}

func TestToPostUnknownType(t *testing.T) {
	post := ToPost(Item{ShortCode: "X", Type: "Reel", DisplayURL: "https://cdn/x.jpg"})
	assert.Equal(t, models.PostType("Reel"), post.Type)
	assert.Equal(t, []string{"https://cdn/x.jpg"}, post.Images)
}

func TestToProfileFallbacks(t *testing.T) {
	p := ToProfile("bob", []Item{{FullName: "Bob B", OwnerProfilePicURL: "https://cdn/owner.jpg", Bio: "hi", Website: "https://bob.example"}})
	assert.Equal(t, "Bob B", p.FullName)
	assert.Equal(t, "https://cdn/owner.jpg", p.ProfilePicURL)
	assert.Equal(t, "hi", p.Bio)
	assert.Equal(t, "https://bob.example", p.Website)

	empty := ToProfile("nobody", nil)
	assert.Equal(t, "nobody", empty.Username)
}
