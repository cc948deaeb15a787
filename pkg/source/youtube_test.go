package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const videosPayload = `{
  "items": [
    {
      "id": "v1",
      "snippet": {
        "channelId": "c1",
        "channelTitle": "Garage Builds",
        "title": "I built a boat",
        "publishedAt": "2026-10-17T10:00:00Z",
        "categoryId": "22",
        "liveBroadcastContent": "none",
        "thumbnails": {"default": {"url": "https://i.ytimg.com/d.jpg"}, "high": {"url": "https://i.ytimg.com/h.jpg"}}
      },
      "statistics": {"viewCount": "500000", "likeCount": "10000", "commentCount": "2500"},
      "contentDetails": {"duration": "PT12M30S"}
    },
    {
      "id": "v2",
      "snippet": {"channelId": "c2", "title": "Live now", "liveBroadcastContent": "live"},
      "statistics": {"viewCount": "10"},
      "contentDetails": {"duration": "P0D"}
    }
  ]
}`

func newYouTubeServer(t *testing.T, handler http.HandlerFunc) *YouTube {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	yt, err := NewYouTube(context.Background(), "test-key", srv.URL+"/")
	require.NoError(t, err)
	return yt
}

func TestNewYouTube_RequiresKey(t *testing.T) {
	_, err := NewYouTube(context.Background(), "", "")
	assert.Error(t, err)
}

func TestYouTube_Videos(t *testing.T) {
	yt := newYouTubeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/videos"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, videosPayload)
	})

	videos, err := yt.Videos(context.Background(), []string{"v1", "v2"})
	require.NoError(t, err)
	require.Len(t, videos, 2)

	v := videos[0]
	assert.Equal(t, "v1", v.ID)
	assert.Equal(t, "c1", v.ChannelID)
	assert.Equal(t, "Garage Builds", v.ChannelTitle)
	assert.Equal(t, int64(500000), v.Views)
	assert.Equal(t, int64(10000), v.Likes)
	assert.Equal(t, int64(2500), v.Comments)
	assert.Equal(t, 750, v.DurationSeconds)
	assert.Equal(t, "https://i.ytimg.com/h.jpg", v.Thumbnail)
	assert.Equal(t, time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC), v.PublishedAt)
	assert.False(t, v.IsLive())

	assert.True(t, videos[1].IsLive())
	assert.Zero(t, videos[1].Likes)
}

func TestYouTube_VideosRejectsOversizedBatch(t *testing.T) {
	yt := newYouTubeServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	ids := make([]string, MaxBatch+1)
	_, err := yt.Videos(context.Background(), ids)
	assert.Error(t, err)
}

func TestYouTube_MostPopularPages(t *testing.T) {
	var calls atomic.Int32
	yt := newYouTubeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "mostPopular", r.URL.Query().Get("chart"))
		assert.Equal(t, "US", r.URL.Query().Get("regionCode"))
		w.Header().Set("Content-Type", "application/json")
		switch calls.Add(1) {
		case 1:
			assert.Empty(t, r.URL.Query().Get("pageToken"))
			fmt.Fprint(w, `{"items":[{"id":"a"},{"id":"b"}],"nextPageToken":"p2"}`)
		case 2:
			assert.Equal(t, "p2", r.URL.Query().Get("pageToken"))
			fmt.Fprint(w, `{"items":[{"id":"c"}]}`)
		default:
			t.Error("unexpected extra page")
		}
	})

	ids, err := yt.MostPopular(context.Background(), "US", 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, int32(2), calls.Load())
}

func TestYouTube_MostPopularKeepsEarlierPages(t *testing.T) {
	var calls atomic.Int32
	yt := newYouTubeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) > 1 {
			http.Error(w, `{"error":{"code":403,"message":"quota"}}`, http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[{"id":"a"}],"nextPageToken":"p2"}`)
	})

	ids, err := yt.MostPopular(context.Background(), "US", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestYouTube_Search(t *testing.T) {
	yt := newYouTubeServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.True(t, strings.HasSuffix(r.URL.Path, "/search"))
		assert.Equal(t, "tiny house", q.Get("q"))
		assert.Equal(t, "video", q.Get("type"))
		assert.Equal(t, "viewCount", q.Get("order"))
		assert.Equal(t, "2026-10-11T00:00:00Z", q.Get("publishedAfter"))
		assert.Equal(t, "en", q.Get("relevanceLanguage"))
		assert.Equal(t, "10", q.Get("maxResults"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[{"id":{"kind":"youtube#video","videoId":"s1"}},{"id":{"kind":"youtube#channel"}}]}`)
	})

	ids, err := yt.Search(context.Background(), SearchQuery{
		Term:           "tiny house",
		PublishedAfter: time.Date(2026, 10, 11, 0, 0, 0, 0, time.UTC),
		Region:         "US",
		Language:       "en",
		MaxResults:     10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}

func TestYouTube_Channels(t *testing.T) {
	yt := newYouTubeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/channels"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[{"id":"c1","snippet":{"title":"Garage Builds"},"statistics":{"subscriberCount":"70000","videoCount":"120","viewCount":"5500000"}}]}`)
	})

	channels, err := yt.Channels(context.Background(), []string{"c1"})
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, ChannelStats{ID: "c1", Title: "Garage Builds", Subscribers: 70000, Videos: 120, Views: 5500000}, channels[0])
}

func TestYouTube_ErrorStatus(t *testing.T) {
	yt := newYouTubeServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":500,"message":"backend"}}`, http.StatusInternalServerError)
	})
	_, err := yt.Channels(context.Background(), []string{"c1"})
	assert.Error(t, err)
}
