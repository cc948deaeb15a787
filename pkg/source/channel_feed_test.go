package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const uploadsFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns="http://www.w3.org/2005/Atom">
  <title>Garage Builds</title>
  <entry>
    <id>yt:video:new1</id>
    <yt:videoId>new1</yt:videoId>
    <title>Boat part 2</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=new1"/>
    <published>2026-10-16T12:00:00+00:00</published>
  </entry>
  <entry>
    <id>yt:video:seed</id>
    <yt:videoId>seed</yt:videoId>
    <title>Boat part 1</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=seed"/>
    <published>2026-10-15T12:00:00+00:00</published>
  </entry>
  <entry>
    <id>linkonly</id>
    <title>Link only</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=link1"/>
    <published>2026-10-14T12:00:00+00:00</published>
  </entry>
  <entry>
    <id>yt:video:old</id>
    <yt:videoId>old</yt:videoId>
    <title>Ancient</title>
    <published>2026-01-01T12:00:00+00:00</published>
  </entry>
</feed>`

func TestChannelFeed_Expand(t *testing.T) {
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Query().Get("channel_id"))
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprint(w, uploadsFeed)
	}))
	defer srv.Close()

	f := NewChannelFeed(srv.URL, 7*24*time.Hour, 10)
	f.now = func() time.Time { return time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC) }

	seeds := []Video{
		{ID: "seed", ChannelID: "c1"},
		{ID: "other", ChannelID: "c1"},
	}
	ids, err := f.Expand(context.Background(), seeds)
	require.NoError(t, err)

	assert.Equal(t, []string{"c1"}, requested)
	assert.Equal(t, []string{"new1", "link1"}, ids)
}

func TestChannelFeed_PerSeedLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, uploadsFeed)
	}))
	defer srv.Close()

	f := NewChannelFeed(srv.URL, 365*24*time.Hour, 1)
	f.now = func() time.Time { return time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC) }

	ids, err := f.Expand(context.Background(), []Video{{ID: "x", ChannelID: "c1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"new1"}, ids)
}

func TestChannelFeed_AllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewChannelFeed(srv.URL, 0, 0)
	_, err := f.Expand(context.Background(), []Video{{ID: "x", ChannelID: "c1"}, {ID: "y", ChannelID: "c2"}})
	assert.Error(t, err)
}

func TestSearch_SkipsFailingTerms(t *testing.T) {
	api := newFakeAPI()
	api.search = map[string][]string{"diy": {"a", "b"}}
	s := NewSearch(api, []string{"diy", "missing"}, 0, "US", "en")

	ids, err := s.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestRelated_ExcludesSeed(t *testing.T) {
	api := newFakeAPI()
	api.search = map[string][]string{"built boat": {"seed", "r1"}}
	r := NewRelated(api, 0, "US", 5)

	ids, err := r.Expand(context.Background(), []Video{{ID: "seed", Title: "I built a boat"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids)
}
