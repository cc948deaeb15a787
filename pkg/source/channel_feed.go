package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"
)

// DefaultFeedBaseURL serves the uploads Atom feed of a channel.
const DefaultFeedBaseURL = "https://www.youtube.com/feeds/videos.xml"

// ChannelFeed expands seed videos with the recent uploads of their channels,
// read from the public uploads feed.
type ChannelFeed struct {
	client  *http.Client
	parser  *gofeed.Parser
	baseURL string
	window  time.Duration
	perSeed int
	now     func() time.Time
}

// NewChannelFeed creates the channel-feed expansion.
func NewChannelFeed(baseURL string, window time.Duration, perSeed int) *ChannelFeed {
	if baseURL == "" {
		baseURL = DefaultFeedBaseURL
	}
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	if perSeed <= 0 {
		perSeed = 10
	}
	return &ChannelFeed{
		client:  &http.Client{Timeout: 30 * time.Second},
		parser:  gofeed.NewParser(),
		baseURL: baseURL,
		window:  window,
		perSeed: perSeed,
		now:     time.Now,
	}
}

func (f *ChannelFeed) Name() string { return "channel_feed" }

func (f *ChannelFeed) Expand(ctx context.Context, seeds []Video) ([]string, error) {
	seen := make(map[string]bool)
	var (
		ids  []string
		errs []error
	)
	for _, seed := range seeds {
		if seed.ChannelID == "" || seen[seed.ChannelID] {
			continue
		}
		seen[seed.ChannelID] = true

		found, err := f.channelUploads(ctx, seed.ChannelID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, id := range found {
			if id != seed.ID {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return ids, nil
}

func (f *ChannelFeed) channelUploads(ctx context.Context, channelID string) ([]string, error) {
	u := f.baseURL + "?channel_id=" + url.QueryEscape(channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request %s: %w", channelID, err)
	}
	req.Header.Set("User-Agent", "hotlist/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", channelID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s status %d", channelID, resp.StatusCode)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", channelID, err)
	}

	cutoff := f.now().Add(-f.window)
	var ids []string
	for _, item := range feed.Items {
		if item.PublishedParsed != nil && item.PublishedParsed.Before(cutoff) {
			continue
		}
		id := feedVideoID(item)
		if id == "" {
			continue
		}
		ids = append(ids, id)
		if len(ids) >= f.perSeed {
			break
		}
	}
	return ids, nil
}

// feedVideoID reads the yt:videoId extension, falling back to the watch link.
func feedVideoID(item *gofeed.Item) string {
	if yt, ok := item.Extensions["yt"]; ok {
		if vals := yt["videoId"]; len(vals) > 0 && vals[0].Value != "" {
			return vals[0].Value
		}
	}
	if item.Link == "" {
		return ""
	}
	u, err := url.Parse(item.Link)
	if err != nil {
		return ""
	}
	return u.Query().Get("v")
}
