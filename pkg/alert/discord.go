package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Discord sends digests via Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
	now        func() time.Time
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
		now:        time.Now,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, dg *Digest) error {
	var links []string
	for _, e := range topEntries(dg.Entries, 10) {
		links = append(links, fmt.Sprintf("%d. [%s](%s) by %s, score %.1f", e.Rank, e.Title, e.URL, e.ChannelTitle, e.Score))
	}

	embed := map[string]any{
		"title":       fmt.Sprintf("🔥 %s", dg.Title()),
		"description": fmt.Sprintf("**Candidates:** %d | **Qualified:** %d | **Status:** %s\n\n%s", dg.Candidates, dg.Qualified, dg.Status, strings.Join(links, "\n")),
		"color":       0xFF6600,
		"timestamp":   d.now().UTC().Format(time.RFC3339),
	}

	payload := map[string]any{
		"embeds": []map[string]any{embed},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook status %d", resp.StatusCode)
	}

	return nil
}
