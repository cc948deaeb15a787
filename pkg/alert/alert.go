package alert

import (
	"context"
	"errors"
	"fmt"
)

// Entry is one ranked video in a digest.
type Entry struct {
	Rank         int      `json:"rank"`
	VideoID      string   `json:"video_id"`
	Title        string   `json:"title"`
	ChannelTitle string   `json:"channel_title"`
	URL          string   `json:"url"`
	Views        int64    `json:"views"`
	Score        float64  `json:"score"`
	Reasons      []string `json:"reasons"`
}

// Digest summarizes one pipeline run for alert destinations.
type Digest struct {
	Day        string  `json:"date"`
	RunID      string  `json:"run_id"`
	Status     string  `json:"status"`
	Candidates int     `json:"candidates"`
	Qualified  int     `json:"qualified"`
	Entries    []Entry `json:"entries"`
}

// Title is the headline shared by the chat notifiers.
func (d *Digest) Title() string {
	return fmt.Sprintf("Hot list %s: %d breakout videos", d.Day, d.Qualified)
}

// Notifier delivers digests to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, d *Digest) error
}

// Manager broadcasts digests to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Broadcast sends a digest to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, d *Digest) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func topEntries(entries []Entry, n int) []Entry {
	if len(entries) > n {
		return entries[:n]
	}
	return entries
}
