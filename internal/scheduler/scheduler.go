// Package scheduler drives the periodic monitoring loop: one cycle per
// tracked account at a fixed interval, sequential by construction.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redwatchio/redwatch/internal/images"
	"github.com/redwatchio/redwatch/internal/store"
	"github.com/redwatchio/redwatch/pkg/reddit"
)

// Monitor runs monitoring cycles for a set of tracked accounts.
type Monitor struct {
	store     store.Store
	client    *reddit.Client
	images    *images.Downloader
	usernames []string
	interval  time.Duration
	pause     time.Duration
	limit     int
}

// New creates a Monitor.
func New(s store.Store, client *reddit.Client, dl *images.Downloader, usernames []string, interval, pause time.Duration, limit int) *Monitor {
	if interval == 0 {
		interval = 30 * time.Minute
	}
	if pause == 0 {
		pause = time.Second
	}
	if limit <= 0 {
		limit = 100
	}
	return &Monitor{
		store:     s,
		client:    client,
		images:    dl,
		usernames: usernames,
		interval:  interval,
		pause:     pause,
		limit:     limit,
	}
}

// Run starts the loop. The first pass runs immediately; afterwards one pass
// per tick. A failed cycle is logged and the loop continues. Blocks until
// ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	slog.Info("monitor starting", "accounts", len(m.usernames), "interval", m.interval)

	m.cycleAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.cycleAll(ctx)
		}
	}
}

func (m *Monitor) cycleAll(ctx context.Context) {
	for _, username := range m.usernames {
		if ctx.Err() != nil {
			return
		}
		if err := m.Cycle(ctx, username); err != nil {
			slog.Error("cycle failed", "user", username, "err", err)
		}
	}
}

// Cycle runs one monitoring pass for one account: profile snapshot, then
// posts, then comments, with a courtesy pause between remote calls. Item
// failures are logged and do not abort the rest of the pass.
func (m *Monitor) Cycle(ctx context.Context, username string) error {
	about, raw, err := m.client.About(ctx, username)
	if err != nil {
		return fmt.Errorf("cycle u/%s: %w", username, err)
	}

	observedAt := time.Now().UTC()
	snap := snapshotRow(username, about, raw, observedAt)
	if err := m.store.RecordSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("cycle u/%s: %w", username, err)
	}
	slog.Info("snapshot recorded", "user", username,
		"post_karma", about.LinkKarma, "comment_karma", about.CommentKarma, "total_karma", about.TotalKarma)

	m.sleep(ctx)

	posts, err := m.client.Posts(ctx, username, m.limit)
	if err != nil {
		slog.Warn("posts fetch failed", "user", username, "err", err)
	} else {
		m.ingestPosts(ctx, username, posts)
	}

	m.sleep(ctx)

	comments, err := m.client.Comments(ctx, username, m.limit)
	if err != nil {
		slog.Warn("comments fetch failed", "user", username, "err", err)
	} else {
		m.ingestComments(ctx, username, comments)
	}

	slog.Info("cycle complete", "user", username, "posts", len(posts), "comments", len(comments))
	return nil
}

func (m *Monitor) ingestPosts(ctx context.Context, username string, posts []reddit.PostData) {
	observedAt := time.Now().UTC()
	for i := range posts {
		row := postRow(username, &posts[i])

		// Images are fetched once, when the post is first seen.
		if _, err := m.store.GetPost(ctx, row.PostID); errors.Is(err, store.ErrNotFound) {
			if m.images != nil {
				path, dlErr := m.images.Download(ctx, row.URL, row.PostID)
				if dlErr != nil {
					slog.Warn("image download failed", "post", row.PostID, "err", dlErr)
				}
				row.LocalImagePath = path
				m.sleep(ctx)
			}
		}

		if err := m.store.UpsertPost(ctx, row, observedAt); err != nil {
			slog.Warn("post upsert failed", "post", row.PostID, "err", err)
		}
	}
}

func (m *Monitor) ingestComments(ctx context.Context, username string, comments []reddit.CommentData) {
	observedAt := time.Now().UTC()
	for i := range comments {
		row := commentRow(username, &comments[i])
		if err := m.store.UpsertComment(ctx, row, observedAt); err != nil {
			slog.Warn("comment upsert failed", "comment", row.CommentID, "err", err)
		}
	}
}

// sleep pauses between remote calls as a rate-limiting courtesy.
func (m *Monitor) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pause):
	}
}

func snapshotRow(username string, about *reddit.About, raw json.RawMessage, observedAt time.Time) *store.Snapshot {
	return &store.Snapshot{
		Username:         username,
		ObservedAt:       observedAt,
		PostKarma:        about.LinkKarma,
		CommentKarma:     about.CommentKarma,
		TotalKarma:       about.TotalKarma,
		AccountCreated:   about.Created(),
		IsGold:           about.IsGold,
		IsMod:            about.IsMod,
		HasVerifiedEmail: about.HasVerifiedEmail,
		RawJSON:          string(raw),
	}
}

func postRow(username string, p *reddit.PostData) *store.Post {
	return &store.Post{
		PostID:      p.ID,
		Username:    username,
		Subreddit:   p.Subreddit,
		Title:       p.Title,
		Selftext:    p.Selftext,
		URL:         p.URL,
		Score:       p.Score,
		UpvoteRatio: p.UpvoteRatio,
		NumComments: p.NumComments,
		CreatedUTC:  time.Unix(int64(p.CreatedUTC), 0).UTC(),
		IsSelf:      p.IsSelf,
		Over18:      p.Over18,
		Permalink:   p.Permalink,
	}
}

func commentRow(username string, c *reddit.CommentData) *store.Comment {
	return &store.Comment{
		CommentID:  c.ID,
		Username:   username,
		Subreddit:  c.Subreddit,
		Body:       c.Body,
		Score:      c.Score,
		CreatedUTC: time.Unix(int64(c.CreatedUTC), 0).UTC(),
		ParentID:   c.ParentID,
		LinkID:     c.LinkID,
		Permalink:  c.Permalink,
	}
}
