package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AccountOverview is the dashboard card row: latest karma figures joined
// with tracked item counts.
type AccountOverview struct {
	Username     string    `db:"username" json:"username"`
	LastUpdated  time.Time `db:"last_updated" json:"last_updated"`
	PostKarma    int       `db:"post_karma" json:"post_karma"`
	CommentKarma int       `db:"comment_karma" json:"comment_karma"`
	TotalKarma   int       `db:"total_karma" json:"total_karma"`
	PostCount    int       `db:"post_count" json:"post_count"`
	CommentCount int       `db:"comment_count" json:"comment_count"`
}

// DayCount is a calendar-day bucket.
type DayCount struct {
	Day   string `db:"day"`
	Count int    `db:"count"`
}

// SubredditStat aggregates posts per subreddit.
type SubredditStat struct {
	Subreddit  string `db:"subreddit"`
	Count      int    `db:"count"`
	TotalScore int    `db:"total_score"`
}

// HeatmapCell is a (weekday, hour) activity bucket. Weekday follows
// strftime('%w'): 0 is Sunday.
type HeatmapCell struct {
	Weekday int `db:"weekday" json:"weekday"`
	Hour    int `db:"hour" json:"hour"`
	Count   int `db:"count" json:"count"`
}

// KarmaDelta is one snapshot's total karma and its change from the
// immediately preceding snapshot in the window.
type KarmaDelta struct {
	ObservedAt time.Time `db:"observed_at"`
	TotalKarma int       `db:"total_karma"`
	Change     int       `db:"change"`
}

// AccountStats is the summary shown by the stats command.
type AccountStats struct {
	Latest         *Snapshot
	PostCount      int
	CommentCount   int
	SnapshotCount  int
	ImageCount     int
	KarmaChange24h int
}

func (s *SQLiteStore) AccountOverviews(ctx context.Context) ([]AccountOverview, error) {
	var rows []AccountOverview
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.username,
		       a.observed_at AS last_updated,
		       a.post_karma, a.comment_karma, a.total_karma,
		       (SELECT COUNT(*) FROM posts p WHERE p.username = a.username) AS post_count,
		       (SELECT COUNT(*) FROM comments c WHERE c.username = a.username) AS comment_count
		FROM account_snapshots a
		JOIN (
			SELECT username, MAX(observed_at) AS latest
			FROM account_snapshots GROUP BY username
		) m ON a.username = m.username AND a.observed_at = m.latest
		ORDER BY a.total_karma DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("account overviews: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context, username string) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.GetContext(ctx, &snap, `
		SELECT * FROM account_snapshots WHERE username = ?
		ORDER BY observed_at DESC LIMIT 1
	`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot %s: %w", username, err)
	}
	return &snap, nil
}

// SnapshotsBetween returns snapshots with from <= observed_at < to,
// ascending.
func (s *SQLiteStore) SnapshotsBetween(ctx context.Context, username string, from, to time.Time) ([]Snapshot, error) {
	var snaps []Snapshot
	err := s.db.SelectContext(ctx, &snaps, `
		SELECT * FROM account_snapshots
		WHERE username = ? AND observed_at >= ? AND observed_at < ?
		ORDER BY observed_at
	`, username, from, to)
	if err != nil {
		return nil, fmt.Errorf("snapshots between %s: %w", username, err)
	}
	return snaps, nil
}

// SnapshotsSince returns snapshots within the trailing window, ascending.
func (s *SQLiteStore) SnapshotsSince(ctx context.Context, username string, hours int) ([]Snapshot, error) {
	var snaps []Snapshot
	err := s.db.SelectContext(ctx, &snaps, `
		SELECT * FROM account_snapshots
		WHERE username = ? AND observed_at >= datetime('now', ?)
		ORDER BY observed_at
	`, username, fmt.Sprintf("-%d hours", hours))
	if err != nil {
		return nil, fmt.Errorf("snapshots since %s: %w", username, err)
	}
	return snaps, nil
}

func (s *SQLiteStore) PostCountsByDay(ctx context.Context, username string) ([]DayCount, error) {
	var rows []DayCount
	err := s.db.SelectContext(ctx, &rows, `
		SELECT DATE(created_utc) AS day, COUNT(*) AS count
		FROM posts WHERE username = ?
		GROUP BY DATE(created_utc)
		ORDER BY day
	`, username)
	if err != nil {
		return nil, fmt.Errorf("post counts by day %s: %w", username, err)
	}
	return rows, nil
}

func (s *SQLiteStore) TopSubreddits(ctx context.Context, username string, limit int) ([]SubredditStat, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []SubredditStat
	err := s.db.SelectContext(ctx, &rows, `
		SELECT subreddit, COUNT(*) AS count, COALESCE(SUM(score), 0) AS total_score
		FROM posts WHERE username = ?
		GROUP BY subreddit
		ORDER BY count DESC
		LIMIT ?
	`, username, limit)
	if err != nil {
		return nil, fmt.Errorf("top subreddits %s: %w", username, err)
	}
	return rows, nil
}

func (s *SQLiteStore) ActivityHeatmap(ctx context.Context, username string, kind ItemKind) ([]HeatmapCell, error) {
	table := "posts"
	if kind == KindComment {
		table = "comments"
	}
	var cells []HeatmapCell
	err := s.db.SelectContext(ctx, &cells, fmt.Sprintf(`
		SELECT CAST(strftime('%%w', created_utc) AS INTEGER) AS weekday,
		       CAST(strftime('%%H', created_utc) AS INTEGER) AS hour,
		       COUNT(*) AS count
		FROM %s WHERE username = ?
		GROUP BY weekday, hour
	`, table), username)
	if err != nil {
		return nil, fmt.Errorf("activity heatmap %s %s: %w", kind, username, err)
	}
	return cells, nil
}

func (s *SQLiteStore) KarmaDeltas(ctx context.Context, username string, hours int) ([]KarmaDelta, error) {
	var rows []KarmaDelta
	err := s.db.SelectContext(ctx, &rows, `
		SELECT observed_at, total_karma,
		       COALESCE(total_karma - LAG(total_karma) OVER (ORDER BY observed_at), 0) AS change
		FROM account_snapshots
		WHERE username = ? AND observed_at >= datetime('now', ?)
		ORDER BY observed_at
	`, username, fmt.Sprintf("-%d hours", hours))
	if err != nil {
		return nil, fmt.Errorf("karma deltas %s: %w", username, err)
	}
	return rows, nil
}

func (s *SQLiteStore) AccountStats(ctx context.Context, username string) (*AccountStats, error) {
	latest, err := s.LatestSnapshot(ctx, username)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	stats := &AccountStats{Latest: latest}

	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM posts WHERE username = ?", &stats.PostCount},
		{"SELECT COUNT(*) FROM comments WHERE username = ?", &stats.CommentCount},
		{"SELECT COUNT(*) FROM account_snapshots WHERE username = ?", &stats.SnapshotCount},
		{"SELECT COUNT(*) FROM posts WHERE username = ? AND local_image_path != ''", &stats.ImageCount},
	}
	for _, c := range counts {
		if err := s.db.GetContext(ctx, c.dst, c.query, username); err != nil {
			return nil, fmt.Errorf("account stats %s: %w", username, err)
		}
	}

	if latest != nil {
		var dayAgo int
		err := s.db.GetContext(ctx, &dayAgo, `
			SELECT total_karma FROM account_snapshots
			WHERE username = ? AND observed_at >= datetime('now', '-24 hours')
			ORDER BY observed_at LIMIT 1
		`, username)
		if err == nil {
			stats.KarmaChange24h = latest.TotalKarma - dayAgo
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("karma change %s: %w", username, err)
		}
	}
	return stats, nil
}
