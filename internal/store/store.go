package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var (
	// ErrMissingID is returned when an observation carries no external id.
	ErrMissingID = errors.New("missing external id")
	// ErrNotFound is returned when a row or dataset does not exist.
	ErrNotFound = errors.New("not found")
)

// ItemKind distinguishes the two tracked content kinds.
type ItemKind string

const (
	KindPost    ItemKind = "post"
	KindComment ItemKind = "comment"
)

// Snapshot is a point-in-time capture of account-level karma metrics.
// Rows are append-only and identified by (username, observed_at).
type Snapshot struct {
	ID               int64     `db:"id"`
	Username         string    `db:"username"`
	ObservedAt       time.Time `db:"observed_at"`
	PostKarma        int       `db:"post_karma"`
	CommentKarma     int       `db:"comment_karma"`
	TotalKarma       int       `db:"total_karma"`
	AccountCreated   time.Time `db:"account_created"`
	IsGold           bool      `db:"is_gold"`
	IsMod            bool      `db:"is_mod"`
	HasVerifiedEmail bool      `db:"has_verified_email"`
	RawJSON          string    `db:"raw_data"`
}

// Post is the current state of a tracked submission. Score, upvote ratio,
// comment count and last_updated are the only fields that change after the
// first observation.
type Post struct {
	PostID         string    `db:"post_id"`
	Username       string    `db:"username"`
	Subreddit      string    `db:"subreddit"`
	Title          string    `db:"title"`
	Selftext       string    `db:"selftext"`
	URL            string    `db:"url"`
	LocalImagePath string    `db:"local_image_path"`
	Score          int       `db:"score"`
	UpvoteRatio    float64   `db:"upvote_ratio"`
	NumComments    int       `db:"num_comments"`
	CreatedUTC     time.Time `db:"created_utc"`
	FirstSeen      time.Time `db:"first_seen"`
	LastUpdated    time.Time `db:"last_updated"`
	IsSelf         bool      `db:"is_self"`
	Over18         bool      `db:"over_18"`
	Permalink      string    `db:"permalink"`
}

// Comment is the current state of a tracked comment.
type Comment struct {
	CommentID   string    `db:"comment_id"`
	Username    string    `db:"username"`
	Subreddit   string    `db:"subreddit"`
	Body        string    `db:"body"`
	Score       int       `db:"score"`
	CreatedUTC  time.Time `db:"created_utc"`
	FirstSeen   time.Time `db:"first_seen"`
	LastUpdated time.Time `db:"last_updated"`
	ParentID    string    `db:"parent_id"`
	LinkID      string    `db:"link_id"`
	Permalink   string    `db:"permalink"`
}

// ScoreEntry records one observed score for one item. Entries are appended
// only when the score differs from the previous observation.
type ScoreEntry struct {
	ID         int64     `db:"id"`
	ItemKind   ItemKind  `db:"item_kind"`
	ItemID     string    `db:"item_id"`
	Score      int       `db:"score"`
	ObservedAt time.Time `db:"observed_at"`
}

// Store is the persistence interface.
type Store interface {
	Migrate(ctx context.Context) error
	Verify(ctx context.Context) error

	RecordSnapshot(ctx context.Context, snap *Snapshot) error
	HasSnapshot(ctx context.Context, username string, observedAt time.Time) (bool, error)
	AllSnapshots(ctx context.Context) ([]Snapshot, error)

	UpsertPost(ctx context.Context, p *Post, observedAt time.Time) error
	GetPost(ctx context.Context, postID string) (*Post, error)
	InsertPost(ctx context.Context, p *Post) error
	UpdatePostMutable(ctx context.Context, postID string, score int, upvoteRatio float64, numComments int, lastUpdated time.Time) error
	AllPosts(ctx context.Context) ([]Post, error)

	UpsertComment(ctx context.Context, c *Comment, observedAt time.Time) error
	GetComment(ctx context.Context, commentID string) (*Comment, error)
	InsertComment(ctx context.Context, c *Comment) error
	UpdateCommentMutable(ctx context.Context, commentID string, score int, lastUpdated time.Time) error
	AllComments(ctx context.Context) ([]Comment, error)

	AppendScore(ctx context.Context, kind ItemKind, itemID string, score int, observedAt time.Time) error
	HasScoreEntry(ctx context.Context, kind ItemKind, itemID string, observedAt time.Time) (bool, error)
	ScoreHistory(ctx context.Context, kind ItemKind, itemID string) ([]ScoreEntry, error)
	AllScoreEntries(ctx context.Context) ([]ScoreEntry, error)

	AccountOverviews(ctx context.Context) ([]AccountOverview, error)
	LatestSnapshot(ctx context.Context, username string) (*Snapshot, error)
	SnapshotsBetween(ctx context.Context, username string, from, to time.Time) ([]Snapshot, error)
	SnapshotsSince(ctx context.Context, username string, hours int) ([]Snapshot, error)
	PostCountsByDay(ctx context.Context, username string) ([]DayCount, error)
	TopSubreddits(ctx context.Context, username string, limit int) ([]SubredditStat, error)
	ActivityHeatmap(ctx context.Context, username string, kind ItemKind) ([]HeatmapCell, error)
	KarmaDeltas(ctx context.Context, username string, hours int) ([]KarmaDelta, error)
	AccountStats(ctx context.Context, username string) (*AccountStats, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// Open opens a SQLite database. It does not create tables; call Migrate once
// at startup.
func Open(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Migrate applies the schema. Safe to run repeatedly.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Verify checks that every expected table exists. Used by the merge tool as
// a precondition before any write.
func (s *SQLiteStore) Verify(ctx context.Context) error {
	for _, table := range tables {
		var name string
		err := s.db.GetContext(ctx, &name,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("table %s: %w", table, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("verify table %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordSnapshot appends a snapshot row. No dedup check: every call is a new
// point in time. A zero ObservedAt defaults to now.
func (s *SQLiteStore) RecordSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.ObservedAt.IsZero() {
		snap.ObservedAt = time.Now().UTC()
	}
	if snap.RawJSON == "" {
		snap.RawJSON = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_snapshots (username, observed_at, post_karma, comment_karma, total_karma,
			account_created, is_gold, is_mod, has_verified_email, raw_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, snap.Username, snap.ObservedAt, snap.PostKarma, snap.CommentKarma, snap.TotalKarma,
		snap.AccountCreated, snap.IsGold, snap.IsMod, snap.HasVerifiedEmail, snap.RawJSON)
	if err != nil {
		return fmt.Errorf("record snapshot %s: %w", snap.Username, err)
	}
	return nil
}

func (s *SQLiteStore) HasSnapshot(ctx context.Context, username string, observedAt time.Time) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM account_snapshots WHERE username = ? AND observed_at = ?",
		username, observedAt)
	if err != nil {
		return false, fmt.Errorf("check snapshot %s: %w", username, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) AllSnapshots(ctx context.Context) ([]Snapshot, error) {
	var snaps []Snapshot
	if err := s.db.SelectContext(ctx, &snaps, "SELECT * FROM account_snapshots ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snaps, nil
}

// UpsertPost records one observation of a post. A previously unseen post is
// inserted with first_seen = last_updated = observedAt and gets a baseline
// score history entry. A known post has its mutable fields refreshed;
// a history entry is appended only when the score actually changed.
func (s *SQLiteStore) UpsertPost(ctx context.Context, p *Post, observedAt time.Time) error {
	if p.PostID == "" {
		return fmt.Errorf("upsert post: %w", ErrMissingID)
	}

	var current int
	err := s.db.GetContext(ctx, &current, "SELECT score FROM posts WHERE post_id = ?", p.PostID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		p.FirstSeen = observedAt
		p.LastUpdated = observedAt
		if err := s.InsertPost(ctx, p); err != nil {
			return err
		}
		return s.AppendScore(ctx, KindPost, p.PostID, p.Score, observedAt)
	case err != nil:
		return fmt.Errorf("lookup post %s: %w", p.PostID, err)
	}

	// last_updated advances on every ingestion pass; the history entry is
	// tied strictly to a score change.
	if err := s.UpdatePostMutable(ctx, p.PostID, p.Score, p.UpvoteRatio, p.NumComments, observedAt); err != nil {
		return err
	}
	if p.Score != current {
		return s.AppendScore(ctx, KindPost, p.PostID, p.Score, observedAt)
	}
	return nil
}

func (s *SQLiteStore) GetPost(ctx context.Context, postID string) (*Post, error) {
	var p Post
	err := s.db.GetContext(ctx, &p, "SELECT * FROM posts WHERE post_id = ?", postID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", postID, err)
	}
	return &p, nil
}

// InsertPost writes a post row verbatim, including its first_seen and
// last_updated timestamps. The merge tool relies on this to preserve the
// original observation timeline.
func (s *SQLiteStore) InsertPost(ctx context.Context, p *Post) error {
	if p.PostID == "" {
		return fmt.Errorf("insert post: %w", ErrMissingID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (post_id, username, subreddit, title, selftext, url, local_image_path,
			score, upvote_ratio, num_comments, created_utc, first_seen, last_updated,
			is_self, over_18, permalink)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.PostID, p.Username, p.Subreddit, p.Title, p.Selftext, p.URL, p.LocalImagePath,
		p.Score, p.UpvoteRatio, p.NumComments, p.CreatedUTC, p.FirstSeen, p.LastUpdated,
		p.IsSelf, p.Over18, p.Permalink)
	if err != nil {
		return fmt.Errorf("insert post %s: %w", p.PostID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdatePostMutable(ctx context.Context, postID string, score int, upvoteRatio float64, numComments int, lastUpdated time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE posts SET score = ?, upvote_ratio = ?, num_comments = ?, last_updated = ?
		WHERE post_id = ?
	`, score, upvoteRatio, numComments, lastUpdated, postID)
	if err != nil {
		return fmt.Errorf("update post %s: %w", postID, err)
	}
	return nil
}

func (s *SQLiteStore) AllPosts(ctx context.Context) ([]Post, error) {
	var posts []Post
	if err := s.db.SelectContext(ctx, &posts, "SELECT * FROM posts ORDER BY post_id"); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// UpsertComment mirrors UpsertPost for comments.
func (s *SQLiteStore) UpsertComment(ctx context.Context, c *Comment, observedAt time.Time) error {
	if c.CommentID == "" {
		return fmt.Errorf("upsert comment: %w", ErrMissingID)
	}

	var current int
	err := s.db.GetContext(ctx, &current, "SELECT score FROM comments WHERE comment_id = ?", c.CommentID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		c.FirstSeen = observedAt
		c.LastUpdated = observedAt
		if err := s.InsertComment(ctx, c); err != nil {
			return err
		}
		return s.AppendScore(ctx, KindComment, c.CommentID, c.Score, observedAt)
	case err != nil:
		return fmt.Errorf("lookup comment %s: %w", c.CommentID, err)
	}

	if err := s.UpdateCommentMutable(ctx, c.CommentID, c.Score, observedAt); err != nil {
		return err
	}
	if c.Score != current {
		return s.AppendScore(ctx, KindComment, c.CommentID, c.Score, observedAt)
	}
	return nil
}

func (s *SQLiteStore) GetComment(ctx context.Context, commentID string) (*Comment, error) {
	var c Comment
	err := s.db.GetContext(ctx, &c, "SELECT * FROM comments WHERE comment_id = ?", commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get comment %s: %w", commentID, err)
	}
	return &c, nil
}

func (s *SQLiteStore) InsertComment(ctx context.Context, c *Comment) error {
	if c.CommentID == "" {
		return fmt.Errorf("insert comment: %w", ErrMissingID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (comment_id, username, subreddit, body, score, created_utc,
			first_seen, last_updated, parent_id, link_id, permalink)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.CommentID, c.Username, c.Subreddit, c.Body, c.Score, c.CreatedUTC,
		c.FirstSeen, c.LastUpdated, c.ParentID, c.LinkID, c.Permalink)
	if err != nil {
		return fmt.Errorf("insert comment %s: %w", c.CommentID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateCommentMutable(ctx context.Context, commentID string, score int, lastUpdated time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE comments SET score = ?, last_updated = ? WHERE comment_id = ?
	`, score, lastUpdated, commentID)
	if err != nil {
		return fmt.Errorf("update comment %s: %w", commentID, err)
	}
	return nil
}

func (s *SQLiteStore) AllComments(ctx context.Context) ([]Comment, error) {
	var comments []Comment
	if err := s.db.SelectContext(ctx, &comments, "SELECT * FROM comments ORDER BY comment_id"); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

func (s *SQLiteStore) AppendScore(ctx context.Context, kind ItemKind, itemID string, score int, observedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO score_history (item_kind, item_id, score, observed_at)
		VALUES (?, ?, ?, ?)
	`, kind, itemID, score, observedAt)
	if err != nil {
		return fmt.Errorf("append score %s %s: %w", kind, itemID, err)
	}
	return nil
}

func (s *SQLiteStore) HasScoreEntry(ctx context.Context, kind ItemKind, itemID string, observedAt time.Time) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM score_history WHERE item_kind = ? AND item_id = ? AND observed_at = ?",
		kind, itemID, observedAt)
	if err != nil {
		return false, fmt.Errorf("check score entry %s %s: %w", kind, itemID, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) ScoreHistory(ctx context.Context, kind ItemKind, itemID string) ([]ScoreEntry, error) {
	var entries []ScoreEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM score_history WHERE item_kind = ? AND item_id = ? ORDER BY observed_at",
		kind, itemID)
	if err != nil {
		return nil, fmt.Errorf("score history %s %s: %w", kind, itemID, err)
	}
	return entries, nil
}

func (s *SQLiteStore) AllScoreEntries(ctx context.Context) ([]ScoreEntry, error) {
	var entries []ScoreEntry
	if err := s.db.SelectContext(ctx, &entries, "SELECT * FROM score_history ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list score history: %w", err)
	}
	return entries, nil
}

// IsConstraintViolation reports whether err came from a unique-identity
// constraint. The merge tool counts such rows as skipped rather than failing
// the whole run.
func IsConstraintViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint")
}
