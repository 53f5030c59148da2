package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSnapshots(t *testing.T, s *SQLiteStore, username string, base time.Time, karmas ...int) {
	t.Helper()
	for i, karma := range karmas {
		require.NoError(t, s.RecordSnapshot(context.Background(), &Snapshot{
			Username:   username,
			ObservedAt: base.Add(time.Duration(i) * time.Hour),
			PostKarma:  karma / 2,
			TotalKarma: karma,
		}))
	}
}

func TestLatestSnapshot(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	seedSnapshots(t, s, "alice", base, 100, 110, 130)

	snap, err := s.LatestSnapshot(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 130, snap.TotalKarma)
	assert.True(t, snap.ObservedAt.Equal(base.Add(2*time.Hour)))

	_, err = s.LatestSnapshot(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotsBetween_HalfOpenAscending(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	seedSnapshots(t, s, "alice", base, 100, 110, 130, 150)

	// [from, to) excludes the row at exactly `to`.
	snaps, err := s.SnapshotsBetween(context.Background(), "alice", base, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, 100, snaps[0].TotalKarma)
	assert.Equal(t, 110, snaps[1].TotalKarma)
}

func TestSnapshotsSince(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	seedSnapshots(t, s, "alice", now.Add(-50*time.Hour), 100)
	seedSnapshots(t, s, "alice", now.Add(-2*time.Hour), 120, 140)

	snaps, err := s.SnapshotsSince(context.Background(), "alice", 24)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, 120, snaps[0].TotalKarma)
	assert.Equal(t, 140, snaps[1].TotalKarma)
}

func TestAccountOverviews(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	seedSnapshots(t, s, "alice", base, 100, 150)
	seedSnapshots(t, s, "bob", base, 300)

	require.NoError(t, s.UpsertPost(ctx, testPost("p1", 10), base))
	require.NoError(t, s.UpsertPost(ctx, testPost("p2", 20), base))
	require.NoError(t, s.UpsertComment(ctx, testComment("c1", 5), base))

	overviews, err := s.AccountOverviews(ctx)
	require.NoError(t, err)
	require.Len(t, overviews, 2)

	// Ordered by total karma descending.
	assert.Equal(t, "bob", overviews[0].Username)
	assert.Equal(t, 300, overviews[0].TotalKarma)
	assert.Equal(t, 0, overviews[0].PostCount)

	assert.Equal(t, "alice", overviews[1].Username)
	assert.Equal(t, 150, overviews[1].TotalKarma, "latest snapshot wins")
	assert.Equal(t, 2, overviews[1].PostCount)
	assert.Equal(t, 1, overviews[1].CommentCount)
}

func TestPostCountsByDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	observed := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	day1 := testPost("p1", 1)
	day1.CreatedUTC = time.Date(2026, 8, 10, 8, 0, 0, 0, time.UTC)
	day1b := testPost("p2", 1)
	day1b.CreatedUTC = time.Date(2026, 8, 10, 22, 0, 0, 0, time.UTC)
	day2 := testPost("p3", 1)
	day2.CreatedUTC = time.Date(2026, 8, 12, 8, 0, 0, 0, time.UTC)

	for _, p := range []*Post{day1, day1b, day2} {
		require.NoError(t, s.UpsertPost(ctx, p, observed))
	}

	counts, err := s.PostCountsByDay(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, "2026-08-10", counts[0].Day)
	assert.Equal(t, 2, counts[0].Count)
	assert.Equal(t, "2026-08-12", counts[1].Day)
	assert.Equal(t, 1, counts[1].Count)
}

func TestTopSubreddits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	observed := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	for i, sub := range []string{"golang", "golang", "sqlite"} {
		p := testPost(string(rune('a'+i)), 10*(i+1))
		p.Subreddit = sub
		require.NoError(t, s.UpsertPost(ctx, p, observed))
	}

	stats, err := s.TopSubreddits(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "golang", stats[0].Subreddit)
	assert.Equal(t, 2, stats[0].Count)
	assert.Equal(t, 30, stats[0].TotalScore)
	assert.Equal(t, "sqlite", stats[1].Subreddit)
	assert.Equal(t, 30, stats[1].TotalScore)
}

func TestActivityHeatmap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	observed := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	// 2026-08-10 is a Monday: strftime('%w') == 1.
	p1 := testPost("p1", 1)
	p1.CreatedUTC = time.Date(2026, 8, 10, 14, 5, 0, 0, time.UTC)
	p2 := testPost("p2", 1)
	p2.CreatedUTC = time.Date(2026, 8, 10, 14, 45, 0, 0, time.UTC)
	require.NoError(t, s.UpsertPost(ctx, p1, observed))
	require.NoError(t, s.UpsertPost(ctx, p2, observed))

	cells, err := s.ActivityHeatmap(ctx, "alice", KindPost)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, 1, cells[0].Weekday)
	assert.Equal(t, 14, cells[0].Hour)
	assert.Equal(t, 2, cells[0].Count)

	empty, err := s.ActivityHeatmap(ctx, "alice", KindComment)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestKarmaDeltas(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	seedSnapshots(t, s, "alice", now.Add(-3*time.Hour), 100, 110, 105)

	deltas, err := s.KarmaDeltas(context.Background(), "alice", 24)
	require.NoError(t, err)
	require.Len(t, deltas, 3)
	assert.Equal(t, 0, deltas[0].Change, "first snapshot in the window has no predecessor")
	assert.Equal(t, 10, deltas[1].Change)
	assert.Equal(t, -5, deltas[2].Change)
}

func TestAccountStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seedSnapshots(t, s, "alice", now.Add(-2*time.Hour), 100, 150)

	withImage := testPost("p1", 10)
	withImage.LocalImagePath = "images/p1.jpg"
	require.NoError(t, s.UpsertPost(ctx, withImage, now))
	require.NoError(t, s.UpsertPost(ctx, testPost("p2", 5), now))
	require.NoError(t, s.UpsertComment(ctx, testComment("c1", 2), now))

	stats, err := s.AccountStats(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, stats.Latest)
	assert.Equal(t, 150, stats.Latest.TotalKarma)
	assert.Equal(t, 2, stats.PostCount)
	assert.Equal(t, 1, stats.CommentCount)
	assert.Equal(t, 2, stats.SnapshotCount)
	assert.Equal(t, 1, stats.ImageCount)
	assert.Equal(t, 50, stats.KarmaChange24h)
}

func TestAccountStats_UnknownUser(t *testing.T) {
	s := newTestStore(t)
	stats, err := s.AccountStats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, stats.Latest)
	assert.Zero(t, stats.PostCount)
}
