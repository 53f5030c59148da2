package merge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redwatchio/redwatch/internal/store"
)

func newDataset(t *testing.T, name string) (*store.SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	s, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s, path
}

func snapshot(username string, observedAt time.Time, karma int) *store.Snapshot {
	return &store.Snapshot{Username: username, ObservedAt: observedAt, TotalKarma: karma}
}

func post(id string, score int, lastUpdated time.Time) *store.Post {
	return &store.Post{
		PostID:      id,
		Username:    "alice",
		Subreddit:   "golang",
		Title:       "t",
		Score:       score,
		CreatedUTC:  time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		FirstSeen:   lastUpdated.Add(-time.Hour),
		LastUpdated: lastUpdated,
	}
}

func comment(id string, score int, lastUpdated time.Time) *store.Comment {
	return &store.Comment{
		CommentID:   id,
		Username:    "alice",
		Body:        "b",
		Score:       score,
		CreatedUTC:  time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		FirstSeen:   lastUpdated.Add(-time.Hour),
		LastUpdated: lastUpdated,
	}
}

func TestMerge_InsertsMissingRows(t *testing.T) {
	src, _ := newDataset(t, "src.db")
	dst, _ := newDataset(t, "dst.db")
	ctx := context.Background()
	t1 := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	require.NoError(t, src.RecordSnapshot(ctx, snapshot("alice", t1, 100)))
	require.NoError(t, src.InsertPost(ctx, post("p1", 10, t1)))
	require.NoError(t, src.InsertComment(ctx, comment("c1", 5, t1)))
	require.NoError(t, src.AppendScore(ctx, store.KindPost, "p1", 10, t1))

	stats, err := Merge(ctx, src, dst)
	require.NoError(t, err)
	assert.Equal(t, TableStats{Added: 1}, stats.Snapshots)
	assert.Equal(t, TableStats{Added: 1}, stats.Posts)
	assert.Equal(t, TableStats{Added: 1}, stats.Comments)
	assert.Equal(t, TableStats{Added: 1}, stats.History)

	// The full source row lands verbatim: the observation timeline is
	// preserved, not reset to merge time.
	got, err := dst.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Score)
	assert.True(t, got.FirstSeen.Equal(t1.Add(-time.Hour)))
	assert.True(t, got.LastUpdated.Equal(t1))
}

func TestMerge_Idempotent(t *testing.T) {
	src, _ := newDataset(t, "src.db")
	dst, _ := newDataset(t, "dst.db")
	ctx := context.Background()
	t1 := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	require.NoError(t, src.RecordSnapshot(ctx, snapshot("alice", t1, 100)))
	require.NoError(t, src.InsertPost(ctx, post("p1", 10, t1)))
	require.NoError(t, src.InsertComment(ctx, comment("c1", 5, t1)))
	require.NoError(t, src.AppendScore(ctx, store.KindPost, "p1", 10, t1))

	_, err := Merge(ctx, src, dst)
	require.NoError(t, err)

	// Second run adds zero rows everywhere.
	stats, err := Merge(ctx, src, dst)
	require.NoError(t, err)
	assert.Equal(t, TableStats{Skipped: 1}, stats.Snapshots)
	assert.Equal(t, TableStats{Skipped: 1}, stats.Posts)
	assert.Equal(t, TableStats{Skipped: 1}, stats.Comments)
	assert.Equal(t, TableStats{Skipped: 1}, stats.History)

	posts, err := dst.AllPosts(ctx)
	require.NoError(t, err)
	assert.Len(t, posts, 1, "still exactly one row for p1")
}

func TestMerge_SnapshotsNeverUpdated(t *testing.T) {
	src, _ := newDataset(t, "src.db")
	dst, _ := newDataset(t, "dst.db")
	ctx := context.Background()
	t1 := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	// Identical identity, different metrics: the collision means the
	// instant was already recorded, so the source row is redundant.
	require.NoError(t, src.RecordSnapshot(ctx, snapshot("alice", t1, 999)))
	require.NoError(t, dst.RecordSnapshot(ctx, snapshot("alice", t1, 100)))

	stats, err := Merge(ctx, src, dst)
	require.NoError(t, err)
	assert.Equal(t, TableStats{Skipped: 1}, stats.Snapshots)

	snaps, err := dst.AllSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 100, snaps[0].TotalKarma, "existing snapshot untouched")
}

func TestMerge_RecencyWinsEitherDirection(t *testing.T) {
	ctx := context.Background()
	older := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	newer := older.Add(2 * time.Hour)

	t.Run("newer source updates target", func(t *testing.T) {
		src, _ := newDataset(t, "src.db")
		dst, _ := newDataset(t, "dst.db")
		require.NoError(t, src.InsertComment(ctx, comment("c1", 5, newer)))
		require.NoError(t, dst.InsertComment(ctx, comment("c1", 3, older)))

		stats, err := Merge(ctx, src, dst)
		require.NoError(t, err)
		assert.Equal(t, TableStats{Updated: 1}, stats.Comments)

		got, err := dst.GetComment(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 5, got.Score)
		assert.True(t, got.LastUpdated.Equal(newer))
	})

	t.Run("older source is skipped", func(t *testing.T) {
		src, _ := newDataset(t, "src.db")
		dst, _ := newDataset(t, "dst.db")
		require.NoError(t, src.InsertComment(ctx, comment("c1", 3, older)))
		require.NoError(t, dst.InsertComment(ctx, comment("c1", 5, newer)))

		stats, err := Merge(ctx, src, dst)
		require.NoError(t, err)
		assert.Equal(t, TableStats{Skipped: 1}, stats.Comments)

		got, err := dst.GetComment(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 5, got.Score, "more recent value wins regardless of role")
	})

	t.Run("equal timestamps skip", func(t *testing.T) {
		src, _ := newDataset(t, "src.db")
		dst, _ := newDataset(t, "dst.db")
		require.NoError(t, src.InsertPost(ctx, post("p1", 9, older)))
		require.NoError(t, dst.InsertPost(ctx, post("p1", 7, older)))

		stats, err := Merge(ctx, src, dst)
		require.NoError(t, err)
		assert.Equal(t, TableStats{Skipped: 1}, stats.Posts)
	})
}

func TestMerge_PostUpdateTouchesOnlyMutableFields(t *testing.T) {
	src, _ := newDataset(t, "src.db")
	dst, _ := newDataset(t, "dst.db")
	ctx := context.Background()
	older := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	sp := post("p1", 42, newer)
	sp.NumComments = 9
	sp.UpvoteRatio = 0.8
	require.NoError(t, src.InsertPost(ctx, sp))

	tp := post("p1", 10, older)
	tp.LocalImagePath = "images/p1.jpg"
	require.NoError(t, dst.InsertPost(ctx, tp))

	_, err := Merge(ctx, src, dst)
	require.NoError(t, err)

	got, err := dst.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 42, got.Score)
	assert.Equal(t, 9, got.NumComments)
	assert.InDelta(t, 0.8, got.UpvoteRatio, 1e-9)
	assert.True(t, got.FirstSeen.Equal(older.Add(-time.Hour)), "first_seen is immutable")
	assert.Equal(t, "images/p1.jpg", got.LocalImagePath, "non-mutable fields untouched")
}

func TestRun_MissingInputs(t *testing.T) {
	_, targetPath := newDataset(t, "target.db")

	_, err := Run(context.Background(), filepath.Join(t.TempDir(), "absent.db"), targetPath, "")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, sourcePath := newDataset(t, "source.db")
	_, err = Run(context.Background(), sourcePath, filepath.Join(t.TempDir(), "absent.db"), "")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_InvalidSchemaAbortsBeforeWrites(t *testing.T) {
	_, targetPath := newDataset(t, "target.db")

	// An empty database file has none of the expected tables.
	badPath := filepath.Join(t.TempDir(), "bad.db")
	require.NoError(t, os.WriteFile(badPath, nil, 0o644))

	_, err := Run(context.Background(), badPath, targetPath, "")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_OutputCopyLeavesTargetUntouched(t *testing.T) {
	src, srcPath := newDataset(t, "src.db")
	dst, dstPath := newDataset(t, "dst.db")
	ctx := context.Background()
	t1 := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	require.NoError(t, src.InsertPost(ctx, post("p1", 10, t1)))
	require.NoError(t, src.Close())
	require.NoError(t, dst.Close())

	outPath := filepath.Join(t.TempDir(), "merged.db")
	stats, err := Run(ctx, srcPath, dstPath, outPath)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Posts.Added)

	// The merged row is in the output, not the original target.
	merged, err := store.Open(outPath)
	require.NoError(t, err)
	defer merged.Close()
	_, err = merged.GetPost(ctx, "p1")
	require.NoError(t, err)

	original, err := store.Open(dstPath)
	require.NoError(t, err)
	defer original.Close()
	_, err = original.GetPost(ctx, "p1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMerge_RoleSwapConverges(t *testing.T) {
	ctx := context.Background()
	older := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	build := func(t *testing.T) (*store.SQLiteStore, *store.SQLiteStore) {
		a, _ := newDataset(t, "a.db")
		b, _ := newDataset(t, "b.db")
		require.NoError(t, a.InsertPost(ctx, post("p1", 10, older)))
		require.NoError(t, a.InsertPost(ctx, post("p2", 5, newer)))
		require.NoError(t, b.InsertPost(ctx, post("p1", 20, newer)))
		require.NoError(t, b.InsertPost(ctx, post("p3", 1, older)))
		return a, b
	}

	a1, b1 := build(t)
	_, err := Merge(ctx, a1, b1)
	require.NoError(t, err)

	a2, b2 := build(t)
	_, err = Merge(ctx, b2, a2)
	require.NoError(t, err)

	intoB, err := b1.AllPosts(ctx)
	require.NoError(t, err)
	intoA, err := a2.AllPosts(ctx)
	require.NoError(t, err)

	require.Len(t, intoB, 3)
	require.Len(t, intoA, 3)
	for i := range intoB {
		assert.Equal(t, intoB[i].PostID, intoA[i].PostID)
		assert.Equal(t, intoB[i].Score, intoA[i].Score, "post %s converges to the same score", intoB[i].PostID)
	}
}
