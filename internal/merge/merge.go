// Package merge reconciles two independently collected tracker datasets into
// one. Immutable observations (snapshots, score history) are inserted when
// their identity is new and skipped otherwise; mutable item state follows a
// last-writer-wins rule on last_updated, regardless of which dataset is the
// source.
package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/redwatchio/redwatch/internal/store"
)

// TableStats counts merge outcomes for one table.
type TableStats struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// Stats summarizes a whole merge run.
type Stats struct {
	Snapshots TableStats `json:"account_snapshots"`
	Posts     TableStats `json:"posts"`
	Comments  TableStats `json:"comments"`
	History   TableStats `json:"score_history"`
}

// Run merges the dataset at sourcePath into the dataset at targetPath. When
// outputPath is non-empty the target file is copied there first and the merge
// writes into the copy, leaving the original target untouched. Both inputs
// must exist and contain the expected tables; the merge aborts before any
// write otherwise.
func Run(ctx context.Context, sourcePath, targetPath, outputPath string) (*Stats, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, fmt.Errorf("source database %s: %w", sourcePath, store.ErrNotFound)
	}
	if _, err := os.Stat(targetPath); err != nil {
		return nil, fmt.Errorf("target database %s: %w", targetPath, store.ErrNotFound)
	}

	src, err := store.Open(sourcePath)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	if err := src.Verify(ctx); err != nil {
		return nil, fmt.Errorf("source database %s: %w", sourcePath, err)
	}

	// Validate the target before any copy so bad inputs abort cleanly.
	tgt, err := store.Open(targetPath)
	if err != nil {
		return nil, err
	}
	if err := tgt.Verify(ctx); err != nil {
		tgt.Close()
		return nil, fmt.Errorf("target database %s: %w", targetPath, err)
	}

	if outputPath != "" {
		tgt.Close()
		if err := copyFile(targetPath, outputPath); err != nil {
			return nil, fmt.Errorf("copy target to %s: %w", outputPath, err)
		}
		slog.Info("created output database", "path", outputPath)
		tgt, err = store.Open(outputPath)
		if err != nil {
			return nil, err
		}
	}
	defer tgt.Close()

	return Merge(ctx, src, tgt)
}

// Merge merges every row of src into dst and reports per-table counts.
// Running it twice with the same inputs adds nothing on the second run.
func Merge(ctx context.Context, src, dst store.Store) (*Stats, error) {
	stats := &Stats{}

	if err := mergeSnapshots(ctx, src, dst, &stats.Snapshots); err != nil {
		return nil, err
	}
	if err := mergePosts(ctx, src, dst, &stats.Posts); err != nil {
		return nil, err
	}
	if err := mergeComments(ctx, src, dst, &stats.Comments); err != nil {
		return nil, err
	}
	if err := mergeHistory(ctx, src, dst, &stats.History); err != nil {
		return nil, err
	}
	return stats, nil
}

// mergeSnapshots inserts source snapshots whose (username, observed_at)
// identity is absent from the target. Snapshots are immutable observations
// and are never updated; a collision means the instant was already recorded.
func mergeSnapshots(ctx context.Context, src, dst store.Store, ts *TableStats) error {
	snaps, err := src.AllSnapshots(ctx)
	if err != nil {
		return err
	}
	for i := range snaps {
		exists, err := dst.HasSnapshot(ctx, snaps[i].Username, snaps[i].ObservedAt)
		if err != nil {
			return err
		}
		if exists {
			ts.Skipped++
			continue
		}
		if err := dst.RecordSnapshot(ctx, &snaps[i]); err != nil {
			if store.IsConstraintViolation(err) {
				ts.Skipped++
				continue
			}
			return err
		}
		ts.Added++
	}
	return nil
}

func mergePosts(ctx context.Context, src, dst store.Store, ts *TableStats) error {
	posts, err := src.AllPosts(ctx)
	if err != nil {
		return err
	}
	for i := range posts {
		sp := &posts[i]
		tp, err := dst.GetPost(ctx, sp.PostID)
		if errors.Is(err, store.ErrNotFound) {
			// New to the target: copy the full row verbatim, first_seen and
			// last_updated included, so the observation timeline survives.
			if err := dst.InsertPost(ctx, sp); err != nil {
				if store.IsConstraintViolation(err) {
					ts.Skipped++
					continue
				}
				return err
			}
			ts.Added++
			continue
		}
		if err != nil {
			return err
		}

		if newerThan(sp.LastUpdated, tp.LastUpdated) {
			if err := dst.UpdatePostMutable(ctx, sp.PostID, sp.Score, sp.UpvoteRatio, sp.NumComments, sp.LastUpdated); err != nil {
				return err
			}
			ts.Updated++
		} else {
			ts.Skipped++
		}
	}
	return nil
}

func mergeComments(ctx context.Context, src, dst store.Store, ts *TableStats) error {
	comments, err := src.AllComments(ctx)
	if err != nil {
		return err
	}
	for i := range comments {
		sc := &comments[i]
		tc, err := dst.GetComment(ctx, sc.CommentID)
		if errors.Is(err, store.ErrNotFound) {
			if err := dst.InsertComment(ctx, sc); err != nil {
				if store.IsConstraintViolation(err) {
					ts.Skipped++
					continue
				}
				return err
			}
			ts.Added++
			continue
		}
		if err != nil {
			return err
		}

		if newerThan(sc.LastUpdated, tc.LastUpdated) {
			if err := dst.UpdateCommentMutable(ctx, sc.CommentID, sc.Score, sc.LastUpdated); err != nil {
				return err
			}
			ts.Updated++
		} else {
			ts.Skipped++
		}
	}
	return nil
}

func mergeHistory(ctx context.Context, src, dst store.Store, ts *TableStats) error {
	entries, err := src.AllScoreEntries(ctx)
	if err != nil {
		return err
	}
	for i := range entries {
		e := &entries[i]
		exists, err := dst.HasScoreEntry(ctx, e.ItemKind, e.ItemID, e.ObservedAt)
		if err != nil {
			return err
		}
		if exists {
			ts.Skipped++
			continue
		}
		if err := dst.AppendScore(ctx, e.ItemKind, e.ItemID, e.Score, e.ObservedAt); err != nil {
			if store.IsConstraintViolation(err) {
				ts.Skipped++
				continue
			}
			return err
		}
		ts.Added++
	}
	return nil
}

// newerThan reports whether the source timestamp strictly beats the target
// one. A zero timestamp on either side never wins: the row is skipped, same
// as a tie.
func newerThan(source, target time.Time) bool {
	if source.IsZero() || target.IsZero() {
		return false
	}
	return source.After(target)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
