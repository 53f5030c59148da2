package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redwatchio/redwatch/internal/config"
	"github.com/redwatchio/redwatch/internal/images"
	"github.com/redwatchio/redwatch/internal/merge"
	"github.com/redwatchio/redwatch/internal/scheduler"
	"github.com/redwatchio/redwatch/internal/store"
	"github.com/redwatchio/redwatch/pkg/reddit"
	"github.com/redwatchio/redwatch/pkg/server"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func runInit() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := images.New(cfg.Images.Dir, cfg.Reddit.UserAgent); err != nil {
		return err
	}

	fmt.Printf("database initialized at %s\n", cfg.Database.Path)
	return nil
}

func runMonitor(usernames []string, interval string, once bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if len(usernames) == 0 {
		usernames = cfg.Accounts
	}
	if len(usernames) == 0 {
		return fmt.Errorf("no accounts to monitor: pass usernames or set accounts in config")
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	dl, err := images.New(cfg.Images.Dir, cfg.Reddit.UserAgent)
	if err != nil {
		return err
	}

	tick := cfg.Schedule.ParseInterval()
	if interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("parse interval %q: %w", interval, err)
		}
		tick = d
	}

	client := reddit.NewClient(cfg.Reddit.UserAgent)
	mon := scheduler.New(db, client, dl, usernames, tick, cfg.Reddit.ParsePause(), cfg.Reddit.Limit)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if once {
		for _, username := range usernames {
			if err := mon.Cycle(ctx, username); err != nil {
				return err
			}
		}
		return nil
	}

	if err := mon.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runStats(username string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.AccountStats(context.Background(), username)
	if err != nil {
		return fmt.Errorf("stats for u/%s: %w", username, err)
	}

	fmt.Printf("=== Stats for u/%s ===\n", username)
	if stats.Latest != nil {
		fmt.Printf("Last checked:     %s\n", stats.Latest.ObservedAt.Format(time.RFC3339))
		fmt.Printf("Post karma:       %d\n", stats.Latest.PostKarma)
		fmt.Printf("Comment karma:    %d\n", stats.Latest.CommentKarma)
		fmt.Printf("Total karma:      %d\n", stats.Latest.TotalKarma)
		fmt.Printf("24h karma change: %+d\n", stats.KarmaChange24h)
	}
	fmt.Printf("Posts tracked:    %d\n", stats.PostCount)
	fmt.Printf("Comments tracked: %d\n", stats.CommentCount)
	fmt.Printf("Images stored:    %d\n", stats.ImageCount)
	fmt.Printf("Total snapshots:  %d\n", stats.SnapshotCount)
	return nil
}

func runMerge(sourcePath, targetPath, outputPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stats, err := merge.Run(ctx, sourcePath, targetPath, outputPath)
	if err != nil {
		return err
	}

	fmt.Println("merge complete")
	printTable := func(name string, ts merge.TableStats) {
		fmt.Printf("  %-18s added: %d, updated: %d, skipped: %d\n", name, ts.Added, ts.Updated, ts.Skipped)
	}
	printTable("account_snapshots", stats.Snapshots)
	printTable("posts", stats.Posts)
	printTable("comments", stats.Comments)
	printTable("score_history", stats.History)
	return nil
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := server.New(db, cfg.Images.Dir, port)
	return srv.ListenAndServe()
}
