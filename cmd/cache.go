package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rubiojr/timetrip/pkg/db"
	"github.com/urfave/cli/v3"
)

// CacheCommand creates the cache command
func CacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and maintain the local event cache",
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Show what the cache holds",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withCache(c, func(s *session) error { return cacheStats(ctx, s) })
				},
			},
			{
				Name:  "prune",
				Usage: "Delete old timeline snapshots",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "max-age",
						Usage: "Snapshots older than this are deleted (defaults to snapshot_max_age)",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withCache(c, func(s *session) error {
						maxAge := s.cfg.SnapshotMaxAge.Duration
						if c.IsSet("max-age") {
							maxAge = c.Duration("max-age")
						}
						n, err := s.cache.PruneSnapshots(ctx, maxAge)
						if err != nil {
							return err
						}
						fmt.Printf("Removed %d snapshots older than %s\n", n, maxAge)
						return nil
					})
				},
			},
			{
				Name:  "optimize",
				Usage: "Compact the search index and the database file",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withCache(c, func(s *session) error {
						start := time.Now()
						if err := s.cache.Optimize(ctx); err != nil {
							return err
						}
						if err := s.cache.Vacuum(ctx); err != nil {
							return fmt.Errorf("vacuuming cache: %w", err)
						}
						fmt.Printf("Optimized %s in %s\n", s.cache.Path(), time.Since(start).Round(time.Millisecond))
						return nil
					})
				},
			},
		},
	}
}

func withCache(c *cli.Command, fn func(*session) error) error {
	s, err := openSession(c.String("config"))
	if err != nil {
		return err
	}
	defer s.Close()
	if s.cache == nil {
		return fmt.Errorf("no event cache available for %s", s.cfg.APIURL)
	}
	return fn(s)
}

func cacheStats(ctx context.Context, s *session) error {
	st, err := s.cache.Stats(ctx)
	if err != nil {
		return err
	}
	status, err := db.NewMigrationManager(s.cache.GetDB()).GetMigrationStatus()
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	fmt.Println(titleStyle.Render("Event cache"))
	fmt.Printf("API:       %s\n", s.cfg.APIURL)
	fmt.Printf("Database:  %s\n", s.cache.Path())
	fmt.Printf("Events:    %s\n", formatNumber(st.Events))
	fmt.Printf("Snapshots: %s\n", formatNumber(st.Snapshots))
	if !st.Oldest.IsZero() {
		fmt.Printf("Oldest:    %s\n", formatTime(st.Oldest))
		fmt.Printf("Newest:    %s\n", formatTime(st.Newest))
	}
	fmt.Printf("Schema:    %d of %d migrations applied\n", len(status.Applied), len(status.Available))
	if len(status.Pending) > 0 {
		fmt.Println(warnStyle.Render(fmt.Sprintf("%d migrations pending", len(status.Pending))))
	}
	return nil
}
