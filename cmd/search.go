package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rubiojr/timetrip/pkg/client"
	"github.com/rubiojr/timetrip/pkg/timeline"
	"github.com/urfave/cli/v3"
)

// SearchCommand creates the search command
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search events by title and description",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of results",
				Value: client.DefaultSearchLimit,
			},
			&cli.BoolFlag{
				Name:  "offline",
				Usage: "Search the local cache only",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			q := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if q == "" {
				return fmt.Errorf("usage: search <query>")
			}

			s, err := openSession(c.String("config"))
			if err != nil {
				return err
			}
			defer s.Close()

			events, source, err := s.search(ctx, q, c.Int("limit"), c.Bool("offline"))
			if err != nil {
				return err
			}
			printEvents(os.Stdout, events, len(events), source)
			return nil
		},
	}
}

// search asks the API and falls back to the cache's full-text index when the
// API cannot be reached. It returns where the results came from.
func (s *session) search(ctx context.Context, q string, limit int, offline bool) ([]timeline.Event, string, error) {
	if !offline {
		events, err := s.client.Search(ctx, q, limit)
		if err == nil {
			s.cacheEvents(ctx, events)
			return events, s.cfg.APIURL, nil
		}
		if !timeline.Retryable(err) || s.cache == nil {
			return nil, "", err
		}
		fmt.Println(warnStyle.Render(fmt.Sprintf("Search API unavailable (%v), searching the local cache", err)))
	}

	if s.cache == nil {
		return nil, "", fmt.Errorf("no event cache available")
	}
	events, err := s.cache.SearchEvents(ctx, q, limit)
	if err != nil {
		return nil, "", fmt.Errorf("searching cache: %w", err)
	}
	return events, "cache", nil
}
