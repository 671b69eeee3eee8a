package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rubiojr/timetrip/pkg/client"
	"github.com/rubiojr/timetrip/pkg/timeline"
	"github.com/urfave/cli/v3"
)

// EventsCommand creates the events command
func EventsCommand() *cli.Command {
	flags := append(rangeFlags(),
		&cli.BoolFlag{
			Name:  "offline",
			Usage: "List events from the local cache without contacting the API",
		},
		&cli.BoolFlag{
			Name:  "no-retry",
			Usage: "Fail immediately instead of offering a retry when the API is unreachable",
		},
	)
	return &cli.Command{
		Name:  "events",
		Usage: "List the events of a range of years",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			s, err := openSession(c.String("config"))
			if err != nil {
				return err
			}
			defer s.Close()

			start, end := s.cfg.DefaultStartYear, s.cfg.DefaultEndYear
			if c.IsSet("start") {
				start = c.Int64("start")
			}
			if c.IsSet("end") {
				end = c.Int64("end")
			}
			if err := timeline.ValidateRange(start, end); err != nil {
				return err
			}

			if c.Bool("offline") {
				if s.cache == nil {
					return fmt.Errorf("no event cache available")
				}
				events, err := s.cache.EventsInRange(ctx, start, end)
				if err != nil {
					return fmt.Errorf("reading cache: %w", err)
				}
				printEvents(os.Stdout, events, len(events), "cache")
				return nil
			}

			var in io.Reader = os.Stdin
			if c.Bool("no-retry") {
				in = strings.NewReader("")
			}
			list, err := fetchEventsWithRetry(ctx, s.client, start, end, in, os.Stdout)
			if err != nil {
				return err
			}
			s.cacheEvents(ctx, list.Data)
			printEvents(os.Stdout, list.Data, list.Count, s.cfg.APIURL)
			return nil
		},
	}
}

// fetchEventsWithRetry lists events and, when the failure is transient,
// asks on in whether to try again. Anything but an explicit yes gives up.
func fetchEventsWithRetry(ctx context.Context, c *client.Client, start, end int64, in io.Reader, out io.Writer) (*client.EventList, error) {
	answers := bufio.NewScanner(in)
	for {
		list, err := c.Events(ctx, start, end)
		if err == nil {
			return list, nil
		}
		if !timeline.Retryable(err) || ctx.Err() != nil {
			return nil, err
		}

		fmt.Fprintln(out, warnStyle.Render("Could not load events: "+err.Error()))
		fmt.Fprint(out, "Retry? [y/N] ")
		if !answers.Scan() {
			fmt.Fprintln(out)
			return nil, err
		}
		switch strings.ToLower(strings.TrimSpace(answers.Text())) {
		case "y", "yes":
			continue
		}
		return nil, err
	}
}

func printEvents(out io.Writer, events []timeline.Event, count int, source string) {
	fmt.Fprintln(out, renderEvents(events))
	fmt.Fprintln(out, metaStyle.Render(fmt.Sprintf("%s events from %s", formatNumber(count), source)))
}
