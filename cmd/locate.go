package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rubiojr/timetrip/pkg/crossfade"
	"github.com/rubiojr/timetrip/pkg/locate"
	"github.com/rubiojr/timetrip/pkg/timeline"
	"github.com/urfave/cli/v3"
)

// LocateCommand creates the locate command
func LocateCommand() *cli.Command {
	return &cli.Command{
		Name:      "locate",
		Usage:     "Zoom the timeline onto an event and highlight it",
		ArgsUsage: "<event-id>",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("usage: locate <event-id>")
			}
			id := timeline.EventID(c.Args().First())

			s, err := openSession(c.String("config"))
			if err != nil {
				return err
			}
			defer s.Close()

			ev, err := s.findEvent(ctx, id)
			if err != nil {
				return err
			}

			x, err := s.newExplorer(ctx, nil)
			if err != nil {
				return err
			}
			defer x.Close()

			highlights := make(chan locate.Highlight, 1)
			x.Locator.OnHighlight(func(h locate.Highlight) {
				select {
				case highlights <- h:
				default:
				}
			})

			x.Crossfade.Init(crossfade.InitialYear)
			start, end, err := x.SelectEvent(*ev)
			if err != nil {
				return err
			}
			x.Wait()
			if res, ok := x.Query.Last(); ok && res.Err != nil {
				return res.Err
			}

			fmt.Println(titleStyle.Render(ev.Title))
			fmt.Println(metaStyle.Render(fmt.Sprintf("%s, %s, %s", formatRange(ev.StartYear, ev.EndYear), titleCase(ev.Category), ev.Continent)))
			if ev.Description != "" {
				fmt.Println(ev.Description)
			}
			fmt.Printf("Window: %s .. %s\n", formatYear(start), formatYear(end))

			select {
			case h := <-highlights:
				if h.Found {
					p := h.Point
					fmt.Println(highlightStyle.Render(fmt.Sprintf("★ highlighted on row %q at %s (trace %d, point %d)",
						titleCase(p.Y), formatAge(int64(p.X)), p.Trace, p.Index)))
				} else {
					fmt.Println(noDataStyle.Render("The event is not drawn individually in this window; it may be part of a cluster."))
				}
			case <-time.After(s.cfg.Highlight.SettleDelay.Duration + time.Second):
				fmt.Println(noDataStyle.Render("Timed out waiting for the highlight."))
			}
			return nil
		},
	}
}

// findEvent looks an event up in the cache first and falls back to listing
// the configured default range from the API.
func (s *session) findEvent(ctx context.Context, id timeline.EventID) (*timeline.Event, error) {
	if s.cache != nil {
		ev, err := s.cache.GetEvent(ctx, id)
		if err == nil {
			return ev, nil
		}
		if !errors.Is(err, timeline.ErrNotFound) {
			return nil, fmt.Errorf("reading cache: %w", err)
		}
	}

	list, err := s.client.Events(ctx, s.cfg.DefaultStartYear, s.cfg.DefaultEndYear)
	if err != nil {
		return nil, err
	}
	s.cacheEvents(ctx, list.Data)
	for i := range list.Data {
		if list.Data[i].ID.Matches(string(id)) {
			return &list.Data[i], nil
		}
	}
	return nil, &timeline.NotFoundError{Kind: "event", ID: string(id)}
}

func (s *session) cacheEvents(ctx context.Context, events []timeline.Event) {
	if s.cache == nil || len(events) == 0 {
		return
	}
	if err := s.cache.StoreEvents(ctx, events); err != nil {
		fmt.Printf("Warning: failed to cache events: %v\n", err)
	}
}
