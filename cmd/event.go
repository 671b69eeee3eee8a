package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rubiojr/timetrip/pkg/timeline"
	"github.com/urfave/cli/v3"
)

// AddCommand creates the add command
func AddCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Add an event to the timeline",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Usage: "Event title", Required: true},
			&cli.StringFlag{Name: "category", Usage: "Event category", Required: true},
			&cli.Int64Flag{Name: "start", Usage: "Start year (negative for BCE)", Required: true},
			&cli.Int64Flag{Name: "end", Usage: "End year, defaults to the start year"},
			&cli.StringFlag{Name: "continent", Usage: "Continent", Value: "Global"},
			&cli.StringFlag{Name: "description", Usage: "Free text description"},
			&cli.FloatFlag{Name: "lat", Usage: "Latitude of the event location"},
			&cli.FloatFlag{Name: "lon", Usage: "Longitude of the event location"},
			&cli.StringFlag{Name: "location", Usage: "Human readable location label"},
			&cli.StringFlag{Name: "id", Usage: "Event id, a random UUID by default"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ev, err := eventFromFlags(c)
			if err != nil {
				return err
			}

			s, err := openSession(c.String("config"))
			if err != nil {
				return err
			}
			defer s.Close()

			created, err := s.client.CreateEvent(ctx, ev)
			if err != nil {
				return err
			}
			s.cacheEvents(ctx, []timeline.Event{*created})
			fmt.Println(highlightStyle.Render("Event added: ") + created.String())
			return nil
		},
	}
}

func eventFromFlags(c *cli.Command) (timeline.Event, error) {
	ev := timeline.Event{
		ID:            timeline.EventID(c.String("id")),
		Title:         c.String("title"),
		Category:      c.String("category"),
		Continent:     c.String("continent"),
		Description:   c.String("description"),
		StartYear:     c.Int64("start"),
		EndYear:       c.Int64("start"),
		LocationLabel: c.String("location"),
	}
	if ev.ID == "" {
		ev.ID = timeline.EventID(uuid.NewString())
	}
	if c.IsSet("end") {
		ev.EndYear = c.Int64("end")
		if ev.EndYear < ev.StartYear {
			return ev, &timeline.ValidationError{Field: "end", Value: ev.EndYear, Reason: "must not be before the start year"}
		}
	}
	if c.IsSet("lat") != c.IsSet("lon") {
		return ev, &timeline.ValidationError{Field: "lat", Reason: "--lat and --lon go together"}
	}
	if c.IsSet("lat") {
		lat, lon := c.Float("lat"), c.Float("lon")
		if _, err := timeline.NewSpatialFilter(lat, lon, 1); err != nil {
			return ev, err
		}
		ev.Lat, ev.Lon = &lat, &lon
		ev.Confidence = timeline.ConfidenceExact
	}
	return ev, nil
}

// DeleteCommand creates the delete command
func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete an event",
		ArgsUsage: "<event-id>",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("usage: delete <event-id>")
			}
			id := timeline.EventID(c.Args().First())

			s, err := openSession(c.String("config"))
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.client.DeleteEvent(ctx, id); err != nil {
				return err
			}
			if s.cache != nil {
				if err := s.cache.DeleteEvent(ctx, id); err != nil {
					fmt.Printf("Warning: failed to remove %s from the cache: %v\n", id, err)
				}
			}
			fmt.Printf("Event %s deleted\n", id)
			return nil
		},
	}
}
