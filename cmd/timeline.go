package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rubiojr/timetrip/pkg/crossfade"
	"github.com/rubiojr/timetrip/pkg/explorer"
	"github.com/rubiojr/timetrip/pkg/timeline"
	"github.com/urfave/cli/v3"
)

func rangeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:  "start",
			Usage: "First year of the range (negative for BCE), defaults to the configured range",
		},
		&cli.Int64Flag{
			Name:  "end",
			Usage: "Last year of the range, defaults to the configured range",
		},
	}
}

// TimelineCommand creates the timeline command
func TimelineCommand() *cli.Command {
	flags := append(rangeFlags(),
		&cli.BoolFlag{
			Name:  "no-clustering",
			Usage: "Ask the server for individual events only",
		},
		&cli.FloatFlag{
			Name:  "lat",
			Usage: "Latitude of the spatial filter centre",
		},
		&cli.FloatFlag{
			Name:  "lon",
			Usage: "Longitude of the spatial filter centre",
		},
		&cli.FloatFlag{
			Name:  "radius",
			Usage: "Spatial filter radius in km (0 uses the configured default)",
		},
	)
	return &cli.Command{
		Name:  "timeline",
		Usage: "Fetch and draw the timeline for a range of years",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.IsSet("lat") != c.IsSet("lon") {
				return &timeline.ValidationError{Field: "lat", Reason: "--lat and --lon go together"}
			}

			s, err := openSession(c.String("config"))
			if err != nil {
				return err
			}
			defer s.Close()

			x, err := s.loadTimeline(ctx, c, func(x *explorer.Explorer) error {
				if !c.IsSet("lat") {
					return nil
				}
				return x.ApplyFilter(c.Float("lat"), c.Float("lon"), c.Float("radius"))
			})
			if err != nil {
				return err
			}
			defer x.Close()

			printTimeline(x)
			return nil
		},
	}
}

// loadTimeline builds an explorer for the range given by the --start and
// --end flags, runs prepare and waits for the figure. prepare may change the
// query, superseding the first fetch.
func (s *session) loadTimeline(ctx context.Context, c *cli.Command, prepare func(*explorer.Explorer) error) (*explorer.Explorer, error) {
	x, err := s.newExplorer(ctx, nil)
	if err != nil {
		return nil, err
	}

	start, end := s.cfg.DefaultStartYear, s.cfg.DefaultEndYear
	if c.IsSet("start") {
		start = c.Int64("start")
	}
	if c.IsSet("end") {
		end = c.Int64("end")
	}
	if err := timeline.ValidateRange(start, end); err != nil {
		x.Close()
		return nil, err
	}

	x.Crossfade.Init(crossfade.InitialYear)
	clustering := !c.Bool("no-clustering")
	if err := x.Query.SetRangeWithClustering(start, end, clustering); err != nil {
		x.Close()
		return nil, err
	}
	if prepare != nil {
		if err := prepare(x); err != nil {
			x.Close()
			return nil, err
		}
	}
	x.Wait()

	res, ok := x.Query.Last()
	if !ok {
		x.Close()
		return nil, errors.New("no response from the timeline API")
	}
	if res.Err != nil {
		x.Close()
		if timeline.Retryable(res.Err) {
			return nil, fmt.Errorf("%w (is the timeline API at %s running?)", res.Err, s.cfg.APIURL)
		}
		return nil, res.Err
	}
	return x, nil
}

func printTimeline(x *explorer.Explorer) {
	st := x.State()
	q := st.Query

	fmt.Println(titleStyle.Render(fmt.Sprintf("Timeline %s", formatRange(q.StartYear, q.EndYear))))
	fmt.Println(renderEra(x.EraFor(int64(q.Midpoint()))))

	tier := timeline.ZoomTier(q.Span())
	meta := fmt.Sprintf("zoom level %d (%s), %s of %s events",
		st.ZoomLevel, tier.Density, formatNumber(st.Chart.FilteredEvents), formatNumber(st.Chart.TotalEvents))
	if !q.Clustering {
		meta += ", clustering off"
	}
	if q.Spatial != nil {
		meta += fmt.Sprintf(", within %.0f km of %.2f, %.2f", q.Spatial.Radius, q.Spatial.Lat, q.Spatial.Lon)
	}
	fmt.Println(metaStyle.Render(meta))
	if st.CachedAt != nil {
		fmt.Println(warnStyle.Render("API unreachable, showing the copy cached " + formatTime(*st.CachedAt)))
	}
	fmt.Println()

	highlighted := map[timeline.EventID]bool{}
	for _, m := range st.Chart.Highlights {
		highlighted[m.EventID] = true
	}
	fmt.Println(renderPoints(x.Chart.Points(), highlighted))

	if len(st.Clusters) > 0 {
		fmt.Println()
		fmt.Println(headerStyle.Render("Clusters"))
		fmt.Println(renderClusters(st.Clusters))
		fmt.Println(metaStyle.Render("Use `timetrip expand <cluster>` with the same range to zoom into one."))
	}
}
