package cmd

import (
	"context"
	"fmt"

	"github.com/rubiojr/timetrip/pkg/cluster"
	"github.com/urfave/cli/v3"
)

// ExpandCommand creates the expand command
func ExpandCommand() *cli.Command {
	return &cli.Command{
		Name:      "expand",
		Usage:     "Zoom into a cluster of the timeline",
		ArgsUsage: "<cluster-id>",
		Flags:     rangeFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("usage: expand <cluster-id> [--start YEAR --end YEAR]")
			}
			id := c.Args().First()

			s, err := openSession(c.String("config"))
			if err != nil {
				return err
			}
			defer s.Close()

			// Cluster ids only mean something for the response that carried
			// them, so load that response first.
			x, err := s.loadTimeline(ctx, c, nil)
			if err != nil {
				return err
			}
			defer x.Close()

			info, found := x.Clusters.Lookup(id)
			if !found {
				fmt.Println(noDataStyle.Render(fmt.Sprintf("No cluster %q in this range.", id)))
				if clusters := x.Clusters.Clusters(); len(clusters) > 0 {
					fmt.Println(renderClusters(clusters))
				}
				return nil
			}

			start, end := cluster.ExpandRange(info)
			fmt.Println(metaStyle.Render(fmt.Sprintf("Expanding %s (%s events) to %s",
				id, formatNumber(info.EventCount), formatRange(start, end))))
			if _, err := x.ExpandCluster(id); err != nil {
				return err
			}
			x.Wait()

			if res, ok := x.Query.Last(); ok && res.Err != nil {
				return res.Err
			}
			printTimeline(x)
			return nil
		},
	}
}
