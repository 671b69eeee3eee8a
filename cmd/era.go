package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rubiojr/timetrip/pkg/config"
	"github.com/rubiojr/timetrip/pkg/era"
	"github.com/rubiojr/timetrip/pkg/timeline"
	"github.com/urfave/cli/v3"
)

// EraCommand creates the era command
func EraCommand() *cli.Command {
	return &cli.Command{
		Name:      "era",
		Usage:     "Show the era a year belongs to",
		ArgsUsage: "<year>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "list",
				Usage: "List every era of the table",
			},
			&cli.BoolFlag{
				Name:  "export",
				Usage: "Print the era table as YAML, ready to be edited and used as eras_file",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			eras, err := loadEras(cfg)
			if err != nil {
				return err
			}

			switch {
			case c.Bool("export"):
				data, err := era.Marshal(eras)
				if err != nil {
					return fmt.Errorf("encoding eras: %w", err)
				}
				_, err = os.Stdout.Write(data)
				return err
			case c.Bool("list"):
				fmt.Println(renderEraTable(eras))
				return nil
			}

			if c.Args().Len() != 1 {
				return fmt.Errorf("usage: era <year>")
			}
			year, err := timeline.ParseYear("year", c.Args().First())
			if err != nil {
				return err
			}
			e := eras.Resolve(year)
			fmt.Printf("%s %s\n", metaStyle.Render(formatYear(year)+" is in"), renderEra(e))
			fmt.Println(metaStyle.Render("background: " + e.Theme.Background()))
			return nil
		},
	}
}

func renderEraTable(eras era.Table) string {
	t := newTable("Era", "From", "Until", "Background")
	for _, e := range eras {
		t.Row(e.Name, formatAge(e.StartYear), formatAge(e.EndYear), e.Theme.Background())
	}
	return t.String()
}
