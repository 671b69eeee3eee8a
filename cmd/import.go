package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/rubiojr/timetrip/pkg/client"
	"github.com/urfave/cli/v3"
)

// ImportStatusCommand creates the import-status command
func ImportStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "import-status",
		Usage: "Show the server's CSV import status",
		Action: func(ctx context.Context, c *cli.Command) error {
			s, err := openSession(c.String("config"))
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := s.client.ImportStatus(ctx)
			if err != nil {
				return err
			}
			fmt.Println(titleStyle.Render("Import status"))
			fmt.Println(renderImportStatus(st))
			return nil
		},
	}
}

// ImportCSVCommand creates the import-csv command
func ImportCSVCommand() *cli.Command {
	return &cli.Command{
		Name:  "import-csv",
		Usage: "Ask the server to import its CSV event file",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "clear",
				Usage: "Delete every event before importing",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			s, err := openSession(c.String("config"))
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := s.client.ImportCSV(ctx, c.Bool("clear"))
			if err != nil {
				return err
			}
			fmt.Println(titleStyle.Render("Import finished"))
			fmt.Println(renderImportStatus(st))
			if c.Bool("clear") && s.cache != nil {
				fmt.Println(metaStyle.Render("The local cache may hold deleted events until the next `events` run."))
			}
			return nil
		},
	}
}

func renderImportStatus(st client.ImportStatus) string {
	if len(st) == 0 {
		return noDataStyle.Render("The server reported nothing.")
	}
	keys := make([]string, 0, len(st))
	for k := range st {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := newTable("Key", "Value")
	for _, k := range keys {
		t.Row(titleCase(k), fmt.Sprint(st[k]))
	}
	return t.String()
}
