package main

import (
	"context"
	stdlog "log"
	"os"

	"github.com/joho/godotenv"
	"github.com/rubiojr/timetrip/cmd"
	"github.com/rubiojr/timetrip/pkg/config"
	"github.com/rubiojr/timetrip/pkg/log"
	"github.com/urfave/cli/v3"
)

func main() {
	// A missing .env file is the common case.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		stdlog.Printf("Warning: reading .env: %v", err)
	}

	app := &cli.Command{
		Name:  "timetrip",
		Usage: "Explore a timeline of events from the Hadean to the future",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
				Value: false,
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Configuration file path",
				Value: getDefaultConfigPathOrExit(),
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			log.SetGlobalDebug(c.Bool("debug"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			cmd.InitCommand(),
			cmd.EraCommand(),
			cmd.TimelineCommand(),
			cmd.ExpandCommand(),
			cmd.LocateCommand(),
			cmd.EventsCommand(),
			cmd.SearchCommand(),
			cmd.AddCommand(),
			cmd.DeleteCommand(),
			cmd.ImportStatusCommand(),
			cmd.ImportCSVCommand(),
			cmd.CacheCommand(),
			cmd.ShellCommand(),
			cmd.VersionCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		stdlog.Fatal(err)
	}
}

func getDefaultConfigPathOrExit() string {
	path, err := config.GetDefaultConfigPath()
	if err != nil {
		stdlog.Fatalf("Failed to get default config path: %v", err)
	}
	return path
}
