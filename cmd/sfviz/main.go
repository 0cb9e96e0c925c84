package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "sfviz",
		Usage: "Superfluid flow diagram service CLI",
		Description: `A command-line tool for the sfviz service.

Use this CLI to build flow diagrams, manage snapshot watches, follow new
snapshots as they are taken, and inspect the service's database.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			graphCommand(),
			networksCommand(),
			{
				Name:  "watch",
				Usage: "Manage scheduled snapshot watches",
				Subcommands: []*cli.Command{
					addWatchCommand(),
					listWatchesCommand(),
					getWatchCommand(),
					removeWatchCommand(),
					snapshotsCommand(),
				},
			},
			streamCommand(),
			{
				Name:  "db",
				Usage: "Database inspection commands",
				Subcommands: []*cli.Command{
					dbWatchesCommand(),
					dbSnapshotsCommand(),
				},
			},
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "sfviz server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}
