package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/sfviz/service/db"
)

func dbWatchesCommand() *cli.Command {
	return &cli.Command{
		Name:  "watches",
		Usage: "List watches straight from the database",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "active",
				Usage: "Only active watches",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			var watches []*db.Watch
			if c.Bool("active") {
				watches, err = store.ListActiveWatches(c.Context)
			} else {
				watches, err = store.ListWatches(c.Context)
			}
			if err != nil {
				return fmt.Errorf("failed to list watches: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, watches)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCHAIN\tTOKENS\tACCOUNTS\tINTERVAL\tSTATUS\tLAST SNAPSHOT\tCREATED")
			for _, watch := range watches {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%v\t%s\t%s\t%s\n",
					watch.ID,
					watch.Chain,
					len(watch.Tokens),
					len(watch.Accounts),
					watch.Interval,
					watch.Status,
					formatOptionalTime(watch.LastSnapshotAt),
					watch.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d watches\n", len(watches))
			return nil
		},
	}
}

func dbSnapshotsCommand() *cli.Command {
	return &cli.Command{
		Name:      "snapshots",
		Usage:     "List a watch's snapshots straight from the database",
		ArgsUsage: "WATCH_ID",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of snapshots",
				Value:   20,
			},
			&cli.IntFlag{
				Name:    "offset",
				Aliases: []string{"o"},
				Usage:   "Number of snapshots to skip",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: watch id")
			}
			id, err := uuid.Parse(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid watch id: %w", err)
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			snaps, err := store.ListSnapshots(c.Context, db.ListSnapshotsParams{
				WatchID: id,
				Limit:   c.Int("limit"),
				Offset:  c.Int("offset"),
			})
			if err != nil {
				return fmt.Errorf("failed to list snapshots: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, snaps)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tBLOCK\tBLOCK TIME\tNODES\tEDGES\tTOTAL FLOW RATE")
			for _, s := range snaps {
				fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%d\t%s\n",
					s.ID,
					s.BlockNumber,
					s.BlockTimestamp.Format(time.RFC3339),
					s.NodeCount,
					s.EdgeCount,
					s.TotalFlowRate,
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d snapshots\n", len(snaps))
			return nil
		},
	}
}

func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := db.NewPool(c.Context, dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db.NewStore(pool, nil), pool.Close, nil
}
