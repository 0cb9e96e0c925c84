package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/sfviz/client"
)

func addWatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Snapshot a selection on a schedule",
		Description: `Creates a watch, or updates the interval of the existing watch for the
same selection. The first snapshot is taken right away.`,
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:    "chain",
				Aliases: []string{"c"},
				Usage:   "Chain id (default: server default)",
			},
			&cli.StringSliceFlag{
				Name:     "token",
				Aliases:  []string{"t"},
				Usage:    "Super token address (repeatable or comma-separated)",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:     "account",
				Aliases:  []string{"a"},
				Usage:    "Account address (repeatable or comma-separated)",
				Required: true,
			},
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "Snapshot interval (default: server default)",
			},
		},
		Action: func(c *cli.Context) error {
			w, created, err := newClient(c).CreateWatch(c.Context, client.WatchRequest{
				Chain:    c.Int64("chain"),
				Tokens:   normalizeAddresses(c.StringSlice("token")),
				Accounts: normalizeAddresses(c.StringSlice("account")),
				Interval: c.Duration("interval"),
			})
			if err != nil {
				return fmt.Errorf("failed to create watch: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, w)
			}
			if created {
				fmt.Fprintf(c.App.Writer, "✓ Watch created: %s\n", w.ID)
			} else {
				fmt.Fprintf(c.App.Writer, "✓ Watch updated: %s\n", w.ID)
			}
			printWatch(c.App.Writer, w)
			return nil
		},
	}
}

func listWatchesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List watches",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Filter by status (active, paused)",
			},
		},
		Action: func(c *cli.Context) error {
			watches, err := newClient(c).ListWatches(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list watches: %w", err)
			}

			if status := c.String("status"); status != "" {
				filtered := make([]*client.Watch, 0, len(watches))
				for _, w := range watches {
					if w.Status == status {
						filtered = append(filtered, w)
					}
				}
				watches = filtered
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, watches)
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCHAIN\tTOKENS\tACCOUNTS\tINTERVAL\tSTATUS\tLAST SNAPSHOT")
			for _, w := range watches {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%v\t%s\t%s\n",
					w.ID,
					w.Chain,
					len(w.Tokens),
					len(w.Accounts),
					w.Interval,
					w.Status,
					formatOptionalTime(w.LastSnapshotAt),
				)
			}
			tw.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d watches\n", len(watches))
			return nil
		},
	}
}

func getWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show a watch",
		ArgsUsage: "WATCH_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: watch id")
			}

			w, err := newClient(c).GetWatch(c.Context, c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get watch: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, w)
			}
			printWatch(c.App.Writer, w)
			return nil
		},
	}
}

func removeWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Aliases:   []string{"rm"},
		Usage:     "Delete a watch, its schedule and its snapshots",
		ArgsUsage: "WATCH_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: watch id")
			}

			id := c.Args().First()
			if err := newClient(c).DeleteWatch(c.Context, id); err != nil {
				return fmt.Errorf("failed to delete watch: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ Watch deleted: %s\n", id)
			return nil
		},
	}
}

func snapshotsCommand() *cli.Command {
	return &cli.Command{
		Name:      "snapshots",
		Usage:     "List a watch's snapshots, newest block first",
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
			&cli.BoolFlag{
				Name:  "latest",
				Usage: "Print only the newest snapshot, graph included (JSON)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: watch id")
			}
			id := c.Args().First()
			cl := newClient(c)

			if c.Bool("latest") {
				snap, err := cl.LatestSnapshot(c.Context, id)
				if err != nil {
					return fmt.Errorf("failed to get latest snapshot: %w", err)
				}
				return outputJSON(c.App.Writer, snap)
			}

			snaps, err := cl.Snapshots(c.Context, id, client.SnapshotQuery{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return fmt.Errorf("failed to list snapshots: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, snaps)
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tBLOCK\tBLOCK TIME\tNODES\tEDGES\tTOTAL FLOW RATE\tTAKEN")
			for _, s := range snaps {
				fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%d\t%s\t%s\n",
					s.ID,
					s.BlockNumber,
					s.BlockTimestamp.Format(time.RFC3339),
					s.NodeCount,
					s.EdgeCount,
					s.TotalFlowRate,
					s.CreatedAt.Format(time.RFC3339),
				)
			}
			return tw.Flush()
		},
	}
}

func printWatch(out io.Writer, w *client.Watch) {
	fmt.Fprintf(out, "ID:            %s\n", w.ID)
	fmt.Fprintf(out, "Chain:         %d\n", w.Chain)
	fmt.Fprintf(out, "Status:        %s\n", w.Status)
	fmt.Fprintf(out, "Interval:      %v\n", w.Interval)
	fmt.Fprintf(out, "Last snapshot: %s\n", formatOptionalTime(w.LastSnapshotAt))
	fmt.Fprintf(out, "Tokens:\n")
	for _, t := range w.Tokens {
		fmt.Fprintf(out, "  %s\n", t)
	}
	fmt.Fprintf(out, "Accounts:\n")
	for _, a := range w.Accounts {
		fmt.Fprintf(out, "  %s\n", a)
	}
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
