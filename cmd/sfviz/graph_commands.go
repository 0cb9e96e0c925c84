package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/sfviz/client"
	"github.com/brojonat/sfviz/service/graph"
	"github.com/brojonat/sfviz/service/layout"
	"github.com/brojonat/sfviz/service/subgraph"
)

func graphCommand() *cli.Command {
	return &cli.Command{
		Name:  "graph",
		Usage: "Build the flow diagram for a set of tokens and accounts",
		Description: `Builds the reconciled flow graph, either through the sfviz server or,
with --direct, straight from the Superfluid subgraph.

Examples:
  sfviz graph -t 0x1eff...0529 -a 0x9421...b1b9
  sfviz graph --chain 8453 -t TOKEN -a ACCOUNT1,ACCOUNT2 --block 123456
  sfviz graph -t TOKEN -a ACCOUNT --jq '.edges[] | {source, target, label}'`,
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:    "chain",
				Aliases: []string{"c"},
				Usage:   "Chain id (default: server default, or 10 with --direct)",
			},
			&cli.StringSliceFlag{
				Name:    "token",
				Aliases: []string{"t"},
				Usage:   "Super token address (repeatable or comma-separated)",
			},
			&cli.StringSliceFlag{
				Name:    "account",
				Aliases: []string{"a"},
				Usage:   "Account address (repeatable or comma-separated)",
			},
			&cli.Uint64Flag{
				Name:  "block",
				Usage: "Pin the query to a block (default: latest indexed block)",
			},
			&cli.StringFlag{
				Name:  "layout",
				Usage: "Layout: layered or none",
				Value: "layered",
			},
			&cli.StringFlag{
				Name:  "direction",
				Usage: "Layered layout direction: TB or LR",
				Value: string(layout.TopToBottom),
			},
			&cli.BoolFlag{
				Name:  "direct",
				Usage: "Query the subgraph directly instead of the sfviz server",
			},
			&cli.StringFlag{
				Name:    "subgraph-url-template",
				Usage:   "Subgraph endpoint template for --direct; {name} is the network name",
				EnvVars: []string{"SUBGRAPH_URL_TEMPLATE"},
				Value:   subgraph.DefaultURLTemplate,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 30 * time.Second,
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq filter applied to the JSON diagram",
			},
		},
		Action: func(c *cli.Context) error {
			in := client.DiagramInput{
				Chain:     c.Int64("chain"),
				Tokens:    normalizeAddresses(c.StringSlice("token")),
				Accounts:  normalizeAddresses(c.StringSlice("account")),
				Layout:    strings.ToLower(c.String("layout")),
				Direction: strings.ToUpper(c.String("direction")),
			}
			if c.IsSet("block") {
				block := c.Uint64("block")
				in.Block = &block
			}

			// Compile the filter before doing any network work
			var code *gojq.Code
			if filter := c.String("jq"); filter != "" {
				var err error
				if code, err = compileJQ(filter); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			var (
				d   *client.Diagram
				err error
			)
			if c.Bool("direct") {
				registry := subgraph.NewRegistry(subgraph.RegistryConfig{
					URLTemplate: c.String("subgraph-url-template"),
					Timeout:     c.Duration("timeout"),
				}, nil, cliLogger())
				d, err = buildDirect(ctx, registry, in)
			} else {
				d, err = newClient(c).Graph(ctx, in)
			}
			if err != nil {
				return fmt.Errorf("failed to build diagram: %w", err)
			}

			if code != nil {
				return runJQ(c.App.Writer, code, d)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, d)
			}
			printDiagram(c.App.Writer, d)
			return nil
		},
	}
}

func networksCommand() *cli.Command {
	return &cli.Command{
		Name:  "networks",
		Usage: "List the chains the server supports",
		Action: func(c *cli.Context) error {
			networks, err := newClient(c).Networks(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list networks: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, networks)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CHAIN ID\tNAME\tTESTNET")
			for _, n := range networks {
				fmt.Fprintf(w, "%d\t%s\t%t\n", n.ChainID, n.Name, n.Testnet)
			}
			return w.Flush()
		},
	}
}

// buildDirect does locally what the server's graph endpoint does.
func buildDirect(ctx context.Context, fetcher subgraph.Fetcher, in client.DiagramInput) (*client.Diagram, error) {
	if in.Chain == 0 {
		in.Chain = subgraph.DefaultChainID
	}
	if len(in.Tokens) == 0 || len(in.Accounts) == 0 {
		return nil, fmt.Errorf("at least one --token and one --account are required")
	}
	for _, a := range append(append([]string{}, in.Tokens...), in.Accounts...) {
		if !graph.IsAddress(a) {
			return nil, fmt.Errorf("invalid address %q", a)
		}
	}

	q, err := fetcher.FetchRelevantEntities(ctx, in.Chain, in.Tokens, in.Accounts, in.Block)
	if err != nil {
		return nil, err
	}

	g, err := graph.Build(in.Chain, in.Accounts, q)
	if err != nil {
		return nil, err
	}

	switch in.Layout {
	case "none":
	case "", "layered":
		l := layout.NewLayered()
		if in.Direction != "" {
			l.Direction = layout.Direction(in.Direction)
		}
		if g, err = layout.Run(l, g, layout.DefaultNodeWidth, layout.DefaultNodeHeight); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown layout %q", in.Layout)
	}

	return &client.Diagram{
		Chain:       in.Chain,
		Nodes:       g.Nodes,
		Edges:       g.Edges,
		LatestBlock: g.LatestBlock,
		BlockRange:  graph.SelectedBlockRange(g.Nodes),
	}, nil
}

func printDiagram(out io.Writer, d *client.Diagram) {
	fmt.Fprintf(out, "Chain:        %d\n", d.Chain)
	if d.LatestBlock != nil {
		fmt.Fprintf(out, "Latest block: %d (%s)\n", d.LatestBlock.Number,
			time.Unix(d.LatestBlock.Timestamp, 0).UTC().Format(time.RFC3339))
	}
	if d.BlockRange.Max > 0 {
		fmt.Fprintf(out, "Active range: blocks %d - %d", d.BlockRange.Min, d.BlockRange.Max)
		if d.BlockRange.AverageBlockTime > 0 {
			fmt.Fprintf(out, " (~%.2fs/block)", d.BlockRange.AverageBlockTime)
		}
		fmt.Fprintln(out)
	}

	labels := make(map[string]string, len(d.Nodes))
	fmt.Fprintf(out, "\nNodes (%d)\n", len(d.Nodes))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, n := range d.Nodes {
		labels[n.ID] = n.Label
		var flags []string
		if n.IsSelected {
			flags = append(flags, "selected")
		}
		if n.IsPool {
			flags = append(flags, "pool")
		}
		if n.IsSuperApp {
			flags = append(flags, "super app")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", n.Label, n.Address, strings.Join(flags, ","))
	}
	w.Flush()

	fmt.Fprintf(out, "\nEdges (%d)\n", len(d.Edges))
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, e := range d.Edges {
		fmt.Fprintf(w, "  %s -> %s\t%s\n", labelOr(labels, e.Source), labelOr(labels, e.Target),
			graph.FormatFlowRatePerDay(e.FlowRate, e.Token.Symbol))
	}
	w.Flush()
}

func labelOr(labels map[string]string, id string) string {
	if l, ok := labels[id]; ok && l != "" {
		return l
	}
	return id
}

func compileJQ(filter string) (*gojq.Code, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}
	return code, nil
}

// runJQ runs code over the JSON form of v and prints every result.
func runJQ(out io.Writer, code *gojq.Code, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}
	var input interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("failed to decode input: %w", err)
	}

	iter := code.Run(input)
	for {
		result, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := result.(error); isErr {
			return fmt.Errorf("jq filter failed: %w", err)
		}
		if err := outputJSON(out, result); err != nil {
			return err
		}
	}
}

// normalizeAddresses splits comma-separated values, trims and lower-cases
// them and drops blanks and repeats.
func normalizeAddresses(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			a := strings.ToLower(strings.TrimSpace(part))
			if a == "" {
				continue
			}
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

func newClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server-url"), nil, cliLogger())
}

func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
}

func outputJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
