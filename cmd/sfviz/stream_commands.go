package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	natspkg "github.com/brojonat/sfviz/service/nats"
)

func streamCommand() *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Usage:     "Follow new snapshots via SSE",
		ArgsUsage: "[WATCH_ID]",
		Action: func(c *cli.Context) error {
			serverURL := strings.TrimRight(c.String("server-url"), "/")
			watchID := c.Args().First()
			jsonOutput := c.Bool("json")

			endpoint := serverURL + "/api/v1/stream/snapshots"
			if watchID != "" {
				endpoint += "/" + url.PathEscape(watchID)
			}

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case <-sigChan:
					cancel()
				case <-ctx.Done():
				}
			}()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "text/event-stream")

			// No timeout for streaming
			resp, err := (&http.Client{}).Do(req)
			if err != nil {
				return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned status %d", resp.StatusCode)
			}

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Streaming snapshots... (Ctrl+C to stop)\n\n")
			}

			err = readSSE(resp.Body, func(event, data string) error {
				return handleSSEEvent(c.App.Writer, event, data, jsonOutput)
			})
			if err != nil && ctx.Err() != nil {
				if !jsonOutput {
					fmt.Fprintf(os.Stderr, "\nDisconnected\n")
				}
				return nil
			}
			return err
		},
	}
}

// readSSE calls handle for every complete event in r. Comment lines are
// skipped; multi-line data is joined with newlines.
func readSSE(r io.Reader, handle func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var event string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if event != "" && len(data) > 0 {
				if err := handle(event, strings.Join(data, "\n")); err != nil {
					return err
				}
			}
			event, data = "", nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}

func handleSSEEvent(out io.Writer, eventType, data string, jsonOutput bool) error {
	switch eventType {
	case "connected":
		if !jsonOutput {
			var info map[string]string
			if err := json.Unmarshal([]byte(data), &info); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "✓ Subscribed to watch: %s\n\n", info["watch"])
		}
		return nil

	case "snapshot":
		var event natspkg.SnapshotEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return err
		}
		if jsonOutput {
			fmt.Fprintln(out, data)
		} else {
			printSnapshotEvent(out, event)
		}
		return nil

	case "error":
		var errInfo map[string]interface{}
		if err := json.Unmarshal([]byte(data), &errInfo); err != nil {
			return err
		}
		return fmt.Errorf("server error: %v", errInfo["error"])

	default:
		return nil
	}
}

func printSnapshotEvent(out io.Writer, e natspkg.SnapshotEvent) {
	fmt.Fprintln(out, "────────────────────────────────────────────────────────────")
	fmt.Fprintf(out, "Watch:      %s\n", e.WatchID)
	fmt.Fprintf(out, "Chain:      %d\n", e.Chain)
	fmt.Fprintf(out, "Block:      %d (%s)\n", e.BlockNumber, e.BlockTimestamp.Format(time.RFC3339))
	fmt.Fprintf(out, "Graph:      %d nodes, %d edges\n", e.NodeCount, e.EdgeCount)
	fmt.Fprintf(out, "Flow rate:  %s wei/s\n", e.TotalFlowRate)
	fmt.Fprintf(out, "Published:  %s\n", e.PublishedAt.Format(time.RFC3339))
	fmt.Fprintln(out)
}
