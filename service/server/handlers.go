package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/sfviz/service/config"
	"github.com/brojonat/sfviz/service/graph"
	"github.com/brojonat/sfviz/service/layout"
	"github.com/brojonat/sfviz/service/metrics"
	"github.com/brojonat/sfviz/service/subgraph"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB

	layoutLayered = "layered"
	layoutNone    = "none"
)

// DiagramInput is the selection a diagram is built for.
type DiagramInput struct {
	Chain    int64    `json:"chain" validate:"gt=0"`
	Tokens   []string `json:"tokens" validate:"min=1,max=50,dive,address"`
	Accounts []string `json:"accounts" validate:"min=1,max=200,dive,address"`
	Block    *uint64  `json:"block,omitempty"`
}

type graphResponse struct {
	Chain       int64            `json:"chain"`
	Nodes       []graph.Node     `json:"nodes"`
	Edges       []graph.Edge     `json:"edges"`
	LatestBlock *graph.Block     `json:"latestBlock"`
	BlockRange  graph.BlockRange `json:"blockRange"`
}

// parseDiagramInput reads a selection from query parameters. tokens and
// accounts may be repeated and/or comma-separated.
func parseDiagramInput(query url.Values, defaultChain int64) (*DiagramInput, error) {
	in := &DiagramInput{
		Chain:    defaultChain,
		Tokens:   normalizeAddresses(query["tokens"]),
		Accounts: normalizeAddresses(query["accounts"]),
	}
	if in.Chain == 0 {
		in.Chain = subgraph.DefaultChainID
	}

	if s := strings.TrimSpace(query.Get("chain")); s != "" {
		chain, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain parameter: must be an integer")
		}
		in.Chain = chain
	}

	if s := strings.TrimSpace(query.Get("block")); s != "" {
		block, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid block parameter: must be a non-negative integer")
		}
		in.Block = &block
	}

	if err := validate.Struct(in); err != nil {
		return nil, errors.New(validationMessage(err))
	}
	return in, nil
}

// normalizeAddresses splits comma-separated values, trims and lower-cases
// them and drops blanks and repeats. First occurrence order is kept.
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

// layouterFor maps the layout and direction query parameters to a layouter.
// A nil layouter with no error means positions are left unset.
func layouterFor(query url.Values) (layout.Layouter, error) {
	name := strings.ToLower(strings.TrimSpace(query.Get("layout")))
	switch name {
	case "", layoutLayered:
	case layoutNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid layout parameter: must be %q or %q", layoutLayered, layoutNone)
	}

	l := layout.NewLayered()
	switch dir := layout.Direction(strings.ToUpper(strings.TrimSpace(query.Get("direction")))); dir {
	case "":
	case layout.TopToBottom, layout.LeftToRight:
		l.Direction = dir
	default:
		return nil, fmt.Errorf("invalid direction parameter: must be %q or %q", layout.TopToBottom, layout.LeftToRight)
	}
	return l, nil
}

// handleGraph returns a handler that builds the flow diagram for a selection.
// GET /api/v1/graph?chain=&tokens=&accounts=&block=&layout=&direction=
func handleGraph(fetcher subgraph.Fetcher, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	var defaultChain int64
	if cfg != nil {
		defaultChain = cfg.DefaultChainID
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		in, err := parseDiagramInput(query, defaultChain)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if _, ok := subgraph.NetworkByChainID(in.Chain); !ok {
			writeError(w, fmt.Sprintf("unsupported chain: %d", in.Chain), http.StatusBadRequest)
			return
		}

		layouter, err := layouterFor(query)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		q, err := fetcher.FetchRelevantEntities(r.Context(), in.Chain, in.Tokens, in.Accounts, in.Block)
		if err != nil {
			if errors.Is(err, subgraph.ErrUnsupportedChain) {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			logger.ErrorContext(r.Context(), "failed to fetch relevant entities",
				"chain", in.Chain,
				"tokens", len(in.Tokens),
				"accounts", len(in.Accounts),
				"error", err,
			)
			writeError(w, "failed to query the data source", http.StatusBadGateway)
			return
		}

		start := time.Now()
		g, err := graph.Build(in.Chain, in.Accounts, q)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to build diagram", "chain", in.Chain, "error", err)
			writeError(w, "unable to build diagram", http.StatusInternalServerError)
			return
		}

		if layouter != nil {
			g, err = layout.Run(layouter, g, layout.DefaultNodeWidth, layout.DefaultNodeHeight)
			if err != nil {
				logger.ErrorContext(r.Context(), "failed to lay out diagram", "chain", in.Chain, "error", err)
				writeError(w, "unable to build diagram", http.StatusInternalServerError)
				return
			}
		}

		if m != nil {
			m.RecordGraphBuild(strconv.FormatInt(in.Chain, 10), len(g.Nodes), len(g.Edges), time.Since(start).Seconds())
		}

		logger.DebugContext(r.Context(), "diagram built",
			"chain", in.Chain,
			"nodes", len(g.Nodes),
			"edges", len(g.Edges),
		)

		writeJSON(w, graphResponse{
			Chain:       in.Chain,
			Nodes:       g.Nodes,
			Edges:       g.Edges,
			LatestBlock: g.LatestBlock,
			BlockRange:  graph.SelectedBlockRange(g.Nodes),
		}, http.StatusOK)
	})
}

// handleListNetworks returns a handler listing the supported networks.
// GET /api/v1/networks
func handleListNetworks() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		networks := subgraph.Networks()
		writeJSON(w, map[string]interface{}{
			"networks": networks,
			"count":    len(networks),
		}, http.StatusOK)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
