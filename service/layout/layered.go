package layout

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nulab/autog"
	autograph "github.com/nulab/autog/graph"

	"github.com/brojonat/sfviz/service/graph"
)

// Direction is the flow direction of a layered layout.
type Direction string

const (
	TopToBottom Direction = "TB"
	LeftToRight Direction = "LR"
)

const (
	DefaultNodeSpacing = 200
	DefaultRankSpacing = 300

	// box size used for diagram nodes
	DefaultNodeWidth  = 180
	DefaultNodeHeight = 60
)

var (
	ErrDuplicateNode = errors.New("duplicate node id")
	ErrUnknownNode   = errors.New("edge references unknown node")
)

// Layered is a Sugiyama layout run by autog: cycle breaking, layering,
// crossing reduction and coordinate assignment. Nodes without edges are put
// in a row after the layered part, in id order.
//
// autog always lays out top to bottom. LeftToRight runs it on transposed
// boxes and transposes the result back.
type Layered struct {
	Direction   Direction
	NodeSpacing float64 // gap between neighbours in a rank
	RankSpacing float64 // gap between ranks
}

// NewLayered returns a top-to-bottom layout with the default spacing.
func NewLayered() *Layered {
	return &Layered{
		Direction:   TopToBottom,
		NodeSpacing: DefaultNodeSpacing,
		RankSpacing: DefaultRankSpacing,
	}
}

func (l *Layered) Layout(in Input) (map[string]graph.Position, error) {
	if l.Direction != TopToBottom && l.Direction != LeftToRight {
		return nil, fmt.Errorf("unsupported direction %q", l.Direction)
	}
	transpose := l.Direction == LeftToRight

	nodes := make(map[string]Node, len(in.Nodes))
	for _, n := range in.Nodes {
		if _, ok := nodes[n.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
		}
		nodes[n.ID] = n
	}

	edges, err := uniqueEdges(in.Edges, nodes)
	if err != nil {
		return nil, err
	}

	connected := make(map[string]struct{}, len(nodes))
	src := make(autograph.EdgeSlice, 0, len(edges))
	for _, e := range edges {
		connected[e.Source] = struct{}{}
		connected[e.Target] = struct{}{}
		src = append(src, []string{e.Source, e.Target})
	}

	positions := make(map[string]graph.Position, len(nodes))
	bottom := 0.0 // far edge of the layered part, in autog's frame

	if len(src) > 0 {
		sizes := make(map[string]autograph.Size, len(connected))
		for id := range connected {
			w, h := nodes[id].Width, nodes[id].Height
			if transpose {
				w, h = h, w
			}
			sizes[id] = autograph.Size{W: w, H: h}
		}

		out := autog.Layout(src,
			autog.WithNodeSize(sizes),
			autog.WithNodeSpacing(l.NodeSpacing),
			autog.WithLayerSpacing(l.RankSpacing),
		)
		for _, n := range out.Nodes {
			if _, ok := connected[n.ID]; !ok {
				continue
			}
			positions[n.ID] = orient(n.X, n.Y, transpose)
			if b := n.Y + n.H; b > bottom {
				bottom = b
			}
		}
		bottom += l.RankSpacing
	}

	isolated := make([]string, 0, len(nodes)-len(connected))
	for id := range nodes {
		if _, ok := connected[id]; !ok {
			isolated = append(isolated, id)
		}
	}
	sort.Strings(isolated)

	cursor := 0.0
	for _, id := range isolated {
		along := nodes[id].Width
		if transpose {
			along = nodes[id].Height
		}
		positions[id] = orient(cursor, bottom, transpose)
		cursor += along + l.NodeSpacing
	}
	return positions, nil
}

// uniqueEdges checks edge endpoints and drops self loops and repeats. The
// result is sorted so autog always sees the same input.
func uniqueEdges(edges []Edge, nodes map[string]Node) ([]Edge, error) {
	seen := make(map[Edge]struct{}, len(edges))
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if _, ok := nodes[e.Source]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, e.Source)
		}
		if _, ok := nodes[e.Target]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, e.Target)
		}
		if e.Source == e.Target {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out, nil
}

func orient(x, y float64, transpose bool) graph.Position {
	if transpose {
		return graph.Position{X: y, Y: x}
	}
	return graph.Position{X: x, Y: y}
}
