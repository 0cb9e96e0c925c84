// Package layout assigns diagram coordinates to a reconciled graph.
package layout

import (
	"fmt"

	"github.com/brojonat/sfviz/service/graph"
)

// Node is a box to be placed.
type Node struct {
	ID     string
	Width  float64
	Height float64
}

// Edge is a directed connection between two node ids.
type Edge struct {
	Source string
	Target string
}

// Input is everything a layout algorithm needs to know about a graph.
type Input struct {
	Nodes []Node
	Edges []Edge
}

// Layouter computes a top-left position for every node id in the input.
type Layouter interface {
	Layout(in Input) (map[string]graph.Position, error)
}

// FromGraph builds a layout input from g, giving every node the same size.
func FromGraph(g *graph.Graph, width, height float64) Input {
	in := Input{
		Nodes: make([]Node, 0, len(g.Nodes)),
		Edges: make([]Edge, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		in.Nodes = append(in.Nodes, Node{ID: n.ID, Width: width, Height: height})
	}
	for _, e := range g.Edges {
		in.Edges = append(in.Edges, Edge{Source: e.Source, Target: e.Target})
	}
	return in
}

// Apply returns a copy of g with positions taken from the map. Nodes missing
// from positions keep their current position.
func Apply(g *graph.Graph, positions map[string]graph.Position) *graph.Graph {
	out := &graph.Graph{
		Nodes:       make([]graph.Node, len(g.Nodes)),
		Edges:       g.Edges,
		LatestBlock: g.LatestBlock,
	}
	copy(out.Nodes, g.Nodes)
	for i := range out.Nodes {
		if p, ok := positions[out.Nodes[i].ID]; ok {
			out.Nodes[i].Position = p
		}
	}
	return out
}

// Run lays g out with l and applies the result.
func Run(l Layouter, g *graph.Graph, width, height float64) (*graph.Graph, error) {
	positions, err := l.Layout(FromGraph(g, width, height))
	if err != nil {
		return nil, fmt.Errorf("failed to compute layout: %w", err)
	}
	return Apply(g, positions), nil
}
