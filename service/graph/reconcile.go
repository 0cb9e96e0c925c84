package graph

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

const (
	// NodeType and EdgeType are the renderer's component discriminators.
	NodeType = "custom"
	EdgeType = "floating"

	// AnimationEdgeThreshold is the edge count at and above which edges are
	// rendered without animation.
	AnimationEdgeThreshold = 75

	edgeStrokeWidth = 3
	labelHexChars   = 4
)

var (
	// ErrInvalidAddress is returned when a node id is not a hex address.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidNumber is returned when a numeric field cannot be parsed.
	ErrInvalidNumber = errors.New("invalid number")
)

// candidateNode is what one relation record reveals about one address.
type candidateNode struct {
	id         string
	isPool     bool
	isSuperApp bool

	createdAtBlockNumber *int64
	createdAtTimestamp   *int64
	updatedAtBlockNumber *int64
	updatedAtTimestamp   *int64
}

// candidateEdge is one relation's evidence of a directed token flow.
type candidateEdge struct {
	token    Token
	source   string
	target   string
	flowRate *big.Int
}

func (c candidateEdge) key() string {
	return c.token.ID + "-" + c.source + "-" + c.target
}

// Build reconciles a raw query result into a canonical graph.
//
// Every address observed in any relation, plus every selected account, yields
// exactly one node; every (token, source, target) triple yields exactly one
// edge. The result does not depend on the order of the input records. Build
// never mutates q and is safe for concurrent use.
func Build(chain int64, selectedAccounts []string, q *QueryResult) (*Graph, error) {
	if q == nil {
		q = &QueryResult{}
	}

	nodes, err := buildNodes(chain, selectedAccounts, q)
	if err != nil {
		return nil, err
	}

	edges, err := buildEdges(q)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		Nodes: nodes,
		Edges: edges,
	}
	if q.LatestBlock != nil {
		latest := *q.LatestBlock
		g.LatestBlock = &latest
	}
	return g, nil
}

func buildNodes(chain int64, selectedAccounts []string, q *QueryResult) ([]Node, error) {
	candidates, err := nodeCandidates(q)
	if err != nil {
		return nil, err
	}

	selected := lowerSet(selectedAccounts)

	// Selected accounts nobody mentions still get an isolated node.
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		seen[strings.ToLower(c.id)] = struct{}{}
	}
	for _, a := range selectedAccounts {
		lower := strings.ToLower(a)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		candidates = append(candidates, candidateNode{id: lower})
	}

	groups := make(map[string][]candidateNode)
	for _, c := range candidates {
		groups[c.id] = append(groups[c.id], c)
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	nodes := make([]Node, 0, len(ids))
	for _, id := range ids {
		merged := mergeNodeCandidates(groups[id])

		address, err := ChecksumAddress(merged.id)
		if err != nil {
			return nil, err
		}

		_, isSelected := selected[strings.ToLower(merged.id)]

		nodes = append(nodes, Node{
			ID:                   merged.id,
			Type:                 NodeType,
			Position:             Position{},
			Chain:                chain,
			Address:              address,
			Label:                ShortenHex(address, labelHexChars),
			IsPool:               merged.isPool,
			IsSuperApp:           merged.isSuperApp,
			IsSelected:           isSelected,
			CreatedAtBlockNumber: merged.createdAtBlockNumber,
			CreatedAtTimestamp:   merged.createdAtTimestamp,
			UpdatedAtBlockNumber: merged.updatedAtBlockNumber,
			UpdatedAtTimestamp:   merged.updatedAtTimestamp,
		})
	}

	return nodes, nil
}

// mergeNodeCandidates reduces one address's candidates to a single record.
// Flags are OR-ed, creation fields take the minimum and update fields the
// maximum; absent values do not take part. group must not be empty.
func mergeNodeCandidates(group []candidateNode) candidateNode {
	if len(group) == 1 {
		return group[0]
	}

	merged := candidateNode{id: group[0].id}
	for _, c := range group {
		merged.isPool = merged.isPool || c.isPool
		merged.isSuperApp = merged.isSuperApp || c.isSuperApp
		merged.createdAtBlockNumber = minOf(merged.createdAtBlockNumber, c.createdAtBlockNumber)
		merged.createdAtTimestamp = minOf(merged.createdAtTimestamp, c.createdAtTimestamp)
		merged.updatedAtBlockNumber = maxOf(merged.updatedAtBlockNumber, c.updatedAtBlockNumber)
		merged.updatedAtTimestamp = maxOf(merged.updatedAtTimestamp, c.updatedAtTimestamp)
	}
	return merged
}

func minOf(a, b *int64) *int64 {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *b < *a:
		return b
	default:
		return a
	}
}

func maxOf(a, b *int64) *int64 {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *b > *a:
		return b
	default:
		return a
	}
}

func nodeCandidates(q *QueryResult) ([]candidateNode, error) {
	out := make([]candidateNode, 0, len(q.Accounts)+2*(len(q.PoolMembers)+len(q.PoolDistributors)+len(q.Streams)))

	add := func(id string, isPool, isSuperApp bool, lc Lifecycle) error {
		c, err := newCandidateNode(id, isPool, isSuperApp, lc)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	}

	for _, a := range q.Accounts {
		if err := add(a.ID, false, a.IsSuperApp, a.Lifecycle); err != nil {
			return nil, err
		}
	}

	for _, m := range q.PoolMembers {
		if err := add(m.Pool.ID, true, false, m.Pool.Lifecycle); err != nil {
			return nil, err
		}
		if err := add(m.Account.ID, false, m.Account.IsSuperApp, m.Lifecycle); err != nil {
			return nil, err
		}
	}

	for _, d := range q.PoolDistributors {
		if err := add(d.Pool.ID, true, false, d.Pool.Lifecycle); err != nil {
			return nil, err
		}
		// the distributor takes the distribution's lifecycle, not the account's
		if err := add(d.Account.ID, false, d.Account.IsSuperApp, d.Lifecycle); err != nil {
			return nil, err
		}
	}

	for _, s := range q.Streams {
		if err := add(s.Receiver.ID, false, s.Receiver.IsSuperApp, s.Lifecycle); err != nil {
			return nil, err
		}
		if err := add(s.Sender.ID, false, s.Sender.IsSuperApp, s.Lifecycle); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func newCandidateNode(id string, isPool, isSuperApp bool, lc Lifecycle) (candidateNode, error) {
	c := candidateNode{id: id, isPool: isPool, isSuperApp: isSuperApp}

	var err error
	if c.createdAtBlockNumber, err = parseOptionalInt("createdAtBlockNumber", lc.CreatedAtBlockNumber); err != nil {
		return c, fmt.Errorf("node %s: %w", id, err)
	}
	if c.createdAtTimestamp, err = parseOptionalInt("createdAtTimestamp", lc.CreatedAtTimestamp); err != nil {
		return c, fmt.Errorf("node %s: %w", id, err)
	}
	if c.updatedAtBlockNumber, err = parseOptionalInt("updatedAtBlockNumber", lc.UpdatedAtBlockNumber); err != nil {
		return c, fmt.Errorf("node %s: %w", id, err)
	}
	if c.updatedAtTimestamp, err = parseOptionalInt("updatedAtTimestamp", lc.UpdatedAtTimestamp); err != nil {
		return c, fmt.Errorf("node %s: %w", id, err)
	}
	return c, nil
}

func buildEdges(q *QueryResult) ([]Edge, error) {
	candidates, err := edgeCandidates(q)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]candidateEdge)
	for _, c := range candidates {
		k := c.key()
		groups[k] = append(groups[k], c)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	animated := len(keys) < AnimationEdgeThreshold

	edges := make([]Edge, 0, len(keys))
	for _, k := range keys {
		merged := mergeEdgeCandidates(groups[k])
		edges = append(edges, Edge{
			ID:       k,
			Source:   merged.source,
			Target:   merged.target,
			FlowRate: merged.flowRate,
			Token:    merged.token,
			Type:     EdgeType,
			Animated: animated,
			Style:    EdgeStyle{StrokeWidth: edgeStrokeWidth},
		})
	}
	return edges, nil
}

// mergeEdgeCandidates sums the flow rates of one key's candidates. The first
// candidate's token metadata is kept. group must not be empty.
func mergeEdgeCandidates(group []candidateEdge) candidateEdge {
	first := group[0]
	total := new(big.Int)
	for _, c := range group {
		total.Add(total, c.flowRate)
	}
	return candidateEdge{
		token:    first.token,
		source:   first.source,
		target:   first.target,
		flowRate: total,
	}
}

func edgeCandidates(q *QueryResult) ([]candidateEdge, error) {
	out := make([]candidateEdge, 0, len(q.PoolMembers)+len(q.Streams)+len(q.PoolDistributors))

	for _, m := range q.PoolMembers {
		poolFlowRate, err := parseBigInt("pool.flowRate", m.Pool.FlowRate)
		if err != nil {
			return nil, fmt.Errorf("pool member %s: %w", m.ID, err)
		}
		totalUnits, err := parseBigInt("pool.totalUnits", m.Pool.TotalUnits)
		if err != nil {
			return nil, fmt.Errorf("pool member %s: %w", m.ID, err)
		}
		units, err := parseBigInt("units", m.Units)
		if err != nil {
			return nil, fmt.Errorf("pool member %s: %w", m.ID, err)
		}
		out = append(out, candidateEdge{
			token:    m.Pool.Token,
			source:   m.Pool.ID,
			target:   m.Account.ID,
			flowRate: PoolMemberFlowRate(poolFlowRate, totalUnits, units),
		})
	}

	for _, s := range q.Streams {
		flowRate, err := parseBigInt("currentFlowRate", s.CurrentFlowRate)
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", s.ID, err)
		}
		out = append(out, candidateEdge{
			token:    s.Token,
			source:   s.Sender.ID,
			target:   s.Receiver.ID,
			flowRate: flowRate,
		})
	}

	for _, d := range q.PoolDistributors {
		flowRate, err := parseBigInt("flowRate", d.FlowRate)
		if err != nil {
			return nil, fmt.Errorf("pool distributor %s: %w", d.ID, err)
		}
		out = append(out, candidateEdge{
			token:    d.Pool.Token,
			source:   d.Account.ID,
			target:   d.Pool.ID,
			flowRate: flowRate,
		})
	}

	return out, nil
}
