package graph

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Token identifies the super token an edge moves.
type Token struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
}

// AccountRef is an account as embedded inside another relation record.
type AccountRef struct {
	ID         string `json:"id"`
	IsSuperApp bool   `json:"isSuperApp"`
}

// Lifecycle carries the creation and last-update metadata of a subgraph entity.
// Values are decimal strings as returned by the subgraph; an empty string means
// the value is absent.
type Lifecycle struct {
	CreatedAtBlockNumber string `json:"createdAtBlockNumber"`
	CreatedAtTimestamp   string `json:"createdAtTimestamp"`
	UpdatedAtBlockNumber string `json:"updatedAtBlockNumber"`
	UpdatedAtTimestamp   string `json:"updatedAtTimestamp"`
}

// Account is a top-level account record.
type Account struct {
	ID         string `json:"id"`
	IsSuperApp bool   `json:"isSuperApp"`
	Lifecycle
}

// Stream is a constant flow agreement between two accounts.
type Stream struct {
	ID              string     `json:"id"`
	Sender          AccountRef `json:"sender"`
	Receiver        AccountRef `json:"receiver"`
	Token           Token      `json:"token"`
	CurrentFlowRate string     `json:"currentFlowRate"`
	Lifecycle
}

// Pool is a general distribution pool.
type Pool struct {
	ID         string `json:"id"`
	Token      Token  `json:"token"`
	FlowRate   string `json:"flowRate"`
	TotalUnits string `json:"totalUnits"`
	Lifecycle
}

// PoolMember is an account's membership (units) in a pool.
type PoolMember struct {
	ID      string     `json:"id"`
	Account AccountRef `json:"account"`
	Pool    Pool       `json:"pool"`
	Units   string     `json:"units"`
	Lifecycle
}

// PoolDistributor is an account distributing into a pool.
type PoolDistributor struct {
	ID       string     `json:"id"`
	Account  AccountRef `json:"account"`
	Pool     Pool       `json:"pool"`
	FlowRate string     `json:"flowRate"`
	Lifecycle
}

// Block is the latest indexed block reported by the data source.
type Block struct {
	Number    int64 `json:"number"`
	Timestamp int64 `json:"timestamp"`
}

// QueryResult is the raw multi-relation result returned by the data source.
type QueryResult struct {
	Accounts         []Account         `json:"accounts"`
	Streams          []Stream          `json:"streams"`
	PoolMembers      []PoolMember      `json:"poolMembers"`
	PoolDistributors []PoolDistributor `json:"poolDistributors"`
	LatestBlock      *Block            `json:"latestBlock,omitempty"`
}

// Position is a diagram coordinate assigned by a layout.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a canonical, de-duplicated account in the graph.
type Node struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Position Position `json:"position"`

	Chain      int64  `json:"chain"`
	Address    string `json:"address"` // EIP-55 checksum form
	Label      string `json:"label"`
	IsPool     bool   `json:"isPool"`
	IsSuperApp bool   `json:"isSuperApp"`
	IsSelected bool   `json:"isSelected"`

	// nil when no source reported the value
	CreatedAtBlockNumber *int64 `json:"createdAtBlockNumber,omitempty"`
	CreatedAtTimestamp   *int64 `json:"createdAtTimestamp,omitempty"`
	UpdatedAtBlockNumber *int64 `json:"updatedAtBlockNumber,omitempty"`
	UpdatedAtTimestamp   *int64 `json:"updatedAtTimestamp,omitempty"`
}

// EdgeStyle is a rendering hint for edges.
type EdgeStyle struct {
	StrokeWidth int `json:"strokeWidth"`
}

// Edge is a canonical directed token flow between two nodes.
type Edge struct {
	ID       string
	Source   string
	Target   string
	FlowRate *big.Int // smallest token unit per second
	Token    Token
	Type     string
	Animated bool
	Style    EdgeStyle
}

type edgeJSON struct {
	ID       string    `json:"id"`
	Source   string    `json:"source"`
	Target   string    `json:"target"`
	FlowRate string    `json:"flowRate"`
	Label    string    `json:"label"`
	Token    Token     `json:"token"`
	Type     string    `json:"type"`
	Animated bool      `json:"animated"`
	Style    EdgeStyle `json:"style"`
}

// MarshalJSON encodes the flow rate as a decimal string so that consumers
// without arbitrary precision integers do not lose digits.
func (e Edge) MarshalJSON() ([]byte, error) {
	flowRate := e.FlowRate
	if flowRate == nil {
		flowRate = new(big.Int)
	}
	return json.Marshal(edgeJSON{
		ID:       e.ID,
		Source:   e.Source,
		Target:   e.Target,
		FlowRate: flowRate.String(),
		Label:    FormatFlowRatePerDay(flowRate, e.Token.Symbol),
		Token:    e.Token,
		Type:     e.Type,
		Animated: e.Animated,
		Style:    e.Style,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON. The label is derived and ignored.
func (e *Edge) UnmarshalJSON(data []byte) error {
	var raw edgeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	flowRate := new(big.Int)
	if raw.FlowRate != "" {
		if _, ok := flowRate.SetString(raw.FlowRate, 10); !ok {
			return fmt.Errorf("%w: flowRate %q", ErrInvalidNumber, raw.FlowRate)
		}
	}

	*e = Edge{
		ID:       raw.ID,
		Source:   raw.Source,
		Target:   raw.Target,
		FlowRate: flowRate,
		Token:    raw.Token,
		Type:     raw.Type,
		Animated: raw.Animated,
		Style:    raw.Style,
	}
	return nil
}

// Graph is the reconciled diagram input.
type Graph struct {
	Nodes       []Node `json:"nodes"`
	Edges       []Edge `json:"edges"`
	LatestBlock *Block `json:"latestBlock,omitempty"`
}

// TotalFlowRate sums the flow rates of all edges.
func (g *Graph) TotalFlowRate() *big.Int {
	total := new(big.Int)
	for _, e := range g.Edges {
		if e.FlowRate != nil {
			total.Add(total, e.FlowRate)
		}
	}
	return total
}
