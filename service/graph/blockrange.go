package graph

// BlockRange is the span of blocks over which the selected accounts were active.
type BlockRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
	// AverageBlockTime is in seconds per block; 0 when it cannot be derived.
	AverageBlockTime float64 `json:"averageBlockTime"`
}

// SelectedBlockRange returns the earliest creation block and the latest update
// block among the selected nodes. Nodes without lifecycle data are ignored; the
// zero BlockRange is returned when no selected node has any.
func SelectedBlockRange(nodes []Node) BlockRange {
	var earliest, latest *Node
	for i := range nodes {
		n := &nodes[i]
		if !n.IsSelected {
			continue
		}
		if n.CreatedAtBlockNumber != nil && (earliest == nil || *n.CreatedAtBlockNumber < *earliest.CreatedAtBlockNumber) {
			earliest = n
		}
		if n.UpdatedAtBlockNumber != nil && (latest == nil || *n.UpdatedAtBlockNumber > *latest.UpdatedAtBlockNumber) {
			latest = n
		}
	}

	var r BlockRange
	if earliest != nil {
		r.Min = *earliest.CreatedAtBlockNumber
	}
	if latest != nil {
		r.Max = *latest.UpdatedAtBlockNumber
	}
	if earliest == nil || latest == nil || earliest.CreatedAtTimestamp == nil || latest.UpdatedAtTimestamp == nil {
		return r
	}

	elapsedBlocks := r.Max - r.Min
	if elapsedBlocks <= 0 {
		return r
	}
	elapsed := *latest.UpdatedAtTimestamp - *earliest.CreatedAtTimestamp
	r.AverageBlockTime = float64(elapsed) / float64(elapsedBlocks)
	return r
}
