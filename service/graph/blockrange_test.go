package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectedBlockRange(t *testing.T) {
	tests := []struct {
		name  string
		nodes []Node
		want  BlockRange
	}{
		{
			name: "no nodes",
			want: BlockRange{},
		},
		{
			name: "no selected nodes",
			nodes: []Node{
				{ID: "a", CreatedAtBlockNumber: int64p(1), UpdatedAtBlockNumber: int64p(10)},
			},
			want: BlockRange{},
		},
		{
			name: "earliest created and latest updated across selected nodes",
			nodes: []Node{
				{ID: "a", IsSelected: true, CreatedAtBlockNumber: int64p(100), CreatedAtTimestamp: int64p(1000), UpdatedAtBlockNumber: int64p(150), UpdatedAtTimestamp: int64p(1500)},
				{ID: "b", IsSelected: true, CreatedAtBlockNumber: int64p(120), CreatedAtTimestamp: int64p(1200), UpdatedAtBlockNumber: int64p(200), UpdatedAtTimestamp: int64p(1400)},
				{ID: "c", CreatedAtBlockNumber: int64p(1), UpdatedAtBlockNumber: int64p(999)},
			},
			// (1400 - 1000) / (200 - 100)
			want: BlockRange{Min: 100, Max: 200, AverageBlockTime: 4},
		},
		{
			name: "single block span",
			nodes: []Node{
				{ID: "a", IsSelected: true, CreatedAtBlockNumber: int64p(7), CreatedAtTimestamp: int64p(70), UpdatedAtBlockNumber: int64p(7), UpdatedAtTimestamp: int64p(70)},
			},
			want: BlockRange{Min: 7, Max: 7},
		},
		{
			name: "isolated selected node without lifecycle",
			nodes: []Node{
				{ID: "a", IsSelected: true},
				{ID: "b", IsSelected: true, CreatedAtBlockNumber: int64p(10), CreatedAtTimestamp: int64p(20), UpdatedAtBlockNumber: int64p(20), UpdatedAtTimestamp: int64p(40)},
			},
			want: BlockRange{Min: 10, Max: 20, AverageBlockTime: 2},
		},
		{
			name: "missing timestamps",
			nodes: []Node{
				{ID: "a", IsSelected: true, CreatedAtBlockNumber: int64p(10), UpdatedAtBlockNumber: int64p(20)},
			},
			want: BlockRange{Min: 10, Max: 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectedBlockRange(tt.nodes))
		})
	}
}
