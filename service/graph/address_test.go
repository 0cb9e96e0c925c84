package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"lower case", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", false},
		{"upper case", "0xFB6916095CA1DF60BB79CE92CE3EA74C37C5D359", "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", false},
		{"already checksummed", "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", false},
		{"empty", "", "", true},
		{"too short", "0x1234", "", true},
		{"not hex", "0xzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", "", true},
		{"bare hex", "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "", true},
		{"upper case prefix", "0X5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "", true},
		{"pool id with suffix", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed-0", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ChecksumAddress(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsAddress(t *testing.T) {
	assert.True(t, IsAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))
	assert.True(t, IsAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"))
	assert.False(t, IsAddress("5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))
	assert.False(t, IsAddress("0X5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))
	assert.False(t, IsAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1bea"))
}

func TestShortenHex(t *testing.T) {
	tests := []struct {
		input string
		chars int
		want  string
	}{
		{"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", 4, "0x5aAe...eAed"},
		{"0x1234567890abcdef", 4, "0x1234...cdef"},
		{"0x1234567890", 4, "0x1234...7890"},
		{"0x12345678", 4, "0x12345678"},
		{"0x12", 4, "0x12"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ShortenHex(tt.input, tt.chars))
		})
	}
}

func TestLabelUsesChecksumForm(t *testing.T) {
	g, err := Build(1, nil, &QueryResult{Accounts: []Account{{ID: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"}}})
	require.NoError(t, err)
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", g.Nodes[0].Address)
	assert.Equal(t, "0x5aAe...eAed", g.Nodes[0].Label)
}
