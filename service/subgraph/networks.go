package subgraph

import (
	"errors"
	"sort"
	"strings"
)

// DefaultURLTemplate is the public Superfluid subgraph endpoint; {name} is
// replaced by the network's canonical name.
const DefaultURLTemplate = "https://{name}.subgraph.x.superfluid.dev/"

// DefaultChainID is Optimism mainnet.
const DefaultChainID int64 = 10

var ErrUnsupportedChain = errors.New("unsupported chain")

// Network is a chain on which the Superfluid protocol and its subgraph are
// deployed.
type Network struct {
	ChainID int64  `json:"chainId"`
	Name    string `json:"name"`
	Testnet bool   `json:"testnet"`
}

var networks = map[int64]Network{
	1:         {ChainID: 1, Name: "eth-mainnet"},
	10:        {ChainID: 10, Name: "optimism-mainnet"},
	56:        {ChainID: 56, Name: "bsc-mainnet"},
	100:       {ChainID: 100, Name: "xdai-mainnet"},
	137:       {ChainID: 137, Name: "polygon-mainnet"},
	8453:      {ChainID: 8453, Name: "base-mainnet"},
	42161:     {ChainID: 42161, Name: "arbitrum-one"},
	42220:     {ChainID: 42220, Name: "celo-mainnet"},
	43114:     {ChainID: 43114, Name: "avalanche-c"},
	534352:    {ChainID: 534352, Name: "scroll-mainnet"},
	666666666: {ChainID: 666666666, Name: "degenchain"},
	43113:     {ChainID: 43113, Name: "avalanche-fuji", Testnet: true},
	84532:     {ChainID: 84532, Name: "base-sepolia", Testnet: true},
	534351:    {ChainID: 534351, Name: "scroll-sepolia", Testnet: true},
	11155111:  {ChainID: 11155111, Name: "eth-sepolia", Testnet: true},
	11155420:  {ChainID: 11155420, Name: "optimism-sepolia", Testnet: true},
}

// NetworkByChainID looks up a supported network.
func NetworkByChainID(chainID int64) (Network, bool) {
	n, ok := networks[chainID]
	return n, ok
}

// Networks returns every supported network ordered by chain id.
func Networks() []Network {
	out := make([]Network, 0, len(networks))
	for _, n := range networks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// Endpoint renders the subgraph URL of n from template.
func (n Network) Endpoint(template string) string {
	if template == "" {
		template = DefaultURLTemplate
	}
	return strings.ReplaceAll(template, "{name}", n.Name)
}
