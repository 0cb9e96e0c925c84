package subgraph

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworks(t *testing.T) {
	all := Networks()
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ChainID, all[i].ChainID)
	}

	op, ok := NetworkByChainID(DefaultChainID)
	require.True(t, ok)
	assert.Equal(t, "optimism-mainnet", op.Name)
	assert.False(t, op.Testnet)

	_, ok = NetworkByChainID(999999)
	assert.False(t, ok)
}

func TestNetwork_Endpoint(t *testing.T) {
	n := Network{ChainID: 137, Name: "polygon-mainnet"}
	assert.Equal(t, "https://polygon-mainnet.subgraph.x.superfluid.dev/", n.Endpoint(""))
	assert.Equal(t, "http://localhost:8000/subgraphs/name/polygon-mainnet", n.Endpoint("http://localhost:8000/subgraphs/name/{name}"))
}

func TestRegistry_CachesClientPerChain(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var mu sync.Mutex
	built := map[int64]int{}
	r := NewRegistryWithFactory(func(n Network) *Client {
		mu.Lock()
		built[n.ChainID]++
		mu.Unlock()
		return NewClient(n, &mockGraphQLClient{body: `{}`}, nil, logger)
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := r.Client(10)
			assert.NoError(t, err)
			assert.Equal(t, int64(10), c.Network().ChainID)
		}()
	}
	wg.Wait()

	c1, err := r.Client(137)
	require.NoError(t, err)
	c2, err := r.Client(137)
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	assert.Equal(t, map[int64]int{10: 1, 137: 1}, built)
}

func TestRegistry_UnsupportedChain(t *testing.T) {
	r := NewRegistryWithFactory(func(n Network) *Client {
		t.Fatalf("no client should be built for unsupported chains")
		return nil
	})

	_, err := r.Client(424242)
	assert.ErrorIs(t, err, ErrUnsupportedChain)

	_, err = r.FetchRelevantEntities(context.Background(), 424242, nil, nil, nil)
	assert.ErrorIs(t, err, ErrUnsupportedChain)
}

func TestRegistry_FetchDelegatesToChainClient(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gql := &mockGraphQLClient{body: sampleResponse}
	r := NewRegistryWithFactory(func(n Network) *Client {
		return NewClient(n, gql, nil, logger)
	})

	q, err := r.FetchRelevantEntities(context.Background(), 8453, []string{"0xt"}, []string{"0xa"}, nil)
	require.NoError(t, err)
	assert.Len(t, q.Streams, 1)
	assert.Equal(t, 1, gql.calls)
}
