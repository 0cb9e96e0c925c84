package subgraph

import (
	"strconv"

	"github.com/brojonat/sfviz/service/graph"
)

// maxEntities is the subgraph's per-collection page size limit.
const maxEntities = 1000

const lifecycleFields = `
      createdAtBlockNumber
      createdAtTimestamp
      updatedAtBlockNumber
      updatedAtTimestamp`

// allRelevantEntitiesQuery selects everything touching the selected accounts
// within the selected tokens. $block may be null for the latest indexed block.
var allRelevantEntitiesQuery = `
query AllRelevantEntities($accounts: [String!]!, $tokens: [String!]!, $block: Block_height) {
  accounts(first: ` + strconv.Itoa(maxEntities) + `, block: $block, where: {id_in: $accounts}) {
    id
    isSuperApp` + lifecycleFields + `
  }
  streams(first: ` + strconv.Itoa(maxEntities) + `, block: $block, where: {
    currentFlowRate_gt: "0"
    token_in: $tokens
    or: [{sender_in: $accounts}, {receiver_in: $accounts}]
  }) {
    id
    currentFlowRate` + lifecycleFields + `
    token { id symbol }
    sender { id isSuperApp }
    receiver { id isSuperApp }
  }
  poolMembers(first: ` + strconv.Itoa(maxEntities) + `, block: $block, where: {
    account_in: $accounts
    pool_: {token_in: $tokens}
  }) {
    id
    units` + lifecycleFields + `
    account { id isSuperApp }
    pool {
      id
      flowRate
      totalUnits` + lifecycleFields + `
      token { id symbol }
    }
  }
  poolDistributors(first: ` + strconv.Itoa(maxEntities) + `, block: $block, where: {
    account_in: $accounts
    pool_: {token_in: $tokens}
  }) {
    id
    flowRate` + lifecycleFields + `
    account { id isSuperApp }
    pool {
      id
      flowRate
      totalUnits` + lifecycleFields + `
      token { id symbol }
    }
  }
  _meta(block: $block) {
    block { number timestamp }
  }
}`

// blockHeight is the subgraph's Block_height input.
type blockHeight struct {
	Number uint64 `json:"number"`
}

type metaBlock struct {
	Number    int64  `json:"number"`
	Timestamp *int64 `json:"timestamp"`
}

type relevantEntitiesResponse struct {
	Accounts         []graph.Account         `json:"accounts"`
	Streams          []graph.Stream          `json:"streams"`
	PoolMembers      []graph.PoolMember      `json:"poolMembers"`
	PoolDistributors []graph.PoolDistributor `json:"poolDistributors"`
	Meta             *struct {
		Block metaBlock `json:"block"`
	} `json:"_meta"`
}

func (r *relevantEntitiesResponse) toQueryResult() *graph.QueryResult {
	q := &graph.QueryResult{
		Accounts:         r.Accounts,
		Streams:          r.Streams,
		PoolMembers:      r.PoolMembers,
		PoolDistributors: r.PoolDistributors,
	}
	if r.Meta != nil {
		q.LatestBlock = &graph.Block{Number: r.Meta.Block.Number}
		if r.Meta.Block.Timestamp != nil {
			q.LatestBlock.Timestamp = *r.Meta.Block.Timestamp
		}
	}
	return q
}
