package graph

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
)

const (
	secondsPerDay = 86400

	// tokenDecimals is the fixed-point precision of every super token.
	tokenDecimals = 18
)

var zero = new(big.Int)

// PoolMemberFlowRate reconstructs a member's flow from its pool:
// poolFlowRate * totalUnits / memberUnits, truncated toward zero, or 0 when the
// member holds no units.
//
// The formula is carried over as the upstream dashboard computes it. It is not
// the usual proportional share (poolFlowRate * memberUnits / totalUnits) and
// should be confirmed against protocol semantics before being relied upon.
func PoolMemberFlowRate(poolFlowRate, totalUnits, memberUnits *big.Int) *big.Int {
	if memberUnits.Sign() <= 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(poolFlowRate, totalUnits)
	return out.Quo(out, memberUnits)
}

// FlowRatePerDay converts a per-second flow rate to a per-day amount.
func FlowRatePerDay(flowRate *big.Int) *big.Int {
	return new(big.Int).Mul(flowRate, big.NewInt(secondsPerDay))
}

// FormatFlowRatePerDay renders a per-second flow rate as a human readable
// per-day amount, e.g. "8.64 USDCx/day".
func FormatFlowRatePerDay(flowRate *big.Int, symbol string) string {
	if flowRate == nil {
		flowRate = zero
	}
	perDay := decimal.NewFromBigInt(FlowRatePerDay(flowRate), -tokenDecimals)
	if symbol == "" {
		return perDay.String() + "/day"
	}
	return fmt.Sprintf("%s %s/day", perDay.String(), symbol)
}

// parseBigInt parses a required decimal integer string.
func parseBigInt(field, s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrInvalidNumber, field, s)
	}
	return v, nil
}

// parseOptionalInt parses an optional decimal integer string; "" yields nil.
func parseOptionalInt(field, s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q", ErrInvalidNumber, field, s)
	}
	return &v, nil
}
