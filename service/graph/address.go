package graph

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ChecksumAddress validates a hex address and returns its EIP-55 mixed-case form.
func ChecksumAddress(id string) (string, error) {
	if !IsAddress(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, id)
	}
	return common.HexToAddress(id).Hex(), nil
}

// IsAddress reports whether s is a 20-byte hex address with a lower-case 0x
// prefix. Bare hex and a "0X" prefix are rejected.
func IsAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// ShortenHex keeps the 0x prefix plus the first and last chars hex digits,
// e.g. ShortenHex("0x1234567890abcdef", 4) == "0x1234...cdef".
// Case is preserved.
func ShortenHex(address string, chars int) string {
	if len(address) <= 2*chars+2 {
		return address
	}
	return address[:chars+2] + "..." + address[len(address)-chars:]
}

// lowerSet builds a lookup of lower-cased addresses.
func lowerSet(addresses []string) map[string]struct{} {
	set := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		set[strings.ToLower(a)] = struct{}{}
	}
	return set
}
