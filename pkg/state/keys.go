package state

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema (prefix-based for range scans, address as primary key):
//
//   ord:<owner>:<market>:<orderID>   -> trigger order
//   ordcnt:<owner>:<market>          -> open order count
//   nonce:order                      -> global order id nonce
//   op:<owner>:<delegate>            -> operator grant
//   fee:<receiver>:<representation>  -> claimable interface fee
//   bal:<token>:<holder>             -> token balance
//   allow:<token>:<owner>:<spender>  -> token allowance
//   px:<market>                      -> latest committed price
//   pos:<account>:<market>           -> settlement position
//   vault:<vault>:<account>          -> vault shares

// Key joins a prefix and parts with ':' separators.
// Example: Key("ord", owner.Hex(), market.Hex()) -> "ord:0x..:0x.."
func Key(prefix string, parts ...string) []byte {
	return []byte(prefix + ":" + strings.Join(parts, ":"))
}

// Prefix is Key with a trailing separator, for range scans.
func Prefix(prefix string, parts ...string) []byte {
	if len(parts) == 0 {
		return []byte(prefix + ":")
	}
	return append(Key(prefix, parts...), ':')
}

// Addr formats an address the way every key embeds it.
func Addr(a common.Address) string { return a.Hex() }

// Uint formats a number zero-padded (20 digits) for lexicographic ordering.
func Uint(v uint64) string { return fmt.Sprintf("%020d", v) }

// keyUpperBound returns the exclusive upper bound for a prefix scan
// Example: prefix "ord:0x123:" -> upper bound "ord:0x123;" (next byte after ':')
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
