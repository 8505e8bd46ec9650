package wire

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Hash is the 32-byte double-SHA256 hash type used throughout this
// module, stored in internal (little-endian) byte order — the same
// convention chainhash.Hash uses, so its String() method already
// produces the reversed, big-endian display form the spec calls for.
type Hash = chainhash.Hash

// DoubleSHA256 computes SHA256(SHA256(data)), the canonical Bitcoin hash.
func DoubleSHA256(data []byte) Hash {
	return chainhash.DoubleHashH(data)
}

// ReverseBytes returns a copy of b with byte order reversed. Internal
// (little-endian) hash storage is reversed this way for display and
// for comparison against a big-endian target.
func ReverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[len(b)-1-i]
	}
	return out
}
