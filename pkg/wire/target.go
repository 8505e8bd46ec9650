package wire

import (
	"bytes"
	"math/big"
)

// MaxBits is the loosest difficulty this network accepts.
const MaxBits uint32 = 0x1d00ffff

// CompactToTarget decodes a 32-bit compact ("bits") proof-of-work target
// into its 256-bit value, returned as a 32-byte big-endian array (most
// significant byte first) so it can be compared lexicographically
// against a reversed block hash.
//
// The high byte of bits is the exponent ("size"); the low 24 bits are
// the mantissa ("word"). size<=3 shifts the mantissa right (dropping
// low-order bits); size>3 shifts it left (multiplying by 256^(size-3)).
func CompactToTarget(bits uint32) [32]byte {
	size := bits >> 24
	word := new(big.Int).SetUint64(uint64(bits & 0x00ffffff))

	target := new(big.Int)
	switch {
	case size <= 3:
		shift := uint(8 * (3 - size))
		target.Rsh(word, shift)
	default:
		shift := uint(8 * (size - 3))
		target.Lsh(word, shift)
	}

	var out [32]byte
	raw := target.Bytes() // big-endian, no leading zeros
	if len(raw) > 32 {
		raw = raw[len(raw)-32:]
	}
	copy(out[32-len(raw):], raw)
	return out
}

// CheckProofOfWork reports whether hash (in chainhash's internal,
// little-endian byte order) satisfies the target decoded from bits:
// double_sha256(header) interpreted as a little-endian integer must be
// <= target.
func CheckProofOfWork(hash Hash, bits uint32) bool {
	target := CompactToTarget(bits)
	reversed := ReverseBytes(hash[:])
	return bytes.Compare(reversed, target[:]) <= 0
}
