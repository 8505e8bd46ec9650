package validate

import (
	"fmt"
	"time"

	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/chainwatch/testnet-peer/pkg/protocol"
	"github.com/chainwatch/testnet-peer/pkg/wire"
)

// GenesisCoinbaseHashHex is the well-known genesis coinbase transaction
// hash (equivalently, the genesis block's Merkle root), shown in the
// usual display (reversed) byte order. The genesis block is identified
// by this constant and exempted from the Merkle-root-matches-coinbase
// check, since its single transaction pays no one and is not a
// regular, spendable coinbase.
const GenesisCoinbaseHashHex = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"

// reversedHexToHash parses a display-order (big-endian) hex hash into
// internal (little-endian) byte order.
func reversedHexToHash(hexStr string) wire.Hash {
	var h wire.Hash
	raw := make([]byte, len(hexStr)/2)
	for i := range raw {
		hi := hexDigit(hexStr[i*2])
		lo := hexDigit(hexStr[i*2+1])
		raw[i] = hi<<4 | lo
	}
	reversed := wire.ReverseBytes(raw)
	copy(h[:], reversed)
	return h
}

func hexDigit(b byte) byte {
	switch {
	case b >= '0' && b <= '9':
		return b - '0'
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10
	default:
		return 0
	}
}

// IsGenesisMerkleRoot reports whether root is the well-known genesis
// coinbase hash.
func IsGenesisMerkleRoot(root wire.Hash) bool {
	return root == reversedHexToHash(GenesisCoinbaseHashHex)
}

// GenesisPrevHashHex is the fixed well-known previous-block-hash value
// that marks the genesis checkpoint a getheaders chain walks back to,
// in the same internal (wire) byte order a parsed header's prev_block
// field already holds — not the usual reversed display order.
const GenesisPrevHashHex = "000000000933EA01AD0EE984209779BAAEC3CED90FA3F408719526F8D77F4943"

// hexToHash parses hex bytes directly into a Hash with no byte-order
// reversal, for constants already expressed in internal order.
func hexToHash(hexStr string) wire.Hash {
	var h wire.Hash
	for i := range h {
		hi := hexDigit(hexStr[i*2])
		lo := hexDigit(hexStr[i*2+1])
		h[i] = hi<<4 | lo
	}
	return h
}

// IsGenesisPrevHash reports whether hash is the fixed well-known
// genesis previous-hash checkpoint.
func IsGenesisPrevHash(hash wire.Hash) bool {
	return hash == hexToHash(GenesisPrevHashHex)
}

// HeaderError describes why a header failed validation.
type HeaderError struct {
	Reason string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("validate: header invalid: %s", e.Reason)
}

// HeaderValid checks the invariants required of every block header:
// non-zero prev-hash and merkle-root, a timestamp not in the future,
// bits within the network's easiest-difficulty ceiling, and
// proof-of-work satisfied.
func HeaderValid(header btcwire.BlockHeader) error {
	var zero wire.Hash
	if header.PrevBlock == zero {
		// The genesis header is the sole legitimate exception.
		if !IsGenesisMerkleRoot(header.MerkleRoot) {
			return &HeaderError{Reason: "prev_block_hash is zero"}
		}
	}
	if header.MerkleRoot == zero {
		return &HeaderError{Reason: "merkle_root is zero"}
	}
	if header.Timestamp.After(time.Now()) {
		return &HeaderError{Reason: "timestamp is in the future"}
	}
	if header.Bits > wire.MaxBits {
		return &HeaderError{Reason: "bits above network maximum difficulty"}
	}
	if !wire.CheckProofOfWork(header.BlockHash(), header.Bits) {
		return &HeaderError{Reason: "proof of work not satisfied"}
	}
	return nil
}

// BlockValid checks header validity and, unless the transaction list
// is empty or this is the genesis block, that the Merkle root computed
// from block.Transactions equals the header's declared merkle_root.
func BlockValid(block protocol.BlockMessage) error {
	if err := HeaderValid(block.Header); err != nil {
		return err
	}

	if len(block.Transactions) == 0 || IsGenesisMerkleRoot(block.Header.MerkleRoot) {
		return nil
	}

	computed := MerkleRoot(TxHashes(block.Transactions))
	if computed != block.Header.MerkleRoot {
		return fmt.Errorf("validate: merkle root mismatch: computed %s, header declares %s",
			computed, block.Header.MerkleRoot)
	}
	return nil
}
