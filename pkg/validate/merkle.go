package validate

import (
	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/chainwatch/testnet-peer/pkg/wire"
)

// MerkleRoot computes the root of the Merkle tree over txHashes, using
// pairwise double-SHA256 concatenation level by level; an odd node at
// any level is paired with itself. A single-transaction input yields
// that transaction's hash.
func MerkleRoot(txHashes []wire.Hash) wire.Hash {
	if len(txHashes) == 0 {
		return wire.Hash{}
	}
	level := txHashes
	for len(level) > 1 {
		level = merkleLevel(level)
	}
	return level[0]
}

func merkleLevel(level []wire.Hash) []wire.Hash {
	next := make([]wire.Hash, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		left := level[i]
		right := left
		if i+1 < len(level) {
			right = level[i+1]
		}
		next = append(next, hashPair(left, right))
	}
	return next
}

func hashPair(left, right wire.Hash) wire.Hash {
	var combined [64]byte
	copy(combined[:32], left[:])
	copy(combined[32:], right[:])
	return wire.DoubleSHA256(combined[:])
}

// MerkleDirection records which side a sibling hash sat on at one level
// of a Merkle inclusion proof.
type MerkleDirection int

const (
	// SiblingRight means the recorded sibling hash was the right-hand
	// node; the running hash being proved was on the left.
	SiblingRight MerkleDirection = iota
	// SiblingLeft means the recorded sibling hash was the left-hand
	// node; the running hash being proved was on the right.
	SiblingLeft
)

// MerkleProofStep is one level of an inclusion proof: the sibling hash
// at that level and which side it sat on.
type MerkleProofStep struct {
	Sibling   wire.Hash
	Direction MerkleDirection
}

// MerkleProof is an ordered sequence of proof steps from the leaf up
// to (but not including) the root.
type MerkleProof []MerkleProofStep

// BuildMerkleProof constructs an inclusion proof for the transaction
// at leafIndex within txHashes. It returns false if leafIndex is out
// of range.
func BuildMerkleProof(txHashes []wire.Hash, leafIndex int) (MerkleProof, bool) {
	if leafIndex < 0 || leafIndex >= len(txHashes) {
		return nil, false
	}

	var proof MerkleProof
	level := txHashes
	index := leafIndex

	for len(level) > 1 {
		var sibling wire.Hash
		var direction MerkleDirection

		if index%2 == 0 {
			// Leaf is on the left; its sibling is the next node, or
			// itself if this is a dangling odd node.
			siblingIndex := index + 1
			if siblingIndex >= len(level) {
				siblingIndex = index
			}
			sibling = level[siblingIndex]
			direction = SiblingRight
		} else {
			sibling = level[index-1]
			direction = SiblingLeft
		}

		proof = append(proof, MerkleProofStep{Sibling: sibling, Direction: direction})
		level = merkleLevel(level)
		index /= 2
	}

	return proof, true
}

// VerifyMerkleProof re-hashes leaf up through proof and reports whether
// the result equals root. Mutating any one byte of the proof or the
// leaf breaks verification.
func VerifyMerkleProof(proof MerkleProof, leaf wire.Hash, root wire.Hash) bool {
	running := leaf
	for _, step := range proof {
		switch step.Direction {
		case SiblingRight:
			running = hashPair(running, step.Sibling)
		case SiblingLeft:
			running = hashPair(step.Sibling, running)
		}
	}
	return running == root
}

// TxHashes extracts the display-independent (internal byte order) hash
// of every transaction in a block, in order.
func TxHashes(txs []*btcwire.MsgTx) []wire.Hash {
	hashes := make([]wire.Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.TxHash()
	}
	return hashes
}
