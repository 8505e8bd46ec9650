// Package store persists downloaded headers and blocks as append-only
// pipe-delimited text files, and reloads them to seed the in-memory
// chain on startup.
package store

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/chainwatch/testnet-peer/pkg/protocol"
)

// StoreError wraps a persistence read/write/parse failure.
type StoreError struct {
	Path   string
	Reason string
	Err    error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store: %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("store: %s: %s", e.Path, e.Reason)
}

func (e *StoreError) Unwrap() error { return e.Err }

func encodeHeaderFields(h btcwire.BlockHeader) string {
	return strings.Join([]string{
		strconv.FormatInt(int64(h.Version), 10),
		hex.EncodeToString(h.PrevBlock[:]),
		hex.EncodeToString(h.MerkleRoot[:]),
		strconv.FormatInt(h.Timestamp.Unix(), 10),
		strconv.FormatUint(uint64(h.Bits), 10),
		strconv.FormatUint(uint64(h.Nonce), 10),
	}, ", ")
}

func decodeHeaderFields(fields string) (btcwire.BlockHeader, error) {
	parts := strings.Split(fields, ", ")
	if len(parts) != 6 {
		return btcwire.BlockHeader{}, fmt.Errorf("store: header record has %d fields, want 6", len(parts))
	}

	version, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return btcwire.BlockHeader{}, fmt.Errorf("store: header version: %w", err)
	}
	prevBytes, err := hex.DecodeString(parts[1])
	if err != nil || len(prevBytes) != 32 {
		return btcwire.BlockHeader{}, fmt.Errorf("store: header prev_block_hash: invalid hex")
	}
	merkleBytes, err := hex.DecodeString(parts[2])
	if err != nil || len(merkleBytes) != 32 {
		return btcwire.BlockHeader{}, fmt.Errorf("store: header merkle_root: invalid hex")
	}
	timestamp, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return btcwire.BlockHeader{}, fmt.Errorf("store: header timestamp: %w", err)
	}
	bits, err := strconv.ParseUint(parts[4], 10, 32)
	if err != nil {
		return btcwire.BlockHeader{}, fmt.Errorf("store: header bits: %w", err)
	}
	nonce, err := strconv.ParseUint(parts[5], 10, 32)
	if err != nil {
		return btcwire.BlockHeader{}, fmt.Errorf("store: header nonce: %w", err)
	}

	var header btcwire.BlockHeader
	header.Version = int32(version)
	copy(header.PrevBlock[:], prevBytes)
	copy(header.MerkleRoot[:], merkleBytes)
	header.Timestamp = time.Unix(timestamp, 0).UTC()
	header.Bits = uint32(bits)
	header.Nonce = uint32(nonce)
	return header, nil
}

// HeaderStore appends and reloads headers, one line per header, in the
// pipe-delimited shape: `| (version, prev_block_hash, merkle_root,
// timestamp, bits, nonce), ()`. The trailing empty group mirrors the
// original format's placeholder for a (header-only) transaction
// section and is otherwise unused here.
type HeaderStore struct {
	path string
}

// NewHeaderStore returns a store backed by the file at path, created
// on first append if it does not already exist.
func NewHeaderStore(path string) *HeaderStore {
	return &HeaderStore{path: path}
}

// Append writes one record for header to the end of the file.
func (s *HeaderStore) Append(header btcwire.BlockHeader) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &StoreError{Path: s.path, Reason: "open for append", Err: err}
	}
	defer f.Close()

	line := fmt.Sprintf("| (%s), ()\n", encodeHeaderFields(header))
	if _, err := f.WriteString(line); err != nil {
		return &StoreError{Path: s.path, Reason: "write", Err: err}
	}
	return nil
}

// Load reads every header record in the file, in append order. A
// missing file is not an error; it yields an empty slice, so a fresh
// node can start an IBD from scratch.
func (s *HeaderStore) Load() ([]btcwire.BlockHeader, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Path: s.path, Reason: "open", Err: err}
	}
	defer f.Close()

	var headers []btcwire.BlockHeader
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields, err := extractGroup(line, 0)
		if err != nil {
			return nil, &StoreError{Path: s.path, Reason: "parse line", Err: err}
		}
		header, err := decodeHeaderFields(fields)
		if err != nil {
			return nil, &StoreError{Path: s.path, Reason: "parse header", Err: err}
		}
		headers = append(headers, header)
	}
	if err := scanner.Err(); err != nil {
		return nil, &StoreError{Path: s.path, Reason: "read", Err: err}
	}
	return headers, nil
}

// BlockStore appends and reloads full blocks, one line per block, in
// the pipe-delimited shape: `| (header fields), (tx_hex; tx_hex; ...)`.
// Transactions are stored as their canonical serialized hex, which
// round-trips exactly through btcwire.MsgTx.Serialize/Deserialize —
// simpler and less fragile than re-deriving a field-by-field dump.
type BlockStore struct {
	path string
}

// NewBlockStore returns a store backed by the file at path.
func NewBlockStore(path string) *BlockStore {
	return &BlockStore{path: path}
}

// Append writes one record for block to the end of the file.
func (s *BlockStore) Append(block protocol.BlockMessage) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &StoreError{Path: s.path, Reason: "open for append", Err: err}
	}
	defer f.Close()

	txHexes := make([]string, len(block.Transactions))
	for i, tx := range block.Transactions {
		payload, err := protocol.EncodeTx(tx)
		if err != nil {
			return &StoreError{Path: s.path, Reason: "encode transaction", Err: err}
		}
		txHexes[i] = hex.EncodeToString(payload)
	}

	line := fmt.Sprintf("| (%s), (%s)\n", encodeHeaderFields(block.Header), strings.Join(txHexes, "; "))
	if _, err := f.WriteString(line); err != nil {
		return &StoreError{Path: s.path, Reason: "write", Err: err}
	}
	return nil
}

// Load reads every block record in the file, in append order. A
// missing file yields an empty slice, not an error.
func (s *BlockStore) Load() ([]protocol.BlockMessage, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Path: s.path, Reason: "open", Err: err}
	}
	defer f.Close()

	var blocks []protocol.BlockMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		headerFields, err := extractGroup(line, 0)
		if err != nil {
			return nil, &StoreError{Path: s.path, Reason: "parse line", Err: err}
		}
		header, err := decodeHeaderFields(headerFields)
		if err != nil {
			return nil, &StoreError{Path: s.path, Reason: "parse header", Err: err}
		}

		txFields, err := extractGroup(line, 1)
		if err != nil {
			return nil, &StoreError{Path: s.path, Reason: "parse line", Err: err}
		}

		var txs []*btcwire.MsgTx
		if txFields != "" {
			for _, txHex := range strings.Split(txFields, "; ") {
				payload, err := hex.DecodeString(txHex)
				if err != nil {
					return nil, &StoreError{Path: s.path, Reason: "decode transaction hex", Err: err}
				}
				tx, err := protocol.DecodeTx(payload)
				if err != nil {
					return nil, &StoreError{Path: s.path, Reason: "decode transaction", Err: err}
				}
				txs = append(txs, tx)
			}
		}

		blocks = append(blocks, protocol.BlockMessage{Header: header, Transactions: txs})
	}
	if err := scanner.Err(); err != nil {
		return nil, &StoreError{Path: s.path, Reason: "read", Err: err}
	}
	return blocks, nil
}

// extractGroup returns the contents of the nth (0-indexed) top-level
// parenthesized group found on line, scanning left to right.
func extractGroup(line string, n int) (string, error) {
	depth := 0
	groupIndex := -1
	start := -1
	for i, r := range line {
		switch r {
		case '(':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				groupIndex++
				if groupIndex == n {
					return line[start:i], nil
				}
			}
		}
	}
	return "", fmt.Errorf("store: could not find group %d in line %q", n, line)
}
