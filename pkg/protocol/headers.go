package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/chainwatch/testnet-peer/pkg/wire"
)

// HeaderSize is the fixed serialized size of one block header.
const HeaderSize = 80

// MaxHeadersPerMessage bounds a single headers response.
const MaxHeadersPerMessage = 2000

// GetHeadersMessage requests up to MaxHeadersPerMessage consecutive
// headers starting after LocatorHash. A zero StopHash means "as many as
// fit".
type GetHeadersMessage struct {
	ProtocolVersion uint32
	LocatorHash     wire.Hash
	StopHash        wire.Hash
}

// Encode serializes a getheaders payload: version, a single
// block-locator hash (this network never sends more than one), and the
// stop hash.
func (m GetHeadersMessage) Encode() []byte {
	var buf bytes.Buffer

	var versionField [4]byte
	binary.LittleEndian.PutUint32(versionField[:], m.ProtocolVersion)
	buf.Write(versionField[:])

	buf.WriteByte(1) // num_block_locator_hashes
	buf.Write(m.LocatorHash[:])
	buf.Write(m.StopHash[:])

	return buf.Bytes()
}

// DecodeGetHeadersMessage parses a getheaders payload. It reads however
// many locator hashes the count prefix declares but only the first is
// meaningful to this network's server loop.
func DecodeGetHeadersMessage(payload []byte) (GetHeadersMessage, error) {
	r := bytes.NewReader(payload)
	var m GetHeadersMessage

	var versionField [4]byte
	if _, err := io.ReadFull(r, versionField[:]); err != nil {
		return m, fmt.Errorf("protocol: getheaders.version: %w", err)
	}
	m.ProtocolVersion = binary.LittleEndian.Uint32(versionField[:])

	count, err := wire.ReadVarInt(r)
	if err != nil {
		return m, fmt.Errorf("protocol: getheaders.locator_count: %w", err)
	}
	if count == 0 {
		return m, fmt.Errorf("protocol: getheaders has no locator hash")
	}
	if _, err := io.ReadFull(r, m.LocatorHash[:]); err != nil {
		return m, fmt.Errorf("protocol: getheaders.locator_hash: %w", err)
	}
	for i := uint64(1); i < count; i++ {
		var discard wire.Hash
		if _, err := io.ReadFull(r, discard[:]); err != nil {
			return m, fmt.Errorf("protocol: getheaders.locator_hash[%d]: %w", i, err)
		}
	}

	if _, err := io.ReadFull(r, m.StopHash[:]); err != nil {
		return m, fmt.Errorf("protocol: getheaders.stop_hash: %w", err)
	}
	return m, nil
}

// HeadersMessage carries a count-prefixed list of block headers, each
// followed on the wire by a zero transaction-count byte.
type HeadersMessage struct {
	Headers []btcwire.BlockHeader
}

// Encode serializes a headers payload.
func (m HeadersMessage) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, uint64(len(m.Headers))); err != nil {
		return nil, err
	}
	for i := range m.Headers {
		if err := m.Headers[i].Serialize(&buf); err != nil {
			return nil, fmt.Errorf("protocol: headers[%d]: %w", i, err)
		}
		buf.WriteByte(0) // tx_count = 0: headers-only, no transactions follow
	}
	return buf.Bytes(), nil
}

// DecodeHeadersMessage parses a headers payload. Per this network's
// retransmission behaviour, a malformed or zero-PoW header can appear
// at the end of the stream as padding; the caller (the header sync
// engine) is responsible for stopping at the first such header rather
// than treating it as a parse error. DecodeHeadersMessage itself parses
// every 80-byte header it can and is tolerant of either a trailing
// zero-count byte or no trailing byte at all, to be robust to server
// variants.
func DecodeHeadersMessage(payload []byte) (HeadersMessage, error) {
	r := bytes.NewReader(payload)
	count, err := wire.ReadVarInt(r)
	if err != nil {
		return HeadersMessage{}, fmt.Errorf("protocol: headers.count: %w", err)
	}

	headers := make([]btcwire.BlockHeader, 0, count)
	for i := uint64(0); i < count; i++ {
		var h btcwire.BlockHeader
		if err := h.Deserialize(r); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return HeadersMessage{}, fmt.Errorf("protocol: headers[%d]: %w", i, err)
		}
		headers = append(headers, h)

		// Consume the trailing tx-count byte when present; some servers
		// omit it on the final header of a truncated message.
		if txCountByte, err := r.ReadByte(); err == nil {
			if txCountByte != 0 {
				if err := r.UnreadByte(); err != nil {
					return HeadersMessage{}, err
				}
			}
		}
	}

	return HeadersMessage{Headers: headers}, nil
}
