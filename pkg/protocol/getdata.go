package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/chainwatch/testnet-peer/pkg/wire"
)

// InventoryMessage is the shared payload shape of getdata, inv, and
// notfound: a varint count followed by that many 36-byte (type, hash)
// entries.
type InventoryMessage struct {
	Entries []InvVect
}

// NewGetDataBlock builds a single-entry getdata payload requesting a block.
func NewGetDataBlock(hash wire.Hash) InventoryMessage {
	return InventoryMessage{Entries: []InvVect{{Type: InvTypeBlock, Hash: hash}}}
}

// NewGetDataTx builds a single-entry getdata payload requesting a transaction.
func NewGetDataTx(hash wire.Hash) InventoryMessage {
	return InventoryMessage{Entries: []InvVect{{Type: InvTypeTx, Hash: hash}}}
}

// Encode serializes the inventory payload.
func (m InventoryMessage) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, uint64(len(m.Entries))); err != nil {
		return nil, err
	}
	for _, e := range m.Entries {
		var typeField [4]byte
		binary.LittleEndian.PutUint32(typeField[:], uint32(e.Type))
		buf.Write(typeField[:])
		buf.Write(e.Hash[:])
	}
	return buf.Bytes(), nil
}

// DecodeInventoryMessage parses a getdata/inv/notfound payload.
func DecodeInventoryMessage(payload []byte) (InventoryMessage, error) {
	r := bytes.NewReader(payload)
	count, err := wire.ReadVarInt(r)
	if err != nil {
		return InventoryMessage{}, fmt.Errorf("protocol: inventory.count: %w", err)
	}

	entries := make([]InvVect, 0, count)
	for i := uint64(0); i < count; i++ {
		var typeField [4]byte
		if _, err := io.ReadFull(r, typeField[:]); err != nil {
			return InventoryMessage{}, fmt.Errorf("protocol: inventory[%d].type: %w", i, err)
		}
		var hash [32]byte
		if _, err := io.ReadFull(r, hash[:]); err != nil {
			return InventoryMessage{}, fmt.Errorf("protocol: inventory[%d].hash: %w", i, err)
		}
		entries = append(entries, InvVect{
			Type: InvType(binary.LittleEndian.Uint32(typeField[:])),
			Hash: hash,
		})
	}
	return InventoryMessage{Entries: entries}, nil
}
