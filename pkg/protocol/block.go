package protocol

import (
	"bytes"
	"fmt"

	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/chainwatch/testnet-peer/pkg/wire"
)

// BlockMessage is the payload of the block command: an 80-byte header
// followed by a varint-counted list of transactions.
type BlockMessage struct {
	Header       btcwire.BlockHeader
	Transactions []*btcwire.MsgTx
}

// Encode serializes the block payload.
func (m BlockMessage) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.Header.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("protocol: block.header: %w", err)
	}
	if err := wire.WriteVarInt(&buf, uint64(len(m.Transactions))); err != nil {
		return nil, err
	}
	for i, tx := range m.Transactions {
		if err := tx.Serialize(&buf); err != nil {
			return nil, fmt.Errorf("protocol: block.tx[%d]: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeBlockMessage parses a block payload.
func DecodeBlockMessage(payload []byte) (BlockMessage, error) {
	r := bytes.NewReader(payload)

	var header btcwire.BlockHeader
	if err := header.Deserialize(r); err != nil {
		return BlockMessage{}, fmt.Errorf("protocol: block.header: %w", err)
	}

	count, err := wire.ReadVarInt(r)
	if err != nil {
		return BlockMessage{}, fmt.Errorf("protocol: block.tx_count: %w", err)
	}

	txs := make([]*btcwire.MsgTx, 0, count)
	for i := uint64(0); i < count; i++ {
		tx := btcwire.NewMsgTx(btcwire.TxVersion)
		if err := tx.Deserialize(r); err != nil {
			return BlockMessage{}, fmt.Errorf("protocol: block.tx[%d]: %w", i, err)
		}
		txs = append(txs, tx)
	}

	return BlockMessage{Header: header, Transactions: txs}, nil
}

// BlockHash returns the block's double-SHA256 hash in internal byte
// order; its String method gives the reversed, display-order form.
func (m BlockMessage) BlockHash() wire.Hash {
	return m.Header.BlockHash()
}
