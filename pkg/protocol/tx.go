package protocol

import (
	"bytes"
	"fmt"

	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/chainwatch/testnet-peer/pkg/wire"
)

// EncodeTx serializes a transaction for the tx command payload.
func EncodeTx(tx *btcwire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("protocol: tx serialize: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeTx parses a tx command payload. Witness-marker transactions are
// recognised transparently by btcwire.MsgTx.Deserialize, which excludes
// witness data from TxHash's preimage.
func DecodeTx(payload []byte) (*btcwire.MsgTx, error) {
	tx := btcwire.NewMsgTx(btcwire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("protocol: tx deserialize: %w", err)
	}
	return tx, nil
}

// TxID returns the transaction's double-SHA256 hash in internal byte
// order; its String method gives the reversed, display-order txid.
func TxID(tx *btcwire.MsgTx) wire.Hash {
	return tx.TxHash()
}
