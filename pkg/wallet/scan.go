package wallet

import (
	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/chainwatch/testnet-peer/pkg/protocol"
	"github.com/chainwatch/testnet-peer/pkg/wire"
)

// fixedOutputIndex is the output index recorded for every UTXO this
// wallet creates, regardless of the output's actual position in its
// transaction. Persisted UTXO records only carry a txid, not the
// index that produced them, so the index cannot be reliably
// reconstructed on reload; spent-output matching therefore keys on
// txid alone (see UTXOSet.RemoveByTxID). The fixed value still has
// effects: UTXOSet keys entries by (txid, index), so when one
// transaction has several outputs paying the watched address only the
// last one is kept, and BuildTransaction spends each UTXO at this
// index rather than at the output's real position.
const fixedOutputIndex = 1

// ScanBlock updates set by removing every UTXO spent by an input in
// block, then adding a new UTXO for every output that pays address.
func ScanBlock(set *UTXOSet, address string, publicKey []byte, block protocol.BlockMessage) {
	for _, tx := range block.Transactions {
		scanTransaction(set, address, publicKey, tx)
	}
}

func scanTransaction(set *UTXOSet, address string, publicKey []byte, tx *btcwire.MsgTx) {
	isChange := false
	for _, in := range tx.TxIn {
		prevTxID := wire.Hash(in.PreviousOutPoint.Hash)
		if set.RemoveByTxID(prevTxID.String()) {
			isChange = true
		}
	}

	txid := protocol.TxID(tx)
	for _, out := range tx.TxOut {
		outAddr, ok := wire.AddressFromScript(out.PkScript)
		if !ok || outAddr != address {
			continue
		}
		set.Add(UTXO{
			TxID:      txid.String(),
			Index:     fixedOutputIndex,
			Value:     out.Value,
			PublicKey: publicKey,
		}, isChange)
	}
}
