package wallet

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	btcwire "github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/chainwatch/testnet-peer/pkg/peer"
	"github.com/chainwatch/testnet-peer/pkg/protocol"
	"github.com/chainwatch/testnet-peer/pkg/wire"
)

// Fee is the fixed network fee, in satoshis, subtracted from a spend's
// change output.
const Fee = 300

// SignedTransaction is a built and signed spend ready for broadcast.
type SignedTransaction struct {
	Tx  *btcwire.MsgTx
	ID  wire.Hash
	Raw []byte
}

// BuildTransaction selects UTXOs from set's change subset until their
// sum covers amount, builds a P2PKH spend to recipientAddress (with
// any leftover returned to senderAddress minus Fee), signs every
// input, and returns the signed transaction. It fails if the change
// subset cannot cover amount.
func BuildTransaction(set *UTXOSet, privKey *btcec.PrivateKey, senderAddress, recipientAddress string, amount int64) (*SignedTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("wallet: amount must be positive")
	}

	selected, total, ok := set.SelectChangeForAmount(amount)
	if !ok {
		return nil, fmt.Errorf("wallet: insufficient confirmed balance: need %d, have %d", amount, total)
	}

	senderScript, err := wire.P2PKHScript(senderAddress)
	if err != nil {
		return nil, fmt.Errorf("wallet: sender address: %w", err)
	}
	recipientScript, err := wire.P2PKHScript(recipientAddress)
	if err != nil {
		return nil, fmt.Errorf("wallet: recipient address: %w", err)
	}

	tx := btcwire.NewMsgTx(btcwire.TxVersion)

	// previousScripts[i] holds input i's previous scriptPubKey, the
	// value that step 4's sighash placeholder inserts for that input
	// and empties for every other.
	previousScripts := make([][]byte, len(selected))
	for i, u := range selected {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("wallet: selected utxo %s: %w", u.TxID, err)
		}
		outpoint := btcwire.NewOutPoint(hash, u.Index)
		txIn := btcwire.NewTxIn(outpoint, nil, nil)
		txIn.Sequence = btcwire.MaxTxInSequenceNum
		tx.AddTxIn(txIn)
		previousScripts[i] = senderScript
	}

	tx.AddTxOut(btcwire.NewTxOut(amount, recipientScript))

	change := total - amount - Fee
	if change > 0 {
		tx.AddTxOut(btcwire.NewTxOut(change, senderScript))
	}

	for i := range tx.TxIn {
		sigScript, err := txscript.SignatureScript(tx, i, previousScripts[i], txscript.SigHashAll, privKey, true)
		if err != nil {
			return nil, fmt.Errorf("wallet: sign input %d: %w", i, err)
		}
		tx.TxIn[i].SignatureScript = sigScript
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("wallet: serialize transaction: %w", err)
	}

	return &SignedTransaction{
		Tx:  tx,
		ID:  protocol.TxID(tx),
		Raw: buf.Bytes(),
	}, nil
}

// Broadcast writes the signed transaction to every established peer
// session, continuing past any individual send failure and returning
// the first error encountered, if any.
func Broadcast(signed *SignedTransaction, sessions []*peer.Session, log *zap.Logger) error {
	payload, err := protocol.EncodeTx(signed.Tx)
	if err != nil {
		return fmt.Errorf("wallet: encode tx: %w", err)
	}
	framed, err := protocol.EncodeTxMessage(payload)
	if err != nil {
		return fmt.Errorf("wallet: encode tx message: %w", err)
	}

	var firstErr error
	for _, s := range sessions {
		if err := s.Send(framed); err != nil {
			log.Warn("broadcast to peer failed", zap.String("peer_addr", s.Addr), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		log.Info("broadcast transaction", zap.String("peer_addr", s.Addr), zap.String("txid", signed.ID.String()))
	}
	return firstErr
}
