package wallet

import (
	"testing"

	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainwatch/testnet-peer/pkg/protocol"
	"github.com/chainwatch/testnet-peer/pkg/wire"
)

func testAddressAndScript(t *testing.T, seed byte) (string, []byte) {
	t.Helper()
	pub := make([]byte, 33)
	pub[0] = 0x02
	for i := 1; i < len(pub); i++ {
		pub[i] = seed
	}
	address := wire.EncodeP2PKHAddress(pub)
	script, err := wire.P2PKHScript(address)
	require.NoError(t, err)
	return address, script
}

func blockWith(txs ...*btcwire.MsgTx) protocol.BlockMessage {
	return protocol.BlockMessage{Transactions: txs}
}

func TestScanBlockAddsUTXOForOwnedOutput(t *testing.T) {
	address, script := testAddressAndScript(t, 0x11)
	_, otherScript := testAddressAndScript(t, 0x22)

	tx := btcwire.NewMsgTx(btcwire.TxVersion)
	tx.AddTxOut(btcwire.NewTxOut(1500, otherScript))
	tx.AddTxOut(btcwire.NewTxOut(2500, script))

	set := NewUTXOSet()
	ScanBlock(set, address, []byte("pubkey"), blockWith(tx))

	assert.Equal(t, int64(2500), set.Balance())
	all := set.All()
	require.Len(t, all, 1)
	assert.Equal(t, protocol.TxID(tx).String(), all[0].TxID)
}

func TestScanBlockIgnoresOutputsForOtherAddresses(t *testing.T) {
	address, _ := testAddressAndScript(t, 0x11)
	_, otherScript := testAddressAndScript(t, 0x22)

	tx := btcwire.NewMsgTx(btcwire.TxVersion)
	tx.AddTxOut(btcwire.NewTxOut(1500, otherScript))

	set := NewUTXOSet()
	ScanBlock(set, address, []byte("pubkey"), blockWith(tx))

	assert.Equal(t, int64(0), set.Balance())
	assert.Empty(t, set.All())
}

func TestScanBlockSpendMarksNewOutputAsChange(t *testing.T) {
	address, script := testAddressAndScript(t, 0x11)

	fundingTx := btcwire.NewMsgTx(btcwire.TxVersion)
	fundingTx.AddTxOut(btcwire.NewTxOut(5000, script))

	set := NewUTXOSet()
	ScanBlock(set, address, []byte("pubkey"), blockWith(fundingTx))
	require.Equal(t, int64(5000), set.Balance())

	fundingTxID := protocol.TxID(fundingTx)
	spendTx := btcwire.NewMsgTx(btcwire.TxVersion)
	spendTx.AddTxIn(btcwire.NewTxIn(btcwire.NewOutPoint(&fundingTxID, fixedOutputIndex), nil, nil))
	spendTx.AddTxOut(btcwire.NewTxOut(4700, script))

	ScanBlock(set, address, []byte("pubkey"), blockWith(spendTx))

	all := set.All()
	require.Len(t, all, 1)
	assert.Equal(t, int64(4700), all[0].Value)
	assert.Equal(t, protocol.TxID(spendTx).String(), all[0].TxID)
	_, _, ok := set.SelectChangeForAmount(4700)
	assert.True(t, ok)
}

func TestScanBlockUnrelatedInputDoesNotMarkOutputAsChange(t *testing.T) {
	address, script := testAddressAndScript(t, 0x11)

	unrelated := btcwire.NewMsgTx(btcwire.TxVersion)
	unrelated.AddTxOut(btcwire.NewTxOut(999, script))

	var randomPrevTxID wire.Hash
	spendLike := btcwire.NewMsgTx(btcwire.TxVersion)
	spendLike.AddTxIn(btcwire.NewTxIn(btcwire.NewOutPoint(&randomPrevTxID, 0), nil, nil))
	spendLike.AddTxOut(btcwire.NewTxOut(999, script))

	set := NewUTXOSet()
	ScanBlock(set, address, []byte("pubkey"), blockWith(spendLike))

	all := set.All()
	require.Len(t, all, 1)
	// No prior UTXO matched this input's previous txid, so the new
	// output must not land in the change subset.
	_, _, ok := set.SelectChangeForAmount(1)
	assert.False(t, ok)
}
