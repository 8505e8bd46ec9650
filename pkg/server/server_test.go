package server

import (
	"net"
	"testing"
	"time"

	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainwatch/testnet-peer/pkg/peer"
	"github.com/chainwatch/testnet-peer/pkg/protocol"
	"github.com/chainwatch/testnet-peer/pkg/wire"
)

func TestStoreGetHeadersStopsAtStopHashAndHonorsLocator(t *testing.T) {
	genesis := wire.DoubleSHA256([]byte("genesis"))
	h1 := btcwire.BlockHeader{PrevBlock: genesis}
	h1Hash := h1.BlockHash()
	h2 := btcwire.BlockHeader{PrevBlock: h1Hash}
	h2Hash := h2.BlockHash()
	h3 := btcwire.BlockHeader{PrevBlock: h2Hash}

	store := NewStore([]btcwire.BlockHeader{h1, h2, h3}, nil)

	headers := store.GetHeaders(genesis, h2Hash)
	require.Len(t, headers, 2)
	assert.Equal(t, h1, headers[0])
	assert.Equal(t, h2, headers[1])
}

func TestStoreGetBlockMatchesByHeaderPrevBlock(t *testing.T) {
	prev := wire.DoubleSHA256([]byte("prev"))
	block := protocol.BlockMessage{Header: btcwire.BlockHeader{PrevBlock: prev}}
	store := NewStore(nil, []protocol.BlockMessage{block})

	found, ok := store.GetBlock(prev)
	require.True(t, ok)
	assert.Equal(t, prev, found.Header.PrevBlock)

	_, ok = store.GetBlock(wire.DoubleSHA256([]byte("absent")))
	assert.False(t, ok)
}

func TestStoreGetTxFindsAcrossBlocks(t *testing.T) {
	tx := btcwire.NewMsgTx(btcwire.TxVersion)
	tx.AddTxOut(btcwire.NewTxOut(100, []byte{0x51}))
	block := protocol.BlockMessage{Transactions: []*btcwire.MsgTx{tx}}
	store := NewStore(nil, []protocol.BlockMessage{block})

	txid := protocol.TxID(tx)
	found, ok := store.GetTx(txid)
	require.True(t, ok)
	assert.Equal(t, tx, found)
}

func TestServeRespondsToGetData(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	log := zap.NewNop()

	tx := btcwire.NewMsgTx(btcwire.TxVersion)
	tx.AddTxOut(btcwire.NewTxOut(42, []byte{0x51}))
	txid := protocol.TxID(tx)
	block := protocol.BlockMessage{Transactions: []*btcwire.MsgTx{tx}}
	store := NewStore(nil, []protocol.BlockMessage{block})

	session := peer.Wrap(serverConn, "test-client", log)
	done := make(chan error, 1)
	go func() { done <- Serve(session, store, log) }()

	req := protocol.NewGetDataTx(txid)
	framed, err := protocol.EncodeGetData(req)
	require.NoError(t, err)
	require.NoError(t, clientConn.SetWriteDeadline(time.Now().Add(time.Second)))
	_, err = clientConn.Write(framed)
	require.NoError(t, err)

	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(time.Second)))
	command, _, err := wire.ReadMessage(clientConn)
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdTx, command)
}

func TestServeRespondsNotFoundForUnknownInventory(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	log := zap.NewNop()

	store := NewStore(nil, nil)
	session := peer.Wrap(serverConn, "test-client", log)
	go func() { _ = Serve(session, store, log) }()

	req := protocol.NewGetDataBlock(wire.DoubleSHA256([]byte("unknown")))
	framed, err := protocol.EncodeGetData(req)
	require.NoError(t, err)
	require.NoError(t, clientConn.SetWriteDeadline(time.Now().Add(time.Second)))
	_, err = clientConn.Write(framed)
	require.NoError(t, err)

	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(time.Second)))
	command, _, err := wire.ReadMessage(clientConn)
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdNotFound, command)
}
