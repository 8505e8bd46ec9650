package sync

import (
	"bytes"
	"context"
	"fmt"
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

func TestPartitionHeadersEvenSplit(t *testing.T) {
	now := time.Now()
	headers := make([]btcwire.BlockHeader, 8)
	for i := range headers {
		headers[i] = btcwire.BlockHeader{Timestamp: now}
	}
	window := TimeWindow{Low: now.Add(-time.Hour), High: now.Add(time.Hour)}

	slices := PartitionHeaders(headers, window, 4)
	require.Len(t, slices, 4)
	for _, s := range slices {
		assert.Len(t, s, 2)
	}
}

func TestPartitionHeadersExcludesOutOfRange(t *testing.T) {
	now := time.Now()
	headers := []btcwire.BlockHeader{
		{Timestamp: now.Add(-48 * time.Hour)},
		{Timestamp: now},
		{Timestamp: now.Add(48 * time.Hour)},
	}
	window := TimeWindow{Low: now.Add(-time.Hour), High: now.Add(time.Hour)}

	slices := PartitionHeaders(headers, window, 2)
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	assert.Equal(t, 1, total)
}

func TestHasLongZeroRun(t *testing.T) {
	clean := bytes.Repeat([]byte{0x01}, 200)
	assert.False(t, hasLongZeroRun(clean))

	withRun := append(bytes.Repeat([]byte{0x01}, 10), bytes.Repeat([]byte{0x00}, zeroRunLength)...)
	assert.True(t, hasLongZeroRun(withRun))
}

// newTestSession wraps one end of a net.Pipe as a peer.Session without
// performing a handshake, for exercising the request/response loops in
// isolation.
func newTestSession(conn net.Conn) *peer.Session {
	return peer.Wrap(conn, "test-peer", zap.NewNop())
}

// TestHeaderWorkerStopsOnInvalidPoW exercises the padding-detection
// path: a header that fails proof-of-work (overwhelmingly likely for
// an arbitrary, unmined header) ends the round without error instead
// of being treated as a parse failure.
func TestHeaderWorkerStopsOnInvalidPoW(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	session := newTestSession(clientConn)
	log := zap.NewNop()

	seed := wire.DoubleSHA256([]byte("seed"))
	padding := btcwire.BlockHeader{
		Version:    1,
		Bits:       wire.MaxBits,
		PrevBlock:  seed,
		MerkleRoot: wire.DoubleSHA256([]byte("padding")),
		Timestamp:  time.Unix(1600000000, 0),
	}

	done := make(chan error, 1)
	go func() {
		if _, _, err := readFramed(serverConn); err != nil {
			done <- err
			return
		}
		msg := protocol.HeadersMessage{Headers: []btcwire.BlockHeader{padding}}
		framed, err := protocol.EncodeHeaders(msg)
		if err != nil {
			done <- err
			return
		}
		_, err = serverConn.Write(framed)
		done <- err
	}()

	w := &headerWorker{session: session, seed: seed, log: log}
	headers, err := w.run(context.Background())
	require.NoError(t, <-done)
	require.NoError(t, err)
	assert.Empty(t, headers)
}

func readFramed(conn net.Conn) (string, []byte, error) {
	return wire.ReadMessage(conn)
}

// buildHeaderChain constructs n headers chained by prev-hash starting
// from seed, with no regard for proof-of-work: callers that exercise
// this chain must substitute headerValid first.
func buildHeaderChain(n int, seed wire.Hash) []btcwire.BlockHeader {
	headers := make([]btcwire.BlockHeader, n)
	prev := seed
	for i := range headers {
		headers[i] = btcwire.BlockHeader{
			Version:   1,
			PrevBlock: prev,
			Timestamp: time.Unix(int64(1600000000+i), 0),
		}
		prev = headers[i].BlockHash()
	}
	return headers
}

// TestHeaderWorkerContinuesAcrossTwoRounds exercises a chain longer
// than a single getheaders response: the worker must re-issue
// getheaders from the last header it collected and keep going until
// it observes the configured stop-hash, yielding every header from
// both rounds with no duplicates.
func TestHeaderWorkerContinuesAcrossTwoRounds(t *testing.T) {
	original := headerValid
	headerValid = func(btcwire.BlockHeader) error { return nil }
	defer func() { headerValid = original }()

	clientConn, serverConn := net.Pipe()
	session := newTestSession(clientConn)
	log := zap.NewNop()

	seed := wire.DoubleSHA256([]byte("seed"))
	const total = 3000
	chain := buildHeaderChain(total, seed)

	done := make(chan error, 1)
	go func() {
		_, payload, err := readFramed(serverConn)
		if err != nil {
			done <- err
			return
		}
		req, err := protocol.DecodeGetHeadersMessage(payload)
		if err != nil {
			done <- err
			return
		}
		if req.LocatorHash != seed {
			done <- fmt.Errorf("round 1: unexpected locator %s", req.LocatorHash)
			return
		}
		framed, err := protocol.EncodeHeaders(protocol.HeadersMessage{Headers: chain[:protocol.MaxHeadersPerMessage]})
		if err != nil {
			done <- err
			return
		}
		if _, err := serverConn.Write(framed); err != nil {
			done <- err
			return
		}

		_, payload2, err := readFramed(serverConn)
		if err != nil {
			done <- err
			return
		}
		req2, err := protocol.DecodeGetHeadersMessage(payload2)
		if err != nil {
			done <- err
			return
		}
		wantLocator := chain[protocol.MaxHeadersPerMessage-1].BlockHash()
		if req2.LocatorHash != wantLocator {
			done <- fmt.Errorf("round 2: unexpected locator %s", req2.LocatorHash)
			return
		}
		framed2, err := protocol.EncodeHeaders(protocol.HeadersMessage{Headers: chain[protocol.MaxHeadersPerMessage:]})
		if err != nil {
			done <- err
			return
		}
		_, err = serverConn.Write(framed2)
		done <- err
	}()

	w := &headerWorker{
		session:  session,
		seed:     seed,
		nextSeed: chain[total-1].PrevBlock,
		hasNext:  true,
		log:      log,
	}
	headers, err := w.run(context.Background())
	require.NoError(t, <-done)
	require.NoError(t, err)
	require.Len(t, headers, total)
	assert.Equal(t, chain[0].BlockHash(), headers[0].BlockHash())
	assert.Equal(t, chain[total-1].BlockHash(), headers[total-1].BlockHash())
}
