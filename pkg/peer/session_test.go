package peer

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainwatch/testnet-peer/pkg/protocol"
)

func testVersion(startHeight int32) protocol.VersionMessage {
	addr := protocol.NetAddr{Services: 1, IP: net.ParseIP("127.0.0.1"), Port: 18333}
	return protocol.NewVersionMessage(int32(protocol.ProtocolVersion), addr, addr, startHeight)
}

func TestHandshakeClientServer(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	log := zap.NewNop()

	type result struct {
		session *Session
		err     error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)

	go func() {
		s, err := Accept(serverConn, testVersion(200), log)
		serverCh <- result{s, err}
	}()
	go func() {
		s, err := clientHandshakeOver(clientConn, testVersion(100), log)
		clientCh <- result{s, err}
	}()

	clientResult := <-clientCh
	serverResult := <-serverCh

	require.NoError(t, clientResult.err)
	require.NoError(t, serverResult.err)
	assert.True(t, clientResult.session.started)
	assert.True(t, serverResult.session.started)
}

// clientHandshakeOver runs the client side of the handshake over an
// already-connected net.Conn, mirroring Dial without the TCP dial step
// so the handshake can be exercised against net.Pipe in tests.
func clientHandshakeOver(conn net.Conn, version protocol.VersionMessage, log *zap.Logger) (*Session, error) {
	s := newSession(conn, "pipe", log)
	if err := s.clientHandshake(version); err != nil {
		return nil, err
	}
	return s, nil
}

func TestExpectVersionRejectsWrongCommand(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	log := zap.NewNop()

	s := newSession(clientConn, "pipe", log)

	go func() {
		framed, _ := protocol.EncodeVerAck()
		serverConn.Write(framed)
	}()

	_, err := s.expectVersion()
	assert.Error(t, err)
}
