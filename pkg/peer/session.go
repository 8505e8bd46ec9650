// Package peer implements the TCP session and handshake state machine
// for one connection to a remote node: version/verack exchange,
// framed send/receive, and per-session diagnostics.
package peer

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainwatch/testnet-peer/pkg/protocol"
	"github.com/chainwatch/testnet-peer/pkg/wire"
)

// ConnectTimeout bounds how long dialing a peer may take.
const ConnectTimeout = 2 * time.Second

// ReadTimeout is applied while draining a socket during a getdata
// retry; it is not applied on the steady-state read path, where
// messages may legitimately take longer to arrive.
const ReadTimeout = 1 * time.Second

// Session wraps one peer connection once the handshake has completed.
type Session struct {
	ID      string
	Addr    string
	conn    net.Conn
	log     *zap.Logger
	started bool
}

// Dial opens a TCP connection to addr with ConnectTimeout and performs
// the client side of the handshake: send version, read the peer's
// version, send verack, read the peer's verack.
func Dial(addr string, version protocol.VersionMessage, log *zap.Logger) (*Session, error) {
	conn, err := net.DialTimeout("tcp", addr, ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("peer: dial %s: %w", addr, err)
	}

	s := newSession(conn, addr, log)
	if err := s.clientHandshake(version); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Accept wraps an already-accepted connection and performs the server
// side of the handshake: read the peer's version, send ours, send
// verack, read the peer's verack.
func Accept(conn net.Conn, version protocol.VersionMessage, log *zap.Logger) (*Session, error) {
	s := newSession(conn, conn.RemoteAddr().String(), log)
	if err := s.serverHandshake(version); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Wrap constructs a Session around a connection that has already
// completed a handshake, for callers (and tests) driving the
// request/response loop directly without going through Dial/Accept.
func Wrap(conn net.Conn, addr string, log *zap.Logger) *Session {
	s := newSession(conn, addr, log)
	s.started = true
	return s
}

func newSession(conn net.Conn, addr string, log *zap.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:   id,
		Addr: addr,
		conn: conn,
		log:  log.With(zap.String("session_id", id), zap.String("peer_addr", addr)),
	}
}

func (s *Session) clientHandshake(version protocol.VersionMessage) error {
	if err := s.sendVersion(version); err != nil {
		return err
	}
	if _, err := s.expectVersion(); err != nil {
		return err
	}
	if err := s.sendVerAck(); err != nil {
		return err
	}
	if err := s.expectVerAck(); err != nil {
		return err
	}
	s.started = true
	s.log.Debug("client handshake complete")
	return nil
}

func (s *Session) serverHandshake(version protocol.VersionMessage) error {
	if _, err := s.expectVersion(); err != nil {
		return err
	}
	if err := s.sendVersion(version); err != nil {
		return err
	}
	if err := s.sendVerAck(); err != nil {
		return err
	}
	if err := s.expectVerAck(); err != nil {
		return err
	}
	s.started = true
	s.log.Debug("server handshake complete")
	return nil
}

func (s *Session) sendVersion(v protocol.VersionMessage) error {
	framed, err := protocol.EncodeVersion(v)
	if err != nil {
		return fmt.Errorf("peer: encode version: %w", err)
	}
	return s.write(framed)
}

func (s *Session) sendVerAck() error {
	framed, err := protocol.EncodeVerAck()
	if err != nil {
		return fmt.Errorf("peer: encode verack: %w", err)
	}
	return s.write(framed)
}

func (s *Session) expectVersion() (protocol.VersionMessage, error) {
	command, payload, err := s.Receive()
	if err != nil {
		return protocol.VersionMessage{}, err
	}
	if command != protocol.CmdVersion {
		return protocol.VersionMessage{}, &protocol.ErrUnexpectedCommand{Want: protocol.CmdVersion, Got: command}
	}
	return protocol.DecodeVersionMessage(payload)
}

func (s *Session) expectVerAck() error {
	command, _, err := s.Receive()
	if err != nil {
		return err
	}
	if command != protocol.CmdVerAck {
		return &protocol.ErrUnexpectedCommand{Want: protocol.CmdVerAck, Got: command}
	}
	return nil
}

func (s *Session) write(framed []byte) error {
	_, err := s.conn.Write(framed)
	if err != nil {
		return fmt.Errorf("peer: write to %s: %w", s.Addr, err)
	}
	return nil
}

// Send writes a fully-framed message to the peer.
func (s *Session) Send(framed []byte) error {
	return s.write(framed)
}

// Receive reads exactly one framed message, looping internally until
// the declared payload length is satisfied.
func (s *Session) Receive() (string, []byte, error) {
	command, payload, err := wire.ReadMessage(s.conn)
	if err != nil {
		return "", nil, fmt.Errorf("peer: receive from %s: %w", s.Addr, err)
	}
	return command, payload, nil
}

// SetReadDeadline applies a deadline used while draining the socket
// during a getdata retry; callers must clear it (zero time.Time)
// before resuming the steady-state read path.
func (s *Session) SetReadDeadline(d time.Time) error {
	return s.conn.SetReadDeadline(d)
}

// Drain discards any bytes currently buffered on the socket within
// ReadTimeout, used to resynchronize after a malformed or unexpected
// response before retrying a request.
func (s *Session) Drain() {
	_ = s.conn.SetReadDeadline(time.Now().Add(ReadTimeout))
	buf := make([]byte, 4096)
	for {
		if _, err := s.conn.Read(buf); err != nil {
			break
		}
	}
	_ = s.conn.SetReadDeadline(time.Time{})
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}
