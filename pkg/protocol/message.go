package protocol

import (
	"fmt"

	"github.com/chainwatch/testnet-peer/pkg/wire"
)

// EncodeVersion frames a version message ready for the socket.
func EncodeVersion(v VersionMessage) ([]byte, error) {
	payload, err := v.Encode()
	if err != nil {
		return nil, err
	}
	return wire.EncodeFrame(CmdVersion, payload)
}

// EncodeVerAck frames an empty-payload verack message.
func EncodeVerAck() ([]byte, error) {
	return wire.EncodeFrame(CmdVerAck, nil)
}

// EncodeGetHeaders frames a getheaders message.
func EncodeGetHeaders(m GetHeadersMessage) ([]byte, error) {
	return wire.EncodeFrame(CmdGetHeaders, m.Encode())
}

// EncodeHeaders frames a headers message.
func EncodeHeaders(m HeadersMessage) ([]byte, error) {
	payload, err := m.Encode()
	if err != nil {
		return nil, err
	}
	return wire.EncodeFrame(CmdHeaders, payload)
}

// EncodeGetData frames a getdata message.
func EncodeGetData(m InventoryMessage) ([]byte, error) {
	payload, err := m.Encode()
	if err != nil {
		return nil, err
	}
	return wire.EncodeFrame(CmdGetData, payload)
}

// EncodeInv frames an inv message.
func EncodeInv(m InventoryMessage) ([]byte, error) {
	payload, err := m.Encode()
	if err != nil {
		return nil, err
	}
	return wire.EncodeFrame(CmdInv, payload)
}

// EncodeNotFound frames a notfound message.
func EncodeNotFound(m InventoryMessage) ([]byte, error) {
	payload, err := m.Encode()
	if err != nil {
		return nil, err
	}
	return wire.EncodeFrame(CmdNotFound, payload)
}

// EncodeBlock frames a block message.
func EncodeBlock(m BlockMessage) ([]byte, error) {
	payload, err := m.Encode()
	if err != nil {
		return nil, err
	}
	return wire.EncodeFrame(CmdBlock, payload)
}

// EncodeTxMessage frames a tx message.
func EncodeTxMessage(payload []byte) ([]byte, error) {
	return wire.EncodeFrame(CmdTx, payload)
}

// ErrUnexpectedCommand is returned by pkg/peer's handshake helpers
// (expectVersion, expectVerAck) and by pkg/sync's header worker when a
// session receives a command other than the one it was waiting for.
type ErrUnexpectedCommand struct {
	Want string
	Got  string
}

func (e *ErrUnexpectedCommand) Error() string {
	return fmt.Sprintf("protocol: expected %q, got %q", e.Want, e.Got)
}
