package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/chainwatch/testnet-peer/pkg/wire"
)

// NetAddr is the services+IPv6-mapped-IPv4+port triple carried by
// addr_recv and addr_trans in a version message. Port is big-endian on
// the wire, unlike every other numeric field in this protocol.
type NetAddr struct {
	Services uint64
	IP       net.IP
	Port     uint16
}

func (a NetAddr) encode(buf *bytes.Buffer) error {
	var services [8]byte
	binary.LittleEndian.PutUint64(services[:], a.Services)
	buf.Write(services[:])

	mapped := a.IP.To4()
	if mapped == nil {
		return fmt.Errorf("protocol: NetAddr requires an IPv4 address, got %s", a.IP)
	}
	buf.Write(net.IPv4(mapped[0], mapped[1], mapped[2], mapped[3]).To16())

	var port [2]byte
	binary.BigEndian.PutUint16(port[:], a.Port)
	buf.Write(port[:])
	return nil
}

func decodeNetAddr(r *bytes.Reader) (NetAddr, error) {
	var a NetAddr
	var services [8]byte
	if _, err := readFull(r, services[:]); err != nil {
		return a, err
	}
	a.Services = binary.LittleEndian.Uint64(services[:])

	var ip [16]byte
	if _, err := readFull(r, ip[:]); err != nil {
		return a, err
	}
	a.IP = net.IP(ip[:]).To4()

	var port [2]byte
	if _, err := readFull(r, port[:]); err != nil {
		return a, err
	}
	a.Port = binary.BigEndian.Uint16(port[:])
	return a, nil
}

func readFull(r *bytes.Reader, p []byte) (int, error) {
	n, err := r.Read(p)
	if err == nil && n < len(p) {
		err = fmt.Errorf("protocol: short read, got %d want %d", n, len(p))
	}
	return n, err
}

// VersionMessage is the payload of the version command that opens a
// handshake.
type VersionMessage struct {
	ProtocolVersion int32
	Services        uint64
	Timestamp       int64
	AddrRecv        NetAddr
	AddrFrom        NetAddr
	Nonce           uint64
	UserAgent       string
	StartHeight     int32
	Relay           bool
}

// NewVersionMessage builds a version message with the current wall-clock
// timestamp and an empty user-agent, matching the minimal handshake this
// network requires.
func NewVersionMessage(protocolVersion int32, addrRecv, addrFrom NetAddr, startHeight int32) VersionMessage {
	return VersionMessage{
		ProtocolVersion: protocolVersion,
		Services:        1,
		Timestamp:       time.Now().Unix(),
		AddrRecv:        addrRecv,
		AddrFrom:        addrFrom,
		Nonce:           0,
		UserAgent:       "",
		StartHeight:     startHeight,
		Relay:           true,
	}
}

// Encode serializes the version payload.
func (v VersionMessage) Encode() ([]byte, error) {
	var buf bytes.Buffer

	var versionField [4]byte
	binary.LittleEndian.PutUint32(versionField[:], uint32(v.ProtocolVersion))
	buf.Write(versionField[:])

	var services [8]byte
	binary.LittleEndian.PutUint64(services[:], v.Services)
	buf.Write(services[:])

	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(v.Timestamp))
	buf.Write(ts[:])

	if err := v.AddrRecv.encode(&buf); err != nil {
		return nil, err
	}
	if err := v.AddrFrom.encode(&buf); err != nil {
		return nil, err
	}

	var nonce [8]byte
	binary.LittleEndian.PutUint64(nonce[:], v.Nonce)
	buf.Write(nonce[:])

	if err := wire.WriteVarInt(&buf, uint64(len(v.UserAgent))); err != nil {
		return nil, err
	}
	buf.WriteString(v.UserAgent)

	var startHeight [4]byte
	binary.LittleEndian.PutUint32(startHeight[:], uint32(v.StartHeight))
	buf.Write(startHeight[:])

	relay := byte(0)
	if v.Relay {
		relay = 1
	}
	buf.WriteByte(relay)

	return buf.Bytes(), nil
}

// DecodeVersionMessage parses a version payload.
func DecodeVersionMessage(payload []byte) (VersionMessage, error) {
	r := bytes.NewReader(payload)
	var v VersionMessage

	var versionField [4]byte
	if _, err := readFull(r, versionField[:]); err != nil {
		return v, fmt.Errorf("protocol: version.protocol_version: %w", err)
	}
	v.ProtocolVersion = int32(binary.LittleEndian.Uint32(versionField[:]))

	var services [8]byte
	if _, err := readFull(r, services[:]); err != nil {
		return v, fmt.Errorf("protocol: version.services: %w", err)
	}
	v.Services = binary.LittleEndian.Uint64(services[:])

	var ts [8]byte
	if _, err := readFull(r, ts[:]); err != nil {
		return v, fmt.Errorf("protocol: version.timestamp: %w", err)
	}
	v.Timestamp = int64(binary.LittleEndian.Uint64(ts[:]))

	addrRecv, err := decodeNetAddr(r)
	if err != nil {
		return v, fmt.Errorf("protocol: version.addr_recv: %w", err)
	}
	v.AddrRecv = addrRecv

	addrFrom, err := decodeNetAddr(r)
	if err != nil {
		return v, fmt.Errorf("protocol: version.addr_from: %w", err)
	}
	v.AddrFrom = addrFrom

	var nonce [8]byte
	if _, err := readFull(r, nonce[:]); err != nil {
		return v, fmt.Errorf("protocol: version.nonce: %w", err)
	}
	v.Nonce = binary.LittleEndian.Uint64(nonce[:])

	uaLen, err := wire.ReadVarInt(r)
	if err != nil {
		return v, fmt.Errorf("protocol: version.user_agent length: %w", err)
	}
	ua := make([]byte, uaLen)
	if uaLen > 0 {
		if _, err := readFull(r, ua); err != nil {
			return v, fmt.Errorf("protocol: version.user_agent: %w", err)
		}
	}
	v.UserAgent = string(ua)

	var startHeight [4]byte
	if _, err := readFull(r, startHeight[:]); err != nil {
		return v, fmt.Errorf("protocol: version.start_height: %w", err)
	}
	v.StartHeight = int32(binary.LittleEndian.Uint32(startHeight[:]))

	relay, err := r.ReadByte()
	if err != nil {
		// Some peers omit the trailing relay byte entirely; default to true.
		v.Relay = true
		return v, nil
	}
	v.Relay = relay != 0

	return v, nil
}
