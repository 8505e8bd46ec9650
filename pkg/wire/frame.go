package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// TestNetMagic is this network's 32-bit magic value.
const TestNetMagic uint32 = 0x0b110907

// CommandSize is the fixed, NUL-padded width of a message command name.
const CommandSize = 12

// HeaderSize is the size in bytes of the framing header that precedes
// every message payload: magic(4) + command(12) + length(4) + checksum(4).
const HeaderSize = 4 + CommandSize + 4 + 4

// Header is the fixed 24-byte envelope preceding every message payload.
type Header struct {
	Magic    uint32
	Command  string
	Length   uint32
	Checksum [4]byte
}

func commandBytes(command string) ([CommandSize]byte, error) {
	var out [CommandSize]byte
	if len(command) > CommandSize {
		return out, fmt.Errorf("wire: command %q longer than %d bytes", command, CommandSize)
	}
	copy(out[:], command)
	return out, nil
}

// EncodeFrame serializes command and payload into a ready-to-send byte
// sequence: header followed by the exact payload bytes.
func EncodeFrame(command string, payload []byte) ([]byte, error) {
	cmd, err := commandBytes(command)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], TestNetMagic)
	copy(buf[4:4+CommandSize], cmd[:])
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(payload)))

	checksum := DoubleSHA256(payload)
	copy(buf[20:24], checksum[:4])
	copy(buf[HeaderSize:], payload)

	return buf, nil
}

// ReadHeader reads and validates a 24-byte framing header from r,
// checking the magic value before returning.
func ReadHeader(r io.Reader) (Header, error) {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Header{}, fmt.Errorf("wire: read header: %w", err)
	}

	magic := binary.LittleEndian.Uint32(raw[0:4])
	if magic != TestNetMagic {
		return Header{}, fmt.Errorf("wire: bad magic 0x%08x, want 0x%08x", magic, TestNetMagic)
	}

	var h Header
	h.Magic = magic
	h.Command = trimCommand(raw[4 : 4+CommandSize])
	h.Length = binary.LittleEndian.Uint32(raw[16:20])
	copy(h.Checksum[:], raw[20:24])
	return h, nil
}

func trimCommand(raw []byte) string {
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	return string(raw[:end])
}

// ReadPayload reads exactly header.Length bytes from r, looping until
// satisfied since a single Read may return less than was requested,
// and verifies the checksum against the framing header.
func ReadPayload(r io.Reader, header Header) ([]byte, error) {
	payload := make([]byte, header.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("wire: read payload (%d bytes): %w", header.Length, err)
	}

	checksum := DoubleSHA256(payload)
	if checksum[0] != header.Checksum[0] || checksum[1] != header.Checksum[1] ||
		checksum[2] != header.Checksum[2] || checksum[3] != header.Checksum[3] {
		return nil, fmt.Errorf("wire: checksum mismatch on %q payload", header.Command)
	}

	return payload, nil
}

// ReadMessage reads one full framed message (header + payload) from r.
func ReadMessage(r io.Reader) (string, []byte, error) {
	header, err := ReadHeader(r)
	if err != nil {
		return "", nil, err
	}
	payload, err := ReadPayload(r, header)
	if err != nil {
		return "", nil, err
	}
	return header.Command, payload, nil
}
