package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarIntRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 0xfc, 0xfd, 0xffff, 0x10000, 0xffffffff, 0x100000000, 1<<64 - 1}

	for _, v := range values {
		var buf bytes.Buffer
		require.NoError(t, WriteVarInt(&buf, v))
		assert.Equal(t, VarIntSize(v), buf.Len())
		assert.Equal(t, EncodeVarInt(v), buf.Bytes())

		got, err := ReadVarInt(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestReadVarIntShortRead(t *testing.T) {
	_, err := ReadVarInt(bytes.NewReader([]byte{0xfd, 0x01}))
	assert.Error(t, err)
}

func TestDoubleSHA256(t *testing.T) {
	h := DoubleSHA256([]byte("hello"))
	again := DoubleSHA256([]byte("hello"))
	assert.Equal(t, h, again)

	other := DoubleSHA256([]byte("world"))
	assert.NotEqual(t, h, other)
}

func TestReverseBytes(t *testing.T) {
	in := []byte{0x01, 0x02, 0x03, 0x04}
	want := []byte{0x04, 0x03, 0x02, 0x01}
	assert.Equal(t, want, ReverseBytes(in))
}

func TestCompactToTargetDifficultyOne(t *testing.T) {
	target := CompactToTarget(MaxBits)

	var want [32]byte
	want[0], want[1], want[2], want[3] = 0x00, 0x00, 0x00, 0x00
	want[4] = 0xff
	want[5] = 0xff
	assert.Equal(t, want, target)
}

func TestCompactToTargetSmallExponent(t *testing.T) {
	// size <= 3 shifts the mantissa right instead of left.
	target := CompactToTarget(0x03123456)
	var want [32]byte
	want[29] = 0x12
	want[30] = 0x34
	want[31] = 0x56
	assert.Equal(t, want, target)
}

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte("payload-bytes")
	encoded, err := EncodeFrame("verack", payload)
	require.NoError(t, err)

	command, decoded, err := ReadMessage(bytes.NewReader(encoded))
	require.NoError(t, err)
	assert.Equal(t, "verack", command)
	assert.Equal(t, payload, decoded)
}

func TestFrameRejectsBadMagic(t *testing.T) {
	encoded, err := EncodeFrame("verack", nil)
	require.NoError(t, err)
	encoded[0] ^= 0xff

	_, _, err = ReadMessage(bytes.NewReader(encoded))
	assert.Error(t, err)
}

func TestFrameRejectsTamperedPayload(t *testing.T) {
	encoded, err := EncodeFrame("tx", []byte("original"))
	require.NoError(t, err)
	encoded[len(encoded)-1] ^= 0xff

	_, _, err = ReadMessage(bytes.NewReader(encoded))
	assert.Error(t, err)
}

func TestCommandTooLong(t *testing.T) {
	_, err := EncodeFrame("this-command-name-is-far-too-long", nil)
	assert.Error(t, err)
}

func TestP2PKHAddressRoundTrip(t *testing.T) {
	pubKey := bytes.Repeat([]byte{0x02}, 33)
	address := EncodeP2PKHAddress(pubKey)

	hash, err := DecodeP2PKHAddress(address)
	require.NoError(t, err)
	assert.Len(t, hash, 20)

	script, err := P2PKHScript(address)
	require.NoError(t, err)
	assert.Len(t, script, 25)

	recovered, ok := AddressFromScript(script)
	require.True(t, ok)
	assert.Equal(t, address, recovered)
}

func TestDecodeP2PKHAddressWrongVersion(t *testing.T) {
	// A mainnet P2PKH address (version 0x00) must be rejected by a
	// testnet-only decoder.
	_, err := DecodeP2PKHAddress("1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2")
	assert.Error(t, err)
}

func TestAddressFromScriptUnrecognised(t *testing.T) {
	_, ok := AddressFromScript([]byte{0x6a, 0x04, 0xde, 0xad, 0xbe, 0xef})
	assert.False(t, ok)
}
