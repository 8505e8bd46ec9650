package wire

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
)

// P2PKHVersion is the Base58Check version byte for testnet P2PKH
// addresses ("version=0x6F" in the spec).
const P2PKHVersion = 0x6f

// P2SHVersion is the Base58Check version byte for testnet P2SH
// addresses, recognised on decode but never produced by this module's
// own address-from-pubkey path.
const P2SHVersion = 0xc4

// EncodeP2PKHAddress derives the Base58Check P2PKH address for a public
// key: version ‖ hash160(pubkey) ‖ checksum. The checksum-then-encode
// step is base58.CheckEncode, which already implements this exact
// double-SHA256 checksum algorithm.
func EncodeP2PKHAddress(pubKey []byte) string {
	return base58.CheckEncode(btcutil.Hash160(pubKey), P2PKHVersion)
}

// DecodeP2PKHAddress reverses EncodeP2PKHAddress, returning the raw
// 20-byte hash160 payload. It rejects addresses with a version byte
// other than P2PKHVersion.
func DecodeP2PKHAddress(address string) ([]byte, error) {
	payload, version, err := base58.CheckDecode(address)
	if err != nil {
		return nil, fmt.Errorf("wire: decode address: %w", err)
	}
	if version != P2PKHVersion {
		return nil, fmt.Errorf("wire: address %q is not P2PKH (version 0x%02x)", address, version)
	}
	if len(payload) != 20 {
		return nil, fmt.Errorf("wire: address %q has a %d-byte payload, want 20", address, len(payload))
	}
	return payload, nil
}

// P2PKHScript builds the standard pay-to-public-key-hash script for an
// address: OP_DUP OP_HASH160 <20-byte hash> OP_EQUALVERIFY OP_CHECKSIG.
func P2PKHScript(address string) ([]byte, error) {
	hash, err := DecodeP2PKHAddress(address)
	if err != nil {
		return nil, err
	}
	script := make([]byte, 0, 25)
	script = append(script, 0x76, 0xa9, 0x14)
	script = append(script, hash...)
	script = append(script, 0x88, 0xac)
	return script, nil
}

// AddressFromScript recognises a 25-byte P2PKH or 23-byte P2SH script
// pattern and returns its Base58Check address. It returns ("", false)
// for any other script shape (including OP_RETURN and segwit outputs,
// which this module only ever needs to classify, not address).
func AddressFromScript(script []byte) (string, bool) {
	switch {
	case len(script) == 25 &&
		script[0] == 0x76 && script[1] == 0xa9 && script[2] == 0x14 &&
		script[23] == 0x88 && script[24] == 0xac:
		return base58.CheckEncode(script[3:23], P2PKHVersion), true

	case len(script) == 23 &&
		script[0] == 0xa9 && script[1] == 0x14 && script[22] == 0x87:
		return base58.CheckEncode(script[2:22], P2SHVersion), true

	default:
		return "", false
	}
}
