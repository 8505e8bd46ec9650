package wallet

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"

	"github.com/chainwatch/testnet-peer/pkg/wire"
)

// GeneratedKey is a freshly generated wallet identity: the BIP-39
// mnemonic that is its only durable backup, the derived signing key,
// and the testnet P2PKH address it controls.
type GeneratedKey struct {
	Mnemonic   string
	PrivateKey *btcec.PrivateKey
	PublicKey  []byte
	Address    string
}

// keyDerivationInfo distinguishes this module's HKDF output from any
// other use of the same BIP-39 seed.
const keyDerivationInfo = "testnet-peer wallet key"

// GenerateKey creates a new 128-bit-entropy BIP-39 mnemonic and
// derives a single secp256k1 signing key from its seed via
// HKDF-SHA256. This is a flat, single-account derivation rather than
// BIP-32/BIP-44's hierarchical tree — sufficient for a node that
// tracks exactly one watched address, and avoids hand-rolling a
// non-standard derivation path for a multi-account tree nothing here
// needs.
func GenerateKey() (*GeneratedKey, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return nil, fmt.Errorf("wallet: generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("wallet: generate mnemonic: %w", err)
	}

	key, err := deriveKey(mnemonic)
	if err != nil {
		return nil, err
	}
	key.Mnemonic = mnemonic
	return key, nil
}

// RestoreKey re-derives the same signing key GenerateKey would have
// produced for an already-recorded mnemonic, for an operator
// recovering a node from its backup phrase.
func RestoreKey(mnemonic string) (*GeneratedKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("wallet: invalid mnemonic")
	}
	key, err := deriveKey(mnemonic)
	if err != nil {
		return nil, err
	}
	key.Mnemonic = mnemonic
	return key, nil
}

func deriveKey(mnemonic string) (*GeneratedKey, error) {
	seed := bip39.NewSeed(mnemonic, "")
	reader := hkdf.New(sha256.New, seed, nil, []byte(keyDerivationInfo))

	var scalar [32]byte
	if _, err := io.ReadFull(reader, scalar[:]); err != nil {
		return nil, fmt.Errorf("wallet: derive key: %w", err)
	}

	priv, pub := btcec.PrivKeyFromBytes(scalar[:])
	pubKey := pub.SerializeCompressed()
	return &GeneratedKey{
		PrivateKey: priv,
		PublicKey:  pubKey,
		Address:    wire.EncodeP2PKHAddress(pubKey),
	}, nil
}
