// Package wallet holds the client-side half of wallet registration: a
// locally generated or imported secp256k1 key used to prove address
// ownership to the backend. Custody of funds stays with the backend.
package wallet

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Key is a local signing key.
type Key struct {
	priv *ecdsa.PrivateKey
}

// Generate creates a fresh key.
func Generate() (*Key, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Key{priv: priv}, nil
}

// Import parses a hex-encoded private key, with or without the 0x prefix.
func Import(hexKey string) (*Key, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	priv, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("import key: %w", err)
	}
	return &Key{priv: priv}, nil
}

// Address returns the checksummed address derived from the key.
func (k *Key) Address() string {
	return crypto.PubkeyToAddress(k.priv.PublicKey).Hex()
}

// Export returns the hex-encoded private key for backup. Handle with care.
func (k *Key) Export() string {
	return hex.EncodeToString(crypto.FromECDSA(k.priv))
}

// SignChallenge signs a backend-issued registration nonce and returns the
// hex signature. The nonce is hashed as a personal-sign message so the
// signature cannot double as a transaction.
func (k *Key) SignChallenge(nonce string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(nonce)), k.priv)
	if err != nil {
		return "", fmt.Errorf("sign challenge: %w", err)
	}
	return hexutil.Encode(sig), nil
}

// VerifyChallenge checks a hex signature over nonce against an address.
// The backend does the authoritative check; this is for client-side tests
// and preflight validation.
func VerifyChallenge(address, nonce, hexSig string) (bool, error) {
	sig, err := hexutil.Decode(hexSig)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return false, fmt.Errorf("signature length %d, want %d", len(sig), crypto.SignatureLength)
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(nonce)), sig)
	if err != nil {
		return false, fmt.Errorf("recover public key: %w", err)
	}
	recovered := crypto.PubkeyToAddress(*pub)
	return strings.EqualFold(recovered.Hex(), address), nil
}
