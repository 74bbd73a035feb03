// Copyright 2025 Certen Protocol
//
// Ed25519 transaction signing for Aptos/Move payloads.

package move

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// Ed25519Signer implements Signer over a hex-encoded Ed25519 seed/private
// key, the key format internal/keyvault's cache stores hot keys in.
type Ed25519Signer struct{}

// NewEd25519Signer wires a stateless Ed25519Signer.
func NewEd25519Signer() *Ed25519Signer { return &Ed25519Signer{} }

func parsePrivateKey(privateKeyHex string) (ed25519.PrivateKey, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("aptos: decode private key: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("aptos: private key has unexpected length %d", len(raw))
	}
}

func (s *Ed25519Signer) PublicKeyHex(privateKeyHex string) (string, error) {
	key, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return "", err
	}
	pub, ok := key.Public().(ed25519.PublicKey)
	if !ok {
		return "", fmt.Errorf("aptos: derive public key")
	}
	return hex.EncodeToString(pub), nil
}

func (s *Ed25519Signer) Sign(privateKeyHex string, message []byte) (string, error) {
	key, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(key, message)
	return hex.EncodeToString(sig), nil
}
