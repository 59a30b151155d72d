package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	// PublicKeySize is the length of an Ed25519 public key in bytes.
	PublicKeySize = ed25519.PublicKeySize

	// PrivateKeySize is the length of an Ed25519 private key (seed + public key) in bytes.
	PrivateKeySize = ed25519.PrivateKeySize

	// SignatureSize is the length of an Ed25519 signature in bytes.
	SignatureSize = ed25519.SignatureSize
)

var (
	ErrInvalidPublicKey  = errors.New("invalid public key")
	ErrInvalidPrivateKey = errors.New("invalid private key size")
	ErrInvalidSignature  = errors.New("invalid signature")
)

// PublicKey represents a participant identity.
// In lay, the public key is the only identifier a participant has: there are no accounts.
// The implementation uses Ed25519 public keys.
type PublicKey []byte

// NewPublicKeyFromBytes creates a PublicKey from a byte slice.
// This function makes a copy of the input data to ensure immutability.
func NewPublicKeyFromBytes(data []byte) PublicKey {
	pk := make([]byte, len(data))
	copy(pk, data)
	return PublicKey(pk)
}

// ParsePublicKey decodes a base64-encoded public key.
// The decoded key must be exactly PublicKeySize bytes.
func ParsePublicKey(data string) (PublicKey, error) {
	rawBytes, err := base64.StdEncoding.Strict().DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(rawBytes) != PublicKeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidPublicKey, len(rawBytes))
	}
	return PublicKey(rawBytes), nil
}

// Bytes returns the public key as a byte slice.
func (pk PublicKey) Bytes() []byte {
	return pk
}

// Equal compares two public keys for equality in constant time.
func (pk PublicKey) Equal(other PublicKey) bool {
	return subtle.ConstantTimeCompare(pk, other) == 1
}

// String returns the base64 representation used on the wire and as the identity string.
func (pk PublicKey) String() string {
	return base64.StdEncoding.EncodeToString(pk)
}

// PrivateKey represents a private key used for signing envelopes.
// The implementation uses Ed25519 private keys.
type PrivateKey []byte

// NewPrivateKeyFromBytes creates a PrivateKey from a byte slice.
// This function makes a copy of the input data to ensure immutability.
func NewPrivateKeyFromBytes(data []byte) PrivateKey {
	sk := make([]byte, len(data))
	copy(sk, data)
	return PrivateKey(sk)
}

// NewPrivateKeyFromSeed derives the private key for a 32 byte Ed25519 seed.
func NewPrivateKeyFromSeed(seed []byte) (PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return PrivateKey(ed25519.NewKeyFromSeed(seed)), nil
}

// Bytes returns the private key as a byte slice.
// This method should be used carefully as it exposes sensitive key material.
func (sk PrivateKey) Bytes() []byte {
	return sk
}

// PublicKey derives the public key corresponding to this private key.
// For Ed25519, the public key is contained within the private key structure.
func (sk PrivateKey) PublicKey() (PublicKey, error) {
	if len(sk) != PrivateKeySize {
		return nil, ErrInvalidPrivateKey
	}
	return NewPublicKeyFromBytes(sk[32:]), nil
}

// GenerateKeyPair generates a new Ed25519 key pair.
// An error here means the entropy source failed; callers treat it as fatal.
func GenerateKeyPair() (PublicKey, PrivateKey, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generating ed25519 key: %w", err)
	}
	return PublicKey(publicKey), PrivateKey(privateKey), nil
}

// Signature represents an Ed25519 signature over the canonical bytes of an envelope.
type Signature []byte

// NewSignature creates a Signature from a byte slice.
// This function makes a copy of the input data to ensure immutability.
func NewSignature(data []byte) Signature {
	sig := make([]byte, len(data))
	copy(sig, data)
	return Signature(sig)
}

// ParseSignature decodes a base64-encoded signature.
// The decoded signature must be exactly SignatureSize bytes.
func ParseSignature(data string) (Signature, error) {
	rawBytes, err := base64.StdEncoding.Strict().DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(rawBytes) != SignatureSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidSignature, len(rawBytes))
	}
	return Signature(rawBytes), nil
}

// Bytes returns the signature as a byte slice.
func (s Signature) Bytes() []byte {
	return []byte(s)
}

// Verify checks if this signature is valid for the given data and public key.
func (s Signature) Verify(publicKey PublicKey, data []byte) bool {
	return Verify(publicKey, data, s)
}

// String returns the base64 representation used on the wire.
func (s Signature) String() string {
	return base64.StdEncoding.EncodeToString(s.Bytes())
}

// Sign signs data with the given private key using Ed25519.
func Sign(privateKey PrivateKey, data []byte) (Signature, error) {
	if len(privateKey) != PrivateKeySize {
		return nil, ErrInvalidPrivateKey
	}
	signature := ed25519.Sign(ed25519.PrivateKey(privateKey), data)
	return Signature(signature), nil
}

// Verify reports whether signature is a valid signature of data by publicKey.
// Undersized or oversized keys and signatures verify as false instead of panicking.
func Verify(publicKey PublicKey, data []byte, signature Signature) bool {
	if len(publicKey) != PublicKeySize || len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), data, signature)
}
