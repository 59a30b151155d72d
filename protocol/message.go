package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/flashbots/lay/crypto"
)

// ErrReservedField is returned when a payload defines a field that collides
// with one of the envelope fields.
var ErrReservedField = errors.New("payload field collides with envelope field")

// Signed is the envelope every request and record travels in.
// The signature covers the canonical encoding of key, server, timestamp and the
// flattened payload fields, with the signature itself left out.
type Signed[T any] struct {
	// Key is the base64 Ed25519 public key of the author.
	Key string
	// Server is the origin identifier chosen by the author.
	Server string
	// Timestamp is supplied by the author, not the relay.
	Timestamp uint64
	Data      T
	// Signature is the base64 Ed25519 signature, empty while signing.
	Signature string
}

// NewSigned creates a signed envelope around data.
func NewSigned[T any](privkey crypto.PrivateKey, server string, timestamp uint64, data T) (*Signed[T], error) {
	pubkey, err := privkey.PublicKey()
	if err != nil {
		return nil, err
	}

	signed := &Signed[T]{
		Key:       pubkey.String(),
		Server:    server,
		Timestamp: timestamp,
		Data:      data,
	}

	canonical, err := signed.Canonical()
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(privkey, canonical)
	if err != nil {
		return nil, err
	}

	signed.Signature = signature.String()
	return signed, nil
}

// Canonical returns the bytes that are signed and verified.
func (s *Signed[T]) Canonical() ([]byte, error) {
	fields, err := s.fields(false)
	if err != nil {
		return nil, err
	}
	return CanonicalJSON(fields)
}

// Verify reports whether the envelope carries a valid signature by Key.
// Malformed keys, signatures or payloads verify as false.
func (s *Signed[T]) Verify() bool {
	if s == nil {
		return false
	}
	pubkey, err := crypto.ParsePublicKey(s.Key)
	if err != nil {
		return false
	}
	signature, err := crypto.ParseSignature(s.Signature)
	if err != nil {
		return false
	}
	canonical, err := s.Canonical()
	if err != nil {
		return false
	}
	return crypto.Verify(pubkey, canonical, signature)
}

// PublicKey parses the author key.
func (s *Signed[T]) PublicKey() (crypto.PublicKey, error) {
	return crypto.ParsePublicKey(s.Key)
}

// MarshalJSON flattens the payload next to the envelope fields.
func (s Signed[T]) MarshalJSON() ([]byte, error) {
	fields, err := s.fields(true)
	if err != nil {
		return nil, err
	}
	return CanonicalJSON(fields)
}

// UnmarshalJSON decodes the envelope fields and the flattened payload.
// Numbers inside free-form payload values are kept as json.Number so that
// re-encoding reproduces the literal the author signed.
func (s *Signed[T]) UnmarshalJSON(data []byte) error {
	var header struct {
		Key       string `json:"key"`
		Server    string `json:"server"`
		Timestamp uint64 `json:"timestamp"`
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return err
	}

	var payload T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return err
	}

	s.Key = header.Key
	s.Server = header.Server
	s.Timestamp = header.Timestamp
	s.Signature = header.Signature
	s.Data = payload
	return nil
}

func (s *Signed[T]) fields(withSignature bool) (map[string]any, error) {
	fields, err := payloadFields(s.Data)
	if err != nil {
		return nil, err
	}

	fields["key"] = s.Key
	fields["server"] = s.Server
	fields["timestamp"] = s.Timestamp
	if withSignature && s.Signature != "" {
		fields["signature"] = s.Signature
	}
	return fields, nil
}

// UnmarshalMessage deserializes a message from JSON bytes.
func UnmarshalMessage[T any](data []byte) (*T, error) {
	var msg T
	err := json.Unmarshal(data, &msg)
	return &msg, err
}

// DecodeMessage deserializes a message from a JSON reader.
func DecodeMessage[T any](reader io.Reader) (*T, error) {
	var msg T
	err := json.NewDecoder(reader).Decode(&msg)
	return &msg, err
}

// SerializeMessage serializes a message to JSON bytes.
func SerializeMessage[T any](msg *T) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}
	return data, nil
}
