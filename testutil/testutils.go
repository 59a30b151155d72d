package testutil

import (
	"fmt"
	"sync/atomic"

	"github.com/flashbots/lay/crypto"
	"github.com/flashbots/lay/protocol"
)

// TestIdentity is a key pair with a private timestamp counter for building
// envelopes in tests.
type TestIdentity struct {
	PublicKey  crypto.PublicKey
	PrivateKey crypto.PrivateKey
	Server     string

	clock atomic.Uint64
}

// NewTestIdentity generates a fresh identity. It panics if key generation
// fails, which only happens when the system entropy source is broken.
func NewTestIdentity() *TestIdentity {
	pk, sk, err := crypto.GenerateKeyPair()
	if err != nil {
		panic(fmt.Sprintf("generating test key pair: %v", err))
	}
	return &TestIdentity{PublicKey: pk, PrivateKey: sk, Server: "test-relay"}
}

// Key returns the base64 public key.
func (id *TestIdentity) Key() string {
	return id.PublicKey.String()
}

// NextTimestamp returns a strictly increasing timestamp starting at 1.
func (id *TestIdentity) NextTimestamp() uint64 {
	return id.clock.Add(1)
}

// EnvelopeOption customizes envelopes built by the helpers below.
type EnvelopeOption func(*envelopeOptions)

type envelopeOptions struct {
	timestamp uint64
	server    string
	metadata  protocol.Metadata
}

// WithTimestamp pins the envelope timestamp instead of using the identity clock.
func WithTimestamp(ts uint64) EnvelopeOption {
	return func(o *envelopeOptions) { o.timestamp = ts }
}

// WithServer overrides the origin field.
func WithServer(server string) EnvelopeOption {
	return func(o *envelopeOptions) { o.server = server }
}

// WithMetadata attaches metadata to posts, post requests and profiles.
func WithMetadata(md protocol.Metadata) EnvelopeOption {
	return func(o *envelopeOptions) { o.metadata = md }
}

func (id *TestIdentity) options(opts []EnvelopeOption) envelopeOptions {
	o := envelopeOptions{server: id.Server}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timestamp == 0 {
		o.timestamp = id.NextTimestamp()
	}
	return o
}

func mustSign[T any](id *TestIdentity, o envelopeOptions, data T) *protocol.Signed[T] {
	signed, err := protocol.NewSigned(id.PrivateKey, o.server, o.timestamp, data)
	if err != nil {
		panic(fmt.Sprintf("signing test envelope: %v", err))
	}
	return signed
}

// Post builds a signed post on the default channel.
func (id *TestIdentity) Post(content string, opts ...EnvelopeOption) *protocol.Signed[protocol.Post] {
	o := id.options(opts)
	return mustSign(id, o, protocol.Post{Channel: protocol.DefaultChannel, Content: content, Metadata: o.metadata})
}

// PostTo builds a signed post on channel.
func (id *TestIdentity) PostTo(channel, content string, opts ...EnvelopeOption) *protocol.Signed[protocol.Post] {
	o := id.options(opts)
	return mustSign(id, o, protocol.Post{Channel: channel, Content: content, Metadata: o.metadata})
}

// PostRequest builds a signed post query on the default channel.
func (id *TestIdentity) PostRequest(opts ...EnvelopeOption) *protocol.Signed[protocol.PostRequest] {
	o := id.options(opts)
	return mustSign(id, o, protocol.PostRequest{Channel: protocol.DefaultChannel, Metadata: o.metadata})
}

// Profile builds a signed profile.
func (id *TestIdentity) Profile(name string, opts ...EnvelopeOption) *protocol.Signed[protocol.Profile] {
	o := id.options(opts)
	return mustSign(id, o, protocol.Profile{Name: name, Metadata: o.metadata})
}

// ProfileRequest builds a signed profile query for target.
func (id *TestIdentity) ProfileRequest(target string, opts ...EnvelopeOption) *protocol.Signed[protocol.ProfileRequest] {
	o := id.options(opts)
	return mustSign(id, o, protocol.ProfileRequest{TargetKey: target})
}

// Corrupt returns a copy of signed with one signature byte flipped.
func Corrupt[T any](signed *protocol.Signed[T]) *protocol.Signed[T] {
	sig, err := crypto.ParseSignature(signed.Signature)
	if err != nil {
		panic(fmt.Sprintf("parsing test signature: %v", err))
	}
	flipped := crypto.NewSignature(sig)
	flipped[0] ^= 0x01
	copied := *signed
	copied.Signature = flipped.String()
	return &copied
}
