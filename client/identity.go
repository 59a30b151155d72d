package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/flashbots/lay/crypto"
	"github.com/flashbots/lay/protocol"
)

// Identity signs envelopes for one key. Timestamps it hands out are strictly
// increasing even if the clock stalls or steps back.
type Identity struct {
	privateKey crypto.PrivateKey
	publicKey  crypto.PublicKey
	origin     string
	clock      func() uint64

	mu   sync.Mutex
	last uint64
}

// WallClockMillis returns the current Unix time in milliseconds.
func WallClockMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

// NewIdentity creates an identity for sk. A nil clock uses WallClockMillis.
func NewIdentity(sk crypto.PrivateKey, origin string, clock func() uint64) (*Identity, error) {
	pk, err := sk.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("deriving public key: %w", err)
	}
	if clock == nil {
		clock = WallClockMillis
	}
	return &Identity{privateKey: sk, publicKey: pk, origin: origin, clock: clock}, nil
}

// Key returns the base64 public key identifying this participant.
func (id *Identity) Key() string {
	return id.publicKey.String()
}

func (id *Identity) Origin() string {
	return id.origin
}

// NextTimestamp returns max(clock, last+1).
func (id *Identity) NextTimestamp() uint64 {
	id.mu.Lock()
	defer id.mu.Unlock()

	ts := id.clock()
	if ts <= id.last {
		ts = id.last + 1
	}
	id.last = ts
	return ts
}

// Sign wraps data in an envelope signed by id with a fresh timestamp.
func Sign[T any](id *Identity, data T) (*protocol.Signed[T], error) {
	return protocol.NewSigned(id.privateKey, id.origin, id.NextTimestamp(), data)
}
