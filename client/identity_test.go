package client

import (
	"testing"

	"github.com/flashbots/lay/crypto"
	"github.com/stretchr/testify/require"
)

func newTestIdentity(t *testing.T, clock func() uint64) *Identity {
	t.Helper()
	_, sk, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	id, err := NewIdentity(sk, "test", clock)
	require.NoError(t, err)
	return id
}

func TestNextTimestampStrictlyIncreasing(t *testing.T) {
	now := uint64(1000)
	id := newTestIdentity(t, func() uint64 { return now })

	require.Equal(t, uint64(1000), id.NextTimestamp())
	require.Equal(t, uint64(1001), id.NextTimestamp(), "same millisecond")

	now = 500
	require.Equal(t, uint64(1002), id.NextTimestamp(), "clock stepped back")

	now = 5000
	require.Equal(t, uint64(5000), id.NextTimestamp())
}

func TestSignUsesIdentity(t *testing.T) {
	id := newTestIdentity(t, nil)

	post, err := Sign(id, struct {
		Content string `json:"content"`
	}{"hi"})
	require.NoError(t, err)
	require.Equal(t, id.Key(), post.Key)
	require.Equal(t, "test", post.Server)
	require.True(t, post.Verify())
	require.NotZero(t, post.Timestamp)
}

func TestNewIdentityRejectsBadKey(t *testing.T) {
	_, err := NewIdentity(crypto.PrivateKey([]byte{1, 2, 3}), "", nil)
	require.Error(t, err)
}
