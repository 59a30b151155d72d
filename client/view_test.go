package client

import (
	"testing"
	"time"

	"github.com/flashbots/lay/protocol"
	"github.com/flashbots/lay/testutil"
	"github.com/stretchr/testify/require"
)

func contents(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Post.Data.Content
	}
	return out
}

func TestMergeIdempotentAndOrdered(t *testing.T) {
	alice := testutil.NewTestIdentity()
	bob := testutil.NewTestIdentity()

	late := alice.Post("late", testutil.WithTimestamp(30))
	early := bob.Post("early", testutil.WithTimestamp(10))
	mid := alice.Post("mid", testutil.WithTimestamp(20))

	v := NewView(ViewConfig{})
	require.Equal(t, 2, v.Merge([]*protocol.Signed[protocol.Post]{late, early}))
	require.Equal(t, 1, v.Merge([]*protocol.Signed[protocol.Post]{late, early, mid}))
	require.Equal(t, 0, v.Merge([]*protocol.Signed[protocol.Post]{late, early, mid}))

	require.Equal(t, []string{"early", "mid", "late"}, contents(v.Messages()))
	for _, m := range v.Messages() {
		require.True(t, m.Verified)
	}
}

func TestMergeKeepsUnverified(t *testing.T) {
	alice := testutil.NewTestIdentity()
	v := NewView(ViewConfig{})
	v.Merge([]*protocol.Signed[protocol.Post]{testutil.Corrupt(alice.Post("forged"))})

	require.Len(t, v.Messages(), 1)
	require.False(t, v.Messages()[0].Verified)
	require.Contains(t, FormatMessage(v, v.Messages()[0]), UnverifiedMark)
}

func TestObserveReturnsUnknownKeysOnce(t *testing.T) {
	alice := testutil.NewTestIdentity()
	bob := testutil.NewTestIdentity()
	batch := []*protocol.Signed[protocol.Post]{alice.Post("1"), bob.Post("2"), alice.Post("3")}

	v := NewView(ViewConfig{})
	require.ElementsMatch(t, []string{alice.Key(), bob.Key()}, v.Observe(batch))
	require.Empty(t, v.Observe(batch), "pending keys are not requested again")

	require.Equal(t, GuestName, v.DisplayName(alice.Key()))
	v.SetProfile(alice.Key(), ProfileInfo{Name: "Alice", Verified: true})
	require.Equal(t, "Alice", v.DisplayName(alice.Key()))
	require.Empty(t, v.Observe(batch))
}

func TestGuestRetryAfter(t *testing.T) {
	alice := testutil.NewTestIdentity()
	batch := []*protocol.Signed[protocol.Post]{alice.Post("hi")}
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }

	permanent := NewView(ViewConfig{Now: clock})
	require.Len(t, permanent.Observe(batch), 1)
	permanent.SetProfile(alice.Key(), ProfileInfo{Name: GuestName, Placeholder: true})
	now = now.Add(time.Hour)
	require.Empty(t, permanent.Observe(batch))

	retrying := NewView(ViewConfig{Now: clock, GuestRetryAfter: time.Minute})
	require.Len(t, retrying.Observe(batch), 1)
	retrying.SetProfile(alice.Key(), ProfileInfo{Name: GuestName, Placeholder: true})
	require.Empty(t, retrying.Observe(batch))
	now = now.Add(time.Minute)
	require.Equal(t, []string{alice.Key()}, retrying.Observe(batch))
	require.Empty(t, retrying.Observe(batch))

	// resolved profiles are never retried
	retrying.SetProfile(alice.Key(), ProfileInfo{Name: "Alice", Verified: true})
	now = now.Add(time.Hour)
	require.Empty(t, retrying.Observe(batch))
}

func TestFailedLookupRetried(t *testing.T) {
	alice := testutil.NewTestIdentity()
	bob := testutil.NewTestIdentity()
	batch := []*protocol.Signed[protocol.Post]{alice.Post("hi"), bob.Post("yo")}
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }

	// placeholders from a missing profile stay, failed lookups come back
	v := NewView(ViewConfig{Now: clock})
	require.Len(t, v.Observe(batch), 2)
	v.SetProfile(alice.Key(), ProfileInfo{Name: GuestName, Placeholder: true})
	v.SetProfile(bob.Key(), ProfileInfo{Name: GuestName, Placeholder: true, Failed: true})
	require.Equal(t, GuestName, v.DisplayName(bob.Key()))

	now = now.Add(DefaultFailedRetryAfter - time.Millisecond)
	require.Empty(t, v.Observe(batch))
	now = now.Add(time.Millisecond)
	require.Equal(t, []string{bob.Key()}, v.Observe(batch))
	require.Empty(t, v.Observe(batch), "pending lookups are not repeated")

	v.SetProfile(bob.Key(), ProfileInfo{Name: "Bob", Verified: true})
	now = now.Add(time.Hour)
	require.Empty(t, v.Observe(batch))
	require.Equal(t, "Bob", v.DisplayName(bob.Key()))

	custom := NewView(ViewConfig{Now: clock, FailedRetryAfter: time.Minute})
	require.Len(t, custom.Observe(batch[:1]), 1)
	custom.SetProfile(alice.Key(), ProfileInfo{Name: GuestName, Placeholder: true, Failed: true})
	now = now.Add(DefaultFailedRetryAfter)
	require.Empty(t, custom.Observe(batch[:1]))
	now = now.Add(time.Minute)
	require.Len(t, custom.Observe(batch[:1]), 1)
}

func TestScrollWindow(t *testing.T) {
	alice := testutil.NewTestIdentity()
	v := NewView(ViewConfig{})
	for _, c := range []string{"a", "b", "c", "d", "e"} {
		v.Merge([]*protocol.Signed[protocol.Post]{alice.Post(c)})
	}

	require.True(t, v.Autoscroll())
	require.Equal(t, []string{"c", "d", "e"}, contents(v.Window(3)))

	v.ScrollUp(2)
	require.False(t, v.Autoscroll())
	require.Equal(t, []string{"a", "b", "c"}, contents(v.Window(3)))

	// new messages do not move a scrolled window
	v.Merge([]*protocol.Signed[protocol.Post]{alice.Post("f")})
	require.Equal(t, []string{"a", "b", "c"}, contents(v.Window(3)))

	v.ScrollDown(1)
	require.Equal(t, []string{"b", "c", "d"}, contents(v.Window(3)))

	v.ScrollUp(100)
	require.Equal(t, []string{"a"}, contents(v.Window(3)))

	v.ScrollBottom()
	require.True(t, v.Autoscroll())
	require.Equal(t, []string{"d", "e", "f"}, contents(v.Window(3)))

	require.Nil(t, v.Window(0))
	require.Empty(t, NewView(ViewConfig{}).Window(5))
}

func TestFormatMessageMarksUnverifiedProfile(t *testing.T) {
	alice := testutil.NewTestIdentity()
	v := NewView(ViewConfig{})
	v.Merge([]*protocol.Signed[protocol.Post]{alice.Post("hi")})
	msg := v.Messages()[0]

	require.Equal(t, "Guest: hi", FormatMessage(v, msg))

	v.SetProfile(alice.Key(), ProfileInfo{Name: "Mallory", Verified: false})
	require.Equal(t, UnverifiedMark+" Mallory: hi", FormatMessage(v, msg))

	v.SetProfile(alice.Key(), ProfileInfo{Name: "Alice", Verified: true})
	require.Equal(t, "Alice: hi", FormatMessage(v, msg))
}
