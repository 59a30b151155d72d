package client

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flashbots/lay/testutil"
	"github.com/stretchr/testify/require"
)

// frameRecorder keeps the most recent rendered frame.
type frameRecorder struct {
	mu     sync.Mutex
	frame  string
	frames int
}

func (r *frameRecorder) Render(v *View, status string) error {
	var b strings.Builder
	if err := (&LineRenderer{W: &b, Height: 50}).Render(v, status); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frame = b.String()
	r.frames++
	return nil
}

func (r *frameRecorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame
}

type runningSession struct {
	input      *io.PipeWriter
	renderer   *frameRecorder
	sessionErr chan error
	pollerDone chan struct{}
}

func startSession(t *testing.T, url string, view ViewConfig) *runningSession {
	t.Helper()
	id := newTestIdentity(t, nil)
	poller := NewPoller(NewRelayClient(url, time.Second), id, PollerConfig{Interval: 20 * time.Millisecond}, nil)
	renderer := &frameRecorder{}
	session := NewSession(NewView(view), poller.Commands(), poller.Updates(), renderer, "", nil)

	pr, pw := io.Pipe()
	rs := &runningSession{
		input:      pw,
		renderer:   renderer,
		sessionErr: make(chan error, 1),
		pollerDone: make(chan struct{}),
	}
	go func() {
		defer close(rs.pollerDone)
		poller.Run(context.Background())
	}()
	go func() {
		rs.sessionErr <- session.Run(context.Background(), pr)
	}()
	return rs
}

func (rs *runningSession) send(t *testing.T, line string) {
	t.Helper()
	_, err := io.WriteString(rs.input, line+"\n")
	require.NoError(t, err)
}

func (rs *runningSession) waitFrame(t *testing.T, substr string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(rs.renderer.last(), substr)
	}, 5*time.Second, 10*time.Millisecond, "frame never contained %q, last frame:\n%s", substr, rs.renderer.last())
}

func (rs *runningSession) quit(t *testing.T) {
	t.Helper()
	rs.send(t, "/quit")
	select {
	case err := <-rs.sessionErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not exit")
	}
	select {
	case <-rs.pollerDone:
	case <-time.After(time.Second):
		t.Fatal("poller still running after session exit")
	}
}

func TestSessionGuestThenResolvedName(t *testing.T) {
	srv := newRelayServer(t)
	ctx := context.Background()
	carol := testutil.NewTestIdentity()
	relayClient := NewRelayClient(srv.URL, time.Second)
	require.NoError(t, relayClient.SubmitPost(ctx, carol.Post("hello from carol")))

	rs := startSession(t, srv.URL, ViewConfig{GuestRetryAfter: 20 * time.Millisecond})
	rs.waitFrame(t, "Guest: hello from carol")

	require.NoError(t, relayClient.SubmitProfile(ctx, carol.Profile("Carol")))
	rs.waitFrame(t, "Carol: hello from carol")

	rs.quit(t)
}

func TestSessionCommands(t *testing.T) {
	srv := newRelayServer(t)
	rs := startSession(t, srv.URL, ViewConfig{})

	rs.send(t, "/name Dave")
	rs.send(t, "hello world")
	rs.waitFrame(t, "Dave: hello world")

	rs.send(t, "/bogus")
	rs.waitFrame(t, "unknown command /bogus")

	rs.send(t, "/name")
	rs.waitFrame(t, "usage: /name <name>")

	rs.send(t, "second")
	rs.waitFrame(t, "Dave: second")

	rs.send(t, "/up")
	rs.waitFrame(t, "/bottom to follow")
	require.NotContains(t, rs.renderer.last(), "Dave: second")

	rs.send(t, "/bottom")
	rs.waitFrame(t, "Dave: second")
	require.NotContains(t, rs.renderer.last(), "/bottom to follow")

	rs.quit(t)
}

func TestSessionExitsOnEOF(t *testing.T) {
	srv := newRelayServer(t)
	rs := startSession(t, srv.URL, ViewConfig{})
	require.NoError(t, rs.input.Close())

	select {
	case err := <-rs.sessionErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not exit")
	}
	<-rs.pollerDone
}

func TestSessionStopsReadingInputWhenPollerIsBehind(t *testing.T) {
	commands := make(chan Command, 2)
	updates := make(chan Update)
	session := NewSession(NewView(ViewConfig{}), commands, updates, &frameRecorder{}, "general", nil)

	pr, pw := io.Pipe()
	sessionErr := make(chan error, 1)
	go func() { sessionErr <- session.Run(context.Background(), pr) }()

	const total = 10
	var written atomic.Int32
	go func() {
		for i := 0; i < total; i++ {
			if _, err := io.WriteString(pw, "line\n"); err != nil {
				return
			}
			written.Add(1)
		}
		pw.Close()
	}()

	// nobody reads commands yet, so input must stall well before the end
	require.Never(t, func() bool { return written.Load() == total }, 200*time.Millisecond, 10*time.Millisecond)

	var posts atomic.Int32
	go func() {
		for cmd := range commands {
			switch cmd.(type) {
			case SubmitPost:
				posts.Add(1)
			case Exit:
				close(updates)
				return
			}
		}
	}()

	select {
	case err := <-sessionErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not exit")
	}
	require.EqualValues(t, total, written.Load())
	require.EqualValues(t, total, posts.Load())
}
