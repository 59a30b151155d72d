package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// Renderer draws the view. status is the latest error or notice, possibly empty.
type Renderer interface {
	Render(v *View, status string) error
}

// LineRenderer writes the visible window as plain lines.
type LineRenderer struct {
	W      io.Writer
	Height int
}

// UnverifiedMark prefixes messages and names whose signature did not verify.
const UnverifiedMark = "[unverified]"

func (r *LineRenderer) Render(v *View, status string) error {
	height := r.Height
	if height <= 0 {
		height = 20
	}

	var b strings.Builder
	b.WriteString("----\n")
	for _, msg := range v.Window(height) {
		b.WriteString(FormatMessage(v, msg))
		b.WriteByte('\n')
	}
	if !v.Autoscroll() {
		b.WriteString("-- scrolled, /bottom to follow --\n")
	}
	if status != "" {
		fmt.Fprintf(&b, "! %s\n", status)
	}
	_, err := io.WriteString(r.W, b.String())
	return err
}

// FormatMessage renders one message as "name: content" with unverified marks.
func FormatMessage(v *View, msg Message) string {
	name := v.DisplayName(msg.Post.Key)
	if info, ok := v.Profile(msg.Post.Key); ok && !info.Verified && !info.Placeholder {
		name = UnverifiedMark + " " + name
	}
	line := fmt.Sprintf("%s: %s", name, msg.Post.Data.Content)
	if !msg.Verified {
		line = UnverifiedMark + " " + line
	}
	return line
}

// Session is the interactive role: it turns input lines into commands and
// renders updates from the poller.
type Session struct {
	view     *View
	commands chan<- Command
	updates  <-chan Update
	renderer Renderer
	channel  string
	log      *slog.Logger

	// outbox holds commands not yet accepted by the poller. Input is not
	// read while it holds maxOutbox commands; profile fetches may exceed
	// the limit, at most once per unknown author.
	outbox    []Command
	maxOutbox int

	status  string
	pollErr bool
	dirty   bool
	exiting bool
}

// NewSession links a view to a running poller's channels.
func NewSession(view *View, commands chan<- Command, updates <-chan Update, renderer Renderer, channel string, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	maxOutbox := cap(commands)
	if maxOutbox <= 0 {
		maxOutbox = DefaultChannelCapacity
	}
	return &Session{
		view:      view,
		commands:  commands,
		updates:   updates,
		renderer:  renderer,
		channel:   channel,
		log:       log,
		maxOutbox: maxOutbox,
	}
}

// Run processes input until /quit, end of input or ctx cancellation, then
// sends Exit and waits for the poller to close the updates channel.
func (s *Session) Run(ctx context.Context, input io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	s.dirty = true
	if err := s.render(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case line, ok := <-s.inputCh(lines):
			if !ok {
				return s.shutdown()
			}
			if s.handleLine(line) {
				return s.shutdown()
			}
		case u, ok := <-s.updates:
			if !ok {
				return nil
			}
			s.apply(u)
		case s.sendCh() <- s.next():
			s.outbox = s.outbox[1:]
		}
		if err := s.render(); err != nil {
			return err
		}
	}
}

// inputCh is nil while the outbox is full, so input waits for the poller.
func (s *Session) inputCh(lines <-chan string) <-chan string {
	if len(s.outbox) >= s.maxOutbox {
		return nil
	}
	return lines
}

// sendCh is nil while the outbox is empty, which disables the send case.
func (s *Session) sendCh() chan<- Command {
	if len(s.outbox) == 0 {
		return nil
	}
	return s.commands
}

func (s *Session) next() Command {
	if len(s.outbox) == 0 {
		return nil
	}
	return s.outbox[0]
}

func (s *Session) enqueue(cmd Command) {
	s.outbox = append(s.outbox, cmd)
}

// handleLine reports whether the session should exit.
func (s *Session) handleLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if s.status != "" && !s.pollErr {
		s.setStatus("")
	}
	if !strings.HasPrefix(line, "/") {
		s.enqueue(SubmitPost{Channel: s.channel, Content: line})
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/name":
		if arg == "" {
			s.setStatus("usage: /name <name>")
			return false
		}
		s.enqueue(SubmitProfile{Name: arg})
	case "/up":
		s.view.ScrollUp(scrollAmount(arg))
		s.dirty = true
	case "/down":
		s.view.ScrollDown(scrollAmount(arg))
		s.dirty = true
	case "/bottom":
		s.view.ScrollBottom()
		s.dirty = true
	default:
		s.setStatus(fmt.Sprintf("unknown command %s", cmd))
	}
	return false
}

func scrollAmount(arg string) int {
	if n, err := strconv.Atoi(arg); err == nil && n > 0 {
		return n
	}
	return 1
}

func (s *Session) apply(u Update) {
	switch u := u.(type) {
	case ViewUpdate:
		if u.Err != nil {
			s.setStatus(u.Err.Error())
			s.pollErr = true
			return
		}
		if s.pollErr {
			s.setStatus("")
		}
		if s.view.Merge(u.Posts) > 0 {
			s.dirty = true
		}
		if s.exiting {
			return
		}
		for _, key := range s.view.Observe(u.Posts) {
			s.enqueue(FetchProfile{Key: key})
		}
	case ProfileUpdate:
		s.view.SetProfile(u.Key, u.Profile)
		s.dirty = true
	}
}

// setStatus replaces the status line. Poll errors are cleared by the next
// successful poll, notices by the next input line.
func (s *Session) setStatus(status string) {
	s.status = status
	s.pollErr = false
	s.dirty = true
}

func (s *Session) render() error {
	if !s.dirty {
		return nil
	}
	s.dirty = false
	return s.renderer.Render(s.view, s.status)
}

// shutdown flushes pending commands, sends Exit and drains updates until the
// poller closes the channel.
func (s *Session) shutdown() error {
	s.exiting = true
	s.enqueue(Exit{})
	for {
		select {
		case s.sendCh() <- s.next():
			s.outbox = s.outbox[1:]
		case u, ok := <-s.updates:
			if !ok {
				return nil
			}
			s.apply(u)
		}
	}
}
