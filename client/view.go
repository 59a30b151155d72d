package client

import (
	"cmp"
	"slices"
	"time"

	"github.com/flashbots/lay/protocol"
)

// ProfileInfo is the display state of one author.
type ProfileInfo struct {
	Name     string
	Verified bool

	// Placeholder is set when the profile could not be resolved and Name is GuestName.
	Placeholder bool

	// Failed marks a placeholder caused by a lookup error rather than a
	// missing profile. Failed lookups are always retried.
	Failed bool

	ResolvedAt time.Time
}

// Message is a post as held by the view.
type Message struct {
	Post     *protocol.Signed[protocol.Post]
	Verified bool
}

// ViewConfig configures a View.
type ViewConfig struct {
	// GuestRetryAfter re-queries placeholder profiles older than this. Zero
	// keeps placeholders forever.
	GuestRetryAfter time.Duration

	// FailedRetryAfter spaces out retries of failed lookups. Defaults to
	// DefaultFailedRetryAfter.
	FailedRetryAfter time.Duration

	Now func() time.Time
}

const DefaultFailedRetryAfter = 5 * time.Second

// View is the client's local, disposable copy of the relay state. It is owned
// by the interactive role and not safe for concurrent use.
type View struct {
	cfg ViewConfig

	messages []Message
	bySig    map[string]struct{}
	profiles map[string]ProfileInfo
	pending  map[string]struct{}

	// offset counts messages hidden below the window; zero follows the newest.
	offset int
}

func NewView(cfg ViewConfig) *View {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.FailedRetryAfter <= 0 {
		cfg.FailedRetryAfter = DefaultFailedRetryAfter
	}
	return &View{
		cfg:      cfg,
		bySig:    make(map[string]struct{}),
		profiles: make(map[string]ProfileInfo),
		pending:  make(map[string]struct{}),
	}
}

// Merge adds posts not yet held, keyed by signature, and returns how many
// were added. Messages stay ordered by timestamp, then signature.
func (v *View) Merge(posts []*protocol.Signed[protocol.Post]) int {
	added := 0
	for _, post := range posts {
		if post == nil {
			continue
		}
		if _, ok := v.bySig[post.Signature]; ok {
			continue
		}
		v.bySig[post.Signature] = struct{}{}
		v.messages = append(v.messages, Message{Post: post, Verified: post.Verify()})
		added++
	}
	if added == 0 {
		return 0
	}

	slices.SortFunc(v.messages, func(a, b Message) int {
		if c := cmp.Compare(a.Post.Timestamp, b.Post.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.Post.Signature, b.Post.Signature)
	})

	// keep a scrolled-up window anchored on the same messages
	if v.offset > 0 {
		v.offset += added
	}
	return added
}

func (v *View) Messages() []Message {
	return v.messages
}

func (v *View) Len() int {
	return len(v.messages)
}

// Observe returns the authors of posts whose profile should be fetched. Each
// returned key is marked pending, so it is not returned again until
// SetProfile resolves it.
func (v *View) Observe(posts []*protocol.Signed[protocol.Post]) []string {
	var keys []string
	for _, post := range posts {
		if post == nil || !v.needsProfile(post.Key) {
			continue
		}
		v.pending[post.Key] = struct{}{}
		keys = append(keys, post.Key)
	}
	return keys
}

func (v *View) needsProfile(key string) bool {
	if _, ok := v.pending[key]; ok {
		return false
	}
	info, ok := v.profiles[key]
	if !ok {
		return true
	}
	if !info.Placeholder {
		return false
	}
	retryAfter := v.cfg.GuestRetryAfter
	if info.Failed {
		retryAfter = v.cfg.FailedRetryAfter
	}
	if retryAfter <= 0 {
		return false
	}
	return v.cfg.Now().Sub(info.ResolvedAt) >= retryAfter
}

// SetProfile records the resolved profile of key.
func (v *View) SetProfile(key string, info ProfileInfo) {
	if info.ResolvedAt.IsZero() {
		info.ResolvedAt = v.cfg.Now()
	}
	delete(v.pending, key)
	v.profiles[key] = info
}

func (v *View) Profile(key string) (ProfileInfo, bool) {
	info, ok := v.profiles[key]
	return info, ok
}

// DisplayName returns the resolved name of key, or GuestName.
func (v *View) DisplayName(key string) string {
	if info, ok := v.profiles[key]; ok && info.Name != "" {
		return info.Name
	}
	return GuestName
}

// Autoscroll reports whether the window follows the newest message.
func (v *View) Autoscroll() bool {
	return v.offset == 0
}

func (v *View) ScrollUp(n int) {
	v.offset = min(v.offset+n, max(len(v.messages)-1, 0))
}

func (v *View) ScrollDown(n int) {
	v.offset = max(v.offset-n, 0)
}

func (v *View) ScrollBottom() {
	v.offset = 0
}

// Window returns at most height messages ending offset messages above the newest.
func (v *View) Window(height int) []Message {
	if height <= 0 {
		return nil
	}
	end := len(v.messages) - min(v.offset, len(v.messages))
	start := max(end-height, 0)
	return v.messages[start:end]
}
