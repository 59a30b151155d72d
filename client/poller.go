package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flashbots/lay/protocol"
)

// GuestName is shown for authors whose profile could not be resolved.
const GuestName = "Guest"

const (
	DefaultPollInterval    = time.Second
	DefaultChannelCapacity = 16
)

// Command is sent from the interactive role to the Poller.
type Command interface{ isCommand() }

// SubmitPost publishes content on Channel (the poller channel when empty).
type SubmitPost struct {
	Channel  string
	Content  string
	Metadata protocol.Metadata
}

// SubmitProfile publishes the caller's profile.
type SubmitProfile struct {
	Name     string
	Metadata protocol.Metadata
}

// FetchProfile resolves the profile of Key.
type FetchProfile struct {
	Key string
}

// Exit stops the poller once the commands queued before it are handled.
type Exit struct{}

func (SubmitPost) isCommand()    {}
func (SubmitProfile) isCommand() {}
func (FetchProfile) isCommand()  {}
func (Exit) isCommand()          {}

// Update is sent from the Poller to the interactive role.
type Update interface{ isUpdate() }

// ViewUpdate carries the latest poll result, or the error that prevented it.
type ViewUpdate struct {
	Posts []*protocol.Signed[protocol.Post]
	Err   error
}

// ProfileUpdate carries the outcome of a FetchProfile.
type ProfileUpdate struct {
	Key     string
	Profile ProfileInfo
}

func (ViewUpdate) isUpdate()    {}
func (ProfileUpdate) isUpdate() {}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Interval time.Duration
	Channel  string
	Capacity int
}

// Poller owns all network traffic of a sync client: it polls the relay on
// every tick and executes commands as they arrive.
type Poller struct {
	transport Transport
	id        *Identity
	cfg       PollerConfig
	log       *slog.Logger

	commands chan Command
	updates  chan Update
}

// NewPoller creates a poller. Call Run to start it.
func NewPoller(transport Transport, id *Identity, cfg PollerConfig, log *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultChannelCapacity
	}
	if cfg.Channel == "" {
		cfg.Channel = protocol.DefaultChannel
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		transport: transport,
		id:        id,
		cfg:       cfg,
		log:       log,
		commands:  make(chan Command, cfg.Capacity),
		updates:   make(chan Update, cfg.Capacity),
	}
}

func (p *Poller) Commands() chan<- Command {
	return p.commands
}

// Updates is closed when Run returns.
func (p *Poller) Updates() <-chan Update {
	return p.updates
}

// Run polls until it receives Exit or ctx is canceled. Relay failures never
// stop the loop.
func (p *Poller) Run(ctx context.Context) {
	defer close(p.updates)

	p.poll(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		case cmd := <-p.commands:
			if _, ok := cmd.(Exit); ok {
				p.log.Debug("poller exiting")
				return
			}
			if p.handle(ctx, cmd) {
				ticker.Reset(p.cfg.Interval)
				p.poll(ctx)
			}
		}
	}
}

// handle executes cmd and reports whether the visible state may have changed.
func (p *Poller) handle(ctx context.Context, cmd Command) bool {
	switch c := cmd.(type) {
	case SubmitPost:
		channel := c.Channel
		if channel == "" {
			channel = p.cfg.Channel
		}
		if err := p.submitPost(ctx, protocol.Post{Channel: channel, Content: c.Content, Metadata: c.Metadata}); err != nil {
			p.log.Warn("submitting post failed", "err", err)
			p.emit(ctx, ViewUpdate{Err: err})
			return false
		}
		return true
	case SubmitProfile:
		if err := p.submitProfile(ctx, protocol.Profile{Name: c.Name, Metadata: c.Metadata}); err != nil {
			p.log.Warn("submitting profile failed", "err", err)
			p.emit(ctx, ViewUpdate{Err: err})
			return false
		}
		p.emit(ctx, ProfileUpdate{Key: p.id.Key(), Profile: ProfileInfo{Name: c.Name, Verified: true}})
		return false
	case FetchProfile:
		p.emit(ctx, ProfileUpdate{Key: c.Key, Profile: p.fetchProfile(ctx, c.Key)})
		return false
	default:
		p.log.Warn("unknown command", "type", fmt.Sprintf("%T", cmd))
		return false
	}
}

func (p *Poller) poll(ctx context.Context) {
	req, err := Sign(p.id, protocol.PostRequest{Channel: p.cfg.Channel})
	if err != nil {
		p.emit(ctx, ViewUpdate{Err: err})
		return
	}
	posts, err := p.transport.QueryPosts(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("polling relay failed", "err", err)
		}
		p.emit(ctx, ViewUpdate{Err: err})
		return
	}
	p.emit(ctx, ViewUpdate{Posts: posts})
}

func (p *Poller) submitPost(ctx context.Context, post protocol.Post) error {
	signed, err := Sign(p.id, post)
	if err != nil {
		return err
	}
	return p.transport.SubmitPost(ctx, signed)
}

func (p *Poller) submitProfile(ctx context.Context, profile protocol.Profile) error {
	signed, err := Sign(p.id, profile)
	if err != nil {
		return err
	}
	return p.transport.SubmitProfile(ctx, signed)
}

func (p *Poller) fetchProfile(ctx context.Context, key string) ProfileInfo {
	info, err := ResolveProfile(ctx, p.transport, p.id, key)
	if err != nil {
		p.log.Warn("profile lookup failed", "key", key, "err", err)
	}
	return info
}

// ResolveProfile queries the profile of key and maps the outcome onto what a
// view should display: the verified name, the observed name marked unverified,
// or a GuestName placeholder. The error is set for failures other than
// PROFILE_NOT_FOUND, and the placeholder is then marked Failed so views retry
// it; the returned info is usable either way.
func ResolveProfile(ctx context.Context, transport Transport, id *Identity, key string) (ProfileInfo, error) {
	guest := ProfileInfo{Name: GuestName, Placeholder: true}

	req, err := Sign(id, protocol.ProfileRequest{TargetKey: key})
	if err != nil {
		guest.Failed = true
		return guest, err
	}
	profile, err := transport.QueryProfile(ctx, req)
	if err != nil {
		var relayErr *protocol.Error
		if errors.As(err, &relayErr) && relayErr.Status == protocol.CodeProfileNotFound {
			return guest, nil
		}
		guest.Failed = true
		return guest, err
	}
	return ProfileInfo{
		Name:     profile.Data.Name,
		Verified: profile.Key == key && profile.Verify(),
	}, nil
}

func (p *Poller) emit(ctx context.Context, u Update) {
	select {
	case p.updates <- u:
	case <-ctx.Done():
	}
}
