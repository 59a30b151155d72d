package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flashbots/lay/metrics"
	"github.com/flashbots/lay/protocol"
	"github.com/flashbots/lay/storage"
)

// Kind classifies relay failures.
type Kind int

const (
	SignatureInvalid Kind = iota + 1
	ReplayedTimestamp
	ProfileNotFound
	MalformedEnvelope
	StoreUnavailable
)

func (k Kind) String() string {
	switch k {
	case SignatureInvalid:
		return "SignatureInvalid"
	case ReplayedTimestamp:
		return "ReplayedTimestamp"
	case ProfileNotFound:
		return "ProfileNotFound"
	case MalformedEnvelope:
		return "MalformedEnvelope"
	case StoreUnavailable:
		return "StoreUnavailable"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Code returns the wire status for the kind.
func (k Kind) Code() protocol.ErrorCode {
	switch k {
	case SignatureInvalid:
		return protocol.CodeFailedVerifySignature
	case ReplayedTimestamp:
		return protocol.CodeImpossibleTimestamp
	case ProfileNotFound:
		return protocol.CodeProfileNotFound
	case MalformedEnvelope:
		return protocol.CodeMalformedEnvelope
	default:
		return protocol.CodeStoreUnavailable
	}
}

// Error is returned by every Relay operation.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wire converts the error to the response body sent to clients. Causes are
// not included.
func (e *Error) Wire() *protocol.Error {
	return &protocol.Error{Status: e.Kind.Code(), Message: e.Message, Details: e.Details}
}

// KindOf returns the Kind of err, or 0 when err is not a relay error.
func KindOf(err error) Kind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return 0
}

// Options tune relay behaviour.
type Options struct {
	// ServerID is this relay's origin identifier. Envelopes naming another
	// origin are accepted and logged.
	ServerID string

	// ChannelFilter restricts QueryPosts results to the requested channel.
	ChannelFilter bool
}

// Relay accepts signed submissions and answers signed queries.
type Relay struct {
	store storage.Store
	opts  Options
	log   *slog.Logger
}

// New creates a relay backed by store.
func New(store storage.Store, opts Options, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{store: store, opts: opts, log: log}
}

// AcceptPost verifies and stores a post. Resubmitting a stored post succeeds.
func (r *Relay) AcceptPost(ctx context.Context, post *protocol.Signed[protocol.Post]) error {
	const op = "accept_post"
	metrics.IncRequest(op)

	if err := r.checkSignature(op, post.Verify(), post.Key, post.Server); err != nil {
		return err
	}

	start := time.Now()
	err := r.store.SavePost(ctx, post)
	metrics.ObserveStore("save_post", start)
	if err != nil {
		return r.storeError(op, post.Key, err)
	}
	return nil
}

// AcceptProfile verifies a profile and replaces the stored one for its key.
func (r *Relay) AcceptProfile(ctx context.Context, profile *protocol.Signed[protocol.Profile]) error {
	const op = "accept_profile"
	metrics.IncRequest(op)

	if err := r.checkSignature(op, profile.Verify(), profile.Key, profile.Server); err != nil {
		return err
	}

	start := time.Now()
	err := r.store.SaveProfile(ctx, profile)
	metrics.ObserveStore("save_profile", start)
	if err != nil {
		return r.storeError(op, profile.Key, err)
	}
	return nil
}

// QueryPosts verifies the request, enforces the per-key timestamp ledger and
// returns stored posts in acceptance order.
func (r *Relay) QueryPosts(ctx context.Context, req *protocol.Signed[protocol.PostRequest]) ([]*protocol.Signed[protocol.Post], error) {
	const op = "query_posts"
	metrics.IncRequest(op)

	if err := r.checkSignature(op, req.Verify(), req.Key, req.Server); err != nil {
		return nil, err
	}

	start := time.Now()
	err := r.store.RecordRequest(ctx, req.Key, req.Timestamp)
	metrics.ObserveStore("record_request", start)
	switch {
	case errors.Is(err, storage.ErrStaleTimestamp):
		return nil, r.reject(op, req.Key, &Error{
			Kind:    ReplayedTimestamp,
			Message: "request timestamp must be greater than the last accepted one",
			Details: map[string]any{"timestamp": req.Timestamp},
			Err:     err,
		})
	case err != nil:
		return nil, r.storeError(op, req.Key, err)
	}

	var filter storage.PostFilter
	if r.opts.ChannelFilter {
		filter.Channel = req.Data.Channel
	}

	start = time.Now()
	posts, err := r.store.ListPosts(ctx, filter)
	metrics.ObserveStore("list_posts", start)
	if err != nil {
		return nil, r.storeError(op, req.Key, err)
	}
	if posts == nil {
		posts = []*protocol.Signed[protocol.Post]{}
	}
	metrics.SetPostsServed(len(posts))
	return posts, nil
}

// QueryProfile verifies the request and returns the stored envelope for the
// target key unchanged.
func (r *Relay) QueryProfile(ctx context.Context, req *protocol.Signed[protocol.ProfileRequest]) (*protocol.Signed[protocol.Profile], error) {
	const op = "query_profile"
	metrics.IncRequest(op)

	if err := r.checkSignature(op, req.Verify(), req.Key, req.Server); err != nil {
		return nil, err
	}

	start := time.Now()
	profile, err := r.store.GetProfile(ctx, req.Data.TargetKey)
	metrics.ObserveStore("get_profile", start)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, r.reject(op, req.Key, &Error{
			Kind:    ProfileNotFound,
			Message: "no profile for key",
			Details: map[string]any{"targetKey": req.Data.TargetKey},
			Err:     err,
		})
	}
	if err != nil {
		return nil, r.storeError(op, req.Key, err)
	}
	return profile, nil
}

func (r *Relay) checkSignature(op string, ok bool, key, server string) error {
	if !ok {
		return r.reject(op, key, &Error{Kind: SignatureInvalid, Message: "signature verification failed"})
	}
	if r.opts.ServerID != "" && server != r.opts.ServerID {
		r.log.Debug("envelope names another origin", "op", op, "key", key, "server", server)
	}
	return nil
}

func (r *Relay) reject(op, key string, err *Error) *Error {
	metrics.IncRejected(op, err.Kind.String())
	r.log.Debug("request rejected", "op", op, "kind", err.Kind.String(), "key", key)
	return err
}

func (r *Relay) storeError(op, key string, err error) *Error {
	switch {
	case errors.Is(err, storage.ErrTimestampRange):
		return r.reject(op, key, &Error{Kind: MalformedEnvelope, Message: "timestamp out of range", Err: err})
	case errors.Is(err, storage.ErrInvalidContent):
		return r.reject(op, key, &Error{Kind: MalformedEnvelope, Message: "envelope contains values the store cannot hold", Err: err})
	}
	metrics.IncRejected(op, StoreUnavailable.String())
	r.log.Error("store failure", "op", op, "key", key, "err", err)
	return &Error{Kind: StoreUnavailable, Message: "store unavailable", Err: err}
}
