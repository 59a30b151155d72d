package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/flashbots/lay/protocol"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/atomic"
)

// DefaultMaxBodyBytes bounds request bodies when HandlerConfig.MaxBodyBytes is zero.
const DefaultMaxBodyBytes = 1 << 20

// HandlerConfig configures the HTTP surface of a relay.
type HandlerConfig struct {
	MaxBodyBytes int64

	// CORSOrigins enables CORS for the listed origins. Empty disables CORS.
	CORSOrigins []string
}

// Handler exposes a Relay over HTTP. While draining it refuses submissions
// with STORE_UNAVAILABLE and keeps answering queries.
type Handler struct {
	relay    *Relay
	cfg      HandlerConfig
	log      *slog.Logger
	draining atomic.Bool
}

func NewHandler(relay *Relay, cfg HandlerConfig) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{relay: relay, cfg: cfg, log: relay.log}
}

// SetDraining switches submission refusal on or off.
func (h *Handler) SetDraining(draining bool) {
	if h.draining.Swap(draining) != draining {
		h.log.Info("relay submissions", "draining", draining)
	}
}

// refuseWhileDraining writes the draining error and reports whether it did.
func (h *Handler) refuseWhileDraining(w http.ResponseWriter, op string) bool {
	if !h.draining.Load() {
		return false
	}
	h.writeError(w, h.relay.reject(op, "", &Error{Kind: StoreUnavailable, Message: "relay is draining"}))
	return true
}

// RegisterRoutes registers the relay endpoints. Queries are served on GET with
// a JSON body and on POST .../query for clients that cannot send GET bodies.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if len(h.cfg.CORSOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: h.cfg.CORSOrigins,
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type"},
				MaxAge:         300,
			}))
			for _, path := range []string{"/text", "/text/query", "/profile", "/profile/query"} {
				r.Options(path, func(w http.ResponseWriter, r *http.Request) {})
			}
		}

		r.Post("/text", h.handleSubmitPost)
		r.Get("/text", h.handleQueryPosts)
		r.Post("/text/query", h.handleQueryPosts)

		r.Post("/profile", h.handleSubmitProfile)
		r.Get("/profile", h.handleQueryProfile)
		r.Post("/profile/query", h.handleQueryProfile)
	})
}

func (h *Handler) handleSubmitPost(w http.ResponseWriter, r *http.Request) {
	if h.refuseWhileDraining(w, "accept_post") {
		return
	}
	post, ok := decodeEnvelope[protocol.Post](h, w, r)
	if !ok {
		return
	}
	if err := h.relay.AcceptPost(r.Context(), post); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) handleSubmitProfile(w http.ResponseWriter, r *http.Request) {
	if h.refuseWhileDraining(w, "accept_profile") {
		return
	}
	profile, ok := decodeEnvelope[protocol.Profile](h, w, r)
	if !ok {
		return
	}
	if err := h.relay.AcceptProfile(r.Context(), profile); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) handleQueryPosts(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeEnvelope[protocol.PostRequest](h, w, r)
	if !ok {
		return
	}
	posts, err := h.relay.QueryPosts(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, posts)
}

func (h *Handler) handleQueryProfile(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeEnvelope[protocol.ProfileRequest](h, w, r)
	if !ok {
		return
	}
	profile, err := h.relay.QueryProfile(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, profile)
}

// decodeEnvelope reads one envelope from the request body, writing a
// MALFORMED_ENVELOPE response on failure.
func decodeEnvelope[T any](h *Handler, w http.ResponseWriter, r *http.Request) (*protocol.Signed[T], bool) {
	body := http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	msg, err := protocol.DecodeMessage[protocol.Signed[T]](body)
	if err != nil {
		message := "malformed envelope"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			message = "request body too large"
		}
		h.writeError(w, &Error{Kind: MalformedEnvelope, Message: message, Err: err})
		return nil, false
	}
	return msg, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var rerr *Error
	if !errors.As(err, &rerr) {
		rerr = &Error{Kind: StoreUnavailable, Message: "internal error", Err: err}
	}

	status := http.StatusBadRequest
	if rerr.Kind == StoreUnavailable {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, rerr.Wire())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("encoding response", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
