package protocol

// Metadata is a free-form JSON object attached to payloads.
// It is canonicalized with sorted keys before signing.
type Metadata map[string]any

// Post is a message published to a channel. Accepted posts are never updated or deleted.
type Post struct {
	Channel  string   `json:"channel"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// PostRequest asks the relay for posts.
// Channel is carried on the wire so relays can filter without changing the request shape.
type PostRequest struct {
	Channel  string   `json:"channel"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// Profile is the display record of an identity. The latest accepted profile
// for a key replaces the previous one.
type Profile struct {
	Name     string   `json:"name"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// ProfileRequest asks the relay for the profile of TargetKey.
type ProfileRequest struct {
	TargetKey string `json:"targetKey"`
}

// DefaultChannel is used by clients that do not pick a channel.
const DefaultChannel = "general"
