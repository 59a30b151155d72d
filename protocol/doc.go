// Package protocol defines the signed envelope and the payloads exchanged with a lay relay.
//
// # Envelope
//
// Signed[T] wraps any payload whose JSON encoding is an object. On the wire the
// payload fields are flattened next to the envelope fields:
//
//	{"channel":"general","content":"hello","key":"<base64>","server":"relay-1",
//	 "signature":"<base64>","timestamp":1700000000000}
//
// The signature is an Ed25519 signature over the same document with the
// signature field removed, encoded by CanonicalJSON: keys sorted at every
// level, no HTML escaping, no whitespace. Metadata maps are therefore signed
// independently of map iteration order, and any implementation that can sort
// JSON object keys can reproduce the signed bytes.
//
// # Payloads
//
//   - Post / PostRequest: channel messages and queries for them
//   - Profile / ProfileRequest: display names keyed by author key
//
// # Errors
//
// Failed relay requests return an Error object with one of the ErrorCode
// values, e.g. FAILED_VERIFY_SIGNATURE or IMPOSSIBLE_TIMESTAMP.
package protocol
