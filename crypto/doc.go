// Package crypto provides the identity primitives of the lay relay protocol.
//
// A participant is nothing more than an Ed25519 key pair. The public half,
// base64 encoded, is used as the participant identifier on the wire, in the
// relay store and in the client's profile cache.
//
// # Signatures
//
// Sign and Verify wrap crypto/ed25519. Verify fails closed: keys or
// signatures of the wrong length, including the result of decoding malformed
// base64, verify as false rather than returning an error or panicking.
//
// # Key Files
//
// Private keys are stored as PKCS#8 PEM documents. LoadOrGeneratePrivateKey
// creates a key on first use and writes it with 0600 permissions.
package crypto
