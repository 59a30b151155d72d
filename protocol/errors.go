package protocol

import "fmt"

// ErrorCode is the machine readable status of a failed relay request.
type ErrorCode string

const (
	CodeFailedVerifySignature ErrorCode = "FAILED_VERIFY_SIGNATURE"
	CodeImpossibleTimestamp   ErrorCode = "IMPOSSIBLE_TIMESTAMP"
	CodeProfileNotFound       ErrorCode = "PROFILE_NOT_FOUND"
	CodeMalformedEnvelope     ErrorCode = "MALFORMED_ENVELOPE"
	CodeStoreUnavailable      ErrorCode = "STORE_UNAVAILABLE"
)

// Error is the body of every failed relay response.
type Error struct {
	Status  ErrorCode      `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: '%s'", e.Status, e.Message)
}
