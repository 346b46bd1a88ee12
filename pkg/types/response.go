// Package types holds the wire envelopes shared by every API handler.
// Successful responses nest their payload under "data"; failures carry
// a single structured error under "error".
package types

// SuccessEnvelope wraps any handler payload for a 2xx response.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the client-facing error body. Code is a stable machine
// string (VALIDATION_ERROR, NOT_FOUND, ...), Details is optional
// structured context such as the offending field or current status.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps an APIError for non-2xx responses.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
