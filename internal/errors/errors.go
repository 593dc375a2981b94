package errors

import "errors"

// Authentication errors. Surfaced distinctly from transport errors so
// callers can prompt for a new token instead of retrying blindly.
var (
	ErrUnauthorized = errors.New("missing or invalid API token")
)

// Server/transport errors.
var (
	ErrAPIRequest  = errors.New("API request failed")
	ErrAPIResponse = errors.New("unexpected API response")
)

// Local errors.
var (
	ErrKindDisabled = errors.New("entity kind not enabled in configuration")
	ErrUnknownKind  = errors.New("unknown entity kind")
)
