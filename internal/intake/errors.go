package intake

import (
	"errors"
	"net/http"
)

// Kind classifies an intake failure for status mapping.
type Kind int

const (
	// KindValidation is a problem with the caller's input, detected before
	// any backend call.
	KindValidation Kind = iota + 1

	// KindUpstream is a failure reported by the storage backend.
	KindUpstream

	// KindUnhandled covers anything not explicitly anticipated.
	KindUnhandled
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUpstream:
		return "upstream"
	case KindUnhandled:
		return "unhandled"
	default:
		return "unknown"
	}
}

// Error is the only error shape that crosses into a response. Message is
// safe to show to callers; Err is the underlying cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation returns a KindValidation error with the given public message.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Upstream wraps a backend failure behind a generic public message.
func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// Unhandled wraps an unexpected failure behind a generic public message.
func Unhandled(msg string, err error) *Error {
	return &Error{Kind: KindUnhandled, Message: msg, Err: err}
}

// Public messages. These are part of the HTTP contract.
const (
	MsgNoFile           = "No image file provided"
	MsgNotJPEG          = "Only JPEG images are allowed"
	MsgTooLarge         = "File too large"
	MsgBadMetadata      = "Invalid metadata"
	MsgUploadFailed     = "Upload failed"
	MsgUploadError      = "Failed to upload image"
	MsgFileNameRequired = "fileName is required"
	MsgBadRequestBody   = "Invalid request body"
	MsgSignFailed       = "Failed to generate upload URL"
	MsgInternal         = "Internal server error"
)

// StatusOf maps an error to the HTTP status it should be reported with.
// Anything that is not an *Error is treated as unhandled.
func StatusOf(err error) int {
	var ie *Error
	if errors.As(err, &ie) && ie.Kind == KindValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// MessageOf returns the caller-facing message for err.
func MessageOf(err error) string {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Message
	}
	return MsgInternal
}
