// Package intake holds the rules an inbound image must satisfy before it is
// committed to storage, and the naming of the object it is committed under.
// Everything here is pure: no function in this package talks to a backend.
package intake

import (
	"encoding/json"
	"time"
)

const (
	// MaxImageBytes is the largest proxied payload accepted.
	MaxImageBytes = 10 << 20

	// StoredContentType is written on every proxied object regardless of the
	// declared type.
	StoredContentType = "image/jpg"

	// DefaultGrantContentType is bound to a grant when the caller declares
	// none.
	DefaultGrantContentType = "image/jpg"

	// GrantTTL is how long a pre-signed upload URL stays valid.
	GrantTTL = 15 * time.Minute
)

var jpegTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
}

// Request is a single inbound upload. Body is non-nil in proxied mode and nil
// in pre-signed mode.
type Request struct {
	Body        []byte
	FileName    string
	ContentType string
	Metadata    map[string]any
}

// Proxied reports whether the request carries its own bytes.
func (r *Request) Proxied() bool {
	return r.Body != nil
}

// CheckContentType accepts only the two JPEG spellings, compared exactly.
func CheckContentType(contentType string) error {
	if !jpegTypes[contentType] {
		return Validation(MsgNotJPEG)
	}
	return nil
}

// CheckSize rejects payloads larger than MaxImageBytes.
func CheckSize(n int64) error {
	if n > MaxImageBytes {
		return Validation(MsgTooLarge)
	}
	return nil
}

// ParseMetadata decodes the optional metadata form field. An empty value
// yields an empty map; anything that is not a JSON object is rejected.
func ParseMetadata(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, &Error{Kind: KindValidation, Message: MsgBadMetadata, Err: err}
	}
	if m == nil {
		return nil, Validation(MsgBadMetadata)
	}
	return m, nil
}

// ValidateProxied checks a request that carries file bytes.
func ValidateProxied(req *Request) error {
	if !req.Proxied() {
		return Validation(MsgNoFile)
	}
	if err := CheckContentType(req.ContentType); err != nil {
		return err
	}
	if err := CheckSize(int64(len(req.Body))); err != nil {
		return err
	}
	if req.Metadata == nil {
		req.Metadata = map[string]any{}
	}
	return nil
}

// ValidatePresigned checks a grant request and fills in the default content
// type. No size check is possible since the bytes never reach us.
func ValidatePresigned(req *Request) error {
	if req.FileName == "" {
		return Validation(MsgFileNameRequired)
	}
	if req.ContentType == "" {
		req.ContentType = DefaultGrantContentType
	}
	return nil
}
