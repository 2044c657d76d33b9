// Package storage commits images to an object store and issues time-limited
// upload grants against it. GCS is the production backend; the S3-compatible
// and local-disk backends satisfy the same interface for other deployments
// and for development.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrSigningUnsupported is returned by backends that cannot issue grants.
var ErrSigningUnsupported = errors.New("storage: backend cannot sign upload URLs")

// Backend is the storage side of an upload. Implementations must be safe for
// concurrent use; they hold no per-request state.
type Backend interface {
	// Put writes the whole of req.Content to req.Key as a single logical
	// write. It returns an error if any part of the write fails.
	Put(ctx context.Context, req *PutRequest) (*PutResult, error)

	// SignUpload returns a URL that authorises exactly one PUT of req.Key
	// with req.ContentType until req.IssuedAt+req.TTL.
	SignUpload(ctx context.Context, req *SignRequest) (*Grant, error)

	// PublicURL is where key can be read once it exists. It does not check
	// that it does.
	PublicURL(key string) string
}

// BucketEnsurer is implemented by backends that can verify, and if needed
// create, their bucket at startup.
type BucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}

type PutRequest struct {
	// Key is the object name within the configured bucket.
	Key string

	// Content is the data to be written.
	Content io.Reader

	// Size is the exact byte count of Content, or -1 if unknown.
	Size int64

	// ContentType is recorded on the object, e.g. "image/jpg".
	ContentType string
}

// PutResult describes the object a successful Put created.
type PutResult struct {
	Key         string
	Size        int64
	ContentType string
	WrittenAt   time.Time
}

type SignRequest struct {
	Key         string
	ContentType string
	IssuedAt    time.Time
	TTL         time.Duration
}

// ExpiresAt is when a grant issued for r stops working.
func (r *SignRequest) ExpiresAt() time.Time {
	return r.IssuedAt.Add(r.TTL)
}

// Grant is a write-scoped capability for a single object. It is never
// persisted and cannot be revoked once handed out.
type Grant struct {
	URL       string
	Key       string
	ExpiresAt time.Time
}
