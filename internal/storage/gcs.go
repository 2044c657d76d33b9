package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const gcsPublicHost = "storage.googleapis.com"

// GCSConfig configures a GCS backend.
type GCSConfig struct {
	Bucket string

	// ProjectID is only needed when EnsureBucket has to create the bucket.
	ProjectID string

	// GoogleAccessID and PrivateKey sign URLs locally. When empty, signing
	// falls back to whatever the client's credentials allow.
	GoogleAccessID string
	PrivateKey     []byte
}

// GCS stores objects in a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	cfg    GCSConfig
}

// NewGCS creates a GCS backend. opts are passed through to the underlying
// client, allowing credential injection.
func NewGCS(ctx context.Context, cfg GCSConfig, opts ...option.ClientOption) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: GCS bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create GCS client: %w", err)
	}
	return &GCS{client: client, cfg: cfg}, nil
}

// Put streams content to the bucket. The object only becomes visible once
// the writer is closed successfully.
func (g *GCS) Put(ctx context.Context, req *PutRequest) (*PutResult, error) {
	w := g.client.Bucket(g.cfg.Bucket).Object(req.Key).NewWriter(ctx)
	w.ContentType = req.ContentType

	n, err := io.Copy(w, req.Content)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("storage: upload write failed for %q: %w", req.Key, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("storage: upload close failed for %q: %w", req.Key, err)
	}

	writtenAt := time.Now()
	if attrs := w.Attrs(); attrs != nil && !attrs.Created.IsZero() {
		writtenAt = attrs.Created
	}

	return &PutResult{
		Key:         req.Key,
		Size:        n,
		ContentType: req.ContentType,
		WrittenAt:   writtenAt,
	}, nil
}

// SignUpload issues a V4 signed PUT URL bound to the request content type.
func (g *GCS) SignUpload(_ context.Context, req *SignRequest) (*Grant, error) {
	expiresAt := req.ExpiresAt()
	signedURL, err := g.client.Bucket(g.cfg.Bucket).SignedURL(req.Key, &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         http.MethodPut,
		ContentType:    req.ContentType,
		Expires:        expiresAt,
		GoogleAccessID: g.cfg.GoogleAccessID,
		PrivateKey:     g.cfg.PrivateKey,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: failed to sign URL for %q: %w", req.Key, err)
	}

	return &Grant{
		URL:       signedURL,
		Key:       req.Key,
		ExpiresAt: expiresAt,
	}, nil
}

func (g *GCS) PublicURL(key string) string {
	u := &url.URL{
		Scheme: "https",
		Host:   gcsPublicHost,
		Path:   "/" + g.cfg.Bucket + "/" + key,
	}
	return u.String()
}

// EnsureBucket checks the bucket exists and creates it in ProjectID if not.
func (g *GCS) EnsureBucket(ctx context.Context) error {
	bucket := g.client.Bucket(g.cfg.Bucket)
	_, err := bucket.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("storage: failed to read bucket %q: %w", g.cfg.Bucket, err)
	}
	if g.cfg.ProjectID == "" {
		return fmt.Errorf("storage: bucket %q does not exist and no project is configured", g.cfg.Bucket)
	}
	if err := bucket.Create(ctx, g.cfg.ProjectID, nil); err != nil {
		return fmt.Errorf("storage: failed to create bucket %q: %w", g.cfg.Bucket, err)
	}
	return nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
