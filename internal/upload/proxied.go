package upload

import (
	"bytes"
	"context"

	"github.com/fundood999/agentic-ai-backend/internal/intake"
	"github.com/fundood999/agentic-ai-backend/internal/storage"
)

// Proxied writes bytes received by the server into the bucket.
type Proxied struct {
	deps Deps
}

// NewProxied returns a Proxied strategy over d.
func NewProxied(d Deps) *Proxied {
	return &Proxied{deps: d}
}

func (p *Proxied) Name() string {
	return NameProxied
}

func (p *Proxied) Reject(ctx context.Context, req *intake.Request, err error) error {
	return p.deps.reject(ctx, NameProxied, req, err)
}

// Execute validates req, allocates a key and writes req.Body under it. The
// stored content type is always intake.StoredContentType.
func (p *Proxied) Execute(ctx context.Context, req *intake.Request) (*Result, error) {
	return p.deps.run(ctx, NameProxied, req, intake.ValidateProxied, p.commit)
}

func (p *Proxied) commit(ctx context.Context, key string, req *intake.Request) (*Result, error) {
	size := int64(len(req.Body))

	_, err := p.deps.Backend.Put(ctx, &storage.PutRequest{
		Key:         key,
		Content:     bytes.NewReader(req.Body),
		Size:        size,
		ContentType: intake.StoredContentType,
	})
	if err != nil {
		return nil, intake.Upstream(intake.MsgUploadFailed, err)
	}

	if p.deps.Metrics != nil {
		p.deps.Metrics.IntakeBytes.Observe(float64(size))
	}

	return &Result{
		Key:      key,
		Size:     size,
		Metadata: req.Metadata,
	}, nil
}
