package upload

import (
	"context"

	"github.com/fundood999/agentic-ai-backend/internal/intake"
	"github.com/fundood999/agentic-ai-backend/internal/storage"
)

// Presigned hands the caller a short-lived URL to upload to the bucket
// directly. The object does not exist when Execute returns.
type Presigned struct {
	deps Deps
}

// NewPresigned returns a Presigned strategy over d.
func NewPresigned(d Deps) *Presigned {
	return &Presigned{deps: d}
}

func (p *Presigned) Name() string {
	return NamePresigned
}

func (p *Presigned) Reject(ctx context.Context, req *intake.Request, err error) error {
	return p.deps.reject(ctx, NamePresigned, req, err)
}

// Execute issues a PUT grant for a freshly allocated key, valid for
// intake.GrantTTL and bound to the request content type. Two calls with the
// same name in the same millisecond get grants for the same key.
func (p *Presigned) Execute(ctx context.Context, req *intake.Request) (*Result, error) {
	return p.deps.run(ctx, NamePresigned, req, intake.ValidatePresigned, p.commit)
}

func (p *Presigned) commit(ctx context.Context, key string, req *intake.Request) (*Result, error) {
	grant, err := p.deps.Backend.SignUpload(ctx, &storage.SignRequest{
		Key:         key,
		ContentType: req.ContentType,
		IssuedAt:    p.deps.now(),
		TTL:         intake.GrantTTL,
	})
	if err != nil {
		return nil, intake.Upstream(intake.MsgSignFailed, err)
	}

	return &Result{
		Key:       key,
		UploadURL: grant.URL,
		PublicURL: p.deps.Backend.PublicURL(key),
		ExpiresAt: grant.ExpiresAt,
	}, nil
}
