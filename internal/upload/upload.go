// Package upload provides the intake strategies. A strategy takes one
// request through a linear lifecycle:
//
//	received → validating → rejected | allocating → committing → failed | completed
//
// State lives only for the duration of Execute; nothing is persisted and
// nothing is retried.
package upload

import (
	"context"
	"log/slog"
	"time"

	"github.com/fundood999/agentic-ai-backend/internal/intake"
	"github.com/fundood999/agentic-ai-backend/internal/metrics"
	"github.com/fundood999/agentic-ai-backend/internal/storage"
)

// State is a step in the per-request lifecycle.
type State string

const (
	StateReceived   State = "received"
	StateValidating State = "validating"
	StateRejected   State = "rejected"
	StateAllocating State = "allocating"
	StateCommitting State = "committing"
	StateFailed     State = "failed"
	StateCompleted  State = "completed"
)

// Strategy names, also used as metric labels.
const (
	NameProxied   = "proxied"
	NamePresigned = "presigned"
)

// Result is what a completed request produced. Which fields are set depends
// on the strategy.
type Result struct {
	Key string

	// Proxied only.
	Size     int64
	Metadata map[string]any

	// Presigned only.
	UploadURL string
	PublicURL string
	ExpiresAt time.Time
}

// Strategy is one way of getting an image into storage. Adding another (for
// example resumable uploads) should not need changes to intake.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, req *intake.Request) (*Result, error)

	// Reject records a request that failed validation before it could be
	// handed to Execute, such as a body that could not be parsed. It returns
	// err unchanged.
	Reject(ctx context.Context, req *intake.Request, err error) error
}

// Deps are the dependencies shared by all strategies. Backend and Allocator
// are required; the rest may be left nil.
type Deps struct {
	Backend   storage.Backend
	Allocator *intake.Allocator
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	// Now is the clock used for grant issuance. Defaults to time.Now.
	Now func() time.Time

	// OnTransition, if set, is called on every state change.
	OnTransition func(from, to State)
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Deps) count(strategy, outcome string) {
	if d.Metrics != nil {
		d.Metrics.IntakeRequests.WithLabelValues(strategy, outcome).Inc()
	}
}

type commitFunc func(ctx context.Context, key string, req *intake.Request) (*Result, error)

// lifecycle tracks the state of a single request.
type lifecycle struct {
	deps  *Deps
	name  string
	state State
	log   *slog.Logger
}

func (d *Deps) begin(name string, req *intake.Request) *lifecycle {
	var fileName string
	if req != nil {
		fileName = req.FileName
	}
	return &lifecycle{
		deps:  d,
		name:  name,
		state: StateReceived,
		log:   d.logger().With("strategy", name, "file_name", fileName),
	}
}

func (l *lifecycle) moveTo(next State) {
	if l.deps.OnTransition != nil {
		l.deps.OnTransition(l.state, next)
	}
	l.state = next
}

func (l *lifecycle) reject(ctx context.Context, err error) error {
	l.moveTo(StateRejected)
	l.deps.count(l.name, metrics.OutcomeRejected)
	l.log.InfoContext(ctx, "intake rejected", "reason", intake.MessageOf(err))
	return err
}

// reject takes a request that never reached validation straight from
// received to rejected.
func (d *Deps) reject(ctx context.Context, name string, req *intake.Request, err error) error {
	l := d.begin(name, req)
	l.moveTo(StateValidating)
	return l.reject(ctx, err)
}

// run drives req through the lifecycle. Backend errors are logged here with
// their cause; callers only ever see the public message.
func (d *Deps) run(ctx context.Context, name string, req *intake.Request, validate func(*intake.Request) error, commit commitFunc) (*Result, error) {
	l := d.begin(name, req)
	moveTo, log := l.moveTo, l.log

	moveTo(StateValidating)
	if err := validate(req); err != nil {
		return nil, l.reject(ctx, err)
	}

	moveTo(StateAllocating)
	key := d.Allocator.Allocate(req.FileName)

	moveTo(StateCommitting)
	res, err := commit(ctx, key, req)
	if err != nil {
		moveTo(StateFailed)
		d.count(name, metrics.OutcomeFailed)
		log.ErrorContext(ctx, "intake failed", "key", key, "error", err)
		return nil, err
	}

	moveTo(StateCompleted)
	d.count(name, metrics.OutcomeCompleted)
	log.InfoContext(ctx, "intake completed", "key", key)
	return res, nil
}

// Service bundles one instance of each strategy over the same dependencies.
type Service struct {
	Proxied   *Proxied
	Presigned *Presigned
}

// NewService returns a Service whose strategies share d.
func NewService(d Deps) *Service {
	return &Service{
		Proxied:   NewProxied(d),
		Presigned: NewPresigned(d),
	}
}
