package intake

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Allocator derives object keys of the form {unixMillis}-{originalName}.
//
// Two requests for the same name within the same millisecond get the same
// key and the later write wins. WithUniqueSuffix inserts a random segment
// between the timestamp and the name to avoid this, at the cost of changing
// the key format.
type Allocator struct {
	now    func() time.Time
	unique bool
}

// AllocatorOption configures an Allocator.
type AllocatorOption func(*Allocator)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) AllocatorOption {
	return func(a *Allocator) {
		a.now = now
	}
}

// WithUniqueSuffix makes keys {unixMillis}-{8 hex}-{originalName}.
func WithUniqueSuffix() AllocatorOption {
	return func(a *Allocator) {
		a.unique = true
	}
}

// NewAllocator returns an Allocator using the wall clock, adjusted by opts.
func NewAllocator(opts ...AllocatorOption) *Allocator {
	a := &Allocator{now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate returns the object key for originalName. The name is used as is.
func (a *Allocator) Allocate(originalName string) string {
	ms := a.now().UnixMilli()
	if a.unique {
		return fmt.Sprintf("%d-%s-%s", ms, uuid.NewString()[:8], originalName)
	}
	return fmt.Sprintf("%d-%s", ms, originalName)
}
