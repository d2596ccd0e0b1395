package requests

import (
	"context"
	"sync"

	"github.com/Lavizord/coinflip-client/internal/apperr"
)

// Status of one tracked operation.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPending   Status = "pending"
	StatusFulfilled Status = "fulfilled"
	StatusRejected  Status = "rejected"
)

// State is a point in time view of one tracked operation. While a
// re-invocation is pending the previous Value stays readable, it is only
// replaced once the new invocation resolves.
type State[T any] struct {
	Status Status        `json:"status"`
	Value  T             `json:"value"`
	Err    *apperr.Error `json:"-"`
}

// Tracker serializes the lifecycle of one logical pull operation:
// idle -> pending -> fulfilled | rejected, with re-invocation resetting to
// pending. A second Run while one is in flight supersedes the first: the
// older completion is discarded wholesale, it neither stores a value nor
// flips the status.
type Tracker[T any] struct {
	mu    sync.Mutex
	seq   uint64
	state State[T]
}

func NewTracker[T any]() *Tracker[T] {
	return &Tracker[T]{state: State[T]{Status: StatusIdle}}
}

func (t *Tracker[T]) State() State[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Run executes op and folds the outcome into the tracker. It returns the
// state as of this invocation's completion; when a newer invocation has
// superseded it, the returned state is the newer one's.
func (t *Tracker[T]) Run(ctx context.Context, op func(ctx context.Context) (T, error)) State[T] {
	t.mu.Lock()
	t.seq++
	seq := t.seq
	t.state.Status = StatusPending
	t.state.Err = nil
	t.mu.Unlock()

	value, err := op(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	if seq != t.seq {
		// Superseded while in flight; drop this completion.
		return t.state
	}
	if err != nil {
		t.state.Status = StatusRejected
		t.state.Err = apperr.From(err)
		return t.state
	}
	t.state.Status = StatusFulfilled
	t.state.Value = value
	t.state.Err = nil
	return t.state
}

// Fulfilled reports whether the last completed invocation succeeded.
func (t *Tracker[T]) Fulfilled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Status == StatusFulfilled
}
