package backend

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is returned by Refetcher.Do when a newer fetch started
// before this one finished.
var ErrSuperseded = errors.New("fetch superseded by a newer request")

// Refetcher runs one fetch at a time: starting a new fetch cancels the
// previous one still in flight.
type Refetcher struct {
	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// Do cancels any in-flight fetch and runs fetch with a fresh child context.
// A fetch that was overtaken reports ErrSuperseded instead of its own result.
func (r *Refetcher) Do(ctx context.Context, fetch func(context.Context) error) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	r.seq++
	seq := r.seq
	r.cancel = cancel
	r.mu.Unlock()

	err := fetch(ctx)

	r.mu.Lock()
	superseded := r.seq != seq
	if !superseded {
		r.cancel = nil
	}
	r.mu.Unlock()
	cancel()

	if superseded {
		return ErrSuperseded
	}
	return err
}
