package scanner

import (
	"context"
	"log/slog"
	"sync"
)

// taskRunner tracks every background job goroutine so shutdown can cancel
// and drain them instead of leaving work dangling past the daemon's life.
type taskRunner struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]struct{}
}

func newTaskRunner(ctx context.Context) *taskRunner {
	ctx, cancel := context.WithCancel(ctx)
	return &taskRunner{
		ctx:     ctx,
		cancel:  cancel,
		running: map[string]struct{}{},
	}
}

// Go runs fn on a tracked goroutine. a second task under the same name is
// rejected, one job id never runs twice concurrently.
func (r *taskRunner) Go(name string, fn func(ctx context.Context)) bool {
	r.mu.Lock()
	if _, ok := r.running[name]; ok {
		r.mu.Unlock()
		return false
	}
	r.running[name] = struct{}{}
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.running, name)
			r.mu.Unlock()
			r.wg.Done()
		}()
		fn(r.ctx)
	}()
	return true
}

// Shutdown cancels all tracked tasks and blocks until they return.
func (r *taskRunner) Shutdown() {
	r.cancel()
	r.wg.Wait()
	slog.Info("task runner drained")
}
