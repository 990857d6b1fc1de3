// Package sim provides simulated devices for running the acquisition core
// without hardware: a signal generator, stack cameras, a laser, a filter
// wheel, an optical switch and a motorized stage.
package sim

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/logging"
)

// ComponentSim identifies simulated device errors.
const ComponentSim = "devices.sim"

var (
	// ErrInvalidPosition is returned for positions a device cannot take.
	ErrInvalidPosition = errors.New(errors.NewStd("invalid device position")).
		Component(ComponentSim).
		Category(errors.CategoryValidation).
		Build()

	// ErrNoRecycler is returned when a camera plays without a stack recycler.
	ErrNoRecycler = errors.New(errors.NewStd("camera has no stack recycler")).
		Component(ComponentSim).
		Category(errors.CategoryState).
		Build()

	// ErrStopped completes playbacks interrupted by Stop.
	ErrStopped = errors.New(errors.NewStd("device stopped")).
		Component(ComponentSim).
		Category(errors.CategoryCancellation).
		Build()
)

func deviceLogger(kind, name string) *slog.Logger {
	logger := logging.ForService("sim")
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", ComponentSim+"."+kind, "device", name)
}

// runState tracks the background work of a device. Stop cancels the
// context and waits; Start arms a fresh context.
type runState struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newRunState() *runState {
	r := &runState{}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

func (r *runState) context() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx
}

func (r *runState) start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx.Err() != nil {
		r.ctx, r.cancel = context.WithCancel(context.Background())
	}
}

func (r *runState) stop() {
	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()
	r.wg.Wait()
}

// goRun runs fn on a tracked goroutine with the current context.
func (r *runState) goRun(fn func(ctx context.Context)) {
	ctx := r.context()
	r.wg.Go(func() { fn(ctx) })
}
