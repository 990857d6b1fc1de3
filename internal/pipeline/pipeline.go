// Package pipeline runs camera stacks through a chain of stack processors
// on worker goroutines, decoupled from acquisition by bounded queues.
//
// With one thread every processor gets its own stage goroutine and input
// queue and stacks leave in arrival order. With more threads a pool of
// workers runs the whole chain per stack; output order is then not
// guaranteed and consumers re-sequence by stack index if they need to.
package pipeline

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/lightsheet-go/internal/conf"
	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/logging"
	"github.com/tphakala/lightsheet-go/internal/stack"
	"github.com/tphakala/lightsheet-go/internal/variable"
)

const (
	defaultQueueLength  = 32
	defaultPollInterval = 10 * time.Millisecond
	defaultStopTimeout  = time.Second
)

// Options configures a Pipeline.
type Options struct {
	QueueLength  int           // capacity of every stage queue
	Threads      int           // <= 1 selects the single worker per stage variant
	PollInterval time.Duration // WaitToFinish polling period
	StopTimeout  time.Duration // how long Stop waits for workers
	Retry        RetryPolicy
	Recyclers    *stack.RecyclerManager // source of processor recyclers; nil creates private ones
	Metrics      Metrics
	Logger       *slog.Logger
}

// OptionsFrom converts configured pipeline settings.
func OptionsFrom(s conf.PipelineSettings) Options {
	return Options{
		QueueLength:  s.QueueLength,
		Threads:      s.Threads,
		PollInterval: s.PollInterval,
		StopTimeout:  s.StopTimeout,
		Retry:        RetryPolicyFrom(s.Retry),
	}
}

type stage struct {
	processor Processor
	recycler  *stack.Recycler
	private   bool
}

// Pipeline is an asynchronous stack processing pipeline. It is a lifecycle
// participant: Open, Start, Stop and Close report success as a bool.
type Pipeline struct {
	name    string
	opts    Options
	logger  *slog.Logger
	metrics Metrics
	output  *variable.Variable[*stack.Stack]

	mu      sync.RWMutex
	stages  []stage
	opened  bool
	started bool
	queues  []chan *stack.Stack // queues[0] is the input queue
	cancel  context.CancelFunc
	stopped <-chan struct{} // closed when Stop begins
	done    chan struct{}

	inFlight atomic.Int64
}

// New creates a stopped pipeline.
func New(name string, opts Options) *Pipeline {
	if opts.QueueLength < 1 {
		opts.QueueLength = defaultQueueLength
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	opts.Retry = opts.Retry.normalized()

	logger := opts.Logger
	if logger == nil {
		logger = logging.ForService("pipeline")
		if logger == nil {
			logger = slog.Default()
		}
	}

	var metrics Metrics = noopMetrics{}
	if opts.Metrics != nil {
		metrics = opts.Metrics
	}

	return &Pipeline{
		name:    name,
		opts:    opts,
		logger:  logger.With("component", "pipeline", "pipeline", name),
		metrics: metrics,
		output:  variable.New[*stack.Stack](name+".output", nil),
	}
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// IsSingleThread reports whether the stage per processor variant is used.
func (p *Pipeline) IsSingleThread() bool { return p.opts.Threads <= 1 }

// OutputVariable is set with every processed stack. The pipeline hands its
// reference to the consumers of this variable; when nobody listens the
// stack is released. Attach a CleanupSink to own the references.
func (p *Pipeline) OutputVariable() *variable.Variable[*stack.Stack] {
	return p.output
}

// AddStackProcessor appends p to the chain with a recycler of its own,
// named recyclerName. Processors can only be changed while stopped.
func (p *Pipeline) AddStackProcessor(proc Processor, recyclerName string, maxLive, maxAvailable int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New(ErrPipelineRunning).
			Context("pipeline", p.name).
			Context("processor", proc.Name()).
			Build()
	}

	st := stage{processor: proc}
	var err error
	if p.opts.Recyclers != nil {
		st.recycler, err = p.opts.Recyclers.Recycler(recyclerName, maxLive, maxAvailable)
	} else {
		st.recycler, err = stack.NewRecycler(recyclerName, maxLive, maxAvailable)
		st.private = true
	}
	if err != nil {
		return err
	}

	p.stages = append(p.stages, st)
	p.logger.Info("stack processor added",
		"processor", proc.Name(),
		"recycler", recyclerName,
		"position", len(p.stages)-1)
	return nil
}

// RemoveStackProcessor removes proc from the chain.
func (p *Pipeline) RemoveStackProcessor(proc Processor) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New(ErrPipelineRunning).
			Context("pipeline", p.name).
			Context("processor", proc.Name()).
			Build()
	}

	i := slices.IndexFunc(p.stages, func(st stage) bool { return st.processor == proc })
	if i < 0 {
		return errors.New(ErrProcessorNotFound).
			Context("pipeline", p.name).
			Context("processor", proc.Name()).
			Build()
	}
	if st := p.stages[i]; st.private {
		st.recycler.Clear()
	}
	p.stages = slices.Delete(p.stages, i, i+1)
	p.logger.Info("stack processor removed", "processor", proc.Name())
	return nil
}

// StackProcessor returns the processor at position i.
func (p *Pipeline) StackProcessor(i int) (Processor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i < 0 || i >= len(p.stages) {
		return nil, false
	}
	return p.stages[i].processor, true
}

// ProcessorRecycler returns the recycler dedicated to the processor at position i.
func (p *Pipeline) ProcessorRecycler(i int) (*stack.Recycler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i < 0 || i >= len(p.stages) {
		return nil, false
	}
	return p.stages[i].recycler, true
}

// NumberOfProcessors returns the chain length.
func (p *Pipeline) NumberOfProcessors() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.stages)
}

// Open prepares the pipeline. It always succeeds.
func (p *Pipeline) Open() bool {
	p.mu.Lock()
	p.opened = true
	p.mu.Unlock()
	p.logger.Debug("pipeline opened")
	return true
}

// Close stops the pipeline.
func (p *Pipeline) Close() bool {
	ok := p.Stop()
	p.mu.Lock()
	p.opened = false
	p.mu.Unlock()
	p.logger.Debug("pipeline closed", "success", ok)
	return ok
}

// Start launches the workers.
func (p *Pipeline) Start() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return true
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	stages := slices.Clone(p.stages)

	var queues []chan *stack.Stack
	if p.IsSingleThread() {
		queues = make([]chan *stack.Stack, max(1, len(stages)))
		for i := range queues {
			queues[i] = make(chan *stack.Stack, p.opts.QueueLength)
		}
		for i := range queues {
			group.Go(func() error {
				p.stageWorker(gctx, stages, queues, i)
				return nil
			})
		}
	} else {
		queues = []chan *stack.Stack{make(chan *stack.Stack, p.opts.QueueLength)}
		for range p.opts.Threads {
			group.Go(func() error {
				p.poolWorker(gctx, stages, queues[0])
				return nil
			})
		}
	}

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()

	p.queues = queues
	p.cancel = cancel
	p.stopped = ctx.Done()
	p.done = done
	p.started = true

	p.logger.Info("pipeline started",
		"processors", len(stages),
		"threads", max(1, p.opts.Threads),
		"queue_length", p.opts.QueueLength)
	return true
}

// Stop cancels the workers, waits for them with capped retries and releases
// every stack still queued. It returns false if the workers did not exit in
// time; their leftovers are then released once they do.
func (p *Pipeline) Stop() bool {
	// Cancelling first wakes offers blocked on a full queue, which hold the read lock.
	p.mu.RLock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.RUnlock()

	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return true
	}
	p.started = false
	cancel, done, queues := p.cancel, p.done, p.queues
	p.cancel, p.stopped, p.done, p.queues = nil, nil, nil, nil
	p.mu.Unlock()

	cancel()
	if !p.waitForWorkers(done) {
		go func() {
			<-done
			p.drain(queues)
		}()
		return false
	}

	released := p.drain(queues)
	p.metrics.UpdateQueueLength(p.name, 0)
	p.logger.Info("pipeline stopped", "released_stacks", released)
	return true
}

func (p *Pipeline) waitForWorkers(done <-chan struct{}) bool {
	deadline := time.Now().Add(p.opts.StopTimeout)
	for attempt := 0; ; attempt++ {
		wait := p.opts.Retry.Delay(attempt)
		if remaining := time.Until(deadline); remaining < wait {
			wait = max(remaining, 0)
		}

		timer := time.NewTimer(wait)
		select {
		case <-done:
			timer.Stop()
			return true
		case <-timer.C:
		}

		if !time.Now().Before(deadline) {
			p.logger.Warn("pipeline workers did not stop in time",
				"attempts", attempt+1,
				"timeout", p.opts.StopTimeout)
			return false
		}
		if p.logger.Enabled(context.Background(), slog.LevelDebug) {
			p.logger.Debug("waiting for pipeline workers", "attempt", attempt+1)
		}
	}
}

// drain releases every queued stack. The workers must have exited.
func (p *Pipeline) drain(queues []chan *stack.Stack) int {
	released := 0
	for _, q := range queues {
		for len(q) > 0 {
			s := <-q
			s.Release()
			p.drop(DropStopped)
			released++
		}
	}
	return released
}

// IsStarted reports whether the workers are running.
func (p *Pipeline) IsStarted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

// PassOrFail offers s without blocking. On false the caller keeps ownership of s.
func (p *Pipeline) PassOrFail(s *stack.Stack) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started {
		p.metrics.RecordDropped(p.name, DropNotStarted)
		return false
	}

	p.inFlight.Add(1)
	select {
	case p.queues[0] <- s:
		p.accepted()
		return true
	default:
		p.inFlight.Add(-1)
		p.metrics.RecordDropped(p.name, DropQueueFull)
		return false
	}
}

// PassOrWait offers s, waiting for the pipeline to be started and for queue
// space. Attempts back off exponentially with jitter, bounded by the retry
// policy and by timeout; the last attempt waits for the rest of the timeout.
// A negative timeout is bounded only by the retry policy and ctx. On false
// the caller keeps ownership of s.
func (p *Pipeline) PassOrWait(ctx context.Context, s *stack.Stack, timeout time.Duration) bool {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	reason := DropQueueFull
	attempts := p.opts.Retry.MaxAttempts
	for attempt := range attempts {
		wait := p.opts.Retry.Delay(attempt)
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			if attempt == attempts-1 || remaining < wait {
				wait = remaining
			}
		}

		var accepted bool
		if accepted, reason = p.offer(ctx, s, wait); accepted {
			return true
		}
		if reason == DropStopped || ctx.Err() != nil {
			break
		}
	}

	p.metrics.RecordDropped(p.name, reason)
	if p.logger.Enabled(ctx, slog.LevelDebug) {
		p.logger.Debug("stack not accepted",
			"stack_index", s.Index(),
			"reason", reason,
			"timeout", timeout)
	}
	return false
}

// offer tries to enqueue s for at most wait. On failure it returns the drop
// reason; DropStopped means Stop began while s waited for queue space.
func (p *Pipeline) offer(ctx context.Context, s *stack.Stack, wait time.Duration) (bool, string) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	p.mu.RLock()
	if !p.started {
		p.mu.RUnlock()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
		return false, DropNotStarted
	}

	p.inFlight.Add(1)
	select {
	case p.queues[0] <- s:
		p.accepted()
		p.mu.RUnlock()
		return true, ""
	case <-p.stopped:
		p.inFlight.Add(-1)
		p.mu.RUnlock()
		return false, DropStopped
	case <-timer.C:
	case <-ctx.Done():
	}
	p.inFlight.Add(-1)
	p.mu.RUnlock()
	return false, DropQueueFull
}

// accepted records a stack entering the input queue. Called with p.mu held.
func (p *Pipeline) accepted() {
	p.metrics.RecordStackIn(p.name)
	p.metrics.UpdateQueueLength(p.name, len(p.queues[0]))
}

func (p *Pipeline) stageWorker(ctx context.Context, stages []stage, queues []chan *stack.Stack, i int) {
	in := queues[i]
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-in:
			if i == 0 {
				p.metrics.UpdateQueueLength(p.name, len(in))
			}

			out := s
			if i < len(stages) {
				if out = p.runStage(ctx, stages[i], s); out == nil {
					continue
				}
			}

			if i+1 == len(queues) {
				p.publish(out)
				continue
			}
			select {
			case queues[i+1] <- out:
			case <-ctx.Done():
				out.Release()
				p.drop(DropStopped)
				return
			}
		}
	}
}

func (p *Pipeline) poolWorker(ctx context.Context, stages []stage, in <-chan *stack.Stack) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-in:
			p.metrics.UpdateQueueLength(p.name, len(in))
			out := s
			for _, st := range stages {
				if out = p.runStage(ctx, st, out); out == nil {
					break
				}
			}
			if out != nil {
				p.publish(out)
			}
		}
	}
}

// runStage applies one processor. It returns nil when the stack was dropped.
func (p *Pipeline) runStage(ctx context.Context, st stage, s *stack.Stack) *stack.Stack {
	if !st.processor.IsActive() {
		return s
	}

	name := st.processor.Name()
	index := s.Index()
	start := time.Now()
	out, err := st.processor.Process(ctx, s, st.recycler)
	p.metrics.RecordProcessing(p.name, name, time.Since(start))

	if err != nil {
		s.Release()
		p.metrics.RecordProcessorError(p.name, name)
		p.drop(DropProcessorError)
		p.logger.Warn("stack processor failed",
			"processor", name,
			"stack_index", index,
			"error", errors.Join(ErrProcessorFailed, err))
		return nil
	}
	if out == nil {
		p.drop(DropFiltered)
		return nil
	}
	return out
}

func (p *Pipeline) publish(s *stack.Stack) {
	defer p.inFlight.Add(-1)

	if p.output.NumberOfListeners() == 0 {
		s.Release()
		p.metrics.RecordDropped(p.name, DropNoConsumer)
		return
	}
	p.output.Set(s)
	p.metrics.RecordStackOut(p.name)
}

func (p *Pipeline) drop(reason string) {
	p.metrics.RecordDropped(p.name, reason)
	p.inFlight.Add(-1)
}

// InputQueueLength returns the number of stacks waiting in the input queue.
func (p *Pipeline) InputQueueLength() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.queues) == 0 {
		return 0
	}
	return len(p.queues[0])
}

// RemainingCapacity returns the free space of the input queue, zero while stopped.
func (p *Pipeline) RemainingCapacity() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.queues) == 0 {
		return 0
	}
	return cap(p.queues[0]) - len(p.queues[0])
}

// InFlight returns the number of accepted stacks not yet published or dropped.
func (p *Pipeline) InFlight() int64 {
	return p.inFlight.Load()
}

// WaitToFinish polls until every accepted stack left the pipeline. A
// negative timeout waits forever.
func (p *Pipeline) WaitToFinish(timeout time.Duration) bool {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		if p.inFlight.Load() <= 0 {
			return true
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return false
		}
		<-ticker.C
	}
}
