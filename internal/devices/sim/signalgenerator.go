package sim

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/lightsheet-go/internal/conf"
	"github.com/tphakala/lightsheet-go/internal/device"
	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/future"
	"github.com/tphakala/lightsheet-go/internal/score"
	"github.com/tphakala/lightsheet-go/internal/variable"
)

const (
	bytesPerSample     = 4
	compileCacheTTL    = 10 * time.Minute
	defaultFIFOSize    = 1 << 20
	minFIFOTimePoints  = 64
	defaultStaveNumber = score.DefaultNumberOfStaves
)

// SignalGenerator is a simulated analog output board. Each queued time
// point is one measure, staged as a template that is duplicated when the
// time point is added. Playback compiles the score, streams its samples
// through a hardware FIFO and pulses the trigger variable at the end of
// every measure.
type SignalGenerator struct {
	name      string
	cache     *score.CompileCache
	timeScale float64
	logger    *slog.Logger

	fifo    *ringbuffer.RingBuffer
	trigger *variable.Variable[bool]
	run     *runState
	playing sync.Mutex // one playback streams through the FIFO at a time

	template *score.Measure
	mu       sync.Mutex

	samplesPlayed  atomic.Int64
	measuresPlayed atomic.Int64
}

// NewSignalGenerator returns a signal generator for the configured sample
// interval, channels and FIFO size.
func NewSignalGenerator(name string, s conf.SignalGeneratorSettings) *SignalGenerator {
	compiler := score.NewCompiler(s)
	if compiler.Channels < 1 {
		compiler.Channels = defaultStaveNumber
	}
	if compiler.ChunkSize < 1 {
		compiler.ChunkSize = score.DefaultChunkSize
	}

	fifoSize := s.FIFOSize
	if fifoSize <= 0 {
		fifoSize = defaultFIFOSize
	}
	// The FIFO must hold whole time points.
	timePoint := compiler.Channels * bytesPerSample
	fifoSize = max(fifoSize/timePoint, minFIFOTimePoints) * timePoint

	template := score.NewMeasureWithStaves(name+".measure", compiler.Channels)

	return &SignalGenerator{
		name:      name,
		cache:     score.NewCompileCache(compiler, compileCacheTTL, 0),
		timeScale: s.TimeScale,
		logger:    deviceLogger("signal_generator", name),
		fifo:      ringbuffer.New(fifoSize),
		trigger:   variable.New(name+".trigger", false),
		run:       newRunState(),
		template:  template,
	}
}

func (g *SignalGenerator) Name() string { return g.name }
func (g *SignalGenerator) Open() bool   { return true }

func (g *SignalGenerator) Close() bool {
	g.Stop()
	g.cache.Flush()
	return true
}

func (g *SignalGenerator) Start() bool {
	g.run.start()
	return true
}

// Stop interrupts running playbacks; their futures complete false.
func (g *SignalGenerator) Stop() bool {
	g.run.stop()
	return true
}

// TriggerVariable pulses once per played measure.
func (g *SignalGenerator) TriggerVariable() *variable.Variable[bool] { return g.trigger }

// CompileCache returns the cache of compiled scores.
func (g *SignalGenerator) CompileCache() *score.CompileCache { return g.cache }

// SamplesPlayed returns the number of time points streamed so far.
func (g *SignalGenerator) SamplesPlayed() int64 { return g.samplesPlayed.Load() }

// MeasuresPlayed returns the number of measures played so far.
func (g *SignalGenerator) MeasuresPlayed() int64 { return g.measuresPlayed.Load() }

// SetTemplate replaces the measure new queues are staged from.
func (g *SignalGenerator) SetTemplate(m *score.Measure) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.template = m.Duplicate()
}

// RequestQueue returns a queue staged from the current template.
func (g *SignalGenerator) RequestQueue() device.Queue {
	g.mu.Lock()
	template := g.template.Duplicate()
	g.mu.Unlock()
	return device.NewQueueBase(g.name, template, (*score.Measure).Duplicate)
}

// StageMeasure modifies the staged measure of a signal generator queue.
func StageMeasure(q device.Queue, name string, fn func(m *score.Measure)) error {
	qb, err := device.Cast[*score.Measure](q, name)
	if err != nil {
		return err
	}
	return qb.Stage(func(staged **score.Measure) { fn(*staged) })
}

// PlayQueue compiles the queued measures and plays them asynchronously.
func (g *SignalGenerator) PlayQueue(q device.Queue) *future.Future[bool] {
	qb, err := device.Cast[*score.Measure](q, g.name)
	if err != nil {
		return future.Failed[bool](err)
	}
	measures, err := qb.BeginPlayback()
	if err != nil {
		return future.Failed[bool](err)
	}

	s := score.NewScore(g.name)
	for _, m := range measures {
		s.AddMeasure(m)
	}
	cs, err := g.cache.Get(s)
	if err != nil {
		qb.EndPlayback()
		return future.Failed[bool](err)
	}

	f := future.New[bool]()
	g.run.goRun(func(ctx context.Context) {
		ok, err := g.play(ctx, cs)
		qb.EndPlayback()
		if err != nil {
			f.Fail(err)
			return
		}
		f.Complete(ok)
	})
	return f
}

// play streams cs through the FIFO. A producer writes interleaved float32
// samples while the consumer reads them a measure at a time, paced by the
// time scale, and pulses the trigger after each measure.
func (g *SignalGenerator) play(ctx context.Context, cs *score.CompiledScore) (bool, error) {
	g.playing.Lock()
	defer g.playing.Unlock()
	g.fifo.Reset()

	start := time.Now()
	space := make(chan struct{}, 1)
	data := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	produced := make(chan error, 1)
	go func() {
		err := g.produce(ctx, cs, space, data)
		if err != nil {
			cancel()
		}
		produced <- err
	}()

	consumeErr := g.consume(ctx, cs, space, data)
	cancel()
	produceErr := <-produced

	if produceErr != nil && !errors.Is(produceErr, context.Canceled) {
		return false, produceErr
	}
	if consumeErr != nil {
		g.logger.Warn("playback interrupted", "error", consumeErr, "elapsed", time.Since(start))
		return false, nil
	}
	if g.logger.Enabled(ctx, slog.LevelDebug) {
		g.logger.Debug("score played",
			"measures", cs.NumberOfMeasures(),
			"time_points", cs.NumberOfTimePoints(),
			"elapsed", time.Since(start))
	}
	return true, nil
}

func (g *SignalGenerator) produce(ctx context.Context, cs *score.CompiledScore, space, data chan struct{}) error {
	for _, chunk := range cs.Chunks() {
		buf := make([]byte, len(chunk.Samples)*bytesPerSample)
		for i, v := range chunk.Samples {
			binary.LittleEndian.PutUint32(buf[i*bytesPerSample:], math.Float32bits(v))
		}
		for len(buf) > 0 {
			n := min(len(buf), g.fifo.Free())
			if n == 0 {
				select {
				case <-space:
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			written, err := g.fifo.Write(buf[:n])
			if err != nil {
				return errors.New(err).
					Component(ComponentSim).
					Category(errors.CategoryBuffer).
					Context("device", g.name).
					Build()
			}
			buf = buf[written:]
			signal(data)
		}
	}
	return nil
}

func (g *SignalGenerator) consume(ctx context.Context, cs *score.CompiledScore, space, data chan struct{}) error {
	timePoint := cs.NumberOfChannels() * bytesPerSample
	scratch := make([]byte, g.fifo.Capacity())

	var pacer *time.Timer
	defer func() {
		if pacer != nil {
			pacer.Stop()
		}
	}()

	for _, span := range cs.Measures() {
		if span.Sync {
			continue
		}
		need := int(span.TimePoints) * timePoint
		for need > 0 {
			n := min(need, g.fifo.Length(), len(scratch))
			if n == 0 {
				select {
				case <-data:
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			read, err := g.fifo.Read(scratch[:n])
			if err != nil {
				return err
			}
			need -= read
			signal(space)
		}
		g.samplesPlayed.Add(span.TimePoints)

		if g.timeScale > 0 {
			pace := time.Duration(float64(span.TimePoints) * float64(cs.SampleInterval()) * g.timeScale)
			if pacer == nil {
				pacer = time.NewTimer(pace)
			} else {
				pacer.Reset(pace)
			}
			select {
			case <-pacer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		g.measuresPlayed.Add(1)
		variable.Pulse(g.trigger)
	}
	return nil
}

// signal wakes the other side without blocking.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
