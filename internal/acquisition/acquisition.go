// Package acquisition runs timelapse acquisitions on a simulated light-sheet rig.
package acquisition

import (
	"context"
	"log/slog"
	"time"

	"github.com/tphakala/lightsheet-go/internal/conf"
	"github.com/tphakala/lightsheet-go/internal/devices/sim"
	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/journal"
	"github.com/tphakala/lightsheet-go/internal/logging"
	"github.com/tphakala/lightsheet-go/internal/microscope"
	"github.com/tphakala/lightsheet-go/internal/observability"
	"github.com/tphakala/lightsheet-go/internal/pipeline/processors"
	"github.com/tphakala/lightsheet-go/internal/stack/sourcesink"
	"github.com/tphakala/lightsheet-go/internal/timelapse"
)

const ComponentAcquisition = "acquisition"

// PlaneSpacing is the stage Z step between two planes of a stack, in micrometers.
const PlaneSpacing = 1.0

// ErrNotStarted is returned when a time point is requested before Start.
var ErrNotStarted = errors.New(errors.NewStd("acquisition session not started")).
	Component(ComponentAcquisition).
	Category(errors.CategoryState).
	Build()

// Result summarizes a timelapse.
type Result struct {
	TimePoints int           // time points attempted
	Succeeded  int           // time points where every camera delivered its stack
	Stacks     int64         // stacks acquired across all cameras
	Duration   time.Duration // wall-clock duration of the run
}

// Failed returns the number of time points that did not succeed.
func (r Result) Failed() int { return r.TimePoints - r.Succeeded }

// Session owns a simulated rig and everything it writes to.
type Session struct {
	settings *conf.Settings
	logger   *slog.Logger

	metrics    *observability.Metrics
	journal    *journal.Journal
	sink       *sourcesink.RawSink
	stats      *processors.Statistics
	projection *processors.MaxProjection
	writer     *processors.SinkWriter
	microscope *microscope.Microscope
	rig        *sim.Rig
	timer      *timelapse.Timer

	queue   *microscope.Queue
	started bool
}

// Options supplies optional collaborators. Nil fields are created from
// settings. A journal passed in is closed with the session.
type Options struct {
	Metrics *observability.Metrics
	Journal *journal.Journal
	Logger  *slog.Logger
}

// NewSession assembles a rig from settings. The journal and raw sink are
// opened when enabled in settings. ctx bounds the wait for the master lock
// while devices are registered.
func NewSession(ctx context.Context, settings *conf.Settings, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.ForComponent(ComponentAcquisition, "session")
	}

	s := &Session{
		settings: settings,
		logger:   logger,
		metrics:  opts.Metrics,
		journal:  opts.Journal,
		timer:    timelapse.NewTimer(settings.Timelapse.Interval),
	}

	if s.metrics == nil {
		m, err := observability.NewMetrics()
		if err != nil {
			return nil, err
		}
		s.metrics = m
	}

	if s.journal == nil && settings.Journal.Enabled {
		j, err := journal.Open(settings.Journal.Path, settings.Debug)
		if err != nil {
			return nil, err
		}
		s.journal = j
	}

	mopts := microscope.Options{
		Settings:        settings,
		Metrics:         s.metrics.Playback,
		PipelineMetrics: s.metrics.Pipeline,
		RecyclerMetrics: s.metrics.Recycler,
		Logger:          logger,
	}
	if s.journal != nil {
		mopts.Recorder = s.journal
	}
	s.microscope = microscope.New(settings.Main.Name, mopts)

	rig, err := sim.Assemble(ctx, s.microscope, settings)
	if err != nil {
		s.closeOutputs()
		return nil, err
	}
	s.rig = rig

	s.stats = processors.NewStatistics("statistics")
	if err := s.microscope.AddStackProcessor(s.stats, "statistics", 1, 1); err != nil {
		s.closeOutputs()
		return nil, err
	}

	if settings.Pipeline.MaxProjection {
		s.projection = processors.NewMaxProjection("max_projection", settings.Recycler.WaitTimeout)
		// Projections are the pipeline output, so the cleanup sink holds some of them.
		live := settings.Cameras.Count*settings.Recycler.MaxLive + microscope.RetainedStacks
		if err := s.microscope.AddStackProcessor(s.projection, "max_projection",
			live, settings.Recycler.MaxAvailable); err != nil {
			s.closeOutputs()
			return nil, err
		}
	}

	if settings.Sink.Enabled {
		sink, err := sourcesink.NewRawSink(settings.Sink.Directory, settings.Sink.Name)
		if err != nil {
			s.closeOutputs()
			return nil, err
		}
		s.sink = sink
		s.writer = processors.NewSinkWriter("raw_sink", sink)
		if err := s.microscope.AddStackProcessor(s.writer, "raw_sink", 1, 1); err != nil {
			s.closeOutputs()
			return nil, err
		}
	}

	return s, nil
}

// Microscope returns the session microscope.
func (s *Session) Microscope() *microscope.Microscope { return s.microscope }

// Rig returns the simulated devices.
func (s *Session) Rig() *sim.Rig { return s.rig }

// Metrics returns the metrics the session records to.
func (s *Session) Metrics() *observability.Metrics { return s.metrics }

// Journal returns the journal or nil when journaling is off.
func (s *Session) Journal() *journal.Journal { return s.journal }

// Timer returns the timelapse timer.
func (s *Session) Timer() *timelapse.Timer { return s.timer }

// Statistics returns the statistics processor.
func (s *Session) Statistics() *processors.Statistics { return s.stats }

// Projection returns the maximum projection processor or nil when disabled.
func (s *Session) Projection() *processors.MaxProjection { return s.projection }

// Start opens and starts every device and builds the time point queue: one
// queue entry per plane, stepping the stage by PlaneSpacing.
func (s *Session) Start(ctx context.Context) error {
	if !s.microscope.Open(ctx) {
		return errors.Newf("microscope %s failed to open", s.microscope.Name()).
			Component(ComponentAcquisition).
			Category(errors.CategoryDevice).
			Context("operation", "open").
			Build()
	}
	if !s.microscope.Start(ctx) {
		s.microscope.Close(ctx)
		return errors.Newf("microscope %s failed to start", s.microscope.Name()).
			Component(ComponentAcquisition).
			Category(errors.CategoryDevice).
			Context("operation", "start").
			Build()
	}
	s.started = true

	q, err := s.microscope.RequestQueue(ctx)
	if err != nil {
		return err
	}
	for z := range max(s.settings.Cameras.Depth, 1) {
		if err := s.rig.AddTimePoint(q, true, float64(z)*PlaneSpacing); err != nil {
			return err
		}
	}
	s.queue = q

	s.logger.Info("acquisition session started",
		"cameras", s.microscope.NumberOfCameras(),
		"planes", q.QueueLength(),
		"interval", s.settings.Timelapse.Interval)
	return nil
}

// AcquireTimePoint plays the time point queue once and waits for every
// camera's stack. A failed playback drops the time point; an error is only
// returned when ctx has ended.
func (s *Session) AcquireTimePoint(ctx context.Context) (bool, error) {
	if !s.started || s.queue == nil {
		return false, ErrNotStarted
	}

	ok, err := s.microscope.PlayQueueAndWaitForStacks(ctx, s.queue, s.settings.Playback.Timeout)
	s.timer.NotifyAcquisition()
	if err != nil {
		if ctx.Err() != nil {
			return false, err
		}
		s.logger.Warn("time point playback failed",
			"time_point", s.timer.Acquisitions(),
			"error", err)
		return false, nil
	}

	if s.logger.Enabled(ctx, slog.LevelDebug) {
		st := s.stats.StatsVariable().Get()
		s.logger.Debug("time point acquired",
			"time_point", s.timer.Acquisitions(),
			"success", ok,
			"mean", st.Mean,
			"max", st.Max)
	}
	return ok, nil
}

// Run acquires the configured number of time points, waiting for each to
// become due. It stops early when ctx ends. Dropped time points are counted
// and the timelapse carries on.
func (s *Session) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	var result Result

	for range s.settings.Timelapse.TimePoints {
		if !s.timer.WaitToAcquire(ctx, -1) {
			break
		}

		result.TimePoints++
		ok, err := s.AcquireTimePoint(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			result.Duration = time.Since(start)
			return result, err
		}
		if ok {
			result.Succeeded++
		} else {
			s.logger.Warn("time point dropped", "time_point", result.TimePoints)
		}
	}

	for _, c := range s.rig.Cameras {
		result.Stacks += c.AcquiredStacks()
	}
	result.Duration = time.Since(start)

	s.logger.Info("timelapse finished",
		"time_points", result.TimePoints,
		"succeeded", result.Succeeded,
		"stacks", result.Stacks,
		"duration", result.Duration)
	return result, ctx.Err()
}

// Close stops and closes every device, frees stack memory and closes the
// sink and journal. It reports the first failure.
func (s *Session) Close(ctx context.Context) error {
	var errs []error

	if s.started {
		if !s.microscope.Stop(ctx) {
			errs = append(errs, errors.Newf("microscope %s failed to stop", s.microscope.Name()).
				Component(ComponentAcquisition).
				Category(errors.CategoryDevice).
				Build())
		}
		if !s.microscope.Close(ctx) {
			errs = append(errs, errors.Newf("microscope %s failed to close", s.microscope.Name()).
				Component(ComponentAcquisition).
				Category(errors.CategoryDevice).
				Build())
		}
		s.started = false
	}

	if err := s.microscope.Free(); err != nil {
		errs = append(errs, err)
	}
	if err := s.closeOutputs(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Session) closeOutputs() error {
	var errs []error
	if s.rig != nil {
		if err := s.rig.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.sink != nil {
		if err := s.sink.Close(); err != nil {
			errs = append(errs, err)
		}
		s.sink = nil
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			errs = append(errs, err)
		}
		s.journal = nil
	}
	return errors.Join(errs...)
}
