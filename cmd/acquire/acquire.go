package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/lightsheet-go/internal/acquisition"
	"github.com/tphakala/lightsheet-go/internal/conf"
	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/logging"
	"github.com/tphakala/lightsheet-go/internal/observability"
)

// Command creates the command that runs a timelapse on the simulated rig.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Acquire a timelapse on the simulated microscope",
		Long: "Assemble a simulated light-sheet microscope, play one queue entry per plane " +
			"at every time point and wait for each camera to deliver its stack.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the acquire command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().IntVarP(&settings.Timelapse.TimePoints, "timepoints", "n", settings.Timelapse.TimePoints, "Number of time points to acquire")
	cmd.Flags().DurationVarP(&settings.Timelapse.Interval, "interval", "i", settings.Timelapse.Interval, "Interval between time points")
	cmd.Flags().IntVar(&settings.Cameras.Count, "cameras", settings.Cameras.Count, "Number of simulated cameras")
	cmd.Flags().IntVar(&settings.Cameras.Depth, "depth", settings.Cameras.Depth, "Planes per stack")
	cmd.Flags().StringVar(&settings.Cameras.Pattern, "pattern", settings.Cameras.Pattern, "Simulated image pattern (fractal, sinus, source)")
	cmd.Flags().StringVar(&settings.Cameras.SourceDirectory, "source-dir", settings.Cameras.SourceDirectory, "Raw stack directory replayed by the source pattern")
	cmd.Flags().StringVar(&settings.Cameras.SourceName, "source-name", settings.Cameras.SourceName, "Raw stack name replayed by the source pattern")
	cmd.Flags().BoolVar(&settings.Pipeline.MaxProjection, "projection", settings.Pipeline.MaxProjection, "Replace stacks by their maximum intensity projection after the statistics")
	cmd.Flags().BoolVar(&settings.Journal.Enabled, "journal", settings.Journal.Enabled, "Record playbacks in the sqlite journal")
	cmd.Flags().StringVar(&settings.Journal.Path, "journal-path", settings.Journal.Path, "Path of the sqlite journal")
	cmd.Flags().BoolVar(&settings.Sink.Enabled, "sink", settings.Sink.Enabled, "Write acquired stacks to a raw sink")
	cmd.Flags().StringVar(&settings.Sink.Directory, "sink-dir", settings.Sink.Directory, "Directory of the raw sink")
	cmd.Flags().BoolVar(&settings.Telemetry.Enabled, "telemetry", settings.Telemetry.Enabled, "Enable Prometheus telemetry endpoint")
	cmd.Flags().StringVar(&settings.Telemetry.Listen, "listen", settings.Telemetry.Listen, "Listen address and port of telemetry endpoint")

	bindings := map[string]string{
		"timelapse.timepoints":    "timepoints",
		"timelapse.interval":      "interval",
		"cameras.count":           "cameras",
		"cameras.depth":           "depth",
		"cameras.pattern":         "pattern",
		"cameras.sourcedirectory": "source-dir",
		"cameras.sourcename":      "source-name",
		"pipeline.maxprojection":  "projection",
		"journal.enabled":         "journal",
		"journal.path":            "journal-path",
		"sink.enabled":            "sink",
		"sink.directory":          "sink-dir",
		"telemetry.enabled":       "telemetry",
		"telemetry.listen":        "listen",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}

	return nil
}

func run(ctx context.Context, settings *conf.Settings) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, closeLog, err := sessionLogger(settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
	}()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("error initializing metrics: %w", err)
	}

	// quitChan stops the telemetry endpoint once the timelapse is over
	var wg sync.WaitGroup
	quitChan := make(chan struct{})
	defer func() {
		close(quitChan)
		wg.Wait()
	}()

	if settings.Telemetry.Enabled {
		endpoint, err := observability.NewEndpoint(settings, metrics)
		if err != nil {
			return err
		}
		if err := endpoint.Start(&wg, quitChan); err != nil {
			return err
		}
		fmt.Printf("Serving metrics on http://%s/metrics\n", endpoint.Addr())
	}

	session, err := acquisition.NewSession(ctx, settings, acquisition.Options{Metrics: metrics, Logger: logger})
	if err != nil {
		return err
	}

	fmt.Printf("Acquiring %d time points every %v, %d cameras, %d planes per stack\n",
		settings.Timelapse.TimePoints, settings.Timelapse.Interval, settings.Cameras.Count, settings.Cameras.Depth)

	if err := session.Start(ctx); err != nil {
		return errors.Join(err, session.Close(context.WithoutCancel(ctx)))
	}

	result, runErr := session.Run(ctx)
	closeErr := session.Close(context.WithoutCancel(ctx))

	fmt.Printf("\nResults:\n")
	fmt.Printf("Time points    %d\n", result.TimePoints)
	fmt.Printf("Succeeded      %d\n", result.Succeeded)
	fmt.Printf("Dropped        %d\n", result.Failed())
	fmt.Printf("Stacks         %d\n", result.Stacks)
	fmt.Printf("Duration       %v\n", result.Duration.Round(time.Millisecond))

	switch {
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		return runErr
	case closeErr != nil:
		return closeErr
	case result.Failed() > 0:
		return errors.Newf("%d of %d time points dropped", result.Failed(), result.TimePoints).
			Component(acquisition.ComponentAcquisition).
			Category(errors.CategoryProcessing).
			Build()
	}
	return nil
}

// sessionLogger returns a rotating file logger when file logging is enabled.
func sessionLogger(settings *conf.Settings) (*slog.Logger, func() error, error) {
	if !settings.Main.Log.Enabled {
		return logging.ForComponent(acquisition.ComponentAcquisition, "session"), func() error { return nil }, nil
	}

	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
	}
	return logging.NewFileLogger(settings.Main.Log.Path, acquisition.ComponentAcquisition, level, settings.Main.Log)
}
