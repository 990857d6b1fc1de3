// conf/validate.go

package conf

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		func(s *Settings) error { return validateLogSettings(&s.Main.Log) },
		func(s *Settings) error { return validateRecyclerSettings(&s.Recycler) },
		func(s *Settings) error { return validatePipelineSettings(&s.Pipeline) },
		func(s *Settings) error { return validateCameraSettings(&s.Cameras) },
		func(s *Settings) error { return validateSignalGeneratorSettings(&s.SignalGenerator) },
		func(s *Settings) error { return validateAcquisitionSettings(s) },
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func joinErrors(section string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s settings: %s", section, strings.Join(errs, "; "))
}

func validateLogSettings(settings *LogConfig) error {
	var errs []string
	switch settings.Rotation {
	case RotationDaily, RotationWeekly, RotationSize:
	default:
		errs = append(errs, fmt.Sprintf("unknown rotation %q", settings.Rotation))
	}
	if settings.Enabled && settings.Path == "" {
		errs = append(errs, "path is required when file logging is enabled")
	}
	return joinErrors("log", errs)
}

func validateRecyclerSettings(settings *RecyclerSettings) error {
	var errs []string
	if settings.MaxLive < 1 {
		errs = append(errs, "maxlive must be at least 1")
	}
	if settings.MaxAvailable < 1 {
		errs = append(errs, "maxavailable must be at least 1")
	}
	if settings.WaitTimeout < 0 {
		errs = append(errs, "waittimeout must not be negative")
	}
	if settings.MinFreeMemoryPercent < 0 || settings.MinFreeMemoryPercent >= 100 {
		errs = append(errs, "minfreememorypercent must be in [0, 100)")
	}
	return joinErrors("recycler", errs)
}

func validatePipelineSettings(settings *PipelineSettings) error {
	var errs []string
	if settings.QueueLength < 1 {
		errs = append(errs, "queuelength must be at least 1")
	}
	if settings.Threads < 0 {
		errs = append(errs, "threads must not be negative")
	}
	if settings.PollInterval <= 0 {
		errs = append(errs, "pollinterval must be positive")
	}
	if settings.StopTimeout <= 0 {
		errs = append(errs, "stoptimeout must be positive")
	}
	if settings.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.maxattempts must be at least 1")
	}
	if settings.Retry.Multiplier < 1 {
		errs = append(errs, "retry.multiplier must be at least 1")
	}
	if settings.Retry.MaxDelay < settings.Retry.InitialDelay {
		errs = append(errs, "retry.maxdelay must not be smaller than retry.initialdelay")
	}
	return joinErrors("pipeline", errs)
}

func validateCameraSettings(settings *CameraSettings) error {
	var errs []string
	if settings.Count < 0 {
		errs = append(errs, "count must not be negative")
	}
	if settings.Width < 1 || settings.Height < 1 || settings.Depth < 1 {
		errs = append(errs, "width, height and depth must be positive")
	}
	if settings.BytesPerVoxel != 1 && settings.BytesPerVoxel != 2 {
		errs = append(errs, "bytespervoxel must be 1 or 2")
	}
	for i, size := range settings.PixelSizeNm {
		if size <= 0 {
			errs = append(errs, fmt.Sprintf("pixelsizenm[%d] must be positive", i))
		}
	}
	switch settings.Pattern {
	case "fractal", "sinus":
	case "source":
		if settings.SourceDirectory == "" || settings.SourceName == "" {
			errs = append(errs, "pattern source needs sourcedirectory and sourcename")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown pattern %q", settings.Pattern))
	}
	return joinErrors("cameras", errs)
}

func validateSignalGeneratorSettings(settings *SignalGeneratorSettings) error {
	var errs []string
	if settings.SampleInterval < time.Microsecond {
		errs = append(errs, "sampleinterval must be at least 1µs")
	}
	if settings.ChunkSize < 1 {
		errs = append(errs, "chunksize must be at least 1")
	}
	if settings.Channels < 1 {
		errs = append(errs, "channels must be at least 1")
	}
	if settings.TimeScale < 0 {
		errs = append(errs, "timescale must not be negative")
	}
	if settings.FIFOSize < 4*settings.Channels {
		errs = append(errs, "fifosize must hold at least one time point")
	}
	return joinErrors("signalgenerator", errs)
}

func validateAcquisitionSettings(settings *Settings) error {
	var errs []string
	if settings.Playback.Timeout <= 0 {
		errs = append(errs, "playback.timeout must be positive")
	}
	if settings.Timelapse.Interval < 0 {
		errs = append(errs, "timelapse.interval must not be negative")
	}
	if settings.Timelapse.TimePoints < 0 {
		errs = append(errs, "timelapse.timepoints must not be negative")
	}
	if settings.Journal.Enabled && settings.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}
	if settings.Telemetry.Enabled && settings.Telemetry.Listen == "" {
		errs = append(errs, "telemetry.listen is required when telemetry is enabled")
	}
	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		errs = append(errs, "sentry.dsn is required when sentry is enabled")
	}
	if settings.Sink.Enabled && settings.Sink.Directory == "" {
		errs = append(errs, "sink.directory is required when the sink is enabled")
	}
	return joinErrors("acquisition", errs)
}
