// config.go: settings struct for the lightsheet acquisition core and functions to load and save it.
package conf

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/lightsheet-go/internal/cpuspec"
	"github.com/tphakala/lightsheet-go/internal/errors"
)

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled  bool         // true to enable this log
	Path     string       // Path to the log file
	Rotation RotationType // Type of log rotation
	MaxSize  int64        // Max size in bytes for RotationSize
}

// RotationType defines different types of log rotations.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// RecyclerSettings bounds stack memory held by each recycler
type RecyclerSettings struct {
	MaxLive              int           // stacks checked out at the same time, per camera
	MaxAvailable         int           // released stacks kept for reuse, per camera
	WaitTimeout          time.Duration // how long a camera waits for a stack before dropping a time point
	MinFreeMemoryPercent float64       // refuse new allocations below this share of free system memory, 0 disables
}

// RetrySettings configures the capped exponential backoff used when handing stacks to the pipeline
type RetrySettings struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// PipelineSettings configures the asynchronous stack processing pipeline
type PipelineSettings struct {
	QueueLength  int           // bounded input queue length
	Threads      int           // worker count, 0 selects from the CPU topology, 1 keeps stage order
	PollInterval time.Duration // worker poll interval while idle
	PassTimeout  time.Duration // how long a camera may wait for queue space
	StopTimeout  time.Duration // how long Stop waits for the workers to exit
	Retry        RetrySettings

	MaxProjection bool // add a maximum intensity projection stage after the statistics
}

// CameraSettings configures the simulated cameras
type CameraSettings struct {
	Count         int
	Width         int
	Height        int
	Depth         int       // planes per stack
	BytesPerVoxel int
	PixelSizeNm   []float64 // per camera, the last value repeats for cameras without an entry
	MaxFrameRate  float64   // frames per second, 0 disables pacing
	Pattern       string    // fractal, sinus or source
	Exposure      time.Duration

	SourceDirectory string // raw stack directory replayed by the source pattern
	SourceName      string // raw stack file name without extension
}

// SignalGeneratorSettings configures score compilation and simulated DAQ playback
type SignalGeneratorSettings struct {
	SampleInterval time.Duration
	ChunkSize      int     // time points per chunk
	Channels       int     // staves per measure
	TimeScale      float64 // wall-clock seconds per score second during simulated playback
	FIFOSize       int     // bytes
}

// PlaybackSettings configures synchronized queue playback
type PlaybackSettings struct {
	Timeout time.Duration
}

// TimelapseSettings configures the acquisition loop
type TimelapseSettings struct {
	Interval   time.Duration
	TimePoints int
}

// JournalSettings configures the sqlite acquisition journal
type JournalSettings struct {
	Enabled bool
	Path    string
}

// TelemetrySettings configures the prometheus endpoint
type TelemetrySettings struct {
	Enabled bool
	Listen  string
}

// SentrySettings configures error reporting
type SentrySettings struct {
	Enabled bool
	DSN     string
}

// SinkSettings configures the raw stack sink
type SinkSettings struct {
	Enabled   bool
	Directory string
	Name      string
}

// Settings contains all configuration options for the lightsheet acquisition core.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-"`
	BuildDate string `yaml:"-"`

	Main struct {
		Name string    // microscope name, used as journal key and metrics label
		Log  LogConfig // logging configuration
	}

	Recycler        RecyclerSettings
	Pipeline        PipelineSettings
	Cameras         CameraSettings
	SignalGenerator SignalGeneratorSettings
	Playback        PlaybackSettings
	Timelapse       TimelapseSettings
	Journal         JournalSettings
	Telemetry       TelemetrySettings
	Sentry          SentrySettings
	Sink            SinkSettings
}

// PixelSizeNm returns the configured pixel size of a camera
func (s *Settings) PixelSizeNm(camera int) float64 {
	sizes := s.Cameras.PixelSizeNm
	switch {
	case len(sizes) == 0:
		return 0
	case camera < len(sizes):
		return sizes[camera]
	default:
		return sizes[len(sizes)-1]
	}
}

// viperMutex serializes access to the global viper instance.
var viperMutex sync.Mutex

// Load reads the configuration file and environment variables into a new Settings.
func Load() (*Settings, error) {
	viperMutex.Lock()
	defer viperMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_settings").
			Build()
	}

	if settings.Pipeline.Threads == 0 {
		settings.Pipeline.Threads = cpuspec.GetCPUSpec().OptimalWorkerCount()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// initViper initializes viper with default values and reads the configuration file.
// A config file set explicitly with viper.SetConfigFile must exist; otherwise a
// missing config.yaml leaves the defaults in place.
func initViper() error {
	explicit := viper.ConfigFileUsed() != ""
	if !explicit {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return fmt.Errorf("error getting default config paths: %w", err)
		}
		for _, path := range configPaths {
			viper.AddConfigPath(path)
		}
	}

	setDefaultConfig(viper.GetViper())

	if err := bindEnvVars(); err != nil {
		slog.Warn("failed to bind environment variables", "error", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !explicit && errors.As(err, &configFileNotFoundError) {
			return nil
		}
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileIO).
			Context("operation", "read_config").
			Context("file", viper.ConfigFileUsed()).
			Build()
	}

	return nil
}

// SaveYAMLConfig writes settings to configPath.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// Write to a temporary file next to the target so the final rename is atomic
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := moveFile(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
