// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets default values for the configuration on v.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.name", "lightsheet")
	v.SetDefault("main.log.enabled", false)
	v.SetDefault("main.log.path", "logs/lightsheet.log")
	v.SetDefault("main.log.rotation", RotationDaily)
	v.SetDefault("main.log.maxsize", 10485760)

	v.SetDefault("recycler.maxlive", 10)
	v.SetDefault("recycler.maxavailable", 4)
	v.SetDefault("recycler.waittimeout", 2*time.Second)
	v.SetDefault("recycler.minfreememorypercent", 5.0)

	v.SetDefault("pipeline.queuelength", 32)
	v.SetDefault("pipeline.threads", 1)
	v.SetDefault("pipeline.pollinterval", 10*time.Millisecond)
	v.SetDefault("pipeline.passtimeout", time.Second)
	v.SetDefault("pipeline.stoptimeout", time.Second)
	v.SetDefault("pipeline.retry.maxattempts", 8)
	v.SetDefault("pipeline.retry.initialdelay", time.Millisecond)
	v.SetDefault("pipeline.retry.maxdelay", 100*time.Millisecond)
	v.SetDefault("pipeline.retry.multiplier", 2.0)
	v.SetDefault("pipeline.retry.jitter", true)
	v.SetDefault("pipeline.maxprojection", false)

	v.SetDefault("cameras.count", 2)
	v.SetDefault("cameras.width", 512)
	v.SetDefault("cameras.height", 512)
	v.SetDefault("cameras.depth", 32)
	v.SetDefault("cameras.bytespervoxel", 2)
	v.SetDefault("cameras.pixelsizenm", []float64{406})
	v.SetDefault("cameras.maxframerate", 0.0)
	v.SetDefault("cameras.pattern", "fractal")
	v.SetDefault("cameras.exposure", 5*time.Millisecond)
	v.SetDefault("cameras.sourcedirectory", "")
	v.SetDefault("cameras.sourcename", "run")

	v.SetDefault("signalgenerator.sampleinterval", 100*time.Microsecond)
	v.SetDefault("signalgenerator.chunksize", 2999)
	v.SetDefault("signalgenerator.channels", 16)
	v.SetDefault("signalgenerator.timescale", 0.0)
	v.SetDefault("signalgenerator.fifosize", 1<<20)

	v.SetDefault("playback.timeout", 30*time.Second)

	v.SetDefault("timelapse.interval", time.Second)
	v.SetDefault("timelapse.timepoints", 10)

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.path", "lightsheet.db")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.listen", "127.0.0.1:8090")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")

	v.SetDefault("sink.enabled", false)
	v.SetDefault("sink.directory", "stacks")
	v.SetDefault("sink.name", "acquisition")
}

// Defaults returns settings populated only from the built-in defaults,
// ignoring config files and the environment.
func Defaults() *Settings {
	v := viper.New()
	setDefaultConfig(v)
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		panic(err) // defaults are static, a failure here is a programming error
	}
	return settings
}
