package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/lightsheet-go/cmd/acquire"
	"github.com/tphakala/lightsheet-go/cmd/benchmark"
	"github.com/tphakala/lightsheet-go/cmd/config"
	"github.com/tphakala/lightsheet-go/cmd/history"
	"github.com/tphakala/lightsheet-go/cmd/score"
	"github.com/tphakala/lightsheet-go/cmd/version"
	"github.com/tphakala/lightsheet-go/internal/conf"
	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/logging"
)

// configFile holds the --config flag value
var configFile string

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lightsheet",
		Short:         "Light-sheet microscope acquisition core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		panic(err) // flag names are static
	}

	scoreCmd := score.Command(settings)
	versionCmd := version.Command(settings)

	subcommands := []*cobra.Command{
		acquire.Command(settings),
		benchmark.Command(settings),
		config.Command(settings),
		history.Command(settings),
		scoreCmd,
		versionCmd,
	}

	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Reload so the config file, environment and flags all apply, flags taking precedence
		if err := reloadSettings(settings); err != nil {
			return err
		}

		// Skip setup for commands that touch no hardware and report nothing
		if cmd.Name() == scoreCmd.Name() || cmd.Name() == versionCmd.Name() {
			return nil
		}

		return initialize(settings)
	}

	return rootCmd
}

// reloadSettings reads configuration into settings, keeping the build information.
func reloadSettings(settings *conf.Settings) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	}

	loaded, err := conf.Load()
	if err != nil {
		return err
	}

	buildVersion, buildDate := settings.Version, settings.BuildDate
	*settings = *loaded
	settings.Version, settings.BuildDate = buildVersion, buildDate
	return nil
}

// initialize is called before any subcommands are run, but after the settings are ready
func initialize(settings *conf.Settings) error {
	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}

	if settings.Sentry.Enabled {
		if err := errors.InitSentry(settings.Sentry.DSN, settings.Version); err != nil {
			return fmt.Errorf("failed to initialize error reporting: %w", err)
		}
	}

	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config.yaml, default locations are searched when empty")
	rootCmd.PersistentFlags().StringVar(&settings.Main.Name, "name", settings.Main.Name, "Microscope name used in the journal and metrics")

	bindings := map[string]string{
		"debug":     "debug",
		"main.name": "name",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}

	return nil
}
