// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by the configuration.
const EnvPrefix = "LIGHTSHEET"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the explicitly validated environment variable bindings.
// All other keys are still reachable through the automatic LIGHTSHEET_ prefix.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "LIGHTSHEET_DEBUG", validateEnvBool},
		{"pipeline.threads", "LIGHTSHEET_PIPELINE_THREADS", validateEnvNonNegativeInt},
		{"pipeline.queuelength", "LIGHTSHEET_PIPELINE_QUEUELENGTH", validateEnvPositiveInt},
		{"recycler.maxlive", "LIGHTSHEET_RECYCLER_MAXLIVE", validateEnvPositiveInt},
		{"recycler.maxavailable", "LIGHTSHEET_RECYCLER_MAXAVAILABLE", validateEnvPositiveInt},
		{"cameras.count", "LIGHTSHEET_CAMERAS_COUNT", validateEnvNonNegativeInt},
		{"sentry.dsn", "LIGHTSHEET_SENTRY_DSN", nil},
		{"journal.path", "LIGHTSHEET_JOURNAL_PATH", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var warnings []string
	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fmt.Errorf("must be a non-negative integer")
	}
	return nil
}
