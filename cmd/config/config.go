package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/lightsheet-go/internal/conf"
)

var outputPath string

// Command creates the command that prints or saves the effective configuration.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration or write it to a file",
		Long: "Print the configuration that results from defaults, config.yaml, environment and flags. " +
			"With --output the same configuration is written as YAML, ready to be edited and passed with --config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputPath != "" {
				if err := conf.SaveYAMLConfig(outputPath, settings); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ Configuration written to %s\n", outputPath)
				return nil
			}

			data, err := yaml.Marshal(settings)
			if err != nil {
				return fmt.Errorf("error marshaling settings to YAML: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the configuration to this file instead of printing it")

	return cmd
}
