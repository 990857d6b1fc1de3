package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/lightsheet-go/internal/buildinfo"
	"github.com/tphakala/lightsheet-go/internal/conf"
)

// Command creates the command that prints build and host information.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version, build and host information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildinfo.NewContext(settings.Version, settings.BuildDate)
			_, err := fmt.Fprint(cmd.OutOrStdout(), info.Report())
			return err
		},
	}
}
