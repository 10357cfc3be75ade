package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/duckql/cli/internal/ui"
	"github.com/satishbabariya/duckql/cli/internal/version"
)

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			if short {
				fmt.Fprintln(ui.Output, info.Version)
				return
			}
			fmt.Fprintln(ui.Output, info.FullString())
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print the version number only")
	return cmd
}
