package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edp1096/toy-mcusim/internal/sketches"
)

func NewSketchesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sketches",
		Short: "List the built-in sketches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range sketches.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
