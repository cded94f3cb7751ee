package command

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/gogpu/framegraph/gpucore"
)

// NewBackendsCommand lists the registered device backends.
func NewBackendsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the device backends",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range gpucore.Backends() {
				if i := slices.Index(gpucore.Priority, name); i >= 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t(priority %d)\n", name, i+1)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
			}
		},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
