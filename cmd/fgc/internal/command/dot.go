package command

import (
	"os"

	"github.com/spf13/cobra"
)

// NewDotCommand compiles one frame and writes it as a Graphviz graph.
func NewDotCommand(opts *Options) *cobra.Command {
	var frame uint64
	var output string
	cmd := &cobra.Command{
		Use:   "dot <file>",
		Short: "Write the compiled plan in the DOT format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := openSession(opts, args[0], newView(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.close(); err == nil {
					err = cerr
				}
			}()
			if err := s.compile(cmd.Context(), frame); err != nil {
				return err
			}
			if output == "" || output == "-" {
				return s.g.WriteDOT(cmd.OutOrStdout())
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := s.g.WriteDOT(f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().Uint64Var(&frame, "frame", 0, "Value of frame")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	return cmd
}
