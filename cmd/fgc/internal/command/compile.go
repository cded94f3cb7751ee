package command

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCompileCommand compiles one frame and prints its plan.
func NewCompileCommand(opts *Options) *cobra.Command {
	var frame uint64
	var strict bool
	cmd := &cobra.Command{
		Use:   "compile <file>",
		Short: "Compile a description and print the plan",
		Long: Highlight("fgc compile <file>") + "\n\n" +
			"Compiles one frame of the description and prints its graph stages,\n" +
			"resources and diagnostics. Nothing is submitted.\n",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := newView(cmd.OutOrStdout())
			s, err := openSession(opts, args[0], v)
			if err != nil {
				return err
			}
			if err := s.compile(cmd.Context(), frame); err != nil {
				s.close()
				return err
			}
			v.plan(s.g.Plan())
			if err := s.close(); err != nil {
				return err
			}
			if strict && v.warnings > 0 {
				return fmt.Errorf("%d warnings", v.warnings)
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&frame, "frame", 0, "Value of frame")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on warnings")
	return cmd
}
