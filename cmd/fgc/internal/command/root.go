package command

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/gpucore"
	_ "github.com/gogpu/framegraph/backend/native" // registers noop and vulkan
	_ "github.com/gogpu/framegraph/backend/trace"  // registers trace
)

// Options are the global flags shared by every subcommand.
type Options struct {
	Backend string
	Width   uint32
	Height  uint32
	Vars    map[string]string
	Debug   bool
}

// Highlight colors a heading.
func Highlight(format string, a ...any) string {
	return color.RGB(50, 108, 229).Sprintf(format, a...)
}

// NewRootCommand returns the fgc command tree writing to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "fgc",
		Short: "Compile frame graph descriptions",
		Long: Highlight("fgc [global options] <subcommand> <file>") + "\n\n" +
			"fgc reads an HCL frame graph description, compiles it on a device\n" +
			"and prints the plan, draws it as a Graphviz graph, or submits it\n" +
			"for a number of frames.\n",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.Debug {
				framegraph.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})))
			}
		},
	}
	cmd.SetOut(out)
	cmd.CompletionOptions.DisableDefaultCmd = true

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.Backend, "backend", "b", "", "Device backend (default: first available of "+
		strings.Join(gpucore.Priority, ", ")+")")
	flags.Uint32Var(&opts.Width, "width", 1920, "Value of screen.width")
	flags.Uint32Var(&opts.Height, "height", 1080, "Value of screen.height")
	flags.StringToStringVar(&opts.Vars, "var", nil, "Set var.<name> (repeatable, name=value)")
	flags.BoolVar(&opts.Debug, "debug", false, "Log compiles and submissions")

	setUsageTemplate(cmd)
	cmd.AddCommand(
		NewCompileCommand(opts),
		NewDotCommand(opts),
		NewRunCommand(opts),
		NewBackendsCommand(),
	)
	return cmd
}

func setUsageTemplate(cmd *cobra.Command) {
	cobra.AddTemplateFunc("StyleHeading", color.RGB(50, 108, 229).SprintFunc())
	tmpl := strings.NewReplacer(
		`Usage:`, `{{StyleHeading "Usage:"}}`,
		`Available Commands:`, `{{StyleHeading "Available Commands:"}}`,
		`Flags:`, `{{StyleHeading "Options:"}}`,
		`Global Flags:`, `{{StyleHeading "Global Options:"}}`,
	).Replace(cmd.UsageTemplate())
	cmd.SetUsageTemplate(tmpl)
}

// Execute runs fgc and exits.
func Execute() {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		color.NoColor = true
	}
	cmd := NewRootCommand(os.Stdout)
	if err := cmd.Execute(); err != nil {
		if msg := err.Error(); msg != "" {
			color.New(color.FgRed).Fprintln(os.Stderr, "Error:", msg)
		}
		os.Exit(1)
	}
}
