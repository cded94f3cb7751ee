package command

import (
	"bytes"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/gogpu/framegraph"
)

// NewRunCommand compiles and submits a description for a number of frames.
func NewRunCommand(opts *Options) *cobra.Command {
	var (
		frames   uint64
		inFlight int
		metrics  bool
	)
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Compile and submit a description for several frames",
		Long: Highlight("fgc run <file>") + "\n\n" +
			"Compiles and submits the description once per frame, feeding the\n" +
			"exports of each frame to the \"from\" imports of the next, then\n" +
			"prints resource pool statistics.\n",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			v := newView(cmd.OutOrStdout())
			reg := prometheus.NewRegistry()
			if metrics {
				if err := framegraph.RegisterMetrics(reg); err != nil {
					return err
				}
			}
			s, err := openSession(opts, args[0], v, framegraph.WithFramesInFlight(inFlight))
			if err != nil {
				return err
			}
			recorded := map[string]int{}
			s.bind.Recorder = func(stage string) framegraph.Recorder {
				return framegraph.RecordFunc(func(*framegraph.RecordContext) error {
					recorded[stage]++
					return nil
				})
			}
			defer func() {
				if cerr := s.close(); err == nil {
					err = cerr
				}
			}()

			start := time.Now()
			for n := range frames {
				if err := s.frame(cmd.Context(), n); err != nil {
					return err
				}
			}
			elapsed := time.Since(start)
			fmt.Fprintf(v.out, "%s %d frames in %v on %s\n", Highlight("Ran"), frames, elapsed, deviceName(s.dev))
			fmt.Fprintln(v.out, s.g.PoolStats())
			for _, name := range sortedKeys(recorded) {
				fmt.Fprintf(v.out, "  %-24s recorded %d times\n", name, recorded[name])
			}
			if metrics {
				return writeMetrics(v, reg)
			}
			return nil
		},
	}
	cmd.Flags().Uint64VarP(&frames, "frames", "n", 3, "Number of frames")
	cmd.Flags().IntVar(&inFlight, "in-flight", 2, "Frames in flight")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "Print the framegraph metrics in the Prometheus text format")
	return cmd
}

func writeMetrics(v *view, reg *prometheus.Registry) error {
	mfs, err := reg.Gather()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return err
		}
	}
	_, err = v.out.Write(buf.Bytes())
	return err
}
