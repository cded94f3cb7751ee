package command

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/gogpu/framegraph"
)

// view prints plans and diagnostics.
type view struct {
	out io.Writer

	warnings int
}

func newView(out io.Writer) *view { return &view{out: out} }

func severity(s framegraph.Severity) string {
	switch s {
	case framegraph.SeverityError:
		return color.RedString("ERROR")
	case framegraph.SeverityWarning:
		return color.YellowString("WARN")
	default:
		return color.CyanString("INFO")
	}
}

func (v *view) diagnostic(d framegraph.Diagnostic) {
	if d.Severity == framegraph.SeverityWarning {
		v.warnings++
	}
	objs := make([]string, len(d.Objects))
	for i, o := range d.Objects {
		objs[i] = o.String()
	}
	fmt.Fprintf(v.out, "%s [%s] %s", severity(d.Severity), d.Category, d.Message)
	if len(objs) > 0 {
		fmt.Fprintf(v.out, " (%s)", strings.Join(objs, ", "))
	}
	fmt.Fprintln(v.out)
}

func (v *view) plan(p *framegraph.Plan) {
	fmt.Fprintln(v.out, Highlight("Frame %d", p.Frame))
	tw := tabwriter.NewWriter(v.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tQUEUE\tVALUE\tSUBSTAGES\tBARRIERS\tWAITS")
	for _, s := range p.Stages {
		waits := make([]string, len(s.Waits))
		for i, w := range s.Waits {
			waits[i] = fmt.Sprintf("q%d@%d", w.Queue, w.Value)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\t%s\n", s.Name, s.Queue, s.Value,
			strings.Join(s.Substages, ","), len(s.Pre)+len(s.Post), strings.Join(waits, ","))
	}
	tw.Flush()

	fmt.Fprintln(v.out)
	tw = tabwriter.NewWriter(v.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tINFO\tVERSIONS\tPHYSICAL\tFLAGS")
	for _, r := range p.Resources {
		var flags []string
		if r.Imported {
			flags = append(flags, "imported")
		}
		if r.Exported {
			flags = append(flags, "exported")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.Name, r.Info, r.Versions, r.Physical, strings.Join(flags, ","))
	}
	tw.Flush()

	if len(p.Culled) > 0 {
		fmt.Fprintf(v.out, "\nculled: %s\n", strings.Join(p.Culled, ", "))
	}
	fmt.Fprintf(v.out, "%d barriers, %d edges\n", p.BarrierCount(), len(p.Edges))
}
