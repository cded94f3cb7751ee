package framegraph

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// WriteDOT writes the most recently compiled plan in the DOT format, titled
// with its frame number.
func (g *Graph) WriteDOT(w io.Writer) error {
	p := g.Plan()
	if p == nil {
		return ErrNotCompiled
	}
	return p.WriteDOT(w, fmt.Sprintf("frame %d", p.Frame))
}

// WriteDOT formats the plan in the Graphviz DOT format: one cluster per
// queue, one node per graph stage and one edge per data dependency.
// https://graphviz.org/doc/info/lang.html
func (p *Plan) WriteDOT(w io.Writer, title string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "digraph framegraph {\n")
	fmt.Fprintf(bw, "label = %q;\n", title)
	fmt.Fprintf(bw, "labelloc = \"t\";\n")
	fmt.Fprintf(bw, "node [fontname = \"Monospace\", shape = box];\n\n")

	// Node IDs cannot start with a digit, so use "s<index>".
	for q, tl := range p.Timelines {
		if len(tl) == 0 {
			continue
		}
		fmt.Fprintf(bw, "subgraph cluster_q%d {\n", q)
		fmt.Fprintf(bw, "label = \"queue %d\";\n", q)
		for _, i := range tl {
			s := &p.Stages[i]
			label := fmt.Sprintf("%s\\nvalue %d", strings.Join(s.Substages, "\\n"), s.Value)
			if n := len(s.Pre) + len(s.Post); n > 0 {
				label += fmt.Sprintf("\\n%d barriers", n)
			}
			fmt.Fprintf(bw, "s%d [label=\"%s\"];\n", i, escapeDOT(label))
		}
		fmt.Fprintf(bw, "}\n")
	}
	fmt.Fprintf(bw, "\n")
	for _, e := range p.Edges {
		fmt.Fprintf(bw, "s%d -> s%d [label=%q];\n", e.From, e.To, e.Resource)
	}
	for i := range p.Stages {
		for _, wt := range p.Stages[i].Waits {
			for j := range p.Stages {
				if p.Stages[j].Queue == wt.Queue && p.Stages[j].Value == wt.Value {
					fmt.Fprintf(bw, "s%d -> s%d [style=dashed];\n", j, i)
				}
			}
		}
	}
	fmt.Fprintf(bw, "}\n")
	return bw.Flush()
}

func escapeDOT(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}
