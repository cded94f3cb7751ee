package framegraph

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gogpu/framegraph/backend/trace"
)

func TestRegisterMetricsTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := RegisterMetrics(reg); err != nil {
		t.Fatalf("RegisterMetrics() = %v", err)
	}
	if err := RegisterMetrics(reg); err != nil {
		t.Fatalf("second RegisterMetrics() = %v", err)
	}
}

func TestCompileMetrics(t *testing.T) {
	g, _ := newTestGraph(t, trace.DefaultConfig())
	ok := testutil.ToFloat64(compilesTotal.WithLabelValues("ok"))
	failed := testutil.ToFloat64(compilesTotal.WithLabelValues("error"))
	culled := testutil.ToFloat64(stagesCulledTotal)

	if err := g.Compile(context.Background(), deferredLighting); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(compilesTotal.WithLabelValues("ok")); got != ok+1 {
		t.Errorf("ok compiles = %v, want %v", got, ok+1)
	}
	if got := testutil.ToFloat64(stagesCulledTotal); got != culled+1 {
		t.Errorf("culled stages = %v, want %v", got, culled+1)
	}

	_ = g.Compile(context.Background(), func(b *Builder) error {
		b.CreateImage("bad", rgba(0, 0))
		return nil
	})
	if got := testutil.ToFloat64(compilesTotal.WithLabelValues("error")); got != failed+1 {
		t.Errorf("failed compiles = %v, want %v", got, failed+1)
	}

	before := testutil.ToFloat64(submissionsTotal.WithLabelValues("0"))
	if err := g.Compile(context.Background(), deferredLighting); err != nil {
		t.Fatal(err)
	}
	if err := g.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(submissionsTotal.WithLabelValues("0")); got != before+1 {
		t.Errorf("queue 0 submissions = %v, want %v", got, before+1)
	}
}
