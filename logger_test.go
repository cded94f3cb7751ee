package framegraph

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/gogpu/framegraph/backend/trace"
)

// captureLogs routes framegraph logging into a buffer for the test.
func captureLogs(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})))
	return &buf
}

func TestSilentByDefault(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })
	SetLogger(nil)

	l := Logger()
	if l == nil {
		t.Fatal("Logger() = nil after SetLogger(nil)")
	}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if l.Enabled(context.Background(), level) {
			t.Errorf("silent logger enabled for %v", level)
		}
	}
	if err := (nopHandler{}).Handle(context.Background(), slog.Record{}); err != nil {
		t.Errorf("nopHandler.Handle() = %v", err)
	}
}

func TestCompileLogs(t *testing.T) {
	buf := captureLogs(t, slog.LevelDebug)
	g, _ := newTestGraph(t, trace.DefaultConfig())
	if err := g.Compile(context.Background(), deferredLighting); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"framegraph: compiled", "frame=1", "stages=", "barriers="} {
		if !strings.Contains(out, want) {
			t.Errorf("log lacks %q:\n%s", want, out)
		}
	}
}

func TestSetLoggerReachesDevices(t *testing.T) {
	captureLogs(t, slog.LevelError)
	g, dev := newTestGraph(t, trace.Config{Queues: trace.SingleQueue()})
	ctx := context.Background()

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	if err := g.Compile(ctx, deferredLighting); err != nil {
		t.Fatal(err)
	}
	if err := g.Submit(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "trace: submit") {
		t.Errorf("device did not pick up the new logger:\n%s", buf.String())
	}

	g.Close()
	devicesMu.Lock()
	_, tracked := devices[dev]
	devicesMu.Unlock()
	if tracked {
		t.Error("device still tracked after Close")
	}
}

func TestLogDiagnosticLevels(t *testing.T) {
	tests := []struct {
		d    Diagnostic
		want string
	}{
		{Diagnostic{Severity: SeverityInfo, Category: CategoryPerformance, Message: "blit inserted"}, "level=INFO"},
		{Diagnostic{Severity: SeverityWarning, Category: CategoryUnimplemented, Message: "clear skipped",
			Objects: []Object{{Kind: ObjectStage, Name: "draw"}}}, "level=WARN"},
		{Diagnostic{Severity: SeverityError, Category: CategoryValidation, Message: "bad use",
			Err: errors.New("boom")}, "level=ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.d.Message, func(t *testing.T) {
			buf := captureLogs(t, slog.LevelDebug)
			LogDiagnostic(tt.d)
			out := buf.String()
			if !strings.Contains(out, tt.want) || !strings.Contains(out, "framegraph: "+tt.d.Message) {
				t.Errorf("LogDiagnostic() logged %q", out)
			}
			if len(tt.d.Objects) > 0 && !strings.Contains(out, "stage draw") {
				t.Errorf("objects missing from %q", out)
			}
		})
	}
}

func TestLoggerConcurrentSwap(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				SetLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
				return
			}
			if Logger() == nil {
				t.Error("Logger() = nil during swap")
			}
		}()
	}
	wg.Wait()
}

func BenchmarkSilentDiagnostic(b *testing.B) {
	orig := Logger()
	defer SetLogger(orig)
	SetLogger(nil)
	d := Diagnostic{Severity: SeverityWarning, Category: CategoryUnimplemented, Message: "skipped",
		Objects: []Object{{Kind: ObjectResource, Name: "hdr"}}}
	b.ReportAllocs()
	for b.Loop() {
		LogDiagnostic(d)
	}
}
