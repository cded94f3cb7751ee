package framegraph

import (
	"context"
	"log/slog"
	"strings"
)

// Severity ranks a diagnostic.
type Severity uint8

// Severities.
const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Category is a bitmask classifying a diagnostic.
type Category uint32

// Categories.
const (
	CategoryValidation Category = 1 << iota
	CategoryScheduling
	CategoryResource
	CategoryUnimplemented
	CategoryPerformance
)

var categoryNames = []string{"validation", "scheduling", "resource", "unimplemented", "performance"}

// String returns the set categories joined by '|'.
func (c Category) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	for i, name := range categoryNames {
		if c&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// ObjectKind tags an object implicated by a diagnostic.
type ObjectKind uint8

// Object kinds.
const (
	ObjectResource ObjectKind = iota + 1
	ObjectStage
	ObjectGroup
)

// String returns the kind name.
func (k ObjectKind) String() string {
	switch k {
	case ObjectResource:
		return "resource"
	case ObjectStage:
		return "stage"
	case ObjectGroup:
		return "group"
	default:
		return "object"
	}
}

// Object is a graph object named by a diagnostic.
type Object struct {
	Kind ObjectKind
	Name string
}

func (o Object) String() string { return o.Kind.String() + " " + o.Name }

// Diagnostic is one validation or runtime report.
type Diagnostic struct {
	Severity Severity
	Category Category
	Message  string
	Objects  []Object

	// Err is the error the diagnostic reports, if any.
	Err error
}

// DiagnosticHandler receives diagnostics. It is called synchronously from
// the goroutine driving the Graph.
type DiagnosticHandler func(Diagnostic)

// LogDiagnostic is the default handler: it logs through Logger().
func LogDiagnostic(d Diagnostic) {
	level := slog.LevelInfo
	switch d.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityError:
		level = slog.LevelError
	}
	l := Logger()
	if !l.Enabled(context.Background(), level) {
		return
	}
	attrs := []any{slog.String("category", d.Category.String())}
	if len(d.Objects) > 0 {
		names := make([]string, len(d.Objects))
		for i, o := range d.Objects {
			names[i] = o.String()
		}
		attrs = append(attrs, slog.String("objects", strings.Join(names, ", ")))
	}
	l.Log(context.Background(), level, "framegraph: "+d.Message, attrs...)
}

type reporter struct {
	handler DiagnosticHandler
	trap    bool
}

func (r reporter) report(d Diagnostic) {
	r.handler(d)
	if r.trap && d.Severity == SeverityError {
		panic("framegraph: " + d.Message)
	}
}

func resourceObject(name string) Object { return Object{Kind: ObjectResource, Name: name} }
func stageObject(name string) Object    { return Object{Kind: ObjectStage, Name: name} }
