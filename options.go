package framegraph

import "github.com/gogpu/framegraph/internal/pool"

// Option configures a Graph during creation.
//
// Example:
//
//	g, err := framegraph.New(dev,
//	    framegraph.WithFramesInFlight(1),
//	    framegraph.WithDiagnosticHandler(func(d framegraph.Diagnostic) {
//	        log.Println(d.Severity, d.Message)
//	    }))
type Option func(*options)

type options struct {
	handler        DiagnosticHandler
	trap           bool
	framesInFlight int
	pool           pool.Config
	evictAfter     int
}

// defaultOptions returns the default graph options.
func defaultOptions() options {
	return options{
		handler:        LogDiagnostic,
		trap:           trapByDefault,
		framesInFlight: 2,
		evictAfter:     pool.DefaultEvictAfter,
	}
}

// WithDiagnosticHandler installs a handler for validation and runtime
// diagnostics. The default logs them through Logger().
func WithDiagnosticHandler(h DiagnosticHandler) Option {
	return func(o *options) {
		if h != nil {
			o.handler = h
		}
	}
}

// WithTrap makes error diagnostics panic after the handler ran. Useful in
// tests to stop at the first invalid declaration. Builds with the
// framegraph_debug tag trap by default.
func WithTrap() Option {
	return func(o *options) {
		o.trap = true
	}
}

// WithFramesInFlight sets how many submitted frames may run on the GPU
// while the next one compiles. Values are clamped to [1, 2].
func WithFramesInFlight(n int) Option {
	return func(o *options) {
		o.framesInFlight = min(max(n, 1), 2)
	}
}

// WithMemoryBudget caps the bytes held by the resource pool. Zero means
// no cap.
func WithMemoryBudget(mb int) Option {
	return func(o *options) {
		o.pool.MaxMemoryMB = max(mb, 0)
	}
}

// WithEvictAfter sets how many consecutive compiles an auxiliary blit pass
// may go unused before it is destroyed.
func WithEvictAfter(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.evictAfter = n
		}
	}
}
