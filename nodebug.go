//go:build !framegraph_debug

package framegraph

// trapByDefault is off in regular builds, where Builder failures surface
// through Err and nil handles. Build with -tags framegraph_debug to log and
// trap.
const trapByDefault = false
