//go:build framegraph_debug

package framegraph

// trapByDefault makes debug builds log and then panic on every error
// diagnostic.
const trapByDefault = true
