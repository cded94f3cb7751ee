// Command fgc compiles frame graph descriptions and prints, draws or runs
// the resulting plans.
package main

import "github.com/gogpu/framegraph/cmd/fgc/internal/command"

func main() {
	command.Execute()
}
