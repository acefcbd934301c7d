package trampoline

import (
	"fmt"
	"os"
)

// tracePrintf writes a verbose trace line to stderr when verbose tracing
// is enabled, rather than pulling in a structured logging library for a
// handful of diagnostic lines.
func tracePrintf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
