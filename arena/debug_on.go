//go:build ahidebug

package arena

import "fmt"

const debugChecks = true

// debugAssertf panics with a formatted message when cond is false. It
// only exists in builds tagged ahidebug; release builds pay nothing.
func debugAssertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
