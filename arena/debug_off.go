//go:build !ahidebug

package arena

const debugChecks = false

func debugAssertf(cond bool, format string, args ...any) {}
