// Package monitoring carries the replaceable diagnostic logger used by the
// high-rate line and frame handlers. Those paths log sporadically but from
// tight loops, so tests mute or capture the output instead of letting it
// interleave with test results.
package monitoring

import "log"

// Logf is the package-level diagnostic logger, log.Printf by default.
// Replace it through SetLogger rather than assigning directly.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces the diagnostic logger. A nil argument installs a no-op
// logger, which is how tests silence the handlers under test.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}
