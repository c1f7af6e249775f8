// Package monitoring holds the diagnostic logger shared by the filter engine
// and the command line tools.
package monitoring

import (
	"log"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Elapsed formats a duration for log lines with millisecond resolution.
func Elapsed(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
