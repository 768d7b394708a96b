// Package rlog provides the package-level debug and warning loggers
// shared by the core packages: a silenced-by-default debug logger and an
// always-on warning logger, both colour-prefixed for a terminal.
package rlog

import (
	"io"
	"log"
	"os"

	"github.com/mewkiz/pkg/term"
)

// Debug logs debug messages with a "ropgadget:" prefix to standard error.
// It is silenced (output discarded) unless SetVerbose is called.
var Debug = log.New(io.Discard, term.MagentaBold("ropgadget:")+" ", 0)

// Warn logs warning messages with a "warning:" prefix to standard error.
// Warn is always enabled; it carries the §7 "warned and skipped" cases
// (malformed ELF segments, an empty executable map).
var Warn = log.New(os.Stderr, term.RedBold("warning:")+" ", 0)

// SetVerbose enables Debug output to standard error.
func SetVerbose(verbose bool) {
	if verbose {
		Debug.SetOutput(os.Stderr)
	} else {
		Debug.SetOutput(io.Discard)
	}
}

// Default returns l, or Debug when l is nil. elfload.Load and the
// search entry points take an optional *log.Logger parameter and fall
// back to this package's loggers through Default and DefaultWarn when
// it is nil.
func Default(l *log.Logger) *log.Logger {
	if l == nil {
		return Debug
	}
	return l
}

// DefaultWarn returns l, or Warn when l is nil.
func DefaultWarn(l *log.Logger) *log.Logger {
	if l == nil {
		return Warn
	}
	return l
}
