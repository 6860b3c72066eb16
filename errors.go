// Completion: 100% - Utility module complete
package main

import (
	"fmt"
	"os"
)

// compilerError reports an internal compiler error and exits. These are
// conditions the compiler itself got wrong, not user-program errors.
func compilerError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "wcc: internal error: "+format+"\n", args...)
	os.Exit(1)
}

// warnf surfaces a non-fatal condition (like an unsupported node kind)
// on stderr. Warnings are never silenced by QuietMode: a skipped node is
// information the user must see.
func warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "wcc: warning: "+format+"\n", args...)
}

// errorf builds a source-position-tagged error for user-program problems.
func errorf(line int, format string, args ...interface{}) error {
	if line > 0 {
		return fmt.Errorf("line %d: "+format, append([]interface{}{line}, args...)...)
	}
	return fmt.Errorf(format, args...)
}
