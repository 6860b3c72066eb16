// Completion: 100% - Configuration complete
package main

import (
	"github.com/xyproto/env/v2"
)

// Global flags for controlling output verbosity
var VerboseMode bool
var QuietMode bool
var DebugMode bool

const versionString = "wcc 1.0.0"

// Environment overrides, applied before flag parsing so flags win:
//
//	WCC_OPT      default optimization level (0-9)
//	WCC_VERBOSE  enable verbose mode
//	WCC_QUIET    suppress warnings
//	WCC_DEBUG    extra diagnostics during development
func configFromEnv() int {
	VerboseMode = env.Bool("WCC_VERBOSE")
	QuietMode = env.Bool("WCC_QUIET")
	DebugMode = env.Bool("WCC_DEBUG")
	return env.Int("WCC_OPT", 9)
}
