// inputsentryd - behavioral input anomaly analysis
//
// The daemon reads newline-delimited capture events, analyzes them in
// sliding windows and reports suspicious verdicts:
//
//	inputsentryd run      Analyze an event stream (stdin by default)
//	inputsentryd stats    Summarize the local verdict history
//	inputsentryd calibrate Derive a typing baseline from a known-human sample
//	inputsentryd check    Validate the configuration
//	inputsentryd init     Write a default configuration file
//	inputsentryd version  Print the version
package main

import (
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "run":
		cmdRun(args)
	case "stats":
		cmdStats(args)
	case "calibrate":
		cmdCalibrate(args)
	case "check":
		cmdCheck(args)
	case "init":
		cmdInit(args)
	case "version", "-v", "--version":
		fmt.Printf("inputsentryd %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`inputsentryd - Behavioral Input Anomaly Analysis

USAGE:
    inputsentryd <command> [options]

COMMANDS:
    run                 Analyze capture events and report verdicts
    stats               Show the local verdict history
    calibrate           Store a typing baseline from a known-human sample
    check               Validate the configuration file
    init                Write a default configuration file
    version             Print the version
    help                Show this help message

COMMON OPTIONS:
    -config <path>      Configuration file (toml, json or yaml)

RUN OPTIONS:
    -input <path>       Event source, "-" for stdin (overrides input.path)
    -follow             Keep reading the input file as it grows
    -watch              Reload detector tuning when the config changes

CALIBRATE OPTIONS:
    -input <path>       Hand-typed capture sample, "-" for stdin
    -dry-run            Print the baseline without saving it

INPUT FORMAT:
    One JSON object per line, as emitted by the browser capture script:
    {"type":"keydown","key":"alphanumeric","timestamp":1712.5,"target":{"tagName":"input","type":"text"}}
    Keys arrive as classes (alphanumeric, other or a named control such as
    Backspace). Raw characters are still accepted and classified on arrival.

ENVIRONMENT:
    INPUTSENTRY_* variables override configuration values, for example
    INPUTSENTRY_ENDPOINT, INPUTSENTRY_SIGNING_SECRET, INPUTSENTRY_LOG_LEVEL.

PRIVACY NOTE:
    Only key classes are analyzed. Printable characters are never stored
    or reported.`)
}
