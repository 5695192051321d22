// Command bravvo drives the planning substrate from the command line: it
// replays YAML workflow scripts against a workspace and inspects weights and
// governance schedules.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the testable entrypoint. Exit codes: 0 success, 1 a workflow step
// failed, 2 usage or setup error.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	switch args[1] {
	case "run":
		return runScriptCmd(args[2:], cfg, logger, stdout, stderr)
	case "weights":
		return runWeightsCmd(args[2:], cfg, stdout, stderr)
	case "schedule":
		return runScheduleCmd(args[2:], cfg, stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "bravvo %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage: bravvo <command> [flags]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Commands:")
	_, _ = fmt.Fprintln(w, "  run       Execute a workflow script (--script, --workspace)")
	_, _ = fmt.Fprintln(w, "  weights   Show weights, presets and a recommendation (--profile, --signals)")
	_, _ = fmt.Fprintln(w, "  schedule  Compute the next governance window (--period-end, --frequency)")
	_, _ = fmt.Fprintln(w, "  version   Print the version")
	_, _ = fmt.Fprintln(w, "  help      Show this help")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Environment: LOG_LEVEL, DATABASE_URL, REDIS_ADDR, LLM_SERVICE_URL, LLM_API_KEY,")
	_, _ = fmt.Fprintln(w, "  LLM_MODEL, BRAVVO_PROFILE, OTEL_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT, ARTIFACT_STORAGE_TYPE")
}
