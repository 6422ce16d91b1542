package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cranebuild/crane/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app
// Config, a boolean indicating if the program should exit cleanly, or an
// ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("crane", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
Crane - an asynchronous, memoizing build orchestrator.

Usage:
  crane [options] GOAL

Arguments:
  GOAL
    The product to build for the selected target. Built-in goals:
    'pack' (archive the target's sources) and 'checksum' (write a
    checksum manifest of the target's sources).

Options:
`)
		flagSet.PrintDefaults()
	}

	workspaceFlag := flagSet.String("workspace", ".", "Path to the workspace root.")
	cFlag := flagSet.String("C", "", "Path to the workspace root (shorthand).")
	configFlag := flagSet.String("config", "crane.hcl", "Path to the runtime config file, relative to the workspace.")
	targetFlag := flagSet.String("target", "//:default", "Address of the target to build.")
	kindFlag := flagSet.String("kind", "files", "Kind of the target to build.")
	sourcesFlag := flagSet.String("sources", "**/*", "Comma-separated source globs owned by the target.")
	outFlag := flagSet.String("out", "dist", "Directory artifacts are materialized into, relative to the workspace.")
	watchFlag := flagSet.Bool("watch", false, "Keep the session alive and rebuild when watched files change.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "", "Log output format. Options: 'text' or 'json'. Defaults to the config file setting.")
	logLevelFlag := flagSet.String("log-level", "", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'. Defaults to the config file setting.")
	workersFlag := flagSet.Int("workers", 0, "Number of rule bodies executing concurrently. 0 uses the config file setting.")

	meta := map[string]string{}
	flagSet.Func("meta", "Target metadata as key=value. May be repeated.", func(s string) error {
		k, v, ok := strings.Cut(s, "=")
		if !ok || k == "" {
			return fmt.Errorf("expected key=value, got %q", s)
		}
		meta[k] = v
		return nil
	})

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	if flagSet.NArg() == 0 {
		slog.Debug("No goal provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}
	if flagSet.NArg() > 1 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("expected exactly one goal, got %d: %s", flagSet.NArg(), strings.Join(flagSet.Args(), " "))}
	}
	goal := flagSet.Arg(0)

	workspace := *workspaceFlag
	if *cFlag != "" {
		workspace = *cFlag
	}

	if *logFormatFlag != "" {
		format := strings.ToLower(*logFormatFlag)
		if format != "text" && format != "json" {
			return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
		}
		*logFormatFlag = format
	}
	if *logLevelFlag != "" {
		level := strings.ToLower(*logLevelFlag)
		switch level {
		case "debug", "info", "warn", "error":
			// valid
		default:
			return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
		}
		*logLevelFlag = level
	}
	slog.Debug("CLI parameter validation complete.")

	var sources []string
	for _, s := range strings.Split(*sourcesFlag, ",") {
		if s = strings.TrimSpace(s); s != "" {
			sources = append(sources, s)
		}
	}

	config, err := app.NewConfig(app.Config{
		Workspace:       workspace,
		ConfigPath:      *configFlag,
		Goal:            goal,
		TargetAddress:   *targetFlag,
		TargetKind:      *kindFlag,
		Sources:         sources,
		Meta:            meta,
		OutDir:          *outFlag,
		Watch:           *watchFlag,
		HealthcheckPort: *healthPortFlag,
		LogFormat:       *logFormatFlag,
		LogLevel:        *logLevelFlag,
		Workers:         *workersFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "goal", goal, "workspace", workspace)
	return config, false, nil
}
