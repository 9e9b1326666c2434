// Package cli parses command-line arguments into an app.Config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/taskmesh/internal/app"
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

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("taskmesh", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
TaskMesh - a dependency-graph task scheduler with bounded concurrency.

Usage:
  taskmesh [options] [MESH_PATH]

Arguments:
  MESH_PATH
    Path to a single .hcl mesh file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	meshFlag := flagSet.String("mesh", "", "Path to the mesh file or directory.")
	mFlag := flagSet.String("m", "", "Path to the mesh file or directory (shorthand).")
	maxParallelFlag := flagSet.Int("max-parallel", 0, "Ceiling on simultaneously running tasks. 0 uses the mesh setting or the default of 4.")
	cancelFlag := flagSet.Bool("cancel-on-failure", false, "Withhold later waves after the first task failure.")
	dryRunFlag := flagSet.Bool("dry-run", false, "Print the resolved execution plan without running any task.")
	summaryOutFlag := flagSet.String("summary-out", "", "Write the final run summary to this path as JSON.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *meshFlag != "" {
		path = *meshFlag
	} else if *mFlag != "" {
		path = *mFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Mesh path determined.", "path", path)

	if path == "" {
		slog.Debug("No mesh path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		MeshPath:        path,
		MaxParallel:     *maxParallelFlag,
		CancelOnFailure: *cancelFlag,
		DryRun:          *dryRunFlag,
		SummaryOut:      *summaryOutFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
