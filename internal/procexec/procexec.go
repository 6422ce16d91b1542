// Package procexec is the process execution service: it runs a described
// process in a throwaway sandbox directory materialized from an input
// snapshot, and captures its declared outputs back into a snapshot.
// Execution is cooperative with cancellation: a cancelled context kills
// the process and nothing of the run is kept.
package procexec

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/cranebuild/crane/internal/snapshot"
)

// Process describes one execution: the argv to run, its environment, the
// snapshot to materialize as its working tree, and the globs to capture
// from the sandbox afterwards.
type Process struct {
	// Argv is the command line; Argv[0] is resolved against PATH.
	Argv []string
	// Env entries are "KEY=value" pairs. The sandbox starts from an empty
	// environment, so runs are reproducible by default.
	Env []string
	// Input is materialized into the sandbox before the process starts.
	Input snapshot.Snapshot
	// OutputGlobs are captured from the sandbox after a run, whatever the
	// exit code.
	OutputGlobs []string
	// Description names the run in logs and error messages.
	Description string
}

// FallibleResult is the outcome of a process run, exit code included. It
// is the fallible flavor: a non-zero exit is data, not an error.
type FallibleResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Output   snapshot.Snapshot
}

// Result is the strict flavor: it only exists for runs that exited zero.
// Requesting a Result for a failing process yields an ExecError instead.
type Result struct {
	Stdout []byte
	Stderr []byte
	Output snapshot.Snapshot
}

// ExecError reports a process that exited non-zero when a strict Result
// was requested.
type ExecError struct {
	Description string
	ExitCode    int
	Stdout      []byte
	Stderr      []byte
}

// Error renders the failure with bounded stdout/stderr excerpts.
func (e *ExecError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "process %q failed with exit code %d", e.Description, e.ExitCode)
	if excerpt := excerpt(e.Stdout); excerpt != "" {
		fmt.Fprintf(&b, "\nstdout:\n%s", excerpt)
	}
	if excerpt := excerpt(e.Stderr); excerpt != "" {
		fmt.Fprintf(&b, "\nstderr:\n%s", excerpt)
	}
	return b.String()
}

// IsExecError reports whether err is a strict execution failure.
func IsExecError(err error) bool {
	var ee *ExecError
	return errors.As(err, &ee)
}

const excerptLimit = 2048

// excerpt trims captured output for an error message, keeping the tail:
// the end of a failing build log is usually where the cause is.
func excerpt(out []byte) string {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return ""
	}
	if len(trimmed) > excerptLimit {
		trimmed = trimmed[len(trimmed)-excerptLimit:]
		return "... " + string(trimmed)
	}
	return string(trimmed)
}
