package procexec

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/cranebuild/crane/internal/ctxlog"
	"github.com/cranebuild/crane/internal/snapshot"
)

// Local runs processes on the host, one temp-dir sandbox per run.
type Local struct {
	snaps *snapshot.Service
}

// NewLocal creates a local executor backed by the given digest service,
// which materializes sandboxes and captures outputs.
func NewLocal(snaps *snapshot.Service) *Local {
	return &Local{snaps: snaps}
}

// Run executes p and returns its fallible result. The sandbox is removed
// on every path out; a cancelled context kills the process via
// exec.CommandContext and surfaces ctx.Err so the engine treats the node
// as abandoned rather than failed.
func (l *Local) Run(ctx context.Context, p Process) (FallibleResult, error) {
	logger := ctxlog.FromContext(ctx)
	if len(p.Argv) == 0 {
		return FallibleResult{}, fmt.Errorf("process %q has an empty argv", p.Description)
	}

	sandbox, err := os.MkdirTemp("", "crane-sandbox-*")
	if err != nil {
		return FallibleResult{}, fmt.Errorf("creating sandbox: %w", err)
	}
	defer os.RemoveAll(sandbox)

	if err := l.snaps.Materialize(ctx, p.Input, sandbox); err != nil {
		return FallibleResult{}, fmt.Errorf("materializing input for %q: %w", p.Description, err)
	}

	logger.Debug("Process starting.", "description", p.Description, "argv0", p.Argv[0], "sandbox", sandbox)
	cmd := exec.CommandContext(ctx, p.Argv[0], p.Argv[1:]...)
	cmd.Dir = sandbox
	cmd.Env = p.Env

	var stdout, stderr limitedBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return FallibleResult{}, ctx.Err()
	}
	exitCode := 0
	if runErr != nil {
		ee, ok := runErr.(*exec.ExitError)
		if !ok {
			return FallibleResult{}, fmt.Errorf("running %q: %w", p.Description, runErr)
		}
		exitCode = ee.ExitCode()
	}

	output, err := l.snaps.CaptureIn(ctx, sandbox, snapshot.Globs(p.OutputGlobs...))
	if err != nil {
		return FallibleResult{}, fmt.Errorf("capturing outputs of %q: %w", p.Description, err)
	}

	logger.Debug("Process finished.", "description", p.Description, "exitCode", exitCode, "outputFiles", len(output.Files))
	return FallibleResult{
		ExitCode: exitCode,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Output:   output,
	}, nil
}
