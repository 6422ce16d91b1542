// Package intrinsics exposes the external collaborators as ordinary
// rules, so plugin bodies reach the filesystem digest service and the
// process executor the same way they reach each other: through Gets.
package intrinsics

import (
	"context"

	"github.com/cranebuild/crane/internal/get"
	"github.com/cranebuild/crane/internal/procexec"
	"github.com/cranebuild/crane/internal/rule"
	"github.com/cranebuild/crane/internal/snapshot"
)

// Rules returns the intrinsic rule set bound to the given services.
func Rules(snaps *snapshot.Service, runner *procexec.Local) *rule.Set {
	return rule.NewSet("intrinsics").Add(
		rule.New1("intrinsics.snapshot", func(ctx context.Context, ex rule.Exec, globs snapshot.PathGlobs) (snapshot.Snapshot, error) {
			snap, covered, err := snaps.Capture(ctx, globs)
			if err != nil {
				return snapshot.Snapshot{}, err
			}
			// Reading the workspace ties this node's lifetime to the
			// paths it read.
			if rec, ok := ex.(rule.PathRecorder); ok {
				rec.RecordPaths(covered...)
			}
			return snap, nil
		}),

		rule.New1("intrinsics.store", func(ctx context.Context, ex rule.Exec, req snapshot.CreateDigest) (snapshot.Snapshot, error) {
			return snaps.Store(ctx, req)
		}),

		rule.New1("intrinsics.contents", func(ctx context.Context, ex rule.Exec, snap snapshot.Snapshot) (snapshot.DigestContents, error) {
			return snaps.Contents(ctx, snap)
		}),

		rule.New1("intrinsics.execute", func(ctx context.Context, ex rule.Exec, p procexec.Process) (procexec.FallibleResult, error) {
			return runner.Run(ctx, p)
		}),

		// The strict flavor composes the fallible one through the engine,
		// so both requests for the same Process coalesce onto one run.
		rule.New1("intrinsics.execute_strict", func(ctx context.Context, ex rule.Exec, p procexec.Process) (procexec.Result, error) {
			g, err := get.New(get.Type[procexec.FallibleResult](), p)
			if err != nil {
				return procexec.Result{}, err
			}
			v, err := ex.Get(ctx, g)
			if err != nil {
				return procexec.Result{}, err
			}
			fallible := v.(procexec.FallibleResult)
			if fallible.ExitCode != 0 {
				return procexec.Result{}, &procexec.ExecError{
					Description: p.Description,
					ExitCode:    fallible.ExitCode,
					Stdout:      fallible.Stdout,
					Stderr:      fallible.Stderr,
				}
			}
			return procexec.Result{
				Stdout: fallible.Stdout,
				Stderr: fallible.Stderr,
				Output: fallible.Output,
			}, nil
		}),
	)
}
