package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cranebuild/crane/internal/ctxlog"
	"github.com/cranebuild/crane/internal/get"
	"github.com/cranebuild/crane/internal/intrinsics"
	"github.com/cranebuild/crane/internal/procexec"
	"github.com/cranebuild/crane/internal/registry"
	"github.com/cranebuild/crane/internal/rule"
	"github.com/cranebuild/crane/internal/session"
	"github.com/cranebuild/crane/internal/snapshot"
	"github.com/cranebuild/crane/internal/target"
	"github.com/cranebuild/crane/plugins/checksum"
	"github.com/cranebuild/crane/plugins/pack"
)

// Run executes the configured goal: once, or continuously in watch mode.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	a.startHealthcheckServer()
	defer a.closeHealthcheckServer(ctx)

	stateDir := a.model.Cache.StateDir
	if !filepath.IsAbs(stateDir) {
		stateDir = filepath.Join(a.cfg.Workspace, stateDir)
	}
	snaps, err := snapshot.NewService(a.cfg.Workspace, stateDir)
	if err != nil {
		return fmt.Errorf("opening workspace %s: %w", a.cfg.Workspace, err)
	}
	defer snaps.Close()

	runner := procexec.NewLocal(snaps)
	sets := append([]*rule.Set{
		intrinsics.Rules(snaps, runner),
		pack.Rules(),
		checksum.Rules(),
	}, a.extraSets...)
	reg, err := registry.Build(sets...)
	if err != nil {
		return err
	}
	a.registry = reg
	a.logger.Debug("All rule sets registered.", "sets", len(sets), "rules", len(reg.Rules()))

	sess, err := session.New(ctx, session.Options{
		Registry:        reg,
		Snapshots:       snaps,
		Workers:         a.model.Workers,
		CacheMaxEntries: a.model.Cache.MaxEntries,
	})
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	tgt := target.Target{
		Address: a.cfg.TargetAddress,
		Kind:    a.cfg.TargetKind,
		Sources: a.cfg.Sources,
		Meta:    a.cfg.Meta,
	}

	if !a.model.Watch.Enabled {
		return a.buildGoal(ctx, sess, snaps, tgt)
	}

	// Watch mode: the first build's failure is reported but keeps the
	// daemon alive, like every later rebuild's.
	if err := a.buildGoal(ctx, sess, snaps, tgt); err != nil {
		a.logger.Error("Build failed.", "goal", a.cfg.Goal, "error", err)
	}
	return a.watchLoop(ctx, sess, snaps, tgt)
}

// buildGoal resolves the goal's product for the target and materializes
// the resulting artifact into the output directory.
func (a *App) buildGoal(ctx context.Context, sess *session.Session, snaps *snapshot.Service, tgt target.Target) error {
	started := time.Now()
	a.logger.Info("Building goal.", "goal", a.cfg.Goal, "target", tgt.Address)

	var artifact snapshot.Snapshot
	var artifactPath string

	switch a.cfg.Goal {
	case "pack":
		g, err := get.New(get.Type[pack.Archive](), tgt)
		if err != nil {
			return err
		}
		v, err := sess.Product(ctx, g)
		if err != nil {
			return err
		}
		archive := v.(pack.Archive)
		artifact, artifactPath = archive.Snapshot, archive.Path
	case "checksum":
		g, err := get.New(get.Type[checksum.Manifest](), tgt)
		if err != nil {
			return err
		}
		v, err := sess.Product(ctx, g)
		if err != nil {
			return err
		}
		manifest := v.(checksum.Manifest)
		artifact, artifactPath = manifest.Snapshot, manifest.Path
	default:
		return fmt.Errorf("unknown goal %q; available goals: checksum, pack", a.cfg.Goal)
	}

	outDir := a.cfg.OutDir
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(a.cfg.Workspace, outDir)
	}
	if err := snaps.Materialize(ctx, artifact, outDir); err != nil {
		return fmt.Errorf("materializing %s: %w", artifactPath, err)
	}

	a.logger.Info("Goal built.",
		"goal", a.cfg.Goal,
		"artifact", filepath.Join(outDir, artifactPath),
		"digest", artifact.Digest.Short(),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return nil
}

// watchLoop rebuilds the goal whenever the watcher reports changes the
// memoized graph depended on. Unrelated changes re-validate against the
// cache and finish without re-running any rule body.
func (a *App) watchLoop(ctx context.Context, sess *session.Session, snaps *snapshot.Service, tgt target.Target) error {
	debounce := time.Duration(a.model.Watch.DebounceMS) * time.Millisecond
	watcher, err := snapshot.NewWatcher(ctx, snaps.Root(), debounce, a.model.Watch.Ignore...)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	a.logger.Info("Watching for changes.", "workspace", snaps.Root())

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Watch mode stopping.")
			return nil
		case changed, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			dropped, err := sess.Invalidate(ctx, changed)
			if err != nil {
				a.logger.Error("Invalidation failed.", "error", err)
				continue
			}
			a.logger.Info("Workspace changed.", "paths", len(changed), "nodesInvalidated", dropped)
			if err := a.buildGoal(ctx, sess, snaps, tgt); err != nil {
				a.logger.Error("Build failed.", "goal", a.cfg.Goal, "error", err)
			}
		}
	}
}
