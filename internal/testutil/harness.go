package testutil

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cranebuild/crane/internal/ctxlog"
	"github.com/cranebuild/crane/internal/intrinsics"
	"github.com/cranebuild/crane/internal/procexec"
	"github.com/cranebuild/crane/internal/registry"
	"github.com/cranebuild/crane/internal/rule"
	"github.com/cranebuild/crane/internal/session"
	"github.com/cranebuild/crane/internal/snapshot"
)

// Harness is one engine session wired for a test: debug logs captured in
// LogOutput, a context carrying the test logger, and cleanup registered
// with the test.
type Harness struct {
	Ctx       context.Context
	Session   *session.Session
	Snapshots *snapshot.Service
	LogOutput *SafeBuffer
}

// NewSession builds a session over the given rule sets, without any
// filesystem services. For tests of pure rule graphs.
func NewSession(t *testing.T, workers int, sets ...*rule.Set) *Harness {
	t.Helper()

	logBuffer := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(logBuffer, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	reg, err := registry.Build(sets...)
	require.NoError(t, err)

	sess, err := session.New(ctx, session.Options{Registry: reg, Workers: workers})
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close(ctx) })

	return &Harness{Ctx: ctx, Session: sess, LogOutput: logBuffer}
}

// NewWorkspace builds a session over a temp workspace populated with
// files, wiring the intrinsics (digest service, process executor) plus
// the given rule sets.
func NewWorkspace(t *testing.T, files map[string]string, sets ...*rule.Set) *Harness {
	t.Helper()

	root := t.TempDir()
	WriteFiles(t, root, files)

	logBuffer := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(logBuffer, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	snaps, err := snapshot.NewService(root, filepath.Join(root, ".crane"))
	require.NoError(t, err)
	t.Cleanup(func() { snaps.Close() })

	runner := procexec.NewLocal(snaps)
	allSets := append([]*rule.Set{intrinsics.Rules(snaps, runner)}, sets...)
	reg, err := registry.Build(allSets...)
	require.NoError(t, err)

	sess, err := session.New(ctx, session.Options{
		Registry:  reg,
		Snapshots: snaps,
		Workers:   4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close(ctx) })

	return &Harness{Ctx: ctx, Session: sess, Snapshots: snaps, LogOutput: logBuffer}
}

// WriteFiles writes workspace-relative files under root, creating parent
// directories as needed.
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		filePath := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0o755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0o644))
	}
}
