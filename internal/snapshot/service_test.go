package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, files map[string]string) *Service {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	svc, err := NewService(root, filepath.Join(root, ".crane"))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestCapture_MatchesGlobsAndSortsEntries(t *testing.T) {
	svc := newTestService(t, map[string]string{
		"src/b.go":      "package b",
		"src/a.go":      "package a",
		"src/sub/c.go":  "package c",
		"README.md":     "hello",
		"src/notes.txt": "ignored",
	})

	snap, covered, err := svc.Capture(context.Background(), Globs("src/**/*.go"))
	require.NoError(t, err)

	assert.Equal(t, []string{"src/a.go", "src/b.go", "src/sub/c.go"}, snap.Paths())
	assert.Contains(t, covered, "src/a.go")
	assert.Contains(t, covered, "src", "the glob base directory must be covered so additions invalidate")
	assert.False(t, snap.Digest.IsZero())
}

func TestCapture_DigestIsContentDerived(t *testing.T) {
	svc := newTestService(t, map[string]string{"a.txt": "one", "b.txt": "two"})

	first, _, err := svc.Capture(context.Background(), Globs("*.txt"))
	require.NoError(t, err)
	second, _, err := svc.Capture(context.Background(), Globs("*.txt"))
	require.NoError(t, err)
	assert.Equal(t, first.Digest, second.Digest)

	// Changing content changes the digest even with size preserved.
	require.NoError(t, os.WriteFile(filepath.Join(svc.Root(), "a.txt"), []byte("uno"), 0o644))
	third, _, err := svc.Capture(context.Background(), Globs("*.txt"))
	require.NoError(t, err)
	assert.NotEqual(t, first.Digest, third.Digest)
}

func TestCapture_EmptyMatchIsEmptySnapshot(t *testing.T) {
	svc := newTestService(t, map[string]string{"a.txt": "one"})

	snap, _, err := svc.Capture(context.Background(), Globs("*.md"))
	require.NoError(t, err)
	assert.Empty(t, snap.Files)
	assert.Equal(t, Empty.Digest, snap.Digest)
}

func TestContents_RoundTripsThroughCAS(t *testing.T) {
	svc := newTestService(t, map[string]string{"a.txt": "alpha", "b.txt": "beta"})

	snap, _, err := svc.Capture(context.Background(), Globs("*.txt"))
	require.NoError(t, err)

	contents, err := svc.Contents(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, contents, 2)
	assert.Equal(t, "a.txt", contents[0].Path)
	assert.Equal(t, []byte("alpha"), contents[0].Content)
	assert.Equal(t, "b.txt", contents[1].Path)
	assert.Equal(t, []byte("beta"), contents[1].Content)
}

func TestStoreAndMaterialize(t *testing.T) {
	svc := newTestService(t, nil)

	snap, err := svc.Store(context.Background(), CreateDigest{Files: []FileContent{
		{Path: "out/report.txt", Content: []byte("done")},
	}})
	require.NoError(t, err)
	require.Len(t, snap.Files, 1)

	dest := t.TempDir()
	require.NoError(t, svc.Materialize(context.Background(), snap, dest))

	got, err := os.ReadFile(filepath.Join(dest, "out", "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("done"), got)
}

func TestStore_RejectsAbsolutePaths(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.Store(context.Background(), CreateDigest{Files: []FileContent{
		{Path: "/etc/passwd", Content: []byte("nope")},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be relative")
}

func TestDigestCache_HitSkipsRehash(t *testing.T) {
	svc := newTestService(t, map[string]string{"a.txt": "alpha"})

	first, _, err := svc.Capture(context.Background(), Globs("a.txt"))
	require.NoError(t, err)

	// Second capture with unchanged size+mtime must come from the cache
	// and agree exactly.
	second, _, err := svc.Capture(context.Background(), Globs("a.txt"))
	require.NoError(t, err)
	assert.Equal(t, first.Files[0].Digest, second.Files[0].Digest)
}

func TestInvalidate_DropsCachedDigest(t *testing.T) {
	svc := newTestService(t, map[string]string{"a.txt": "alpha"})

	_, _, err := svc.Capture(context.Background(), Globs("a.txt"))
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate([]string{"a.txt"}))

	// A fresh capture after invalidation still returns correct digests.
	snap, _, err := svc.Capture(context.Background(), Globs("a.txt"))
	require.NoError(t, err)
	require.Len(t, snap.Files, 1)

	contents, err := svc.Contents(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha"), contents[0].Content)
}

func TestGlobBase(t *testing.T) {
	cases := map[string]string{
		"src/**/*.go":  "src",
		"*.txt":        ".",
		"a/b/c.txt":    "a/b/c.txt",
		"a/*/c.txt":    "a",
		"**/*":         ".",
		"docs/*.md":    "docs",
		"docs/sub/*.m": "docs/sub",
	}
	for pattern, want := range cases {
		assert.Equal(t, want, globBase(pattern), "pattern %q", pattern)
	}
}
