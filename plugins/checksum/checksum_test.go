package checksum_test

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cranebuild/crane/internal/get"
	"github.com/cranebuild/crane/internal/target"
	"github.com/cranebuild/crane/internal/testutil"
	"github.com/cranebuild/crane/plugins/checksum"
)

func requestManifest(t *testing.T, h *testutil.Harness, tgt target.Target) checksum.Manifest {
	t.Helper()
	g, err := get.New(get.Type[checksum.Manifest](), tgt)
	require.NoError(t, err)
	v, err := h.Session.Product(h.Ctx, g)
	require.NoError(t, err)
	return v.(checksum.Manifest)
}

func sum(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

func TestManifest_LinesInPathOrder(t *testing.T) {
	h := testutil.NewWorkspace(t, map[string]string{
		"src/z.txt":  "last",
		"src/a.txt":  "first",
		"src/m.txt":  "middle",
		"readme.md":  "skip me",
		"src/sub/.x": "hidden but matched",
	}, checksum.Rules())

	m := requestManifest(t, h, target.Target{
		Address: "//src:sums",
		Kind:    "checksums",
		Sources: []string{"src/**"},
	})

	assert.Equal(t, "SHA256SUMS", m.Path)
	require.Equal(t, []string{
		fmt.Sprintf("%s  src/a.txt", sum("first")),
		fmt.Sprintf("%s  src/m.txt", sum("middle")),
		fmt.Sprintf("%s  src/sub/.x", sum("hidden but matched")),
		fmt.Sprintf("%s  src/z.txt", sum("last")),
	}, m.Lines)

	contents, err := h.Snapshots.Contents(h.Ctx, m.Snapshot)
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Equal(t, "SHA256SUMS", contents[0].Path)
	assert.Equal(t, strings.Join(m.Lines, "\n")+"\n", string(contents[0].Content))
}

func TestManifest_NoMatchedSources(t *testing.T) {
	h := testutil.NewWorkspace(t, map[string]string{
		"notes.md": "nothing to sum",
	}, checksum.Rules())

	m := requestManifest(t, h, target.Target{
		Address: "//:sums",
		Kind:    "checksums",
		Sources: []string{"src/**"},
	})

	assert.Empty(t, m.Lines)
	contents, err := h.Snapshots.Contents(h.Ctx, m.Snapshot)
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Empty(t, contents[0].Content)
}

func TestManifest_IdenticalContentKeepsDistinctLines(t *testing.T) {
	h := testutil.NewWorkspace(t, map[string]string{
		"src/a.txt": "same",
		"src/b.txt": "same",
	}, checksum.Rules())

	m := requestManifest(t, h, target.Target{
		Address: "//src:sums",
		Kind:    "checksums",
		Sources: []string{"src/*.txt"},
	})

	require.Len(t, m.Lines, 2)
	// The digests agree but the paths differ, so the lines stay distinct.
	assert.Equal(t, fmt.Sprintf("%s  src/a.txt", sum("same")), m.Lines[0])
	assert.Equal(t, fmt.Sprintf("%s  src/b.txt", sum("same")), m.Lines[1])
}
