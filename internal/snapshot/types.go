// Package snapshot is the filesystem digest service: it captures workspace
// files into content-addressed Snapshots, serves their bytes back out of a
// local CAS, materializes them into sandbox directories, and watches the
// workspace for the changes that drive memo invalidation. Per-file hashes
// are memoized across runs in a sqlite cache keyed by (path, size, mtime).
package snapshot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cranebuild/crane/internal/digest"
)

// PathGlobs names a set of workspace files by glob. Patterns are relative
// to the workspace root and support `**` for recursive matching.
type PathGlobs struct {
	Globs []string
}

// Globs builds a PathGlobs from individual patterns.
func Globs(patterns ...string) PathGlobs {
	return PathGlobs{Globs: patterns}
}

// FileEntry is one file within a snapshot: its workspace-relative path and
// the digest of its content.
type FileEntry struct {
	Path   string
	Digest digest.Digest
}

// Snapshot is a content-addressed view of a set of files. Digest covers
// the sorted (path, content digest) manifest, so two snapshots with the
// same digest hold byte-identical trees.
type Snapshot struct {
	Digest digest.Digest
	Files  []FileEntry
}

// Empty is the snapshot of no files.
var Empty = manifest(nil)

// manifest computes the snapshot over entries, sorting them by path. The
// digest is taken over the canonical "hash/size path" manifest rendering.
func manifest(entries []FileEntry) Snapshot {
	sorted := make([]FileEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var b strings.Builder
	for _, e := range sorted {
		fmt.Fprintf(&b, "%s %s\n", e.Digest, e.Path)
	}
	return Snapshot{
		Digest: digest.FromBytes([]byte(b.String())),
		Files:  sorted,
	}
}

// Paths returns the file paths in manifest order.
func (s Snapshot) Paths() []string {
	out := make([]string, len(s.Files))
	for i, f := range s.Files {
		out[i] = f.Path
	}
	return out
}

// FileContent pairs a path with its full content.
type FileContent struct {
	Path    string
	Content []byte
}

// DigestContents is a snapshot's files with their bytes loaded from the
// CAS, in manifest order.
type DigestContents []FileContent

// CreateDigest asks the digest service to store literal file contents and
// return the resulting snapshot, without touching the workspace. It is
// how rule bodies persist produced artifacts into the CAS.
type CreateDigest struct {
	Files []FileContent
}
