package snapshot

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/cranebuild/crane/internal/ctxlog"
	"github.com/cranebuild/crane/internal/digest"
)

// Service is the filesystem digest service for one workspace. Captures
// read the workspace, artifacts and captured bytes land in the CAS, and
// per-file hashes are memoized in the sqlite digest cache.
type Service struct {
	root  string
	cache *digestCache
	cas   *cas
}

// NewService opens the service for the workspace at root, keeping its
// state (CAS blobs, digest cache) under stateDir.
func NewService(root, stateDir string) (*Service, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	store, err := openCAS(filepath.Join(stateDir, "cas"))
	if err != nil {
		return nil, err
	}
	cache, err := openDigestCache(filepath.Join(stateDir, "digests.db"))
	if err != nil {
		return nil, err
	}
	return &Service{root: absRoot, cache: cache, cas: store}, nil
}

// Root returns the absolute workspace root.
func (s *Service) Root() string {
	return s.root
}

// Close releases the digest cache.
func (s *Service) Close() error {
	return s.cache.close()
}

// Capture expands globs against the workspace and returns the snapshot of
// every matched file, plus the workspace paths the snapshot covers: the
// matched files and each glob's base directory, so a memoized consumer is
// invalidated by edits and by additions alike.
func (s *Service) Capture(ctx context.Context, globs PathGlobs) (Snapshot, []string, error) {
	logger := ctxlog.FromContext(ctx)

	matched, err := s.expand(s.root, globs)
	if err != nil {
		return Snapshot{}, nil, err
	}

	entries := make([]FileEntry, 0, len(matched))
	for _, rel := range matched {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, nil, err
		}
		d, err := s.digestWorkspaceFile(rel)
		if err != nil {
			return Snapshot{}, nil, err
		}
		entries = append(entries, FileEntry{Path: rel, Digest: d})
	}

	covered := make([]string, 0, len(matched)+len(globs.Globs))
	covered = append(covered, matched...)
	for _, g := range globs.Globs {
		covered = append(covered, globBase(g))
	}

	snap := manifest(entries)
	logger.Debug("Workspace captured.", "globs", globs.Globs, "files", len(snap.Files), "digest", snap.Digest.Short())
	return snap, covered, nil
}

// CaptureIn captures matched files under an arbitrary directory, used for
// collecting process outputs from a sandbox. Sandbox files are transient,
// so nothing goes through the digest cache and no paths are recorded.
func (s *Service) CaptureIn(ctx context.Context, dir string, globs PathGlobs) (Snapshot, error) {
	matched, err := s.expand(dir, globs)
	if err != nil {
		return Snapshot{}, err
	}
	entries := make([]FileEntry, 0, len(matched))
	for _, rel := range matched {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}
		content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return Snapshot{}, fmt.Errorf("reading %s: %w", rel, err)
		}
		d, err := s.cas.put(content)
		if err != nil {
			return Snapshot{}, err
		}
		entries = append(entries, FileEntry{Path: rel, Digest: d})
	}
	return manifest(entries), nil
}

// Store persists literal file contents into the CAS and returns their
// snapshot. This is the write path for rule-produced artifacts.
func (s *Service) Store(ctx context.Context, req CreateDigest) (Snapshot, error) {
	entries := make([]FileEntry, 0, len(req.Files))
	for _, f := range req.Files {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}
		if f.Path == "" || path.IsAbs(f.Path) {
			return Snapshot{}, fmt.Errorf("stored file path %q must be relative and non-empty", f.Path)
		}
		d, err := s.cas.put(f.Content)
		if err != nil {
			return Snapshot{}, err
		}
		entries = append(entries, FileEntry{Path: path.Clean(f.Path), Digest: d})
	}
	return manifest(entries), nil
}

// Contents loads a snapshot's bytes out of the CAS, in manifest order.
func (s *Service) Contents(ctx context.Context, snap Snapshot) (DigestContents, error) {
	out := make(DigestContents, 0, len(snap.Files))
	for _, f := range snap.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := s.cas.get(f.Digest)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", f.Path, err)
		}
		out = append(out, FileContent{Path: f.Path, Content: content})
	}
	return out, nil
}

// Materialize writes a snapshot's files under destDir, byte-identical to
// what was captured.
func (s *Service) Materialize(ctx context.Context, snap Snapshot, destDir string) error {
	for _, f := range snap.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := s.cas.get(f.Digest)
		if err != nil {
			return fmt.Errorf("materializing %s: %w", f.Path, err)
		}
		dest := filepath.Join(destDir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("materializing %s: %w", f.Path, err)
		}
		if err := os.WriteFile(dest, content, 0o644); err != nil {
			return fmt.Errorf("materializing %s: %w", f.Path, err)
		}
	}
	return nil
}

// Invalidate drops cached digests for changed workspace paths. The watch
// loop calls it alongside memo invalidation.
func (s *Service) Invalidate(paths []string) error {
	return s.cache.forget(paths)
}

// digestWorkspaceFile returns the digest of one workspace file, hitting
// the (path, size, mtime) cache before reading content. Cache misses also
// land the bytes in the CAS so the snapshot is materializable later.
func (s *Service) digestWorkspaceFile(rel string) (digest.Digest, error) {
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("stating %s: %w", rel, err)
	}
	size := info.Size()
	mtime := info.ModTime().UnixNano()

	if d, ok, err := s.cache.lookup(rel, size, mtime); err != nil {
		return digest.Digest{}, err
	} else if ok {
		return d, nil
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("reading %s: %w", rel, err)
	}
	d, err := s.cas.put(content)
	if err != nil {
		return digest.Digest{}, err
	}
	if err := s.cache.record(rel, size, mtime, d); err != nil {
		return digest.Digest{}, err
	}
	return d, nil
}

// expand resolves globs to sorted, deduplicated file paths under dir.
func (s *Service) expand(dir string, globs PathGlobs) ([]string, error) {
	fsys := os.DirFS(dir)
	seen := make(map[string]struct{})
	for _, pattern := range globs.Globs {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("expanding glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := fs.Stat(fsys, m)
			if err != nil {
				return nil, fmt.Errorf("stating match %s: %w", m, err)
			}
			if info.IsDir() {
				continue
			}
			seen[m] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

// globBase returns the literal prefix of a pattern: the path any future
// match is guaranteed to live under. A pattern without metacharacters is
// its own base.
func globBase(pattern string) string {
	i := strings.IndexAny(pattern, "*?[{")
	if i < 0 {
		return path.Clean(pattern)
	}
	base := pattern[:i]
	if j := strings.LastIndex(base, "/"); j >= 0 {
		base = base[:j]
	} else {
		base = "."
	}
	if base == "" {
		base = "."
	}
	return path.Clean(base)
}
