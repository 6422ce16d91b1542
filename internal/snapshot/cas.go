package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cranebuild/crane/internal/digest"
)

// cas is the local content-addressed blob store. Blobs live under
// <dir>/<hash[:2]>/<hash>; a blob's presence is its own integrity check,
// since the name is the content hash.
type cas struct {
	dir string
}

func openCAS(dir string) (*cas, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating CAS directory: %w", err)
	}
	return &cas{dir: dir}, nil
}

func (c *cas) blobPath(d digest.Digest) string {
	return filepath.Join(c.dir, d.Hash[:2], d.Hash)
}

// put stores content and returns its digest. Writes go through a temp
// file and rename so a crashed write never leaves a corrupt blob under a
// valid name.
func (c *cas) put(content []byte) (digest.Digest, error) {
	d := digest.FromBytes(content)
	dest := c.blobPath(d)
	if _, err := os.Stat(dest); err == nil {
		return d, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return digest.Digest{}, fmt.Errorf("creating CAS shard: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".put-*")
	if err != nil {
		return digest.Digest{}, fmt.Errorf("staging CAS blob: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return digest.Digest{}, fmt.Errorf("writing CAS blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return digest.Digest{}, fmt.Errorf("closing CAS blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return digest.Digest{}, fmt.Errorf("committing CAS blob: %w", err)
	}
	return d, nil
}

// get loads a blob's bytes.
func (c *cas) get(d digest.Digest) ([]byte, error) {
	content, err := os.ReadFile(c.blobPath(d))
	if err != nil {
		return nil, fmt.Errorf("reading CAS blob %s: %w", d.Short(), err)
	}
	if int64(len(content)) != d.SizeBytes {
		return nil, fmt.Errorf("CAS blob %s is %d bytes, expected %d", d.Short(), len(content), d.SizeBytes)
	}
	return content, nil
}
