// Package pack archives a target's sources. The archive format is chosen
// by union dispatch: Archiver is the union, and each format registers a
// member guarded by a target-capability predicate, so the coordinator
// rule never names a concrete format.
package pack

import (
	"fmt"
	"strings"

	"github.com/cranebuild/crane/internal/snapshot"
	"github.com/cranebuild/crane/internal/target"
)

// Archive is the product of packing a target: the archive file held as a
// one-file snapshot in the CAS, ready to materialize.
type Archive struct {
	// Format names the member that produced the archive.
	Format string
	// Path is the archive's file name within Snapshot.
	Path string
	// Snapshot holds the archive bytes.
	Snapshot snapshot.Snapshot
}

// Archiver is the union marker: an archive request for some registered
// format.
type Archiver interface {
	ArchiveFormat() string
}

// TarballRequest asks for a gzipped tarball of the target's sources. It
// applies to targets declaring format=tar.
type TarballRequest struct {
	Target target.Target
}

// ArchiveFormat implements Archiver.
func (TarballRequest) ArchiveFormat() string { return "tar" }

// ZipRequest asks for a zip archive of the target's sources. It applies
// to targets declaring format=zip.
type ZipRequest struct {
	Target target.Target
}

// ArchiveFormat implements Archiver.
func (ZipRequest) ArchiveFormat() string { return "zip" }

// archiveName derives the artifact file name from the target address:
// "//dir:name" packs into "name.<ext>".
func archiveName(t target.Target, ext string) string {
	name := t.Address
	if i := strings.LastIndex(name, ":"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Trim(strings.ReplaceAll(name, "/", "-"), "-")
	if name == "" {
		name = "archive"
	}
	return fmt.Sprintf("%s.%s", name, ext)
}
