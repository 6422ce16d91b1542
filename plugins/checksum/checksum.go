// Package checksum produces a checksum manifest of a target's sources:
// one "hash  path" line per file, in a SHA256SUMS-style file. The
// per-file lines are independent rules, so the manifest body fans out
// over the whole tree in one batch.
package checksum

import (
	"context"
	"fmt"
	"strings"

	"github.com/cranebuild/crane/internal/get"
	"github.com/cranebuild/crane/internal/rule"
	"github.com/cranebuild/crane/internal/snapshot"
	"github.com/cranebuild/crane/internal/target"
)

// Line is the checksum line for one file.
type Line struct {
	Text string
}

// Manifest is the product: the manifest file held as a one-file snapshot,
// plus the lines it contains.
type Manifest struct {
	// Path is the manifest's file name within Snapshot.
	Path string
	// Lines are the manifest's entries in path order.
	Lines []string
	// Snapshot holds the rendered manifest.
	Snapshot snapshot.Snapshot
}

// Rules returns the checksum plugin's contribution.
func Rules() *rule.Set {
	return rule.NewSet("checksum").Add(
		rule.New1("checksum.manifest", manifestForTarget),
		rule.New1("checksum.line", lineForFile),
	)
}

// lineForFile renders one file's checksum line. The digest is already in
// the file entry, so no content is read here.
func lineForFile(ctx context.Context, ex rule.Exec, entry snapshot.FileEntry) (Line, error) {
	return Line{Text: fmt.Sprintf("%s  %s", entry.Digest.Hash, entry.Path)}, nil
}

func manifestForTarget(ctx context.Context, ex rule.Exec, tgt target.Target) (Manifest, error) {
	snapGet, err := get.New(get.Type[snapshot.Snapshot](), snapshot.Globs(tgt.Sources...))
	if err != nil {
		return Manifest{}, err
	}
	v, err := ex.Get(ctx, snapGet)
	if err != nil {
		return Manifest{}, err
	}
	snap := v.(snapshot.Snapshot)

	// One request per file, resolved in parallel and returned in file
	// order.
	gets := make([]get.Get, len(snap.Files))
	for i, f := range snap.Files {
		g, err := get.New(get.Type[Line](), f)
		if err != nil {
			return Manifest{}, err
		}
		gets[i] = g
	}
	batch, err := get.NewBatch(gets)
	if err != nil {
		return Manifest{}, err
	}
	results, err := ex.GetAll(ctx, batch)
	if err != nil {
		return Manifest{}, err
	}

	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = r.(Line).Text
	}

	name := "SHA256SUMS"
	rendered := strings.Join(lines, "\n")
	if rendered != "" {
		rendered += "\n"
	}
	storeGet, err := get.New(get.Type[snapshot.Snapshot](), snapshot.CreateDigest{
		Files: []snapshot.FileContent{{Path: name, Content: []byte(rendered)}},
	})
	if err != nil {
		return Manifest{}, err
	}
	v, err = ex.Get(ctx, storeGet)
	if err != nil {
		return Manifest{}, err
	}

	return Manifest{Path: name, Lines: lines, Snapshot: v.(snapshot.Snapshot)}, nil
}
