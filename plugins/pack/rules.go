package pack

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"

	"github.com/cranebuild/crane/internal/get"
	"github.com/cranebuild/crane/internal/rule"
	"github.com/cranebuild/crane/internal/snapshot"
	"github.com/cranebuild/crane/internal/target"
)

// Rules returns the pack plugin's contribution: the coordinator, one rule
// per format, and the union memberships that route targets to formats.
func Rules() *rule.Set {
	return rule.NewSet("pack").Add(
		rule.New1("pack.archive", archiveForTarget),
		rule.New1("pack.tarball", buildTarball),
		rule.New1("pack.zip", buildZip),
	).AddMember(
		rule.Member{
			Union:   get.Type[Archiver](),
			Impl:    get.Type[TarballRequest](),
			Applies: target.Applies(target.HasMeta("format", "tar")),
			Adapt: func(v any) (any, error) {
				return TarballRequest{Target: v.(target.Target)}, nil
			},
		},
		rule.Member{
			Union:   get.Type[Archiver](),
			Impl:    get.Type[ZipRequest](),
			Applies: target.Applies(target.HasMeta("format", "zip")),
			Adapt: func(v any) (any, error) {
				return ZipRequest{Target: v.(target.Target)}, nil
			},
		},
	)
}

// archiveForTarget is the coordinator: it asks for an Archive through the
// union, so the format the target declared picks the implementation.
func archiveForTarget(ctx context.Context, ex rule.Exec, tgt target.Target) (Archive, error) {
	g, err := get.New(get.Type[Archive](), get.Type[Archiver](), tgt)
	if err != nil {
		return Archive{}, err
	}
	v, err := ex.Get(ctx, g)
	if err != nil {
		return Archive{}, err
	}
	return v.(Archive), nil
}

func buildTarball(ctx context.Context, ex rule.Exec, req TarballRequest) (Archive, error) {
	contents, err := sourceContents(ctx, ex, req.Target)
	if err != nil {
		return Archive{}, err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, f := range contents {
		hdr := &tar.Header{
			Name: f.Path,
			Mode: 0o644,
			Size: int64(len(f.Content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return Archive{}, fmt.Errorf("writing tar header for %s: %w", f.Path, err)
		}
		if _, err := tw.Write(f.Content); err != nil {
			return Archive{}, fmt.Errorf("writing tar entry %s: %w", f.Path, err)
		}
	}
	if err := tw.Close(); err != nil {
		return Archive{}, fmt.Errorf("finishing tarball: %w", err)
	}
	if err := gz.Close(); err != nil {
		return Archive{}, fmt.Errorf("finishing tarball: %w", err)
	}

	return storeArchive(ctx, ex, "tar", archiveName(req.Target, "tar.gz"), buf.Bytes())
}

func buildZip(ctx context.Context, ex rule.Exec, req ZipRequest) (Archive, error) {
	contents, err := sourceContents(ctx, ex, req.Target)
	if err != nil {
		return Archive{}, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range contents {
		w, err := zw.Create(f.Path)
		if err != nil {
			return Archive{}, fmt.Errorf("creating zip entry %s: %w", f.Path, err)
		}
		if _, err := w.Write(f.Content); err != nil {
			return Archive{}, fmt.Errorf("writing zip entry %s: %w", f.Path, err)
		}
	}
	if err := zw.Close(); err != nil {
		return Archive{}, fmt.Errorf("finishing zip: %w", err)
	}

	return storeArchive(ctx, ex, "zip", archiveName(req.Target, "zip"), buf.Bytes())
}

// sourceContents snapshots the target's sources and loads their bytes, in
// manifest order so archives are deterministic.
func sourceContents(ctx context.Context, ex rule.Exec, tgt target.Target) (snapshot.DigestContents, error) {
	snapGet, err := get.New(get.Type[snapshot.Snapshot](), snapshot.Globs(tgt.Sources...))
	if err != nil {
		return nil, err
	}
	v, err := ex.Get(ctx, snapGet)
	if err != nil {
		return nil, err
	}
	contentsGet, err := get.New(get.Type[snapshot.DigestContents](), v.(snapshot.Snapshot))
	if err != nil {
		return nil, err
	}
	v, err = ex.Get(ctx, contentsGet)
	if err != nil {
		return nil, err
	}
	return v.(snapshot.DigestContents), nil
}

// storeArchive persists the archive bytes into the CAS as a one-file
// snapshot.
func storeArchive(ctx context.Context, ex rule.Exec, format, name string, content []byte) (Archive, error) {
	g, err := get.New(get.Type[snapshot.Snapshot](), snapshot.CreateDigest{
		Files: []snapshot.FileContent{{Path: name, Content: content}},
	})
	if err != nil {
		return Archive{}, err
	}
	v, err := ex.Get(ctx, g)
	if err != nil {
		return Archive{}, err
	}
	return Archive{Format: format, Path: name, Snapshot: v.(snapshot.Snapshot)}, nil
}
