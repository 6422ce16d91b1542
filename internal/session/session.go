// Package session composes a registry, memo store, and scheduler into one
// long-lived execution session. A session owns the lifetime of memoized
// results: entries live until a filesystem change invalidates them or the
// session closes.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cranebuild/crane/internal/ctxlog"
	"github.com/cranebuild/crane/internal/get"
	"github.com/cranebuild/crane/internal/memo"
	"github.com/cranebuild/crane/internal/registry"
	"github.com/cranebuild/crane/internal/scheduler"
	"github.com/cranebuild/crane/internal/snapshot"
)

// Options configures a new session.
type Options struct {
	// Registry is the immutable rule index. Required.
	Registry *registry.Registry
	// Snapshots is the filesystem digest service, or nil for sessions
	// that never touch the filesystem (tests of pure rule graphs).
	Snapshots *snapshot.Service
	// Workers bounds concurrently executing rule bodies.
	Workers int
	// CacheMaxEntries caps retained memo entries; 0 means unbounded.
	CacheMaxEntries int
}

// Session is one execution run of the engine. Safe for concurrent use;
// concurrent Products for the same fingerprint coalesce onto one node.
type Session struct {
	id     string
	store  *memo.Store
	sched  *scheduler.Scheduler
	snaps  *snapshot.Service
	cancel context.CancelFunc
}

// New creates a session. The given context bounds the session lifetime:
// its logger becomes the session logger and its cancellation abandons all
// in-flight nodes.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.Registry == nil {
		return nil, errors.New("session requires a registry")
	}
	id := uuid.NewString()
	logger := ctxlog.FromContext(ctx).With("session", id[:8])

	rootCtx, cancel := context.WithCancel(ctxlog.WithLogger(ctx, logger))
	store := memo.NewStore(opts.CacheMaxEntries)
	sched := scheduler.New(rootCtx, opts.Registry, store, opts.Workers)
	logger.Debug("Session created.", "workers", opts.Workers, "cacheMaxEntries", opts.CacheMaxEntries)

	return &Session{
		id:     id,
		store:  store,
		sched:  sched,
		snaps:  opts.Snapshots,
		cancel: cancel,
	}, nil
}

// ID returns the session's run identifier.
func (s *Session) ID() string {
	return s.id
}

// Product resolves one top-level request.
func (s *Session) Product(ctx context.Context, g get.Get) (any, error) {
	return s.sched.Resolve(ctx, g)
}

// ProductAll resolves a top-level batch, results in issue order.
func (s *Session) ProductAll(ctx context.Context, b get.Batch) ([]any, error) {
	return s.sched.ResolveBatch(ctx, b)
}

// Invalidate drops every memoized node that transitively depended on the
// changed workspace paths, and the per-file digest rows for those paths.
// Returns how many nodes were invalidated.
func (s *Session) Invalidate(ctx context.Context, changed []string) (int, error) {
	dropped := s.store.InvalidatePaths(changed)
	if s.snaps != nil {
		if err := s.snaps.Invalidate(changed); err != nil {
			return dropped, fmt.Errorf("invalidating digest cache: %w", err)
		}
	}
	ctxlog.FromContext(ctx).Debug("Session invalidated paths.", "changed", len(changed), "nodesDropped", dropped)
	return dropped, nil
}

// CachedNodes reports how many nodes (in-flight plus retained) the
// session holds. Exposed for watch-mode logging and tests.
func (s *Session) CachedNodes() int {
	return s.store.Len()
}

// Close abandons in-flight work and releases the session's resources. No
// partial results of abandoned nodes survive into any later session.
func (s *Session) Close(ctx context.Context) error {
	s.cancel()
	ctxlog.FromContext(ctx).Debug("Session closed.", "session", s.id[:8])
	return nil
}
