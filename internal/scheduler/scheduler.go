// Package scheduler drives rule bodies as suspendable computations. Every
// request resolves to an execution node; nodes run as goroutines gated by
// a weighted semaphore, so at most the configured number of bodies execute
// at once while any number sit suspended at request boundaries. The memo
// store coalesces concurrent requesters onto one node per fingerprint and
// keeps settled nodes until invalidation.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/cranebuild/crane/internal/ctxlog"
	"github.com/cranebuild/crane/internal/fingerprint"
	"github.com/cranebuild/crane/internal/get"
	"github.com/cranebuild/crane/internal/memo"
	"github.com/cranebuild/crane/internal/registry"
	"github.com/cranebuild/crane/internal/rule"
)

// Scheduler is the execution engine for one session.
type Scheduler struct {
	reg   *registry.Registry
	store *memo.Store
	slots *semaphore.Weighted
	waits *waitGraph
	// rootCtx bounds every node's execution. Requester contexts only bound
	// the requester's wait: a coalesced node must outlive any single
	// requester, and dies only with the session.
	rootCtx context.Context
}

// New creates a Scheduler executing at most workers rule bodies
// concurrently. rootCtx is the session lifetime: cancelling it abandons
// all in-flight nodes.
func New(rootCtx context.Context, reg *registry.Registry, store *memo.Store, workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	ctxlog.FromContext(rootCtx).Debug("Scheduler created.", "workers", workers)
	return &Scheduler{
		reg:     reg,
		store:   store,
		slots:   semaphore.NewWeighted(int64(workers)),
		waits:   newWaitGraph(),
		rootCtx: rootCtx,
	}
}

// Resolve runs one top-level request to completion.
func (s *Scheduler) Resolve(ctx context.Context, g get.Get) (any, error) {
	ctxlog.FromContext(ctx).Debug("Resolving top-level request.", "get", g.String())
	return s.resolve(ctx, g, nil)
}

// ResolveBatch runs a top-level batch, returning results in issue order.
func (s *Scheduler) ResolveBatch(ctx context.Context, b get.Batch) ([]any, error) {
	ctxlog.FromContext(ctx).Debug("Resolving top-level batch.", "size", b.Len())
	return s.fanOut(ctx, b.Gets(), nil)
}

// resolve is the single dispatch path for every request, top-level or
// nested. from is the requesting node, nil for top-level queries.
func (s *Scheduler) resolve(ctx context.Context, g get.Get, from *memo.Node) (any, error) {
	res, err := s.reg.Dispatch(g)
	if err != nil {
		return nil, err
	}

	key, err := fingerprint.Node(res.Rule.ID(), res.Inputs)
	if err != nil {
		return nil, err
	}

	node, created := s.store.Intern(key, res.Rule.ID())
	if from != nil {
		node.AddDependent(from)
	}
	if created {
		go s.runNode(node, res)
	}

	// A settled node answers immediately, even when the requester's own
	// context is already cancelled: the memoized result exists and
	// returning it keeps repeated reads deterministic.
	select {
	case <-node.Done():
		return node.Result()
	default:
	}

	if from != nil {
		if err := s.waits.add(from, node); err != nil {
			return nil, err
		}
		defer s.waits.remove(from, node)
	}

	return node.Wait(ctx)
}

// runNode drives one node from Pending to a terminal state. It runs in
// its own goroutine under the session context, acquires a worker slot
// before invoking the body, and decides afterwards whether the outcome is
// retained (values and real failures) or dropped (abandoned work and
// nodes invalidated mid-flight).
func (s *Scheduler) runNode(node *memo.Node, res registry.Resolution) {
	logger := ctxlog.FromContext(s.rootCtx).With("rule", res.Rule.Name, "node", node.Key.Short())
	ctx := ctxlog.WithLogger(s.rootCtx, logger)

	if err := s.slots.Acquire(ctx, 1); err != nil {
		node.Fail(err)
		s.store.Forget(node)
		return
	}

	node.Begin()
	logger.Debug("Node execution started.")

	ex := &execContext{sched: s, node: node, holding: true}
	value, err := invokeBody(ctx, ex, res)
	if ex.holding {
		s.slots.Release(1)
	}

	if err != nil {
		err = pushFrame(err, res.Rule.ID())
		if abandoned(err) {
			logger.Debug("Node abandoned.", "error", err)
			node.Fail(err)
			s.store.Forget(node)
			return
		}
		logger.Debug("Node execution failed.", "error", err)
		node.Fail(err)
		s.store.Retain(node)
		return
	}

	logger.Debug("Node execution completed.")
	node.Complete(value)
	s.store.Retain(node)
}

// invokeBody calls the rule body, converting a panic into a failure so
// one broken plugin cannot take down the whole session.
func invokeBody(ctx context.Context, ex rule.Exec, res registry.Resolution) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule %s panicked: %v", res.Rule.Name, r)
		}
	}()
	return res.Rule.Body(ctx, ex, res.Inputs)
}

// abandoned classifies failures that must not be memoized: cancellation
// is a property of the run, not of the computation.
func abandoned(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
