package scheduler

import (
	"context"
	"sync"

	"github.com/cranebuild/crane/internal/get"
	"github.com/cranebuild/crane/internal/memo"
)

// execContext is the rule.Exec handed to one body invocation. A body is a
// cooperative single-threaded computation: it may only block inside Get
// and GetAll, and execContext is not safe for concurrent use from
// goroutines the body spawns itself. Parallelism belongs in GetAll.
type execContext struct {
	sched *Scheduler
	node  *memo.Node
	// holding tracks whether this body currently owns a worker slot. Only
	// the body's own goroutine touches it.
	holding bool
}

// Get suspends the body, resolves one request, and resumes. The worker
// slot is released for the whole time the body is blocked, so a bounded
// pool can still make progress through arbitrarily deep rule chains.
func (e *execContext) Get(ctx context.Context, g get.Get) (any, error) {
	e.suspend()
	v, err := e.sched.resolve(ctx, g, e.node)
	if rerr := e.resume(ctx); rerr != nil {
		return nil, rerr
	}
	return v, err
}

// GetAll suspends the body, resolves every request in the batch
// concurrently, and resumes once all have settled. Results are in issue
// order; the first failure in issue order is returned after every sibling
// has settled.
func (e *execContext) GetAll(ctx context.Context, b get.Batch) ([]any, error) {
	e.suspend()
	results, err := e.sched.fanOut(ctx, b.Gets(), e.node)
	if rerr := e.resume(ctx); rerr != nil {
		return nil, rerr
	}
	return results, err
}

// RecordPaths implements rule.PathRecorder: bodies that read the
// workspace report what they read, wiring the node into the invalidation
// index.
func (e *execContext) RecordPaths(paths ...string) {
	e.node.RecordPaths(paths...)
}

func (e *execContext) suspend() {
	if e.holding {
		e.sched.slots.Release(1)
		e.holding = false
	}
}

func (e *execContext) resume(ctx context.Context) error {
	if err := e.sched.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	e.holding = true
	return nil
}

// fanOut resolves gets concurrently on behalf of one requester and
// returns results in issue order. Every sibling settles before fanOut
// returns, so shared nodes are never abandoned halfway because an
// unrelated sibling failed first.
func (s *Scheduler) fanOut(ctx context.Context, gets []get.Get, from *memo.Node) ([]any, error) {
	if len(gets) == 0 {
		return []any{}, nil
	}

	results := make([]any, len(gets))
	errs := make([]error, len(gets))
	var wg sync.WaitGroup
	wg.Add(len(gets))
	for i, g := range gets {
		go func(i int, g get.Get) {
			defer wg.Done()
			results[i], errs[i] = s.resolve(ctx, g, from)
		}(i, g)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
