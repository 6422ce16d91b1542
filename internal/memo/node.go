// Package memo is the memoization and invalidation layer: a
// fingerprint-keyed store of execution nodes. Interning a key either
// creates the single live node for that key or returns the existing one,
// so concurrent requesters coalesce onto one computation. Completed nodes
// (values and failures alike) are retained until a filesystem change
// invalidates a path they transitively depended on.
package memo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cranebuild/crane/internal/fingerprint"
)

// State is an execution node's lifecycle position.
type State int32

const (
	Pending State = iota
	Running
	Completed
	Failed
)

// String renders the state for logs.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Node is the runtime instantiation of one rule for one fingerprinted
// input tuple. The creating goroutine drives it to a terminal state;
// everyone else waits on Done.
type Node struct {
	Key    fingerprint.Key
	RuleID string

	state atomic.Int32
	stale atomic.Bool
	done  chan struct{}
	value any
	err   error

	mu         sync.Mutex
	paths      map[string]struct{}
	dependents map[*Node]struct{}
}

func newNode(key fingerprint.Key, ruleID string) *Node {
	return &Node{
		Key:    key,
		RuleID: ruleID,
		done:   make(chan struct{}),
	}
}

// State returns the node's current lifecycle position.
func (n *Node) State() State {
	return State(n.state.Load())
}

// Begin transitions Pending to Running. Only the goroutine that interned
// the node calls it; the return value guards against double starts.
func (n *Node) Begin() bool {
	return n.state.CompareAndSwap(int32(Pending), int32(Running))
}

// Complete moves the node to Completed and wakes every waiter.
func (n *Node) Complete(value any) {
	n.value = value
	n.state.Store(int32(Completed))
	close(n.done)
}

// Fail moves the node to Failed and wakes every waiter. The error is
// memoized exactly like a value: later requesters observe it without the
// body re-running.
func (n *Node) Fail(err error) {
	n.err = err
	n.state.Store(int32(Failed))
	close(n.done)
}

// Done is closed once the node reaches a terminal state.
func (n *Node) Done() <-chan struct{} {
	return n.done
}

// Wait blocks until the node settles or the context is cancelled.
func (n *Node) Wait(ctx context.Context) (any, error) {
	select {
	case <-n.done:
		return n.value, n.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the terminal value and error. Only valid after Done.
func (n *Node) Result() (any, error) {
	return n.value, n.err
}

// RecordPaths notes workspace paths this node's own execution read.
// Matching during invalidation is by exact path or by directory prefix,
// so recording a directory covers everything under it.
func (n *Node) RecordPaths(paths ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.paths == nil {
		n.paths = make(map[string]struct{}, len(paths))
	}
	for _, p := range paths {
		n.paths[p] = struct{}{}
	}
}

// Paths returns the recorded paths in no particular order.
func (n *Node) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.paths))
	for p := range n.paths {
		out = append(out, p)
	}
	return out
}

// AddDependent records a reverse dependency edge: dep consumed this
// node's value, so invalidating this node must invalidate dep too.
func (n *Node) AddDependent(dep *Node) {
	if dep == nil || dep == n {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dependents == nil {
		n.dependents = make(map[*Node]struct{})
	}
	n.dependents[dep] = struct{}{}
}

// MarkStale flags a node invalidated while still in flight: waiters get
// its result, but the store will not retain it.
func (n *Node) MarkStale() {
	n.stale.Store(true)
}

// Stale reports whether the node was invalidated mid-flight.
func (n *Node) Stale() bool {
	return n.stale.Load()
}

func (n *Node) dependentList() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Node, 0, len(n.dependents))
	for d := range n.dependents {
		out = append(out, d)
	}
	return out
}
