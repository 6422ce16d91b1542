package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cranebuild/crane/internal/memo"
)

// ErrRuleCycle classifies dependency cycles between in-flight nodes.
var ErrRuleCycle = errors.New("rule dependency cycle detected")

// waitGraph tracks which node is currently awaiting which. Detection has
// to run on the live wait edges rather than any static structure: the
// graph is discovered dynamically as bodies issue requests, and coalescing
// can close a loop between chains that look independent from any single
// requester's call stack.
type waitGraph struct {
	mu    sync.Mutex
	waits map[*memo.Node]map[*memo.Node]struct{}
}

func newWaitGraph() *waitGraph {
	return &waitGraph{waits: make(map[*memo.Node]map[*memo.Node]struct{})}
}

// add records "from awaits to". If to already (transitively) awaits from,
// the edge would deadlock, and add reports the cycle instead of recording
// it.
func (w *waitGraph) add(from, to *memo.Node) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if path := w.pathLocked(to, from); path != nil {
		// path runs to -> ... -> from, so prefixing from closes the loop.
		ids := make([]string, 0, len(path)+1)
		ids = append(ids, from.RuleID)
		for _, n := range path {
			ids = append(ids, n.RuleID)
		}
		return fmt.Errorf("%w:\n%s", ErrRuleCycle, bulletChain(ids))
	}

	set, ok := w.waits[from]
	if !ok {
		set = make(map[*memo.Node]struct{})
		w.waits[from] = set
	}
	set[to] = struct{}{}
	return nil
}

// remove erases "from awaits to" once the wait returns.
func (w *waitGraph) remove(from, to *memo.Node) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if set, ok := w.waits[from]; ok {
		delete(set, to)
		if len(set) == 0 {
			delete(w.waits, from)
		}
	}
}

// pathLocked returns the wait path from start to target, or nil if target
// is unreachable. Callers hold w.mu.
func (w *waitGraph) pathLocked(start, target *memo.Node) []*memo.Node {
	visited := make(map[*memo.Node]struct{})
	var dfs func(n *memo.Node, trail []*memo.Node) []*memo.Node
	dfs = func(n *memo.Node, trail []*memo.Node) []*memo.Node {
		if _, seen := visited[n]; seen {
			return nil
		}
		visited[n] = struct{}{}
		trail = append(trail, n)
		if n == target {
			out := make([]*memo.Node, len(trail))
			copy(out, trail)
			return out
		}
		for next := range w.waits[n] {
			if found := dfs(next, trail); found != nil {
				return found
			}
		}
		return nil
	}
	return dfs(start, nil)
}

func bulletChain(ids []string) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("  * ")
		b.WriteString(id)
	}
	return b.String()
}
