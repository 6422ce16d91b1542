package memo

import (
	"path"
	"strings"
	"sync"

	"github.com/cranebuild/crane/internal/fingerprint"
)

// Store holds every live and retained node for one session. It is the
// only mutable structure shared across the whole engine; all access goes
// through its mutex, and the discipline is "at most one live node per
// key".
type Store struct {
	mu sync.Mutex
	// nodes holds in-flight and retained nodes by key.
	nodes map[fingerprint.Key]*Node
	// byPath indexes retained nodes by each recorded path.
	byPath map[string]map[*Node]struct{}
	// retained tracks completion order for capacity eviction.
	retained []*Node
	// maxEntries caps retained terminal nodes; 0 means unbounded.
	// In-flight nodes are never evicted.
	maxEntries int
}

// NewStore creates an empty store. maxEntries caps how many settled nodes
// are kept (0 = unbounded); the oldest settled node is evicted first.
func NewStore(maxEntries int) *Store {
	return &Store{
		nodes:      make(map[fingerprint.Key]*Node),
		byPath:     make(map[string]map[*Node]struct{}),
		maxEntries: maxEntries,
	}
}

// Intern returns the single live node for key, creating it if absent.
// created reports whether the caller owns driving the node to completion;
// when false, the caller attaches as a waiter on the returned node.
func (s *Store) Intern(key fingerprint.Key, ruleID string) (n *Node, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.nodes[key]; ok {
		return existing, false
	}
	n = newNode(key, ruleID)
	s.nodes[key] = n
	return n, true
}

// Lookup returns the node for key without creating one.
func (s *Store) Lookup(key fingerprint.Key) (*Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[key]
	return n, ok
}

// Retain keeps a settled node for future requesters: its paths go into
// the invalidation index and it becomes eligible for capacity eviction.
// A node marked stale while in flight is dropped instead, so the next
// request re-executes against the changed inputs.
func (s *Store) Retain(n *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.Stale() || s.nodes[n.Key] != n {
		delete(s.nodes, n.Key)
		s.unindexLocked(n)
		return
	}

	for _, p := range n.Paths() {
		set, ok := s.byPath[p]
		if !ok {
			set = make(map[*Node]struct{})
			s.byPath[p] = set
		}
		set[n] = struct{}{}
	}
	s.retained = append(s.retained, n)
	s.evictOverCapLocked()
}

// Forget drops a node outright: abandoned work is never visible to later
// requesters.
func (s *Store) Forget(n *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nodes[n.Key] == n {
		delete(s.nodes, n.Key)
	}
	s.unindexLocked(n)
}

// Len reports how many nodes (in-flight plus retained) the store holds.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// InvalidatePaths drops every node whose recorded paths match a changed
// path, then transitively drops everything that consumed those nodes'
// values. A recorded directory matches any changed path beneath it.
// In-flight nodes are marked stale rather than dropped: their waiters
// still get a result, but it is not retained. Returns how many nodes
// were invalidated.
func (s *Store) InvalidatePaths(changed []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	seeds := make(map[*Node]struct{})
	touched := make(map[string]struct{})
	for _, c := range changed {
		// Walk the changed path and each of its ancestors: a node that
		// recorded a directory depends on everything beneath it.
		p := cleanPath(c)
		for {
			touched[p] = struct{}{}
			for n := range s.byPath[p] {
				seeds[n] = struct{}{}
			}
			parent := path.Dir(p)
			if parent == p {
				break
			}
			p = parent
		}
	}

	// The path index only covers retained nodes. An in-flight node that
	// read the workspace itself has already recorded its paths but is not
	// indexed yet, so it has to be matched directly or a change landing
	// between its reads and its Retain would be lost.
	for _, n := range s.nodes {
		if st := n.State(); st != Pending && st != Running {
			continue
		}
		for _, p := range n.Paths() {
			if _, ok := touched[cleanPath(p)]; ok {
				seeds[n] = struct{}{}
				break
			}
		}
	}

	dropped := make(map[*Node]struct{})
	var visit func(n *Node)
	visit = func(n *Node) {
		if _, seen := dropped[n]; seen {
			return
		}
		dropped[n] = struct{}{}
		for _, dep := range n.dependentList() {
			visit(dep)
		}
	}
	for n := range seeds {
		visit(n)
	}

	for n := range dropped {
		if n.State() == Pending || n.State() == Running {
			n.MarkStale()
			continue
		}
		if s.nodes[n.Key] == n {
			delete(s.nodes, n.Key)
		}
		s.unindexLocked(n)
	}
	return len(dropped)
}

// unindexLocked removes a node from the path index and the retention
// order. Callers hold s.mu.
func (s *Store) unindexLocked(n *Node) {
	for _, p := range n.Paths() {
		if set, ok := s.byPath[p]; ok {
			delete(set, n)
			if len(set) == 0 {
				delete(s.byPath, p)
			}
		}
	}
	for i, r := range s.retained {
		if r == n {
			s.retained = append(s.retained[:i], s.retained[i+1:]...)
			break
		}
	}
}

// evictOverCapLocked enforces the soft capacity: oldest settled nodes go
// first. Callers hold s.mu.
func (s *Store) evictOverCapLocked() {
	if s.maxEntries <= 0 {
		return
	}
	for len(s.retained) > s.maxEntries {
		victim := s.retained[0]
		s.retained = s.retained[1:]
		if s.nodes[victim.Key] == victim {
			delete(s.nodes, victim.Key)
		}
		for _, p := range victim.Paths() {
			if set, ok := s.byPath[p]; ok {
				delete(set, victim)
				if len(set) == 0 {
					delete(s.byPath, p)
				}
			}
		}
	}
}

func cleanPath(p string) string {
	return strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, "\\", "/")), "./")
}
