package memo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cranebuild/crane/internal/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(t *testing.T, parts ...any) fingerprint.Key {
	t.Helper()
	k, err := fingerprint.Node("memo.test", parts)
	require.NoError(t, err)
	return k
}

func TestIntern_Coalesces(t *testing.T) {
	s := NewStore(0)

	n1, created := s.Intern(key(t, "a"), "memo.test")
	assert.True(t, created)
	n2, created := s.Intern(key(t, "a"), "memo.test")
	assert.False(t, created)
	assert.Same(t, n1, n2)

	n3, created := s.Intern(key(t, "b"), "memo.test")
	assert.True(t, created)
	assert.NotSame(t, n1, n3)
	assert.Equal(t, 2, s.Len())
}

func TestNode_CompleteWakesWaiters(t *testing.T) {
	s := NewStore(0)
	n, _ := s.Intern(key(t, "a"), "memo.test")
	require.True(t, n.Begin())
	assert.Equal(t, Running, n.State())

	got := make(chan any, 1)
	go func() {
		v, err := n.Wait(context.Background())
		if err == nil {
			got <- v
		}
	}()

	n.Complete("value")
	select {
	case v := <-got:
		assert.Equal(t, "value", v)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken")
	}
	assert.Equal(t, Completed, n.State())
}

func TestNode_FailureIsMemoized(t *testing.T) {
	s := NewStore(0)
	n, _ := s.Intern(key(t, "a"), "memo.test")
	require.True(t, n.Begin())

	boom := errors.New("boom")
	n.Fail(boom)
	s.Retain(n)

	// A later requester finds the settled node and observes the identical
	// failure without anything re-running.
	again, created := s.Intern(key(t, "a"), "memo.test")
	assert.False(t, created)
	_, err := again.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Failed, again.State())
}

func TestNode_WaitRespectsContext(t *testing.T) {
	s := NewStore(0)
	n, _ := s.Intern(key(t, "a"), "memo.test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := n.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNode_BeginOnlyOnce(t *testing.T) {
	s := NewStore(0)
	n, _ := s.Intern(key(t, "a"), "memo.test")
	assert.True(t, n.Begin())
	assert.False(t, n.Begin())
}

func settled(t *testing.T, s *Store, k fingerprint.Key, paths ...string) *Node {
	t.Helper()
	n, created := s.Intern(k, "memo.test")
	require.True(t, created)
	require.True(t, n.Begin())
	n.RecordPaths(paths...)
	n.Complete("v")
	s.Retain(n)
	return n
}

func TestInvalidatePaths_ExactMatch(t *testing.T) {
	s := NewStore(0)
	settled(t, s, key(t, "a"), "src/main.go")
	settled(t, s, key(t, "b"), "src/other.go")

	assert.Equal(t, 1, s.InvalidatePaths([]string{"src/main.go"}))
	assert.Equal(t, 1, s.Len())

	_, created := s.Intern(key(t, "a"), "memo.test")
	assert.True(t, created, "invalidated node must be re-created on request")
	_, created = s.Intern(key(t, "b"), "memo.test")
	assert.False(t, created, "untouched node must survive")
}

func TestInvalidatePaths_DirectoryPrefix(t *testing.T) {
	s := NewStore(0)
	settled(t, s, key(t, "glob"), "src")
	settled(t, s, key(t, "other"), "docs")

	assert.Equal(t, 1, s.InvalidatePaths([]string{"src/deep/nested/file.go"}))
	_, created := s.Intern(key(t, "glob"), "memo.test")
	assert.True(t, created)
}

func TestInvalidatePaths_Transitive(t *testing.T) {
	s := NewStore(0)
	leaf := settled(t, s, key(t, "leaf"), "src/lib.go")

	mid, _ := s.Intern(key(t, "mid"), "memo.test")
	mid.Begin()
	mid.Complete("mid")
	leaf.AddDependent(mid)
	s.Retain(mid)

	top, _ := s.Intern(key(t, "top"), "memo.test")
	top.Begin()
	top.Complete("top")
	mid.AddDependent(top)
	s.Retain(top)

	unrelated := settled(t, s, key(t, "unrelated"), "docs/readme.md")

	assert.Equal(t, 3, s.InvalidatePaths([]string{"src/lib.go"}))
	assert.Equal(t, 1, s.Len())
	got, ok := s.Lookup(unrelated.Key)
	require.True(t, ok)
	assert.Same(t, unrelated, got)
}

func TestInvalidatePaths_InFlightNodeGoesStale(t *testing.T) {
	s := NewStore(0)
	n, _ := s.Intern(key(t, "a"), "memo.test")
	require.True(t, n.Begin())
	n.RecordPaths("src/main.go")

	// Reached both ways: through the producer's dependent edge and
	// through its own recorded paths.
	producer := settled(t, s, key(t, "producer"), "src/main.go")
	producer.AddDependent(n)

	assert.Equal(t, 2, s.InvalidatePaths([]string{"src/main.go"}))
	assert.True(t, n.Stale())

	// Waiters still get the value, but Retain refuses to keep it.
	n.Complete("late")
	s.Retain(n)
	_, ok := s.Lookup(n.Key)
	assert.False(t, ok)
}

func TestInvalidatePaths_InFlightLeafGoesStale(t *testing.T) {
	s := NewStore(0)
	n, _ := s.Intern(key(t, "a"), "memo.test")
	require.True(t, n.Begin())

	// A leaf that reads the workspace itself has no producer edge; its
	// own recorded paths are the only route to it.
	n.RecordPaths("src/main.go")

	assert.Equal(t, 1, s.InvalidatePaths([]string{"src/main.go"}))
	assert.True(t, n.Stale())

	n.Complete("stale read")
	s.Retain(n)
	_, ok := s.Lookup(n.Key)
	assert.False(t, ok, "a stale result must not be retained for future requesters")
}

func TestInvalidatePaths_InFlightLeafDirectoryPrefix(t *testing.T) {
	s := NewStore(0)
	n, _ := s.Intern(key(t, "a"), "memo.test")
	require.True(t, n.Begin())
	n.RecordPaths("src")

	m, _ := s.Intern(key(t, "b"), "memo.test")
	require.True(t, m.Begin())
	m.RecordPaths("docs")

	assert.Equal(t, 1, s.InvalidatePaths([]string{"src/deep/file.go"}))
	assert.True(t, n.Stale())
	assert.False(t, m.Stale(), "an unrelated in-flight node must not go stale")
}

func TestForget_DropsAbandonedWork(t *testing.T) {
	s := NewStore(0)
	n, _ := s.Intern(key(t, "a"), "memo.test")
	n.Begin()
	n.Fail(context.Canceled)
	s.Forget(n)

	_, created := s.Intern(key(t, "a"), "memo.test")
	assert.True(t, created)
}

func TestCapacityEviction_OldestFirst(t *testing.T) {
	s := NewStore(2)
	first := settled(t, s, key(t, 1), "f1")
	settled(t, s, key(t, 2), "f2")
	settled(t, s, key(t, 3), "f3")

	assert.Equal(t, 2, s.Len())
	_, ok := s.Lookup(first.Key)
	assert.False(t, ok, "oldest settled node is evicted first")
	_, ok = s.Lookup(key(t, 3))
	assert.True(t, ok)
}
