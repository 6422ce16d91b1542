package system

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cranebuild/crane/internal/get"
	"github.com/cranebuild/crane/internal/rule"
	"github.com/cranebuild/crane/internal/testutil"
)

type lineCount struct {
	Path  string
	Lines int
}

type report struct {
	Total int
}

// Test for: repeated goals reuse the memoized graph within a session.
func TestCoreExecution_RepeatedGoal_ReusesMemoizedNodes(t *testing.T) {
	// --- Arrange ---
	// A two-level graph: the report fans out over the per-file counts,
	// and every rule body increments a counter so re-execution is
	// observable.
	var countRuns, reportRuns testutil.InvocationCounter

	set := rule.NewSet("report").Add(
		testutil.CountingRule(&countRuns, "report.count", func(ctx context.Context, ex rule.Exec, path string) (lineCount, error) {
			return lineCount{Path: path, Lines: len(path)}, nil
		}),
		testutil.CountingRule(&reportRuns, "report.total", func(ctx context.Context, ex rule.Exec, paths []string) (report, error) {
			gets := make([]get.Get, len(paths))
			for i, p := range paths {
				g, err := get.New(get.Type[lineCount](), p)
				if err != nil {
					return report{}, err
				}
				gets[i] = g
			}
			batch, err := get.NewBatch(gets)
			if err != nil {
				return report{}, err
			}
			results, err := ex.GetAll(ctx, batch)
			if err != nil {
				return report{}, err
			}
			total := 0
			for _, r := range results {
				total += r.(lineCount).Lines
			}
			return report{Total: total}, nil
		}),
	)
	h := testutil.NewSession(t, 4, set)

	paths := []string{"a.go", "bb.go", "ccc.go"}
	g, err := get.New(get.Type[report](), paths)
	require.NoError(t, err)

	// --- Act ---
	first, err := h.Session.Product(h.Ctx, g)
	require.NoError(t, err)
	second, err := h.Session.Product(h.Ctx, g)
	require.NoError(t, err)

	// --- Assert ---
	assert.Equal(t, report{Total: 11}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), reportRuns.Count(), "the report rule must run once")
	assert.Equal(t, int64(3), countRuns.Count(), "each file's count must run once")
}

// Test for: concurrent top-level requests for overlapping products share
// one execution per node.
func TestCoreExecution_ConcurrentGoals_CoalesceOnSharedNodes(t *testing.T) {
	// --- Arrange ---
	var countRuns testutil.InvocationCounter
	set := rule.NewSet("report").Add(
		testutil.CountingRule(&countRuns, "report.count", func(ctx context.Context, ex rule.Exec, path string) (lineCount, error) {
			return lineCount{Path: path, Lines: len(path)}, nil
		}),
	)
	h := testutil.NewSession(t, 4, set)

	// --- Act ---
	// Many goroutines ask for the same small set of products at once.
	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := get.New(get.Type[lineCount](), fmt.Sprintf("file%d.go", i%4))
			if err != nil {
				errs <- err
				return
			}
			if _, err := h.Session.Product(h.Ctx, g); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	// --- Assert ---
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(4), countRuns.Count(), "four distinct inputs means four executions")
	assert.Equal(t, 4, h.Session.CachedNodes())
}
