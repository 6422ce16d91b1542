package testutil

import (
	"context"
	"sync/atomic"

	"github.com/cranebuild/crane/internal/rule"
)

// InvocationCounter counts how many times rule bodies actually ran, for
// asserting memoization behavior.
type InvocationCounter struct {
	n atomic.Int64
}

// Count returns the number of recorded invocations.
func (c *InvocationCounter) Count() int64 {
	return c.n.Load()
}

// CountingRule wraps a rule body so each real execution increments the
// counter. Memoized hits never pass through the body, so they never
// count.
func CountingRule[Out, In any](c *InvocationCounter, name string, body func(ctx context.Context, ex rule.Exec, in In) (Out, error)) *rule.Rule {
	return rule.New1(name, func(ctx context.Context, ex rule.Exec, in In) (Out, error) {
		c.n.Add(1)
		return body(ctx, ex, in)
	})
}
