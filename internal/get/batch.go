package get

import (
	"errors"
	"fmt"
	"strings"
)

// Batch construction failures, split the way callers want to classify
// them: a nil argument is a value problem, anything else that is not a Get
// is a type problem.
var (
	ErrBatchArgumentType = errors.New("unexpected Batch argument types")
	ErrBatchNilArgument  = errors.New("unexpected Batch nil arguments")
)

// Batch is an ordered collection of Gets that are issued concurrently and
// awaited together. Results come back in the order the Gets appear here,
// regardless of completion order.
type Batch struct {
	gets []Get
}

// NewBatch validates and constructs a Batch. It accepts either one
// homogeneous collection:
//
//	NewBatch(gets)            where gets is a []Get
//
// or an explicit argument list of individually constructed Gets:
//
//	NewBatch(get1, get2, ...)
//
// with no upper bound on the argument count. A nil argument or an argument
// that is not a Get fails with one composed error listing every offending
// position in context.
func NewBatch(args ...any) (Batch, error) {
	if len(args) == 1 {
		switch v := args[0].(type) {
		case []Get:
			return newBatchFromSlice(v)
		case Get:
			if !v.IsZero() {
				return Batch{gets: []Get{v}}, nil
			}
		}
	}

	gets := make([]Get, 0, len(args))
	sawNil := false
	sawBadType := false
	for _, a := range args {
		if a == nil {
			sawNil = true
			continue
		}
		g, ok := a.(Get)
		if !ok || g.IsZero() {
			sawBadType = true
			continue
		}
		gets = append(gets, g)
	}

	if sawNil {
		return Batch{}, fmt.Errorf(
			"%w: %s\n\nWhen constructing a Batch from individual Gets, every argument must be a constructed Get.",
			ErrBatchNilArgument, describeArgs(args),
		)
	}
	if sawBadType {
		return Batch{}, fmt.Errorf(
			"%w: %s\n\n"+
				"A Batch can be constructed in two ways:\n"+
				"  1. NewBatch(gets), where gets is a []Get holding a homogeneous collection\n"+
				"  2. NewBatch(get1, get2, ...), listing individually constructed Gets\n\n"+
				"Both forms evaluate every Get in parallel and collect the results in issue order once all are complete.",
			ErrBatchArgumentType, describeArgs(args),
		)
	}
	return Batch{gets: gets}, nil
}

// newBatchFromSlice handles the homogeneous-collection form. A zero-value
// Get in the collection is a construction bug at the call site, caught
// here rather than inside the scheduler.
func newBatchFromSlice(gets []Get) (Batch, error) {
	for i, g := range gets {
		if g.IsZero() {
			return Batch{}, fmt.Errorf(
				"%w: the collection holds an unconstructed (zero) Get at index %d",
				ErrBatchArgumentType, i,
			)
		}
	}
	out := make([]Get, len(gets))
	copy(out, gets)
	return Batch{gets: out}, nil
}

// Gets returns the batch's requests in issue order.
func (b Batch) Gets() []Get {
	out := make([]Get, len(b.gets))
	copy(out, b.gets)
	return out
}

// Len returns the number of requests in the batch.
func (b Batch) Len() int {
	return len(b.gets)
}

// describeArgs renders the full argument list so the offending entries
// appear in context with the surrounding valid requests.
func describeArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = describe(a)
	}
	return strings.Join(parts, ", ")
}
