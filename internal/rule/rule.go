// Package rule defines the declaration surface for plugins: rule
// descriptors, typed constructors for rule bodies, the Exec handle bodies
// use to issue requests, and union membership declarations. Declarations
// are aggregated into per-plugin Sets and compiled into an immutable
// registry at startup; nothing here executes anything.
package rule

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// BodyFunc is the untyped shape of a rule body. The engine invokes it with
// the resolved input values in declaration order; the body may issue
// further requests through ex, and those calls are its only suspension
// points.
type BodyFunc func(ctx context.Context, ex Exec, in []any) (any, error)

// Rule describes one registered asynchronous computation: a fixed input
// signature, one declared output type, and the body that computes it.
// Rules are declared once at startup and never mutated afterwards.
type Rule struct {
	// Name is the declaring identity, conventionally "plugin.ruleName".
	// It disambiguates rules that share a type signature.
	Name string
	// Output is the declared product type.
	Output reflect.Type
	// Params are the declared input types in order.
	Params []reflect.Type
	// Body computes the output.
	Body BodyFunc
}

// ID returns the rule's full identity: declaring name plus type signature.
// Two distinct rules may share a signature, never an ID.
func (r *Rule) ID() string {
	return fmt.Sprintf("%s: %s(%s)", r.Name, r.Output, typeNames(r.Params))
}

// Validate reports the first structural problem with the declaration.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule declared without a name (output %s)", r.Output)
	}
	if r.Output == nil {
		return fmt.Errorf("rule %s declared without an output type", r.Name)
	}
	if r.Body == nil {
		return fmt.Errorf("rule %s declared without a body", r.Name)
	}
	for i, p := range r.Params {
		if p == nil {
			return fmt.Errorf("rule %s declared a nil type for input %d", r.Name, i)
		}
	}
	return nil
}

func typeNames(types []reflect.Type) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return strings.Join(names, ", ")
}
