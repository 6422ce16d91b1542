// Package registry aggregates every plugin's rule set into one immutable
// index and resolves requests against it. Aggregation happens exactly once
// at startup; after Build returns, the registry is read-only and safe for
// concurrent dispatch.
package registry

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cranebuild/crane/internal/rule"
)

// ruleKey identifies a rule by (output type, input signature). The
// signature is the canonical rendering of the param types, which keeps the
// key comparable.
type ruleKey struct {
	output    reflect.Type
	signature string
}

// Registry is the immutable index of rules and union memberships.
type Registry struct {
	rules   map[ruleKey]*rule.Rule
	ordered []*rule.Rule
	unions  map[reflect.Type][]rule.Member
}

// Build compiles the given sets into a Registry. Every structural problem
// across all sets is collected and reported in one error: a rule failing
// validation, two rules sharing an (output, signature) key, a malformed
// union membership, or the same member registered twice.
func Build(sets ...*rule.Set) (*Registry, error) {
	r := &Registry{
		rules:  make(map[ruleKey]*rule.Rule),
		unions: make(map[reflect.Type][]rule.Member),
	}

	var errs []string
	for _, set := range sets {
		for _, rl := range set.Rules() {
			if err := rl.Validate(); err != nil {
				errs = append(errs, fmt.Sprintf("set %s: %v", set.Name(), err))
				continue
			}
			key := ruleKey{output: rl.Output, signature: signature(rl.Params)}
			if existing, exists := r.rules[key]; exists {
				errs = append(errs, fmt.Sprintf(
					"set %s: rule %s conflicts with %s: both compute %s from (%s)",
					set.Name(), rl.Name, existing.Name, rl.Output, key.signature,
				))
				continue
			}
			r.rules[key] = rl
			r.ordered = append(r.ordered, rl)
		}

		for _, m := range set.Members() {
			if err := m.Validate(); err != nil {
				errs = append(errs, fmt.Sprintf("set %s: %v", set.Name(), err))
				continue
			}
			if hasMember(r.unions[m.Union], m.Impl) {
				errs = append(errs, fmt.Sprintf(
					"set %s: member %s of union %s is already registered",
					set.Name(), m.Impl, m.Union,
				))
				continue
			}
			r.unions[m.Union] = append(r.unions[m.Union], m)
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("registry aggregation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return r, nil
}

// Rules returns every registered rule in registration order.
func (r *Registry) Rules() []*rule.Rule {
	out := make([]*rule.Rule, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// IsUnion reports whether t has registered memberships.
func (r *Registry) IsUnion(t reflect.Type) bool {
	_, ok := r.unions[t]
	return ok
}

// Members returns the registered memberships of a union in registration
// order.
func (r *Registry) Members(union reflect.Type) []rule.Member {
	members := r.unions[union]
	out := make([]rule.Member, len(members))
	copy(out, members)
	return out
}

// producersOf lists the names of rules whose output is t, sorted, for
// inclusion in lookup-failure messages.
func (r *Registry) producersOf(t reflect.Type) []string {
	var names []string
	for key, rl := range r.rules {
		if key.output == t {
			names = append(names, rl.ID())
		}
	}
	sort.Strings(names)
	return names
}

func hasMember(members []rule.Member, impl reflect.Type) bool {
	for _, m := range members {
		if m.Impl == impl {
			return true
		}
	}
	return false
}

func signature(params []reflect.Type) string {
	names := make([]string, len(params))
	for i, t := range params {
		names[i] = typeName(t)
	}
	return strings.Join(names, ", ")
}

// typeName renders a type with its package path so same-named types from
// different packages never collide in a signature.
func typeName(t reflect.Type) string {
	if t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}
