package rule

import (
	"fmt"
	"reflect"
)

// Member registers one concrete implementation of a union: "Impl
// implements union U". The optional Applies predicate guards dispatch by
// capability; the optional Adapt converts the request value into an Impl
// instance before the member's rule runs.
type Member struct {
	// Union is the interface type marking the union.
	Union reflect.Type
	// Impl is the concrete member type. Rules keyed on Impl serve
	// requests that dispatched to this member.
	Impl reflect.Type
	// Applies reports whether this member can handle the request value.
	// Nil means "the value's type is, or is assignable to, Impl".
	Applies func(v any) bool
	// Adapt converts the request value into an Impl instance. Nil means
	// the value is passed through unchanged.
	Adapt func(v any) (any, error)
}

// Validate reports the first structural problem with the membership.
func (m Member) Validate() error {
	if m.Union == nil {
		return fmt.Errorf("union membership declared without a union type (member %v)", m.Impl)
	}
	if m.Union.Kind() != reflect.Interface {
		return fmt.Errorf("union type %s must be an interface type, not %s", m.Union, m.Union.Kind())
	}
	if m.Impl == nil {
		return fmt.Errorf("union %s membership declared without a member type", m.Union)
	}
	if m.Impl == m.Union {
		return fmt.Errorf("union %s cannot be a member of itself", m.Union)
	}
	return nil
}

// Set is one plugin's "list my rules" contribution: the rules it declares
// and the union memberships it registers. Plugins build a Set in a
// package-level Rules function; the application aggregates every Set into
// the registry once at startup.
type Set struct {
	name    string
	rules   []*Rule
	members []Member
}

// NewSet creates an empty contribution named after the declaring plugin.
func NewSet(name string) *Set {
	return &Set{name: name}
}

// Add appends rule declarations to the set.
func (s *Set) Add(rules ...*Rule) *Set {
	s.rules = append(s.rules, rules...)
	return s
}

// AddMember appends union membership declarations to the set.
func (s *Set) AddMember(members ...Member) *Set {
	s.members = append(s.members, members...)
	return s
}

// Name returns the declaring plugin's name.
func (s *Set) Name() string {
	return s.name
}

// Rules returns the declared rules in declaration order.
func (s *Set) Rules() []*Rule {
	out := make([]*Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Members returns the declared union memberships in declaration order.
func (s *Set) Members() []Member {
	out := make([]Member, len(s.members))
	copy(out, s.members)
	return out
}
