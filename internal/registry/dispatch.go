package registry

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/cranebuild/crane/internal/get"
	"github.com/cranebuild/crane/internal/rule"
)

// Dispatch failure classes. The wrapped messages carry the specifics; these
// let callers and tests classify without string matching.
var (
	ErrNoRule             = errors.New("no matching rule")
	ErrNotAUnion          = errors.New("not a registered union")
	ErrNoApplicableMember = errors.New("no applicable union member")
	ErrAmbiguousMembers   = errors.New("ambiguous union dispatch")
)

// Resolution is the outcome of dispatching one request: the rule to run
// and the input values to run it with. Union-typed inputs have been
// resolved to their concrete member types, adapting the values where the
// membership declares an Adapt.
type Resolution struct {
	Rule   *rule.Rule
	Inputs []any
}

// Dispatch resolves a request to the rule that serves it. Union resolution
// happens here, per request: it depends on the runtime values, so it can
// never be precomputed at registration time.
func (r *Registry) Dispatch(g get.Get) (Resolution, error) {
	inputTypes := g.InputTypes()
	inputs := g.Inputs()

	for i, declared := range inputTypes {
		if declared.Kind() != reflect.Interface {
			continue
		}
		members, registered := r.unions[declared]
		if !registered {
			return Resolution{}, fmt.Errorf(
				"%w: input %d of %s declares interface type %s, which has no registered members",
				ErrNotAUnion, i, g, declared,
			)
		}
		member, err := resolveMember(declared, members, inputs[i])
		if err != nil {
			return Resolution{}, err
		}
		adapted := inputs[i]
		if member.Adapt != nil {
			adapted, err = member.Adapt(inputs[i])
			if err != nil {
				return Resolution{}, fmt.Errorf("adapting %s to union member %s: %w", describeValue(inputs[i]), member.Impl, err)
			}
		}
		inputTypes[i] = member.Impl
		inputs[i] = adapted
	}

	key := ruleKey{output: g.Output(), signature: signature(inputTypes)}
	rl, ok := r.rules[key]
	if !ok {
		if producers := r.producersOf(g.Output()); len(producers) > 0 {
			return Resolution{}, fmt.Errorf(
				"%w: nothing computes %s from (%s); rules producing %s:\n%s",
				ErrNoRule, g.Output(), key.signature, g.Output(), bulletList(producers),
			)
		}
		return Resolution{}, fmt.Errorf(
			"%w: nothing computes %s from (%s), and no registered rule produces %s at all",
			ErrNoRule, g.Output(), key.signature, g.Output(),
		)
	}
	return Resolution{Rule: rl, Inputs: inputs}, nil
}

// resolveMember applies the zero/one/many rule: exactly one applicable
// member wins; zero enumerates what would have worked; several is an
// ambiguity the caller has to resolve.
func resolveMember(union reflect.Type, members []rule.Member, v any) (rule.Member, error) {
	var matches []rule.Member
	for _, m := range members {
		if memberApplies(m, v) {
			matches = append(matches, m)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		valid := make([]string, len(members))
		for i, m := range members {
			valid[i] = m.Impl.String()
		}
		return rule.Member{}, fmt.Errorf(
			"%w: no registered implementation of union %s applies to %s; valid member types are:\n%s",
			ErrNoApplicableMember, union, describeValue(v), bulletList(valid),
		)
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Impl.String()
		}
		return rule.Member{}, fmt.Errorf(
			"%w: multiple registered implementations of union %s apply to %s, and it is ambiguous "+
				"which to use; either narrow the value or adjust the member predicates. Matching implementations:\n%s",
			ErrAmbiguousMembers, union, describeValue(v), bulletList(names),
		)
	}
}

// memberApplies evaluates a membership's predicate. A nil predicate means
// the value's type is, or is assignable to, the member type.
func memberApplies(m rule.Member, v any) bool {
	if m.Applies != nil {
		return m.Applies(v)
	}
	t := reflect.TypeOf(v)
	return t != nil && (t == m.Impl || t.AssignableTo(m.Impl))
}

func describeValue(v any) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("`%v` of type %s", v, reflect.TypeOf(v))
}

func bulletList(items []string) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("  * ")
		b.WriteString(item)
	}
	return b.String()
}
