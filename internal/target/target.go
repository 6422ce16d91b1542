// Package target defines the opaque addressable unit the engine computes
// products for. The engine never interprets a target's internals; plugins
// inspect it through capability predicates when deciding whether a union
// member applies.
package target

import "sort"

// Target is one addressable unit of the workspace: a stable address, a
// kind, the source globs it covers, and free-form metadata. Values are
// constructed by callers (the CLI, plugins, tests) and passed through the
// engine unchanged.
type Target struct {
	// Address is the stable identity, conventionally "//dir:name".
	Address string
	// Kind names the declared target flavor.
	Kind string
	// Sources are the workspace-relative globs owning this target's files.
	Sources []string
	// Meta carries free-form key/value declarations.
	Meta map[string]string
}

// Has reports whether the target declares the metadata key.
func (t Target) Has(key string) bool {
	_, ok := t.Meta[key]
	return ok
}

// Get returns the metadata value for key, or the empty string.
func (t Target) Get(key string) string {
	return t.Meta[key]
}

// MetaKeys returns the declared metadata keys, sorted.
func (t Target) MetaKeys() []string {
	keys := make([]string, 0, len(t.Meta))
	for k := range t.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Applies lifts a typed capability predicate into the untyped shape union
// memberships declare. Non-Target values never apply.
func Applies(pred func(Target) bool) func(any) bool {
	return func(v any) bool {
		t, ok := v.(Target)
		return ok && pred(t)
	}
}

// HasKind builds a predicate accepting targets of any of the given kinds.
func HasKind(kinds ...string) func(Target) bool {
	return func(t Target) bool {
		for _, k := range kinds {
			if t.Kind == k {
				return true
			}
		}
		return false
	}
}

// HasMeta builds a predicate accepting targets declaring key with value.
func HasMeta(key, value string) func(Target) bool {
	return func(t Target) bool {
		return t.Meta[key] == value
	}
}
