package get

import "reflect"

// Entry pairs one input value with its declared type for the
// multi-parameter request form.
type Entry struct {
	Value any
	Type  reflect.Type
}

// Inputs is the ordered multi-parameter input list. Order is preserved
// exactly: the constructed Get's input types and values appear in the same
// positions as the entries here.
type Inputs []Entry

// In is shorthand for building one Entry.
func In(value any, typ reflect.Type) Entry {
	return Entry{Value: value, Type: typ}
}
