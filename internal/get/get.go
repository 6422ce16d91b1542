// Package get builds the typed, validated asynchronous requests that rule
// bodies hand to the scheduler. A Get names one declared output type and
// zero or more typed inputs; a Batch issues many Gets concurrently and
// collects their results in issue order.
//
// All argument-shape validation happens at construction time, so a
// malformed request fails at its call site with a descriptive error
// instead of surfacing later inside the engine.
package get

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrInvalidGet classifies every construction-time Get validation failure.
var ErrInvalidGet = errors.New("invalid Get")

// Get is a single asynchronous request for a value of Output computed from
// Inputs. It is immutable once constructed and consumed once by the
// scheduler.
type Get struct {
	output     reflect.Type
	inputTypes []reflect.Type
	inputs     []any
}

// Type returns the reflect.Type of T. It works for interface types as well
// as concrete ones, which makes it the way to name a union type in a Get.
func Type[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// New validates and constructs a Get. The supported forms are:
//
//	New(outputType)                          zero-input
//	New(outputType, input)                   shorthand, declared type is the input's own type
//	New(outputType, inputType, input)        longhand, declared type given explicitly
//	New(outputType, Inputs{...})             multi-parameter, order preserved
//
// The longhand form requires the input's runtime type to equal the declared
// type exactly, unless the declared type is an interface: interface inputs
// name union types, whose membership is checked at dispatch time instead.
func New(args ...any) (Get, error) {
	if len(args) == 0 || len(args) > 3 {
		return Get{}, fmt.Errorf("%w: expected between 1 and 3 arguments, got %d", ErrInvalidGet, len(args))
	}

	output, ok := args[0].(reflect.Type)
	if !ok {
		return Get{}, fmt.Errorf(
			"%w: the first argument (the output type) must be a type, but given `%s` with type %s",
			ErrInvalidGet, describe(args[0]), typeOf(args[0]),
		)
	}

	switch len(args) {
	case 1:
		return Get{output: output}, nil
	case 2:
		return newShorthand(output, args[1])
	default:
		return newLonghand(output, args[1], args[2])
	}
}

// newShorthand handles New(outputType, input) and the multi-parameter
// New(outputType, Inputs{...}) form.
func newShorthand(output reflect.Type, input any) (Get, error) {
	if entries, ok := input.(Inputs); ok {
		return newMulti(output, entries)
	}
	if t, ok := input.(reflect.Type); ok {
		return Get{}, fmt.Errorf(
			"%w: because you are using the shorthand form New(outputType, input), "+
				"the second argument should be a constructed value, rather than a type, but given %s; "+
				"to declare the input type explicitly, use the longhand form New(outputType, inputType, input)",
			ErrInvalidGet, t,
		)
	}
	if input == nil {
		return Get{}, fmt.Errorf("%w: the input value must not be untyped nil", ErrInvalidGet)
	}
	return Get{
		output:     output,
		inputTypes: []reflect.Type{reflect.TypeOf(input)},
		inputs:     []any{input},
	}, nil
}

// newLonghand handles New(outputType, inputType, input).
func newLonghand(output reflect.Type, declared, input any) (Get, error) {
	declaredType, ok := declared.(reflect.Type)
	if !ok {
		return Get{}, fmt.Errorf(
			"%w: because you are using the longhand form New(outputType, inputType, input), "+
				"the second argument must be a type, but given `%s` of type %s",
			ErrInvalidGet, describe(declared), typeOf(declared),
		)
	}
	if t, ok := input.(reflect.Type); ok {
		return Get{}, fmt.Errorf(
			"%w: because you are using the longhand form New(outputType, inputType, input), "+
				"the third argument should be a constructed value, rather than a type, but given %s",
			ErrInvalidGet, t,
		)
	}
	if input == nil {
		return Get{}, fmt.Errorf("%w: the input value must not be untyped nil", ErrInvalidGet)
	}
	// Interface-typed declarations name unions; membership is data
	// dependent, so the check belongs to dispatch, not construction.
	if actual := reflect.TypeOf(input); declaredType.Kind() != reflect.Interface && actual != declaredType {
		return Get{}, fmt.Errorf(
			"%w: the third argument `%s` must have the exact same type as the second argument, %s, but had the type %s",
			ErrInvalidGet, describe(input), declaredType, actual,
		)
	}
	return Get{
		output:     output,
		inputTypes: []reflect.Type{declaredType},
		inputs:     []any{input},
	}, nil
}

// newMulti handles the ordered multi-parameter form.
func newMulti(output reflect.Type, entries Inputs) (Get, error) {
	inputTypes := make([]reflect.Type, 0, len(entries))
	inputs := make([]any, 0, len(entries))
	for i, e := range entries {
		if e.Type == nil {
			return Get{}, fmt.Errorf(
				"%w: because the second argument was a get.Inputs list, every entry must pair a value "+
					"with its declared type, but entry %d declared no type for `%s`",
				ErrInvalidGet, i, describe(e.Value),
			)
		}
		if t, ok := e.Value.(reflect.Type); ok {
			return Get{}, fmt.Errorf(
				"%w: because the second argument was a get.Inputs list, every entry's value should be a "+
					"constructed value, rather than a type, but entry %d holds %s",
				ErrInvalidGet, i, t,
			)
		}
		if e.Value == nil {
			return Get{}, fmt.Errorf("%w: entry %d of the get.Inputs list must not hold untyped nil", ErrInvalidGet, i)
		}
		if actual := reflect.TypeOf(e.Value); e.Type.Kind() != reflect.Interface && actual != e.Type {
			return Get{}, fmt.Errorf(
				"%w: entry %d `%s` must have the exact same type as its declared type, %s, but had the type %s",
				ErrInvalidGet, i, describe(e.Value), e.Type, actual,
			)
		}
		inputTypes = append(inputTypes, e.Type)
		inputs = append(inputs, e.Value)
	}
	return Get{output: output, inputTypes: inputTypes, inputs: inputs}, nil
}

// Output returns the declared output type.
func (g Get) Output() reflect.Type {
	return g.output
}

// InputTypes returns the declared input types in declaration order.
func (g Get) InputTypes() []reflect.Type {
	out := make([]reflect.Type, len(g.inputTypes))
	copy(out, g.inputTypes)
	return out
}

// Inputs returns the input values in declaration order.
func (g Get) Inputs() []any {
	out := make([]any, len(g.inputs))
	copy(out, g.inputs)
	return out
}

// IsZero reports whether g was never constructed through New.
func (g Get) IsZero() bool {
	return g.output == nil
}

// String renders the request shape for error messages and logs.
func (g Get) String() string {
	switch len(g.inputTypes) {
	case 0:
		return fmt.Sprintf("Get(%s)", g.output)
	case 1:
		return fmt.Sprintf("Get(%s, %s, ..)", g.output, g.inputTypes[0])
	default:
		names := make([]string, len(g.inputTypes))
		for i, t := range g.inputTypes {
			names[i] = t.String()
		}
		return fmt.Sprintf("Get(%s, [%s], ..)", g.output, strings.Join(names, ", "))
	}
}

// describe renders an arbitrary argument for an error message.
func describe(v any) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case Get:
		return x.String()
	case reflect.Type:
		return x.String()
	case string:
		return fmt.Sprintf("%q", x)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// typeOf names a value's runtime type for an error message.
func typeOf(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
