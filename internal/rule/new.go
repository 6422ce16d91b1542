package rule

import (
	"context"
	"fmt"
	"reflect"

	"github.com/cranebuild/crane/internal/get"
)

// New0 declares a rule that computes Out from no inputs.
func New0[Out any](name string, body func(ctx context.Context, ex Exec) (Out, error)) *Rule {
	return &Rule{
		Name:   name,
		Output: get.Type[Out](),
		Params: nil,
		Body: func(ctx context.Context, ex Exec, in []any) (any, error) {
			if err := checkArity(name, 0, in); err != nil {
				return nil, err
			}
			return body(ctx, ex)
		},
	}
}

// New1 declares a rule that computes Out from one input.
func New1[Out, In1 any](name string, body func(ctx context.Context, ex Exec, in1 In1) (Out, error)) *Rule {
	return &Rule{
		Name:   name,
		Output: get.Type[Out](),
		Params: []reflect.Type{get.Type[In1]()},
		Body: func(ctx context.Context, ex Exec, in []any) (any, error) {
			if err := checkArity(name, 1, in); err != nil {
				return nil, err
			}
			in1, err := typedInput[In1](name, 0, in[0])
			if err != nil {
				return nil, err
			}
			return body(ctx, ex, in1)
		},
	}
}

// New2 declares a rule that computes Out from two inputs.
func New2[Out, In1, In2 any](name string, body func(ctx context.Context, ex Exec, in1 In1, in2 In2) (Out, error)) *Rule {
	return &Rule{
		Name:   name,
		Output: get.Type[Out](),
		Params: []reflect.Type{get.Type[In1](), get.Type[In2]()},
		Body: func(ctx context.Context, ex Exec, in []any) (any, error) {
			if err := checkArity(name, 2, in); err != nil {
				return nil, err
			}
			in1, err := typedInput[In1](name, 0, in[0])
			if err != nil {
				return nil, err
			}
			in2, err := typedInput[In2](name, 1, in[1])
			if err != nil {
				return nil, err
			}
			return body(ctx, ex, in1, in2)
		},
	}
}

// New3 declares a rule that computes Out from three inputs.
func New3[Out, In1, In2, In3 any](name string, body func(ctx context.Context, ex Exec, in1 In1, in2 In2, in3 In3) (Out, error)) *Rule {
	return &Rule{
		Name:   name,
		Output: get.Type[Out](),
		Params: []reflect.Type{get.Type[In1](), get.Type[In2](), get.Type[In3]()},
		Body: func(ctx context.Context, ex Exec, in []any) (any, error) {
			if err := checkArity(name, 3, in); err != nil {
				return nil, err
			}
			in1, err := typedInput[In1](name, 0, in[0])
			if err != nil {
				return nil, err
			}
			in2, err := typedInput[In2](name, 1, in[1])
			if err != nil {
				return nil, err
			}
			in3, err := typedInput[In3](name, 2, in[2])
			if err != nil {
				return nil, err
			}
			return body(ctx, ex, in1, in2, in3)
		},
	}
}

// New4 declares a rule that computes Out from four inputs.
func New4[Out, In1, In2, In3, In4 any](name string, body func(ctx context.Context, ex Exec, in1 In1, in2 In2, in3 In3, in4 In4) (Out, error)) *Rule {
	return &Rule{
		Name:   name,
		Output: get.Type[Out](),
		Params: []reflect.Type{get.Type[In1](), get.Type[In2](), get.Type[In3](), get.Type[In4]()},
		Body: func(ctx context.Context, ex Exec, in []any) (any, error) {
			if err := checkArity(name, 4, in); err != nil {
				return nil, err
			}
			in1, err := typedInput[In1](name, 0, in[0])
			if err != nil {
				return nil, err
			}
			in2, err := typedInput[In2](name, 1, in[1])
			if err != nil {
				return nil, err
			}
			in3, err := typedInput[In3](name, 2, in[2])
			if err != nil {
				return nil, err
			}
			in4, err := typedInput[In4](name, 3, in[3])
			if err != nil {
				return nil, err
			}
			return body(ctx, ex, in1, in2, in3, in4)
		},
	}
}

// NewN declares a rule from an untyped body. Prefer the typed constructors;
// this exists for generated or signature-driven declarations.
func NewN(name string, output reflect.Type, params []reflect.Type, body BodyFunc) *Rule {
	return &Rule{Name: name, Output: output, Params: params, Body: body}
}

func checkArity(name string, want int, in []any) error {
	if len(in) != want {
		return fmt.Errorf("rule %s: expected %d resolved inputs, got %d", name, want, len(in))
	}
	return nil
}

func typedInput[T any](name string, i int, v any) (T, error) {
	t, ok := v.(T)
	if !ok {
		var zero T
		actual := "<nil>"
		if v != nil {
			actual = reflect.TypeOf(v).String()
		}
		return zero, fmt.Errorf("rule %s: input %d must be %s, but had type %s", name, i, get.Type[T](), actual)
	}
	return t, nil
}
