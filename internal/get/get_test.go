package get

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sourceSet struct {
	Paths []string
}

type binary struct {
	Name string
}

type archiver interface {
	archive() string
}

func TestType(t *testing.T) {
	assert.Equal(t, reflect.TypeOf(binary{}), Type[binary]())
	assert.Equal(t, reflect.TypeOf(""), Type[string]())

	// The interface case is the whole point of the helper: reflect.TypeOf
	// on an interface value reports the dynamic type, Type[T] reports T.
	ifaceType := Type[archiver]()
	assert.Equal(t, reflect.Interface, ifaceType.Kind())
	assert.Equal(t, "archiver", ifaceType.Name())
}

func TestNew_ZeroInput(t *testing.T) {
	g, err := New(Type[binary]())
	require.NoError(t, err)
	assert.Equal(t, Type[binary](), g.Output())
	assert.Empty(t, g.InputTypes())
	assert.Empty(t, g.Inputs())
}

func TestNew_ShorthandMatchesLonghand(t *testing.T) {
	in := sourceSet{Paths: []string{"src/main.go"}}

	short, err := New(Type[binary](), in)
	require.NoError(t, err)
	long, err := New(Type[binary](), Type[sourceSet](), in)
	require.NoError(t, err)

	assert.Equal(t, long.Output(), short.Output())
	assert.Equal(t, long.InputTypes(), short.InputTypes())
	assert.Equal(t, long.Inputs(), short.Inputs())
}

func TestNew_MultiParameterPreservesOrder(t *testing.T) {
	src := sourceSet{Paths: []string{"a.go"}}
	g, err := New(Type[binary](), Inputs{
		In(src, Type[sourceSet]()),
		In("release", Type[string]()),
	})
	require.NoError(t, err)

	assert.Equal(t, []reflect.Type{Type[sourceSet](), Type[string]()}, g.InputTypes())
	assert.Equal(t, []any{any(src), any("release")}, g.Inputs())
}

func TestNew_OutputNotAType(t *testing.T) {
	_, err := New(1, Type[string](), "bob")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidGet)
	assert.Contains(t, err.Error(), "the first argument (the output type) must be a type")
	assert.Contains(t, err.Error(), "`1`")
	assert.Contains(t, err.Error(), "type int")
}

func TestNew_ShorthandGivenType(t *testing.T) {
	_, err := New(Type[binary](), Type[sourceSet]())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidGet)
	assert.Contains(t, err.Error(), "shorthand form")
	assert.Contains(t, err.Error(), "longhand form")
	assert.Contains(t, err.Error(), "rather than a type")
	assert.Contains(t, err.Error(), "get.sourceSet")
}

func TestNew_LonghandSecondNotAType(t *testing.T) {
	_, err := New(Type[binary](), 5, sourceSet{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidGet)
	assert.Contains(t, err.Error(), "the second argument must be a type")
	assert.Contains(t, err.Error(), "`5`")
	assert.Contains(t, err.Error(), "of type int")
}

func TestNew_LonghandThirdIsAType(t *testing.T) {
	_, err := New(Type[binary](), Type[sourceSet](), Type[sourceSet]())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidGet)
	assert.Contains(t, err.Error(), "the third argument should be a constructed value")
}

func TestNew_TypeMismatch(t *testing.T) {
	t.Run("concrete declared type must match exactly", func(t *testing.T) {
		_, err := New(Type[binary](), Type[string](), 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidGet)
		assert.Contains(t, err.Error(), "must have the exact same type as the second argument, string")
		assert.Contains(t, err.Error(), "had the type int")
	})

	t.Run("interface declared type defers the check to dispatch", func(t *testing.T) {
		g, err := New(Type[binary](), Type[archiver](), sourceSet{})
		require.NoError(t, err)
		assert.Equal(t, []reflect.Type{Type[archiver]()}, g.InputTypes())
		assert.Equal(t, []any{any(sourceSet{})}, g.Inputs())
	})
}

func TestNew_NilInput(t *testing.T) {
	_, err := New(Type[binary](), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidGet)
	assert.Contains(t, err.Error(), "untyped nil")

	_, err = New(Type[binary](), Type[sourceSet](), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidGet)
}

func TestNew_ArityErrors(t *testing.T) {
	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 0")

	_, err = New(Type[binary](), Type[sourceSet](), sourceSet{}, "extra")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 4")
}

func TestNew_InputsEntryValidation(t *testing.T) {
	t.Run("missing declared type", func(t *testing.T) {
		_, err := New(Type[binary](), Inputs{In("x", nil)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "entry 0 declared no type")
	})

	t.Run("entry holds a type instead of a value", func(t *testing.T) {
		_, err := New(Type[binary](), Inputs{In(Type[string](), Type[string]())})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rather than a type")
	})

	t.Run("entry value mismatches declared type", func(t *testing.T) {
		_, err := New(Type[binary](), Inputs{In(7, Type[string]())})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exact same type")
	})
}

func TestGet_String(t *testing.T) {
	zero, err := New(Type[binary]())
	require.NoError(t, err)
	assert.Equal(t, "Get(get.binary)", zero.String())

	single, err := New(Type[binary](), sourceSet{})
	require.NoError(t, err)
	assert.Equal(t, "Get(get.binary, get.sourceSet, ..)", single.String())

	multi, err := New(Type[binary](), Inputs{
		In(sourceSet{}, Type[sourceSet]()),
		In("release", Type[string]()),
	})
	require.NoError(t, err)
	assert.Equal(t, "Get(get.binary, [get.sourceSet, string], ..)", multi.String())
}

func TestGet_Immutability(t *testing.T) {
	g, err := New(Type[binary](), sourceSet{Paths: []string{"a"}})
	require.NoError(t, err)

	g.InputTypes()[0] = Type[string]()
	g.Inputs()[0] = "clobbered"

	assert.Equal(t, []reflect.Type{Type[sourceSet]()}, g.InputTypes())
	assert.Equal(t, sourceSet{Paths: []string{"a"}}, g.Inputs()[0])
}
