package step

import (
	"context"
	"fmt"
	"reflect"

	"github.com/hupe1980/pipemesh/core"
)

// Typed creates a Step from a strongly typed function. The input is asserted
// at run time; a mismatch yields a *core.CompositionTypeError, which is never
// retried.
func Typed[I, O any](name string, fn func(ctx context.Context, in I) (O, error), optFns ...func(o *Options)) (*Step, error) {
	if fn == nil {
		return nil, &core.ConfigError{Field: "step.fn", Message: "must not be nil"}
	}

	if name == "" {
		name = funcName(fn)
	}

	expected := reflect.TypeFor[I]()

	wrapped := func(ctx context.Context, input any) (any, error) {
		in, ok := input.(I)
		if !ok {
			if input != nil || !nilable(expected) {
				return nil, &core.CompositionTypeError{Step: name, Expected: expected.String(), Got: typeName(input)}
			}
		}
		return fn(ctx, in)
	}

	return New(name, wrapped, optFns...)
}

// MustTyped is like Typed but panics on invalid configuration.
func MustTyped[I, O any](name string, fn func(ctx context.Context, in I) (O, error), optFns ...func(o *Options)) *Step {
	s, err := Typed(name, fn, optFns...)
	if err != nil {
		panic(err)
	}
	return s
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
