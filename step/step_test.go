package step

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/pipemesh/core"
	"github.com/hupe1980/pipemesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addOne(_ context.Context, in any) (any, error) { return in.(int) + 1, nil }

func double(_ context.Context, in any) (any, error) { return in.(int) * 2, nil }

func TestNewDerivesName(t *testing.T) {
	s, err := New("", addOne)
	require.NoError(t, err)
	assert.Equal(t, "addOne", s.Name())
	assert.Equal(t, 1, s.Retry().Attempts())
	assert.Zero(t, s.Timeout())
}

func TestNewValidation(t *testing.T) {
	_, err := New("nil", nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	_, err = New("neg", addOne, WithTimeout(-1))
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	_, err = New("retry", addOne, WithRetry(core.RetryConfig{MaxAttempts: -2}))
	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "retry.max_attempts", cfgErr.Field)

	assert.Panics(t, func() { MustNew("nil", nil) })
}

func TestCallBypassesPolicy(t *testing.T) {
	c := &testutil.Counter{}
	s := MustNew("flaky", testutil.FailNTimes(1, "ok", c), WithRetry(core.Retry3x))

	_, err := s.Call(context.Background(), nil)
	assert.Same(t, testutil.ErrFlaky, err)
	assert.Equal(t, 1, c.Calls())

	out, err := s.Call(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestWithKeepsOriginal(t *testing.T) {
	s := MustNew("a", addOne)
	s2, err := s.With(WithRetry(core.Retry5x))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Retry().Attempts())
	assert.Equal(t, 5, s2.Retry().Attempts())
	assert.Equal(t, "a", s2.Name())
}

func TestTypedStep(t *testing.T) {
	s := MustTyped("inc", func(_ context.Context, in int) (int, error) { return in + 1, nil })

	out, err := s.Call(context.Background(), 41)
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	_, err = s.Call(context.Background(), "41")
	var typeErr *core.CompositionTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "int", typeErr.Expected)
	assert.Equal(t, "string", typeErr.Got)
}

func TestTypedNilInput(t *testing.T) {
	type payload struct{ N int }
	s := MustTyped("ptr", func(_ context.Context, in *payload) (bool, error) { return in == nil, nil })
	out, err := s.Call(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, true, out)

	v := MustTyped("val", func(_ context.Context, in int) (int, error) { return in, nil })
	_, err = v.Call(context.Background(), nil)
	assert.True(t, errors.Is(err, core.ErrCompositionType))
}
