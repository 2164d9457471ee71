package setting

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickflow/brickflow/errors"
)

// recordingDelegate captures change notifications for assertions
type recordingDelegate struct {
	calls  int
	last   any
	lastBy *Setting
}

func (d *recordingDelegate) SettingValueDidChange(s *Setting, value any) {
	d.calls++
	d.last = value
	d.lastBy = s
}

func TestSetValueValidationGate(t *testing.T) {
	s := New("shift",
		WithValidate(func(_ *Setting, raw any) bool {
			_, ok := raw.(int)
			return ok
		}),
	)

	s.SetValue("abc", nil)
	assert.False(t, s.IsValid())
	assert.Equal(t, "abc", s.Value(), "invalid raw input must stay visible")

	s.SetValue(5, nil)
	assert.True(t, s.IsValid())
	assert.Equal(t, 5, s.Value())
}

func TestSetValueInvalidDoesNotNotify(t *testing.T) {
	delegate := &recordingDelegate{}
	s := New("shift",
		WithValidate(func(_ *Setting, raw any) bool {
			_, ok := raw.(int)
			return ok
		}),
		WithDelegate(delegate),
	)

	s.SetValue("nope", nil)
	assert.Equal(t, 0, delegate.calls)
}

func TestSetValueIdempotentNotification(t *testing.T) {
	delegate := &recordingDelegate{}
	s := New("mode", WithDelegate(delegate))

	s.SetValue("block", nil)
	s.SetValue("block", nil)

	assert.Equal(t, 1, delegate.calls, "same filtered value must notify at most once")
	assert.Equal(t, "block", delegate.last)
	assert.Same(t, s, delegate.lastBy)
}

func TestSetValueFilterDedup(t *testing.T) {
	delegate := &recordingDelegate{}
	s := New("name",
		WithFilter(func(_ *Setting, raw any) any {
			return raw.(string) + "!"
		}),
		WithDelegate(delegate),
	)

	s.SetValue("a", nil)
	require.Equal(t, "a!", s.Value())
	assert.Equal(t, 1, delegate.calls)

	// Different raw value, identical filtered result: suppressed
	s.SetValue("a", nil)
	assert.Equal(t, 1, delegate.calls)
}

func TestSetValueSenderSuppression(t *testing.T) {
	delegate := &recordingDelegate{}
	s := New("mode", WithDelegate(delegate))

	s.SetValue("ecb", delegate)
	assert.Equal(t, 0, delegate.calls, "delegate acting as sender must not be notified")
	assert.Equal(t, "ecb", s.Value())

	other := &recordingDelegate{}
	s.SetValue("cbc", other)
	assert.Equal(t, 1, delegate.calls, "a different sender does not suppress")
}

func TestRevalidate(t *testing.T) {
	allowEven := true
	delegate := &recordingDelegate{}
	s := New("count",
		WithValidate(func(_ *Setting, raw any) bool {
			n, ok := raw.(int)
			return ok && (allowEven || n%2 == 1)
		}),
		WithDelegate(delegate),
	)

	s.SetValue(4, nil)
	require.True(t, s.IsValid())
	require.Equal(t, 1, delegate.calls)

	// External state change invalidates the stored value
	allowEven = false
	s.Revalidate()
	assert.False(t, s.IsValid())
	assert.Equal(t, 4, s.Value())
	assert.Equal(t, 1, delegate.calls, "revalidation failure must not notify")

	// Revalidating an unchanged valid value is silent
	allowEven = true
	s.Revalidate()
	assert.True(t, s.IsValid())
	assert.Equal(t, 1, delegate.calls)
}

func TestRandomizeGoesThroughSetValue(t *testing.T) {
	delegate := &recordingDelegate{}
	s := New("coin",
		WithValidate(func(_ *Setting, raw any) bool {
			_, ok := raw.(bool)
			return ok
		}),
		WithRandomize(func(_ *Setting, r *rand.Rand) any {
			return r.IntN(2) == 1
		}),
		WithDefault(false),
		WithDelegate(delegate),
	)

	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 64 && !s.Value().(bool); i++ {
		s.Randomize(r)
	}

	require.True(t, s.IsValid())
	assert.Equal(t, true, s.Value())
	assert.Equal(t, 1, delegate.calls, "only the actual flip notifies")
}

func TestRandomizeWithoutHookIsNoOp(t *testing.T) {
	s := New("static", WithDefault("x"))
	s.Randomize(nil)
	assert.Equal(t, "x", s.Value())
}

func TestSerializeValue(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		wantErr bool
	}{
		{"bool", true, false},
		{"string", "text", false},
		{"int", 42, false},
		{"float", 3.14, false},
		{"slice is unsafe", []byte{1, 2}, true},
		{"map is unsafe", map[string]any{"k": 1}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := New("v", WithDefault(test.value))
			got, err := s.SerializeValue()
			if test.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				assert.ErrorIs(t, err, errors.ErrUnsafeValueType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.value, got)
		})
	}
}

func TestExtractValueRevalidates(t *testing.T) {
	s := New("port",
		WithValidate(func(_ *Setting, raw any) bool {
			n, ok := raw.(int)
			return ok && n > 0
		}),
	)

	s.ExtractValue(-1)
	assert.False(t, s.IsValid(), "persisted data is re-validated, not trusted")
	assert.Equal(t, -1, s.Value())

	s.ExtractValue(8080)
	assert.True(t, s.IsValid())
	assert.Equal(t, 8080, s.Value())
}

func TestSetDelegateReplacesSlot(t *testing.T) {
	first := &recordingDelegate{}
	second := &recordingDelegate{}
	s := New("mode", WithDelegate(first))

	s.SetDelegate(second)
	s.SetValue("x", nil)

	assert.Equal(t, 0, first.calls)
	assert.Equal(t, 1, second.calls)

	s.SetDelegate(nil)
	s.SetValue("y", nil)
	assert.Equal(t, 1, second.calls)
}

func TestDefaultRunsThroughSetValue(t *testing.T) {
	s := New("bounded",
		WithValidate(func(_ *Setting, raw any) bool {
			n, ok := raw.(int)
			return ok && n <= 10
		}),
		WithDefault(99),
	)

	assert.False(t, s.IsValid(), "defaults are validated like any other value")
	assert.Equal(t, 99, s.Value())
}
