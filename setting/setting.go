// Package setting implements the generic value container used by every
// configurable brick parameter.
package setting

import (
	"math/rand/v2"
	"reflect"
	"time"

	"github.com/brickflow/brickflow/errors"
)

// Delegate receives change notifications from a Setting. A Setting holds at
// most one delegate, as a non-owning reference.
type Delegate interface {
	// SettingValueDidChange is invoked after a valid, filtered value has
	// replaced the previously stored one.
	SettingValueDidChange(s *Setting, value any)
}

// ValidateFunc reports whether a raw value is acceptable for the setting.
type ValidateFunc func(s *Setting, raw any) bool

// FilterFunc normalizes a validated raw value before it is stored.
type FilterFunc func(s *Setting, raw any) any

// RandomizeFunc produces a candidate value from the given random source.
type RandomizeFunc func(s *Setting, r *rand.Rand) any

// Option is a functional option for configuring a Setting
type Option func(*Setting)

// WithDefault sets the initial value. The value is applied through SetValue
// during construction, so validation and filtering rules apply to defaults.
func WithDefault(value any) Option {
	return func(s *Setting) {
		s.initial = value
		s.hasInitial = true
	}
}

// WithValidate sets the validation hook
func WithValidate(fn ValidateFunc) Option {
	return func(s *Setting) {
		s.validate = fn
	}
}

// WithFilter sets the filter hook
func WithFilter(fn FilterFunc) Option {
	return func(s *Setting) {
		s.filter = fn
	}
}

// WithRandomize sets the randomize hook
func WithRandomize(fn RandomizeFunc) Option {
	return func(s *Setting) {
		s.randomize = fn
	}
}

// WithDelegate sets the change delegate
func WithDelegate(d Delegate) Option {
	return func(s *Setting) {
		s.delegate = d
	}
}

// Setting is a named, typed value holder with validate, filter, dedup and
// notify semantics. All behavior hooks are optional; without them any value
// is accepted verbatim.
//
// A Setting is not safe for concurrent use. Mutation is expected to happen
// on a single goroutine, with delegate callbacks invoked synchronously and
// re-entrantly from SetValue.
type Setting struct {
	name     string
	value    any
	valid    bool
	delegate Delegate

	validate  ValidateFunc
	filter    FilterFunc
	randomize RandomizeFunc

	initial    any
	hasInitial bool
}

// New creates a setting with the given immutable name. A default value
// supplied via WithDefault runs through the full SetValue path so the
// setting starts in a consistent validated state.
func New(name string, opts ...Option) *Setting {
	s := &Setting{
		name:  name,
		valid: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hasInitial {
		s.SetValue(s.initial, nil)
	}
	return s
}

// Name returns the immutable identifier of the setting
func (s *Setting) Name() string {
	return s.name
}

// Value returns the currently stored value. If the setting is invalid this
// is the rejected raw input, kept so a UI can display what was entered.
func (s *Setting) Value() any {
	return s.value
}

// IsValid reports whether the last-set raw value passed validation
func (s *Setting) IsValid() bool {
	return s.valid
}

// Delegate returns the current change delegate, if any
func (s *Setting) Delegate() Delegate {
	return s.delegate
}

// SetDelegate replaces the change delegate. The slot holds at most one
// delegate; passing nil clears it.
func (s *Setting) SetDelegate(d Delegate) {
	s.delegate = d
}

// SetValue applies a raw value through the validate, filter, dedup, notify
// sequence:
//
//  1. Invalid raw values are stored as-is with the valid flag cleared and
//     nobody is notified.
//  2. Valid values are filtered, then compared to the stored value; an
//     unchanged result is suppressed (at most one notification per change).
//  3. On change the delegate is notified, unless the delegate is the sender.
//
// The sender parameter exists to prevent feedback loops when the delegate
// itself is the origin of the change; pass nil when there is no originator.
func (s *Setting) SetValue(raw any, sender any) {
	s.valid = s.validate == nil || s.validate(s, raw)
	if !s.valid {
		s.value = raw
		return
	}

	filtered := raw
	if s.filter != nil {
		filtered = s.filter(s, raw)
	}

	if valuesEqual(filtered, s.value) {
		return
	}

	s.value = filtered

	if s.delegate != nil && any(s.delegate) != sender {
		s.delegate.SettingValueDidChange(s, filtered)
	}
}

// Revalidate re-applies the current value through SetValue with no sender.
// Used after external state changes that may invalidate a previously valid
// value, e.g. when a dependent setting changed.
func (s *Setting) Revalidate() {
	s.SetValue(s.value, nil)
}

// Randomize computes a candidate value via the randomize hook and applies it
// through the regular SetValue path, so validation, filtering and
// notification rules hold for randomized values too. Without a hook the call
// is a no-op. A nil random source falls back to a time-seeded one.
func (s *Setting) Randomize(r *rand.Rand) {
	if s.randomize == nil {
		return
	}
	if r == nil {
		r = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	s.SetValue(s.randomize(s, r), nil)
}

// SerializeValue returns the current value for persistence. The generic
// engine guarantees only primitive-safe serialization: booleans, numbers and
// strings. Settings holding richer value types must provide their own
// serialization on top.
func (s *Setting) SerializeValue() (any, error) {
	switch s.value.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return s.value, nil
	default:
		return nil, errors.WrapInvalid(errors.ErrUnsafeValueType,
			"Setting", "SerializeValue", "serialize "+s.name)
	}
}

// ExtractValue applies persisted data through SetValue, so deserialized
// values are re-validated rather than trusted blindly. A value that fails
// validation leaves the setting in the queryable invalid state.
func (s *Setting) ExtractValue(data any) {
	s.SetValue(data, nil)
}

// valuesEqual is the dedup comparison used by SetValue. Filtered values are
// expected to be equality-stable, so deep equality doubles as strict
// equality for the primitive types the generic engine stores.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
