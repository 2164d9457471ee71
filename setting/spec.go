package setting

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/brickflow/brickflow/errors"
)

// Spec describes a single configurable property. It is the declarative
// counterpart of the typed constructors: brick authors describe their
// parameters as data and FromSpec builds the matching Setting.
type Spec struct {
	Type        string   `json:"type"` // "bool", "int", "float", "string", "enum"
	Description string   `json:"description,omitempty"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`      // valid values for enum type
	Minimum     *int     `json:"minimum,omitempty"`   // numeric lower bound
	Maximum     *int     `json:"maximum,omitempty"`   // numeric upper bound
	MinLength   *int     `json:"minLength,omitempty"` // string length bounds
	MaxLength   *int     `json:"maxLength,omitempty"`
}

// FromSpec builds a Setting for the given property spec. Unknown types are
// rejected with an invalid-configuration error.
func FromSpec(name string, spec Spec) (*Setting, error) {
	switch spec.Type {
	case "bool":
		def, _ := spec.Default.(bool)
		return NewBoolean(name, def), nil
	case "int":
		def := 0
		if d, ok := asInteger(spec.Default); ok {
			def = d
		}
		return NewInteger(name, def, spec.Minimum, spec.Maximum), nil
	case "float":
		def := 0.0
		if d, ok := asFloat(spec.Default); ok {
			def = d
		}
		return NewFloat(name, def, spec.Minimum, spec.Maximum), nil
	case "enum":
		if len(spec.Enum) == 0 {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
				"Setting", "FromSpec", fmt.Sprintf("enum setting %q needs values", name))
		}
		def, ok := spec.Default.(string)
		if !ok {
			def = spec.Enum[0]
		}
		return NewEnum(name, spec.Enum, def), nil
	case "string":
		def, _ := spec.Default.(string)
		return NewText(name, def, spec.MinLength, spec.MaxLength), nil
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Setting", "FromSpec", fmt.Sprintf("unknown setting type %q", spec.Type))
	}
}

// NewBoolean creates a boolean setting. Randomization is a coin flip.
func NewBoolean(name string, def bool) *Setting {
	return New(name,
		WithValidate(func(_ *Setting, raw any) bool {
			_, ok := raw.(bool)
			return ok
		}),
		WithRandomize(func(_ *Setting, r *rand.Rand) any {
			return r.IntN(2) == 1
		}),
		WithDefault(def),
	)
}

// NewInteger creates an integer setting with optional inclusive bounds.
// JSON numbers arrive as float64, so integral floats are accepted and
// normalized to int by the filter. Randomization draws uniformly from the
// bounded range; an unbounded setting keeps its current value.
func NewInteger(name string, def int, minimum, maximum *int) *Setting {
	return New(name,
		WithValidate(func(_ *Setting, raw any) bool {
			v, ok := asInteger(raw)
			if !ok {
				return false
			}
			return inBounds(float64(v), minimum, maximum)
		}),
		WithFilter(func(_ *Setting, raw any) any {
			v, _ := asInteger(raw)
			return v
		}),
		WithRandomize(func(s *Setting, r *rand.Rand) any {
			if minimum == nil || maximum == nil || *maximum < *minimum {
				return s.Value()
			}
			return *minimum + r.IntN(*maximum-*minimum+1)
		}),
		WithDefault(def),
	)
}

// NewFloat creates a floating point setting with optional inclusive bounds
func NewFloat(name string, def float64, minimum, maximum *int) *Setting {
	return New(name,
		WithValidate(func(_ *Setting, raw any) bool {
			v, ok := asFloat(raw)
			if !ok {
				return false
			}
			return inBounds(v, minimum, maximum)
		}),
		WithFilter(func(_ *Setting, raw any) any {
			v, _ := asFloat(raw)
			return v
		}),
		WithRandomize(func(s *Setting, r *rand.Rand) any {
			if minimum == nil || maximum == nil || *maximum < *minimum {
				return s.Value()
			}
			return float64(*minimum) + r.Float64()*float64(*maximum-*minimum)
		}),
		WithDefault(def),
	)
}

// NewEnum creates a setting restricted to a fixed list of string values.
// Randomization picks one of the allowed values.
func NewEnum(name string, values []string, def string) *Setting {
	allowed := make([]string, len(values))
	copy(allowed, values)

	return New(name,
		WithValidate(func(_ *Setting, raw any) bool {
			v, ok := raw.(string)
			if !ok {
				return false
			}
			for _, a := range allowed {
				if v == a {
					return true
				}
			}
			return false
		}),
		WithRandomize(func(_ *Setting, r *rand.Rand) any {
			return allowed[r.IntN(len(allowed))]
		}),
		WithDefault(def),
	)
}

// NewText creates a string setting with optional length bounds
func NewText(name string, def string, minLength, maxLength *int) *Setting {
	return New(name,
		WithValidate(func(_ *Setting, raw any) bool {
			v, ok := raw.(string)
			if !ok {
				return false
			}
			n := len([]rune(v))
			if minLength != nil && n < *minLength {
				return false
			}
			if maxLength != nil && n > *maxLength {
				return false
			}
			return true
		}),
		WithDefault(def),
	)
}

// asInteger coerces the numeric types JSON decoding and Go callers produce
// into an int, rejecting non-integral floats.
func asInteger(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case float32:
		return asIntegralFloat(float64(v))
	case float64:
		return asIntegralFloat(v)
	default:
		return 0, false
	}
}

func asIntegralFloat(v float64) (int, bool) {
	if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return int(v), true
}

// asFloat coerces any numeric value into a float64
func asFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func inBounds(v float64, minimum, maximum *int) bool {
	if minimum != nil && v < float64(*minimum) {
		return false
	}
	if maximum != nil && v > float64(*maximum) {
		return false
	}
	return true
}
