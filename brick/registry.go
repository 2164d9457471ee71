package brick

import (
	"fmt"
	"sort"
	"sync"

	"github.com/brickflow/brickflow/errors"
	"github.com/brickflow/brickflow/setting"
)

// Factory creates a fresh brick instance. Factories must not perform I/O;
// settings are applied afterwards through the extraction path.
type Factory func() (Brick, error)

// Registration holds factory and metadata for a brick type
type Registration struct {
	Name        string                  `json:"name"`
	Kind        Kind                    `json:"kind"`
	Description string                  `json:"description,omitempty"`
	Version     string                  `json:"version,omitempty"`
	Settings    map[string]setting.Spec `json:"settings,omitempty"` // static setting metadata
	Factory     Factory                 `json:"-"`                  // not serializable
}

// Registry manages brick factories. It provides thread-safe registration
// and lookup, and reconstructs bricks from their persisted records.
type Registry struct {
	factories map[string]*Registration
	mu        sync.RWMutex
}

// NewRegistry creates an empty brick registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]*Registration),
	}
}

// RegisterFactory registers a brick factory under the registration's name.
// A registration without an explicit Factory gets the default one, which
// builds a Base brick from the registration's setting specs. Duplicate
// names are rejected.
func (r *Registry) RegisterFactory(registration *Registration) error {
	if registration == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "registration validation")
	}
	if registration.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "factory name validation")
	}
	if registration.Kind != KindViewer && registration.Kind != KindEncoder {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "brick kind validation")
	}
	if registration.Factory == nil {
		registration.Factory = specFactory(registration)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[registration.Name]; exists {
		msg := fmt.Errorf("%w: %q", errors.ErrDuplicateFactory, registration.Name)
		return errors.WrapInvalid(msg, "Registry", "RegisterFactory", "duplicate factory check")
	}

	r.factories[registration.Name] = registration
	return nil
}

// New creates a fresh brick instance using the named factory
func (r *Registry) New(name string) (Brick, error) {
	r.mu.RLock()
	registration, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		msg := fmt.Errorf("%w: %q", errors.ErrFactoryNotFound, name)
		return nil, errors.WrapInvalid(msg, "Registry", "New", "factory lookup")
	}

	b, err := registration.Factory()
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "New", "factory execution")
	}
	return b, nil
}

// Extract reconstructs a brick from its persisted record. Setting values
// are applied through the regular extraction path, so they are re-validated
// rather than trusted. Setting names the brick does not know are dropped
// silently, keeping old records loadable after a brick loses a parameter.
func (r *Registry) Extract(record Record) (Brick, error) {
	b, err := r.New(record.Name)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "Extract", "brick reconstruction")
	}

	for name, value := range record.Settings {
		if s := b.Setting(name); s != nil {
			s.ExtractValue(value)
		}
	}

	return b, nil
}

// Registrations returns a snapshot of all registered factories, sorted by
// name. Used by discovery surfaces to list the available brick palette.
func (r *Registry) Registrations() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registration, 0, len(r.factories))
	for _, reg := range r.factories {
		out = append(out, *reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// specFactory builds the default factory for a registration: a Base brick
// carrying one setting per declared spec, in sorted name order so instances
// are deterministic.
func specFactory(registration *Registration) Factory {
	name := registration.Name
	kind := registration.Kind
	specs := registration.Settings

	return func() (Brick, error) {
		b := NewBase(name, kind)

		names := make([]string, 0, len(specs))
		for settingName := range specs {
			names = append(names, settingName)
		}
		sort.Strings(names)

		for _, settingName := range names {
			s, err := setting.FromSpec(settingName, specs[settingName])
			if err != nil {
				return nil, errors.Wrap(err, "Registry", "New", "setting construction")
			}
			b.AddSetting(s)
		}
		return b, nil
	}
}
