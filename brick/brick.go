// Package brick defines the pipeline unit contract and its factory registry.
package brick

import (
	"math/rand/v2"

	"github.com/brickflow/brickflow/errors"
	"github.com/brickflow/brickflow/setting"
	"github.com/brickflow/brickflow/view"
)

// Kind distinguishes the two roles a brick can play in a pipeline
type Kind string

const (
	// KindViewer marks bricks that present content and can produce new
	// content from user interaction
	KindViewer Kind = "viewer"
	// KindEncoder marks bricks that transform content flowing through the
	// pipeline
	KindEncoder Kind = "encoder"
)

// Pipe is the consumed interface of the container a brick belongs to. The
// composition manager in package pipe implements it; bricks hold it as a
// non-owning back-reference and use it to bubble change events upward.
type Pipe interface {
	// ViewerContentDidChange is invoked when a contained viewer produced
	// new content
	ViewerContentDidChange(viewer Brick, content any)

	// EncoderSettingDidChange is invoked when a contained encoder's
	// configuration changed
	EncoderSettingDidChange(encoder Brick)
}

// Brick is a unit in the pipeline: it owns zero or more settings, belongs to
// at most one pipe, and exposes a visual representation.
type Brick interface {
	// Name returns the factory name this brick was registered under
	Name() string

	// Kind reports whether the brick is a viewer or an encoder
	Kind() Kind

	// Pipe returns the containing pipe, or nil when detached
	Pipe() Pipe

	// SetPipe replaces the back-reference to the containing pipe. The slot
	// holds at most one pipe; passing nil detaches the brick.
	SetPipe(p Pipe)

	// View lazily creates and returns the brick's visual representation
	View() view.View

	// Settings returns the brick's settings in registration order
	Settings() []*setting.Setting

	// Setting returns the named setting, or nil if the brick has none by
	// that name
	Setting(name string) *setting.Setting

	// Serialize produces the brick's persisted form
	Serialize() (Record, error)
}

// Record is the persisted form of a brick
type Record struct {
	Name     string         `json:"name"`
	Settings map[string]any `json:"settings,omitempty"`
}

// Base is the canonical Brick implementation. Concrete bricks embed it or
// the registry builds one directly from a registration's setting specs.
//
// Base acts as the delegate of every setting it owns and bubbles encoder
// setting changes to the containing pipe.
type Base struct {
	name     string
	kind     Kind
	pipe     Pipe
	ordered  []*setting.Setting
	byName   map[string]*setting.Setting
	view     view.View
	makeView view.Factory
}

// BaseOption configures a Base brick at construction
type BaseOption func(*Base)

// WithViewFactory overrides the constructor used for the brick's lazy view
func WithViewFactory(f view.Factory) BaseOption {
	return func(b *Base) {
		b.makeView = f
	}
}

// NewBase creates a brick with the given factory name and kind
func NewBase(name string, kind Kind, opts ...BaseOption) *Base {
	b := &Base{
		name:     name,
		kind:     kind,
		byName:   make(map[string]*setting.Setting),
		makeView: func() view.View { return view.NewStack() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the factory name
func (b *Base) Name() string {
	return b.name
}

// Kind reports the brick's role
func (b *Base) Kind() Kind {
	return b.kind
}

// Pipe returns the containing pipe, or nil
func (b *Base) Pipe() Pipe {
	return b.pipe
}

// SetPipe replaces the pipe back-reference
func (b *Base) SetPipe(p Pipe) {
	b.pipe = p
}

// View lazily creates the brick's view; subsequent calls return the same
// instance.
func (b *Base) View() view.View {
	if b.view == nil {
		b.view = b.makeView()
	}
	return b.view
}

// AddSetting registers a setting with the brick and installs the brick as
// its change delegate. A setting with an already-registered name replaces
// the previous one in the lookup table but keeps registration order.
func (b *Base) AddSetting(s *setting.Setting) *Base {
	s.SetDelegate(b)
	if _, exists := b.byName[s.Name()]; !exists {
		b.ordered = append(b.ordered, s)
	}
	b.byName[s.Name()] = s
	return b
}

// Settings returns the brick's settings in registration order
func (b *Base) Settings() []*setting.Setting {
	out := make([]*setting.Setting, len(b.ordered))
	copy(out, b.ordered)
	return out
}

// Setting returns the named setting, or nil
func (b *Base) Setting(name string) *setting.Setting {
	return b.byName[name]
}

// SettingValueDidChange implements setting.Delegate. Encoder configuration
// changes bubble to the containing pipe so it can re-run the affected part
// of the chain.
func (b *Base) SettingValueDidChange(_ *setting.Setting, _ any) {
	if b.pipe != nil && b.kind == KindEncoder {
		b.pipe.EncoderSettingDidChange(b)
	}
}

// ContentDidChange reports new content produced by a viewer brick to the
// containing pipe. Encoders must not call it.
func (b *Base) ContentDidChange(content any) {
	if b.pipe != nil && b.kind == KindViewer {
		b.pipe.ViewerContentDidChange(b, content)
	}
}

// Randomize randomizes every setting through its regular randomize path
func (b *Base) Randomize(r *rand.Rand) {
	for _, s := range b.ordered {
		s.Randomize(r)
	}
}

// Serialize produces the brick's persisted form. Settings holding values
// the generic engine cannot serialize surface an unsafe-value-type error.
func (b *Base) Serialize() (Record, error) {
	rec := Record{Name: b.name}
	if len(b.ordered) > 0 {
		rec.Settings = make(map[string]any, len(b.ordered))
		for _, s := range b.ordered {
			value, err := s.SerializeValue()
			if err != nil {
				return Record{}, errors.Wrap(err, "Brick", "Serialize", "setting "+s.Name())
			}
			rec.Settings[s.Name()] = value
		}
	}
	return rec, nil
}
