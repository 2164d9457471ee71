// Package pipe implements the pipeline composition manager: an ordered
// collection of bricks kept in lockstep with a visual surface.
package pipe

import (
	"log/slog"

	"github.com/brickflow/brickflow/brick"
	"github.com/brickflow/brickflow/metric"
	"github.com/brickflow/brickflow/view"
)

// Propagator is the extension point for content propagation policy. The
// core reports what happened; the surrounding application decides how far
// a re-run reaches.
type Propagator interface {
	// PropagateContent distributes content produced by a viewer to the
	// bricks that should see it
	PropagateContent(p *Pipe, source brick.Brick, content any)

	// RerunAfterSettingChange re-runs the portion of the chain affected by
	// an encoder configuration change
	RerunAfterSettingChange(p *Pipe, source brick.Brick)
}

// Option is a functional option for configuring a Pipe
type Option func(*Pipe)

// WithViewFactory overrides the constructor used for the pipe's lazy view
// surface
func WithViewFactory(f view.Factory) Option {
	return func(p *Pipe) {
		p.makeView = f
	}
}

// WithPropagator installs the content propagation policy
func WithPropagator(pr Propagator) Option {
	return func(p *Pipe) {
		p.propagator = pr
	}
}

// WithLogger sets the structured logger. Without it the pipe is silent.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipe) {
		p.logger = logger
	}
}

// WithMetrics wires composition counters into the given metrics set
func WithMetrics(m *metric.Metrics) Option {
	return func(p *Pipe) {
		p.metrics = m
	}
}

// WithTitle sets the initial title
func WithTitle(title string) Option {
	return func(p *Pipe) {
		p.title = &title
	}
}

// WithDescription sets the initial description
func WithDescription(description string) Option {
	return func(p *Pipe) {
		p.description = &description
	}
}

// Pipe owns an ordered sequence of bricks and mirrors structural changes
// into its view surface. It receives the change events bubbling up from
// contained bricks and hands them to the installed Propagator.
//
// A Pipe is not safe for concurrent use; all mutation is expected on a
// single goroutine, matching the synchronous delegate model.
type Pipe struct {
	bricks      []brick.Brick
	title       *string
	description *string

	view     view.View
	makeView view.Factory

	propagator Propagator
	logger     *slog.Logger
	metrics    *metric.Metrics
}

// New creates an empty pipe
func New(opts ...Option) *Pipe {
	p := &Pipe{
		makeView: func() view.View { return view.NewStack() },
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Bricks returns the ordered brick sequence. The returned slice is a
// snapshot; structural mutation goes through InsertBricks and RemoveBricks.
func (p *Pipe) Bricks() []brick.Brick {
	out := make([]brick.Brick, len(p.bricks))
	copy(out, p.bricks)
	return out
}

// Title returns the optional title, nil when unset
func (p *Pipe) Title() *string {
	return p.title
}

// SetTitle replaces the title; nil clears it
func (p *Pipe) SetTitle(title *string) {
	p.title = title
}

// Description returns the optional description, nil when unset
func (p *Pipe) Description() *string {
	return p.description
}

// SetDescription replaces the description; nil clears it
func (p *Pipe) SetDescription(description *string) {
	p.description = description
}

// View lazily creates the pipe's view surface on first access and populates
// it with the contained bricks' views in order. Subsequent calls return the
// same instance, so headless use never constructs visual objects.
func (p *Pipe) View() view.View {
	if p.view == nil {
		p.view = p.makeView()
		for _, b := range p.bricks {
			p.view.AddSubview(b.View())
		}
	}
	return p.view
}

// AddBricks appends the given bricks to the tail of the pipe
func (p *Pipe) AddBricks(bricks ...brick.Brick) *Pipe {
	return p.InsertBricks(-1, bricks...)
}

// InsertBricks inserts the given bricks, in argument order, starting at
// index. A negative index counts from the end, with -1 meaning append.
// Each inserted brick gets its pipe back-reference set, and when the view
// surface is materialized a corresponding child view is inserted at the
// matching position. A brick already contained in this pipe is skipped, so
// membership stays unique.
func (p *Pipe) InsertBricks(index int, bricks ...brick.Brick) *Pipe {
	if index < 0 {
		index = len(p.bricks) + index + 1
	}
	if index < 0 {
		index = 0
	}
	if index > len(p.bricks) {
		index = len(p.bricks)
	}

	for _, b := range bricks {
		if p.indexOf(b) >= 0 {
			continue
		}

		p.bricks = append(p.bricks, nil)
		copy(p.bricks[index+1:], p.bricks[index:])
		p.bricks[index] = b

		b.SetPipe(p)

		if p.view != nil {
			p.view.InsertSubview(index, b.View())
		}

		p.logger.Debug("brick inserted", "brick", b.Name(), "index", index)
		if p.metrics != nil {
			p.metrics.BrickInserts.WithLabelValues(string(b.Kind())).Inc()
		}

		index++
	}

	return p
}

// RemoveBricks removes the bricks matched by the given selectors. Removal
// is best-effort: selectors that do not resolve to a currently valid index
// are dropped silently. Resolved indexes are applied in descending order so
// earlier removals never shift a still-pending one.
func (p *Pipe) RemoveBricks(selectors ...Selector) *Pipe {
	indexes := p.resolve(selectors)

	for _, i := range indexes {
		b := p.bricks[i]

		b.SetPipe(nil)
		p.bricks = append(p.bricks[:i], p.bricks[i+1:]...)

		if p.view != nil {
			p.view.RemoveSubview(b.View())
		}

		p.logger.Debug("brick removed", "brick", b.Name(), "index", i)
		if p.metrics != nil {
			p.metrics.BrickRemovals.WithLabelValues(string(b.Kind())).Inc()
		}
	}

	return p
}

// RemoveBrick removes the given bricks by reference
func (p *Pipe) RemoveBrick(bricks ...brick.Brick) *Pipe {
	selectors := make([]Selector, len(bricks))
	for i, b := range bricks {
		selectors[i] = Ref(b)
	}
	return p.RemoveBricks(selectors...)
}

// RemoveBrickAt removes the bricks at the given indexes
func (p *Pipe) RemoveBrickAt(indexes ...int) *Pipe {
	selectors := make([]Selector, len(indexes))
	for i, index := range indexes {
		selectors[i] = At(index)
	}
	return p.RemoveBricks(selectors...)
}

// ViewerContentDidChange implements brick.Pipe. A contained viewer produced
// new content; the installed propagator decides where it flows.
func (p *Pipe) ViewerContentDidChange(viewer brick.Brick, content any) {
	p.logger.Debug("viewer content changed", "brick", viewer.Name())
	if p.metrics != nil {
		p.metrics.ViewerContentChanges.Inc()
	}
	if p.propagator != nil {
		p.propagator.PropagateContent(p, viewer, content)
	}
}

// EncoderSettingDidChange implements brick.Pipe. A contained encoder's
// configuration changed; the installed propagator decides the re-run scope.
func (p *Pipe) EncoderSettingDidChange(encoder brick.Brick) {
	p.logger.Debug("encoder setting changed", "brick", encoder.Name())
	if p.metrics != nil {
		p.metrics.EncoderSettingChanges.Inc()
	}
	if p.propagator != nil {
		p.propagator.RerunAfterSettingChange(p, encoder)
	}
}

// indexOf resolves a brick reference to its current index by identity, or
// -1 when the pipe does not contain it.
func (p *Pipe) indexOf(b brick.Brick) int {
	for i, candidate := range p.bricks {
		if candidate == b {
			return i
		}
	}
	return -1
}
