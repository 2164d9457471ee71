// Package view defines the visual surface contract the composition core
// mediates. The core never renders anything itself; it only keeps a surface's
// child list aligned with the brick order.
package view

// View is the minimal contract for a visual node. Concrete surfaces are
// supplied by the host application; Stack is the in-memory implementation
// used for headless operation and tests.
type View interface {
	// AddSubview appends a child view
	AddSubview(child View)

	// InsertSubview inserts a child at the given position. Positions outside
	// the current child range are clamped.
	InsertSubview(index int, child View)

	// RemoveSubview removes a child by identity. Unknown children are
	// ignored.
	RemoveSubview(child View)

	// Subviews returns the ordered child list
	Subviews() []View
}

// Factory constructs a fresh surface. The composition core calls it at most
// once per owner, on first access.
type Factory func() View

// Stack is a plain ordered container view with no rendering behavior
type Stack struct {
	children []View
}

// NewStack creates an empty stack surface
func NewStack() *Stack {
	return &Stack{}
}

// AddSubview appends a child view
func (s *Stack) AddSubview(child View) {
	s.children = append(s.children, child)
}

// InsertSubview inserts a child at the given position
func (s *Stack) InsertSubview(index int, child View) {
	if index < 0 {
		index = 0
	}
	if index > len(s.children) {
		index = len(s.children)
	}
	s.children = append(s.children, nil)
	copy(s.children[index+1:], s.children[index:])
	s.children[index] = child
}

// RemoveSubview removes a child by identity
func (s *Stack) RemoveSubview(child View) {
	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}

// Subviews returns the ordered child list
func (s *Stack) Subviews() []View {
	out := make([]View, len(s.children))
	copy(out, s.children)
	return out
}
