package pipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickflow/brickflow/brick"
	"github.com/brickflow/brickflow/setting"
	"github.com/brickflow/brickflow/view"
)

func newEncoder(name string) *brick.Base {
	b := brick.NewBase(name, brick.KindEncoder)
	b.AddSetting(setting.NewInteger("shift", 3, nil, nil))
	return b
}

func newViewer(name string) *brick.Base {
	return brick.NewBase(name, brick.KindViewer)
}

// requireAligned asserts the order invariant: the view's child list is
// index-aligned with the brick sequence.
func requireAligned(t *testing.T, p *Pipe) {
	t.Helper()
	bricks := p.Bricks()
	subviews := p.View().Subviews()
	require.Len(t, subviews, len(bricks))
	for i, b := range bricks {
		require.Same(t, b.View(), subviews[i], "view child %d out of alignment", i)
	}
}

func TestInsertAppendAndOrder(t *testing.T) {
	p := New()
	b1, b2 := newEncoder("b1"), newEncoder("b2")

	p.InsertBricks(-1, b1, b2)

	bricks := p.Bricks()
	require.Len(t, bricks, 2)
	assert.Same(t, brick.Brick(b1), bricks[0])
	assert.Same(t, brick.Brick(b2), bricks[1])
	assert.Same(t, brick.Pipe(p), b1.Pipe())
	assert.Same(t, brick.Pipe(p), b2.Pipe())
}

func TestInsertAtIndex(t *testing.T) {
	p := New()
	b1, b2, b3 := newEncoder("b1"), newEncoder("b2"), newEncoder("b3")
	p.AddBricks(b1, b2)

	p.InsertBricks(1, b3)

	bricks := p.Bricks()
	assert.Same(t, brick.Brick(b1), bricks[0])
	assert.Same(t, brick.Brick(b3), bricks[1])
	assert.Same(t, brick.Brick(b2), bricks[2])
}

func TestInsertNegativeIndex(t *testing.T) {
	p := New()
	b1, b2, b3 := newEncoder("b1"), newEncoder("b2"), newEncoder("b3")
	p.AddBricks(b1, b2)

	// -2 means "before the last brick"
	p.InsertBricks(-2, b3)

	bricks := p.Bricks()
	assert.Same(t, brick.Brick(b3), bricks[1])
	assert.Same(t, brick.Brick(b2), bricks[2])
}

func TestInsertClampsLargeIndex(t *testing.T) {
	p := New()
	b1, b2 := newEncoder("b1"), newEncoder("b2")
	p.AddBricks(b1)

	p.InsertBricks(99, b2)
	assert.Same(t, brick.Brick(b2), p.Bricks()[1])
}

func TestInsertSkipsDuplicateMembership(t *testing.T) {
	p := New()
	b1 := newEncoder("b1")
	p.AddBricks(b1)
	p.AddBricks(b1)

	assert.Len(t, p.Bricks(), 1)
}

func TestRemoveByReferenceClearsBackReference(t *testing.T) {
	p := New()
	b1, b2 := newEncoder("b1"), newEncoder("b2")
	p.AddBricks(b1, b2)

	p.RemoveBrick(b1)

	bricks := p.Bricks()
	require.Len(t, bricks, 1)
	assert.Same(t, brick.Brick(b2), bricks[0])
	assert.Nil(t, b1.Pipe())
	assert.Same(t, brick.Pipe(p), b2.Pipe())
}

func TestRemoveBestEffort(t *testing.T) {
	p := New()
	b1, b2, b3 := newEncoder("b1"), newEncoder("b2"), newEncoder("b3")
	p.AddBricks(b1, b2, b3)

	stranger := newEncoder("stranger")

	// Out-of-range index, valid reference, negative index, unknown
	// reference: only the valid reference resolves.
	p.RemoveBricks(At(99999), Ref(b2), At(-1), Ref(stranger))

	bricks := p.Bricks()
	require.Len(t, bricks, 2)
	assert.Same(t, brick.Brick(b1), bricks[0])
	assert.Same(t, brick.Brick(b3), bricks[1])
	assert.Nil(t, b2.Pipe())
}

func TestRemoveMultipleDescendingOrder(t *testing.T) {
	p := New()
	b1, b2, b3, b4 := newEncoder("b1"), newEncoder("b2"), newEncoder("b3"), newEncoder("b4")
	p.AddBricks(b1, b2, b3, b4)

	// Ascending argument order must still remove exactly these three
	p.RemoveBricks(At(0), At(2), At(3))

	bricks := p.Bricks()
	require.Len(t, bricks, 1)
	assert.Same(t, brick.Brick(b2), bricks[0])
}

func TestRemoveDuplicateSelectorsResolveOnce(t *testing.T) {
	p := New()
	b1, b2 := newEncoder("b1"), newEncoder("b2")
	p.AddBricks(b1, b2)

	p.RemoveBricks(At(0), Ref(b1), At(0))

	bricks := p.Bricks()
	require.Len(t, bricks, 1)
	assert.Same(t, brick.Brick(b2), bricks[0])
}

func TestViewLazyAndMemoized(t *testing.T) {
	created := 0
	p := New(WithViewFactory(func() view.View {
		created++
		return view.NewStack()
	}))
	p.AddBricks(newEncoder("b1"))

	assert.Equal(t, 0, created, "headless use must not construct views")

	v := p.View()
	assert.Equal(t, 1, created)
	assert.Same(t, v, p.View())
	assert.Equal(t, 1, created)
	requireAligned(t, p)
}

func TestOrderInvariantAcrossMutations(t *testing.T) {
	p := New()
	b1, b2, b3 := newEncoder("b1"), newEncoder("b2"), newEncoder("b3")

	p.AddBricks(b1)
	requireAligned(t, p)

	p.InsertBricks(0, b2)
	requireAligned(t, p)

	p.InsertBricks(1, b3)
	requireAligned(t, p)

	p.RemoveBrick(b1)
	requireAligned(t, p)

	p.RemoveBrickAt(0)
	requireAligned(t, p)

	p.AddBricks(b1)
	requireAligned(t, p)
}

func TestTitleDescriptionAccessors(t *testing.T) {
	p := New(WithTitle("demo"))
	require.NotNil(t, p.Title())
	assert.Equal(t, "demo", *p.Title())
	assert.Nil(t, p.Description())

	d := "a pipeline"
	p.SetDescription(&d)
	assert.Equal(t, "a pipeline", *p.Description())

	p.SetTitle(nil)
	assert.Nil(t, p.Title())
}

// recordingPropagator captures propagation requests for assertions
type recordingPropagator struct {
	contents []any
	reruns   []brick.Brick
}

func (r *recordingPropagator) PropagateContent(_ *Pipe, _ brick.Brick, content any) {
	r.contents = append(r.contents, content)
}

func (r *recordingPropagator) RerunAfterSettingChange(_ *Pipe, source brick.Brick) {
	r.reruns = append(r.reruns, source)
}

func TestEncoderSettingChangeReachesPropagator(t *testing.T) {
	prop := &recordingPropagator{}
	p := New(WithPropagator(prop))
	enc := newEncoder("caesar")
	p.AddBricks(enc)

	enc.Setting("shift").SetValue(9, nil)

	require.Len(t, prop.reruns, 1)
	assert.Same(t, brick.Brick(enc), prop.reruns[0])
}

func TestViewerContentChangeReachesPropagator(t *testing.T) {
	prop := &recordingPropagator{}
	p := New(WithPropagator(prop))
	v := newViewer("text")
	p.AddBricks(v)

	v.ContentDidChange("hello")

	require.Len(t, prop.contents, 1)
	assert.Equal(t, "hello", prop.contents[0])
}

func TestCallbacksWithoutPropagatorAreSafe(t *testing.T) {
	p := New()
	enc := newEncoder("caesar")
	p.AddBricks(enc)

	// No propagator installed; bubbling must be a no-op, not a panic
	enc.Setting("shift").SetValue(4, nil)
}

func TestRemovedBrickStopsBubbling(t *testing.T) {
	prop := &recordingPropagator{}
	p := New(WithPropagator(prop))
	enc := newEncoder("caesar")
	p.AddBricks(enc)
	p.RemoveBrick(enc)

	enc.Setting("shift").SetValue(11, nil)
	assert.Empty(t, prop.reruns)
}
