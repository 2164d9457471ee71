package brick

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickflow/brickflow/errors"
	"github.com/brickflow/brickflow/setting"
	"github.com/brickflow/brickflow/view"
)

// stubPipe records the callbacks bubbled up from contained bricks
type stubPipe struct {
	settingChanges []Brick
	contentChanges []any
	contentSources []Brick
}

func (p *stubPipe) ViewerContentDidChange(viewer Brick, content any) {
	p.contentSources = append(p.contentSources, viewer)
	p.contentChanges = append(p.contentChanges, content)
}

func (p *stubPipe) EncoderSettingDidChange(encoder Brick) {
	p.settingChanges = append(p.settingChanges, encoder)
}

func TestBaseSettingLookup(t *testing.T) {
	b := NewBase("caesar", KindEncoder)
	shift := setting.NewInteger("shift", 3, nil, nil)
	b.AddSetting(shift)

	assert.Same(t, shift, b.Setting("shift"))
	assert.Nil(t, b.Setting("missing"))
	require.Len(t, b.Settings(), 1)
}

func TestBaseBubblesEncoderSettingChange(t *testing.T) {
	p := &stubPipe{}
	b := NewBase("caesar", KindEncoder)
	b.SetPipe(p)
	b.AddSetting(setting.NewInteger("shift", 3, nil, nil))

	b.Setting("shift").SetValue(7, nil)

	require.Len(t, p.settingChanges, 1)
	assert.Same(t, Brick(b), p.settingChanges[0])
}

func TestBaseDetachedBrickDoesNotBubble(t *testing.T) {
	b := NewBase("caesar", KindEncoder)
	b.AddSetting(setting.NewInteger("shift", 3, nil, nil))

	// No pipe attached; must not panic and must not notify anyone
	b.Setting("shift").SetValue(9, nil)
	assert.Equal(t, 9, b.Setting("shift").Value())
}

func TestViewerSettingChangeDoesNotBubbleAsEncoderChange(t *testing.T) {
	p := &stubPipe{}
	b := NewBase("text", KindViewer)
	b.SetPipe(p)
	b.AddSetting(setting.NewText("content", "", nil, nil))

	b.Setting("content").SetValue("hello", nil)
	assert.Empty(t, p.settingChanges)
}

func TestViewerContentDidChange(t *testing.T) {
	p := &stubPipe{}
	b := NewBase("text", KindViewer)
	b.SetPipe(p)

	b.ContentDidChange("hello")

	require.Len(t, p.contentChanges, 1)
	assert.Equal(t, "hello", p.contentChanges[0])
	assert.Same(t, Brick(b), p.contentSources[0])
}

func TestEncoderContentDidChangeIsIgnored(t *testing.T) {
	p := &stubPipe{}
	b := NewBase("caesar", KindEncoder)
	b.SetPipe(p)

	b.ContentDidChange("hello")
	assert.Empty(t, p.contentChanges)
}

func TestBaseViewIsLazyAndMemoized(t *testing.T) {
	created := 0
	b := NewBase("text", KindViewer, WithViewFactory(func() view.View {
		created++
		return view.NewStack()
	}))

	assert.Equal(t, 0, created, "view must not exist before first access")

	v := b.View()
	assert.Equal(t, 1, created)
	assert.Same(t, v, b.View(), "subsequent calls return the same instance")
	assert.Equal(t, 1, created)
}

func TestBaseSerialize(t *testing.T) {
	b := NewBase("caesar", KindEncoder)
	b.AddSetting(setting.NewInteger("shift", 3, nil, nil))
	b.AddSetting(setting.NewBoolean("preserveCase", true))

	rec, err := b.Serialize()
	require.NoError(t, err)
	assert.Equal(t, "caesar", rec.Name)
	assert.Equal(t, map[string]any{"shift": 3, "preserveCase": true}, rec.Settings)
}

func TestBaseSerializeUnsafeSetting(t *testing.T) {
	b := NewBase("matrix", KindEncoder)
	b.AddSetting(setting.New("grid", setting.WithDefault([][]int{{1}})))

	_, err := b.Serialize()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnsafeValueType)
}

func TestSetPipeReplacesSlot(t *testing.T) {
	first := &stubPipe{}
	second := &stubPipe{}
	b := NewBase("caesar", KindEncoder)
	b.AddSetting(setting.NewInteger("shift", 1, nil, nil))

	b.SetPipe(first)
	b.SetPipe(second)
	b.Setting("shift").SetValue(2, nil)

	assert.Empty(t, first.settingChanges)
	assert.Len(t, second.settingChanges, 1)

	b.SetPipe(nil)
	assert.Nil(t, b.Pipe())
}
