package drawer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickflow/brickflow/pipe"
	"github.com/brickflow/brickflow/testutil"
)

func TestDrawerRendersChain(t *testing.T) {
	p, _, err := testutil.TestPipe("drawn")
	require.NoError(t, err)

	d := New()
	require.NoError(t, d.AddPipe(p))

	var buf bytes.Buffer
	require.NoError(t, d.Render(&buf))
	out := buf.String()

	assert.Contains(t, out, "strict digraph")
	for i, b := range p.Bricks() {
		assert.Contains(t, out, vertexName(i, b))
	}
	assert.Contains(t, out, "->")
	assert.Contains(t, out, `shape="box"`)
}

func TestDrawerEmptyPipe(t *testing.T) {
	d := New()
	require.NoError(t, d.AddPipe(pipe.New()))

	var buf bytes.Buffer
	require.NoError(t, d.Render(&buf))
	assert.Contains(t, buf.String(), "strict digraph")
	assert.NotContains(t, buf.String(), "->")
}

func TestDrawerDuplicateBrickNames(t *testing.T) {
	registry, err := testutil.TestRegistry()
	require.NoError(t, err)

	a, err := registry.New("caesar")
	require.NoError(t, err)
	b, err := registry.New("caesar")
	require.NoError(t, err)

	p := pipe.New()
	p.AddBricks(a, b)

	d := New()
	require.NoError(t, d.AddPipe(p))

	var buf bytes.Buffer
	require.NoError(t, d.Render(&buf))
	assert.Contains(t, buf.String(), "0: caesar")
	assert.Contains(t, buf.String(), "1: caesar")
}

func TestDrawerRenderFile(t *testing.T) {
	p, _, err := testutil.TestPipe("file")
	require.NoError(t, err)

	d := New()
	require.NoError(t, d.AddPipe(p))

	path := filepath.Join(t.TempDir(), "pipe.dot")
	require.NoError(t, d.RenderFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "strict digraph")
}

func TestChainColorGradient(t *testing.T) {
	head, err := chainColor(0, 3)
	require.NoError(t, err)
	tail, err := chainColor(2, 3)
	require.NoError(t, err)

	assert.Equal(t, "#0000f0", strings.ToLower(head))
	assert.Equal(t, "#f00000", strings.ToLower(tail))
	assert.NotEqual(t, head, tail)

	single, err := chainColor(0, 1)
	require.NoError(t, err)
	assert.Equal(t, head, single)
}
