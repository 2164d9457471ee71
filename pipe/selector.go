package pipe

import (
	"sort"

	"github.com/brickflow/brickflow/brick"
)

// Selector identifies a brick to remove, either by reference or by index.
// Build selectors with Ref and At; mixing both in one RemoveBricks call is
// supported.
type Selector struct {
	target brick.Brick
	index  int
	byRef  bool
}

// Ref selects a brick by reference. A reference the pipe does not contain
// resolves to nothing.
func Ref(b brick.Brick) Selector {
	return Selector{target: b, byRef: true}
}

// At selects a brick by its current index. Out-of-range indexes resolve to
// nothing.
func At(index int) Selector {
	return Selector{index: index}
}

// resolve maps selectors to the unique set of currently valid indexes, in
// descending order.
func (p *Pipe) resolve(selectors []Selector) []int {
	seen := make(map[int]bool, len(selectors))
	indexes := make([]int, 0, len(selectors))

	for _, sel := range selectors {
		i := sel.index
		if sel.byRef {
			i = p.indexOf(sel.target)
		}
		if i < 0 || i >= len(p.bricks) || seen[i] {
			continue
		}
		seen[i] = true
		indexes = append(indexes, i)
	}

	sort.Sort(sort.Reverse(sort.IntSlice(indexes)))
	return indexes
}
