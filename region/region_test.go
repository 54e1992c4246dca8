/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package region

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoot(t *testing.T) {
	tests := []struct {
		name    string
		min     int
		opt     *Option
		want    int
		wantErr bool
	}{
		{"nil_option", 10, nil, DefaultMinRegionSize, false},
		{"zero_fields", 10, &Option{}, DefaultMinRegionSize, false},
		{"custom_floor", 10, &Option{MinRegionSize: 1024}, 1024, false},
		{"above_floor", 5000, nil, 5000, false},
		{"rounded_up", 5001, nil, 5008, false},
		{"floor_too_small", 10, &Option{MinRegionSize: 8}, 0, true},
		{"floor_negative", 10, &Option{MinRegionSize: -1}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRoot(tt.min, tt.opt)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Budget())
			assert.Nil(t, r.Parent())
			st := r.Stats()
			assert.Equal(t, 1, st.SharedFree)
			assert.Equal(t, tt.want, st.SharedFreeBytes)
			r.End()
		})
	}
}

func TestBeginLinksChildren(t *testing.T) {
	root, _ := newTestRoot(t, 64<<10)
	c1 := root.Begin(4096)
	c2 := root.Begin(4096)
	c3 := root.Begin(10)

	assert.Equal(t, []*Region{c3, c2, c1}, children(root))
	assert.Equal(t, root, c2.Parent())
	assert.Equal(t, minBlockSize, c3.Budget())
	assert.Equal(t, 3, root.Stats().Children)

	c2.End()
	assert.Equal(t, []*Region{c3, c1}, children(root))
	assert.Nil(t, c3.prevSibling)
	assert.Equal(t, c3, c1.prevSibling)

	c3.End()
	assert.Equal(t, []*Region{c1}, children(root))
	assert.Nil(t, c1.prevSibling)

	c1.End()
	assert.Empty(t, children(root))

	// every child's storage went back to the parent
	st := root.Stats()
	assert.Equal(t, 0, st.TrackedFree)
	assert.Equal(t, 1, st.SharedFree)
	assert.Equal(t, 64<<10, st.SharedFreeBytes)
	require.NoError(t, root.Verify())
}

func TestChildrenStopsEarly(t *testing.T) {
	root, _ := newTestRoot(t, 64<<10)
	root.Begin(0)
	root.Begin(0)
	n := 0
	root.Children(func(*Region) bool {
		n++
		return false
	})
	assert.Equal(t, 1, n)
}

func TestChildOverflowFromParent(t *testing.T) {
	root, sys := newTestRoot(t, 64<<10)
	c := root.Begin(4096)
	before := root.Stats().SharedFreeBytes

	b := c.BumpAlloc(6000)
	assert.Len(t, b, 6000)
	assert.Equal(t, 1, c.Stats().Overflows)
	assert.Equal(t, 0, root.Stats().Overflows)
	assert.Equal(t, 1, sys.Allocs)
	assert.Equal(t, before-blockSizeFor(6000+overflowHeaderSize), root.Stats().SharedFreeBytes)
	require.NoError(t, root.Verify())
	require.NoError(t, c.Verify())
}

func TestEndChildRestoresParent(t *testing.T) {
	root, sys := newTestRoot(t, 64<<10)
	before := root.Stats()

	c := root.Begin(4096)
	c.TrackedAlloc(100)
	c.BumpAlloc(6000)
	g := c.Begin(0)
	g.TrackedAlloc(5000)
	c.End()

	after := root.Stats()
	assert.Equal(t, before, after)
	assert.Equal(t, 1, sys.Allocs)
	assert.Equal(t, 0, sys.Frees)
	require.NoError(t, root.Verify())
}

func TestHierarchicalTeardown(t *testing.T) {
	root, sys := newTestRoot(t, 4096)
	child := root.Begin(8192)
	grand := child.Begin(4096)

	var held [][]byte
	for i := 0; i < 64; i++ {
		held = append(held, grand.TrackedAlloc(300))
		if i%3 == 0 {
			grand.TrackedFree(held[i/2])
			held[i/2] = nil
		}
	}
	grand.BumpAlloc(20000)
	require.NoError(t, grand.Verify())
	require.NoError(t, child.Verify())
	require.NoError(t, root.Verify())
	require.Greater(t, sys.Allocs, 2)

	root.End()
	assert.Equal(t, sys.Allocs, sys.Frees)
	assert.Zero(t, sys.InUse)

	assert.Panics(t, func() { root.BumpAlloc(1) })
	assert.Panics(t, func() { child.TrackedAlloc(1) })
	assert.Panics(t, func() { grand.TrackedFree(held[2]) })
}

func TestResetRestoresFreshState(t *testing.T) {
	root, sys := newTestRoot(t, 4096)
	root.BumpAlloc(4000)
	root.TrackedAlloc(50)
	c := root.Begin(100)
	require.Equal(t, 2, sys.Allocs)
	require.Equal(t, 1, root.Stats().Overflows)

	root.Reset()
	assert.Equal(t, 1, sys.Frees)
	st := root.Stats()
	assert.Equal(t, Stats{
		Budget:          4096,
		SharedFree:      1,
		SharedFreeBytes: 4096,
		LargestFree:     4096,
	}, st)
	require.NoError(t, root.Verify())
	assert.Panics(t, func() { c.BumpAlloc(1) })

	// the whole budget is usable again without growing
	root.BumpAlloc(4096)
	assert.Equal(t, 2, sys.Allocs)

	root.End()
	assert.Equal(t, sys.Allocs, sys.Frees)
}

func TestResetChild(t *testing.T) {
	root, sys := newTestRoot(t, 64<<10)
	c := root.Begin(4096)
	c.BumpAlloc(10000)
	c.Begin(0).BumpAlloc(100)
	c.Reset()

	assert.Equal(t, []*Region{c}, children(root))
	st := c.Stats()
	assert.Equal(t, 0, st.Overflows)
	assert.Equal(t, 0, st.Children)
	assert.Equal(t, 4096, st.SharedFreeBytes)
	require.NoError(t, root.Verify())

	c.End()
	assert.Equal(t, 64<<10, root.Stats().SharedFreeBytes)
	assert.Equal(t, 1, sys.Allocs)
}

func TestUseAfterEnd(t *testing.T) {
	root, _ := newTestRoot(t, 4096)
	c := root.Begin(0)
	c.End()
	assert.Panics(t, func() { c.BumpAlloc(1) })
	assert.Panics(t, func() { c.Begin(0) })
	assert.Panics(t, func() { c.Reset() })
	assert.Panics(t, func() { c.End() })
	assert.NotPanics(t, func() { root.BumpAlloc(1) })
}

func TestDebugLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	root, err := NewRoot(4096, &Option{Logger: logger})
	require.NoError(t, err)

	root.BumpAlloc(8192)
	root.Begin(0).End()
	root.Reset()
	root.End()

	out := buf.String()
	for _, msg := range []string{"region begin", "region overflow", "region end", "region reset"} {
		assert.Contains(t, out, msg)
	}
}

func BenchmarkBeginEnd(b *testing.B) {
	root, _ := NewRoot(1<<20, nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c := root.Begin(16 << 10)
		c.TrackedAlloc(128)
		c.BumpAlloc(256)
		c.End()
	}
}

// helpers

func newTestRoot(t *testing.T, size int) (*Region, *CountingSystem) {
	t.Helper()
	sys := NewCountingSystem(GoSystem{})
	r, err := NewRoot(size, &Option{MinRegionSize: minBlockSize, System: sys})
	require.NoError(t, err)
	require.Equal(t, size, r.Budget())
	return r, sys
}

func clearFreeLists(r *Region) {
	r.trackedFree.head = nilRef
	r.sharedFree.head = nilRef
}

func listSizes(r *Region, l *freeList) []int {
	var sizes []int
	for x := l.head; x != nilRef; x = r.node(x).next {
		sizes = append(sizes, int(r.node(x).size))
	}
	return sizes
}

func listOffsets(r *Region, l *freeList) []int {
	var offs []int
	for x := l.head; x != nilRef; x = r.node(x).next {
		offs = append(offs, x.off())
	}
	return offs
}

func children(r *Region) []*Region {
	var cs []*Region
	r.Children(func(c *Region) bool {
		cs = append(cs, c)
		return true
	})
	return cs
}

func dataPtr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

func overlap(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	aStart := dataPtr(a)
	aEnd := aStart + uintptr(len(a))
	bStart := dataPtr(b)
	bEnd := bStart + uintptr(len(b))
	return !(aEnd <= bStart || bEnd <= aStart)
}
