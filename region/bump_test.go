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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBumpMonotonic(t *testing.T) {
	r, sys := newTestRoot(t, 4096)
	base := dataPtr(r.segs[0].buf)

	var blocks [][]byte
	for i := 0; i < 4096/64; i++ {
		b := r.BumpAlloc(64)
		require.Len(t, b, 64)
		assert.Equal(t, base+uintptr(i*64), dataPtr(b))
		for _, prev := range blocks {
			assert.False(t, overlap(prev, b))
		}
		blocks = append(blocks, b)
		assert.Equal(t, 1, sys.Allocs)
		require.NoError(t, r.Verify())
	}
	assert.Equal(t, 0, r.Stats().SharedFree)

	// head exhausted: the next one comes from a new extension
	b := r.BumpAlloc(64)
	assert.Equal(t, 2, sys.Allocs)
	assert.Equal(t, 1, r.Stats().Overflows)
	assert.Equal(t, dataPtr(r.segs[1].buf)+uintptr(overflowHeaderSize), dataPtr(b))
	require.NoError(t, r.Verify())
}

func TestBumpAlignment(t *testing.T) {
	r, _ := newTestRoot(t, 4096)
	b1 := r.BumpAlloc(3)
	b2 := r.BumpAlloc(5)
	assert.Equal(t, 3, len(b1))
	assert.Equal(t, wordSize, cap(b1))
	assert.Equal(t, uintptr(wordSize), dataPtr(b2)-dataPtr(b1))
	assert.Zero(t, dataPtr(b2)%wordSize)
}

func TestBumpConsumesSmallRemainder(t *testing.T) {
	r, sys := newTestRoot(t, 4096)
	b := r.BumpAlloc(4096 - splitThreshold + wordSize)
	assert.Equal(t, 4096, cap(b))
	st := r.Stats()
	assert.Equal(t, 0, st.SharedFree)
	assert.Equal(t, 0, st.Overflows)
	assert.Equal(t, 1, sys.Allocs)
}

func TestBumpKeepsRemainderAtThreshold(t *testing.T) {
	r, _ := newTestRoot(t, 4096)
	b := r.BumpAlloc(4096 - splitThreshold)
	assert.Equal(t, 4096-splitThreshold, cap(b))
	st := r.Stats()
	assert.Equal(t, 1, st.SharedFree)
	assert.Equal(t, splitThreshold, st.SharedFreeBytes)
	require.NoError(t, r.Verify())
}

func TestBumpOverflowSize(t *testing.T) {
	r, sys := newTestRoot(t, 4096)

	// larger than the budget: extension sized to the request
	b := r.BumpAlloc(10000)
	assert.Len(t, b, 10000)
	st := r.Stats()
	assert.Equal(t, 1, st.Overflows)
	assert.Equal(t, 10000+overflowHeaderSize, st.OverflowBytes)
	assert.Equal(t, 2, sys.Allocs)

	// the embedded block is kept for later use
	assert.Equal(t, 1, st.SharedFree)
	assert.Equal(t, 4096, st.SharedFreeBytes)

	// smaller than the budget: extension floored at the budget
	r.BumpAlloc(4096)
	assert.Equal(t, 1, r.Stats().Overflows)
	r.BumpAlloc(100)
	st = r.Stats()
	assert.Equal(t, 2, st.Overflows)
	assert.Equal(t, 10000+overflowHeaderSize+4096, st.OverflowBytes)
	require.NoError(t, r.Verify())
}

func TestBumpZero(t *testing.T) {
	r, _ := newTestRoot(t, 4096)
	b := r.BumpAlloc(256)
	for i := range b {
		b[i] = 0xAB
	}
	r.Reset()

	z := r.BumpAllocZero(256)
	assert.Equal(t, dataPtr(b), dataPtr(z))
	for i := range z {
		require.Zero(t, z[i])
	}
}

func TestBumpDetachesNeighbours(t *testing.T) {
	r, _ := newTestRoot(t, 4096)
	a := r.TrackedAlloc(100) // high end, left neighbour is the shared block
	ax := r.locate(a)
	assert.Equal(t, int32(0), r.node(ax).left)

	r.BumpAlloc(64)
	assert.Equal(t, int32(64), r.node(ax).left)
	require.NoError(t, r.Verify())

	// consume the rest of the shared block
	r.BumpAlloc(4096 - 64 - 128)
	assert.Equal(t, int32(-1), r.node(ax).left)
	require.NoError(t, r.Verify())

	// no left neighbour: the freed block goes to the tracked list
	r.TrackedFree(a)
	st := r.Stats()
	assert.Equal(t, 1, st.TrackedFree)
	assert.Equal(t, 128, st.TrackedFreeBytes)
	require.NoError(t, r.Verify())
}

func TestDup(t *testing.T) {
	r, _ := newTestRoot(t, 4096)
	s := r.Strdup("hello, region")
	assert.Equal(t, "hello, region", s)
	assert.Equal(t, "", r.Strdup(""))

	src := []byte{1, 2, 3}
	b := r.Dup(src)
	src[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, b)
	assert.Nil(t, r.Dup(nil))
}

func TestBumpInvalidSize(t *testing.T) {
	r, _ := newTestRoot(t, 4096)
	assert.Panics(t, func() { r.BumpAlloc(-1) })
	assert.NotNil(t, r.BumpAlloc(0))
	assert.Len(t, r.BumpAlloc(0), 0)
}

func BenchmarkBumpAlloc(b *testing.B) {
	r, _ := NewRoot(1<<20, nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if i&0xFFF == 0 {
			r.Reset()
		}
		r.BumpAlloc(64)
	}
}
