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

import "unsafe"

// TrackedAlloc returns n bytes that can be freed or resized individually.
// The memory is not zeroed. cap of the returned slice is the capacity of the
// block, which may be a few bytes larger than requested.
func (r *Region) TrackedAlloc(n int) []byte {
	return r.tracked(n, false)
}

// TrackedAllocZero is like TrackedAlloc but zeroes the returned bytes.
func (r *Region) TrackedAllocZero(n int) []byte {
	return r.tracked(n, true)
}

func (r *Region) tracked(n int, zero bool) []byte {
	r.mustActive()
	if n < 0 {
		panic("region: negative size")
	}
	need := blockSizeFor(n)

	// Only list heads are inspected: if the largest node can't serve the
	// request, nothing behind it can.
	l := &r.trackedFree
	if r.headSize(l) < need {
		l = &r.sharedFree
		if r.headSize(l) < need {
			r.acquireOverflow(need)
		}
	}
	x := r.carveHigh(l, need)
	buf := r.payload(x, n)
	if zero {
		clear(buf)
	}
	return buf
}

// carveHigh cuts a block of size need from the high end of l's head and marks it
// allocated. Remainders below splitThreshold are absorbed into the block.
func (r *Region) carveHigh(l *freeList, need int) ref {
	x := l.head
	h := r.node(x)
	size := int(h.size)
	if size-need < splitThreshold {
		r.changeHeadSize(l, 0)
		h.tag = tagOf(stateAllocated)
		return x
	}

	b := mkref(x.seg(), x.off()+size-need)
	bh := r.node(b)
	bh.size = uint32(need)
	bh.tag = tagOf(stateAllocated)
	bh.left = int32(x.off())
	bh.right = h.right
	bh.seg = h.seg
	if h.right >= 0 {
		r.node(x.neighbour(h.right)).left = int32(b.off())
	}
	h.right = int32(b.off())
	r.changeHeadSize(l, size-need)
	return b
}

// TrackedFree releases a block obtained from TrackedAlloc or TrackedRealloc.
// The block is merged with free physical neighbours; if the left neighbour
// belongs to the shared reservoir, the merged block is returned to it.
func (r *Region) TrackedFree(buf []byte) {
	r.mustActive()
	if cap(buf) == 0 {
		return
	}
	x := r.locate(buf)
	h := r.node(x)
	if h.state() != stateAllocated {
		panic("region: double free or invalid block")
	}

	if h.right >= 0 {
		rx := x.neighbour(h.right)
		if rh := r.node(rx); rh.state() == stateFreeUnshared {
			r.remove(&r.trackedFree, rx)
			r.absorb(x, rx)
		}
	}

	st := stateFreeUnshared
	if h.left >= 0 {
		lx := x.neighbour(h.left)
		switch lh := r.node(lx); lh.state() {
		case stateFreeUnshared:
			r.remove(&r.trackedFree, lx)
			r.absorb(lx, x)
			x, h = lx, lh
		case stateFreeShared:
			r.remove(&r.sharedFree, lx)
			r.absorb(lx, x)
			x, h = lx, lh
			st = stateFreeShared
		}
	}

	h.tag = tagOf(st)
	if st == stateFreeShared {
		r.insertSorted(&r.sharedFree, x)
	} else {
		r.insertSorted(&r.trackedFree, x)
	}
}

// absorb merges the block at y into its left physical neighbour x.
func (r *Region) absorb(x, y ref) {
	h, yh := r.node(x), r.node(y)
	h.size += yh.size
	h.right = yh.right
	if yh.right >= 0 {
		r.node(y.neighbour(yh.right)).left = int32(x.off())
	}
	yh.tag = 0
}

// TrackedRealloc resizes a tracked block. A nil buf allocates. Blocks are never
// shrunk: if the current capacity covers n, the same memory is returned with
// len n. Otherwise a new block is allocated, the old capacity copied and the
// old block freed.
func (r *Region) TrackedRealloc(buf []byte, n int) []byte {
	if cap(buf) == 0 {
		return r.TrackedAlloc(n)
	}
	r.mustActive()
	if n < 0 {
		panic("region: negative size")
	}
	x := r.locate(buf)
	h := r.node(x)
	if h.state() != stateAllocated {
		panic("region: realloc of free or invalid block")
	}
	if capacity := int(h.size) - blockHeaderSize; n <= capacity {
		return r.payload(x, n)
	}

	nb := r.TrackedAlloc(n)
	old := r.payload(x, int(h.size)-blockHeaderSize)
	copy(nb, old)
	r.TrackedFree(old)
	return nb
}

// locate finds the block whose payload starts at buf's data pointer.
func (r *Region) locate(buf []byte) ref {
	p := unsafe.Pointer(unsafe.SliceData(buf))
	h := (*blockHeader)(unsafe.Add(p, -blockHeaderSize))
	seg := int(h.seg)
	if seg >= len(r.segs) {
		panic("region: block not in region")
	}
	s := &r.segs[seg]
	off := int(uintptr(p)-uintptr(s.base)) - blockHeaderSize
	if off < 0 || off+minBlockSize > len(s.buf) || off&(wordSize-1) != 0 {
		panic("region: block not in region")
	}
	return mkref(seg, off)
}
