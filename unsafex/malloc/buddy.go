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


// Package malloc provides a buddy allocator over a fixed arena. Buddy has the
// method set of region.System and can back a root region without touching the
// Go heap after construction.
package malloc

import (
	"fmt"
	"math/bits"
	"unsafe"
)

const (
	// headerSize is the size of the header in front of each allocation.
	headerSize = int(unsafe.Sizeof(blockHeader{}))

	// freeBlockSize is the smallest block that can hold the free-list links.
	freeBlockSize = int(unsafe.Sizeof(freeBlock{}))

	allocMagic uint32 = 0xBADF00D
	freeMagic  uint32 = 0xF4EEB10C

	// DefaultMinBlockSize is the default minimum block size (8KB).
	DefaultMinBlockSize = 8 * 1024

	// DefaultMaxBlockSize is the default maximum block size (512KB).
	DefaultMaxBlockSize = 512 * 1024

	nilOffset = -1
)

type blockHeader struct {
	tag   uint32
	order uint32
}

// freeBlock overlays a block while it sits on a free list.
type freeBlock struct {
	blockHeader
	next int64
	prev int64
}

// Buddy manages a fixed arena in power-of-two blocks between minBlock and
// maxBlock. Freed blocks are merged with their buddy immediately, so the free
// lists never hold two free buddies of the same order.
//
// Buddy is not safe for concurrent use.
type Buddy struct {
	arena []byte
	base  unsafe.Pointer

	// heads[o] is the offset of the first free block of order o, or nilOffset.
	heads []int64

	minBlock int
	minShift int
	maxBlock int
	maxOrder int
}

// NewBuddy creates a buddy allocator over arena.
// minBlock and maxBlock must be powers of two, minBlock <= maxBlock, and the
// arena size must be a non-zero multiple of maxBlock.
func NewBuddy(arena []byte, minBlock, maxBlock int) (*Buddy, error) {
	if minBlock <= 0 || minBlock&(minBlock-1) != 0 {
		return nil, fmt.Errorf("minBlockSize must be a power of two, got %d", minBlock)
	}
	if maxBlock <= 0 || maxBlock&(maxBlock-1) != 0 {
		return nil, fmt.Errorf("maxBlockSize must be a power of two, got %d", maxBlock)
	}
	if minBlock > maxBlock {
		return nil, fmt.Errorf("minBlockSize (%d) must be <= maxBlockSize (%d)", minBlock, maxBlock)
	}
	if minBlock < freeBlockSize {
		return nil, fmt.Errorf("minBlockSize must be >= %d, got %d", freeBlockSize, minBlock)
	}
	if len(arena) < maxBlock || len(arena)%maxBlock != 0 {
		return nil, fmt.Errorf("arena size must be a multiple of %d bytes and >= %d, got %d",
			maxBlock, maxBlock, len(arena))
	}
	base := unsafe.Pointer(unsafe.SliceData(arena))
	if uintptr(base)%8 != 0 {
		return nil, fmt.Errorf("arena must be 8-byte aligned")
	}

	minShift := bits.TrailingZeros(uint(minBlock))
	a := &Buddy{
		arena:    arena,
		base:     base,
		minBlock: minBlock,
		minShift: minShift,
		maxBlock: maxBlock,
		maxOrder: bits.TrailingZeros(uint(maxBlock)) - minShift,
	}
	a.heads = make([]int64, a.maxOrder+1)
	a.Reset()
	return a, nil
}

// Reset returns every block to the allocator. Outstanding allocations become invalid.
func (a *Buddy) Reset() {
	for i := range a.heads {
		a.heads[i] = nilOffset
	}
	// push in reverse so the lowest root block is handed out first
	for off := len(a.arena) - a.maxBlock; off >= 0; off -= a.maxBlock {
		a.push(off, a.maxOrder)
	}
}

func (a *Buddy) block(off int) *freeBlock {
	return (*freeBlock)(unsafe.Add(a.base, off))
}

func (a *Buddy) push(off, order int) {
	b := a.block(off)
	b.tag = freeMagic
	b.order = uint32(order)
	b.prev = nilOffset
	b.next = a.heads[order]
	if b.next != nilOffset {
		a.block(int(b.next)).prev = int64(off)
	}
	a.heads[order] = int64(off)
}

func (a *Buddy) remove(off int) {
	b := a.block(off)
	if b.prev != nilOffset {
		a.block(int(b.prev)).next = b.next
	} else {
		a.heads[b.order] = b.next
	}
	if b.next != nilOffset {
		a.block(int(b.next)).prev = b.prev
	}
	b.tag = 0
}

// Alloc returns a slice of len n whose capacity extends to the end of its block,
// or nil if n is out of range or no block is large enough.
func (a *Buddy) Alloc(n int) []byte {
	if n <= 0 || n > a.maxBlock-headerSize {
		return nil
	}
	order := a.orderFor(n + headerSize)

	o := order
	for o <= a.maxOrder && a.heads[o] == nilOffset {
		o++
	}
	if o > a.maxOrder {
		return nil
	}
	off := int(a.heads[o])
	a.remove(off)

	// keep the low half, free the high half
	for o > order {
		o--
		a.push(off+a.minBlock<<o, o)
	}

	h := &a.block(off).blockHeader
	h.tag = allocMagic
	h.order = uint32(order)
	size := a.minBlock << order
	return unsafe.Slice((*byte)(unsafe.Add(a.base, off+headerSize)), size-headerSize)[:n]
}

// Realloc grows buf to len n, moving it to a new block if its capacity is too small.
// It returns nil, leaving buf untouched, if no block is large enough.
func (a *Buddy) Realloc(buf []byte, n int) []byte {
	if cap(buf) == 0 {
		return a.Alloc(n)
	}
	if n <= cap(buf) {
		return buf[:n]
	}
	nb := a.Alloc(n)
	if nb == nil {
		return nil
	}
	copy(nb, buf[:cap(buf)])
	a.Free(buf)
	return nb
}

// Free returns a block to the allocator and merges it with its free buddies.
// Panics if buf was not returned by Alloc or Realloc of this allocator.
//
// buf may be resliced from the end but not from the front.
func (a *Buddy) Free(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	off := int(uintptr(unsafe.Pointer(unsafe.SliceData(buf)))-uintptr(a.base)) - headerSize
	if off < 0 || off >= len(a.arena) {
		panic("buddy: block not in arena")
	}
	if off&(a.minBlock-1) != 0 {
		panic("buddy: misaligned block")
	}
	h := &a.block(off).blockHeader
	if h.tag != allocMagic {
		panic("buddy: double free or invalid block")
	}
	order := int(h.order)
	size := a.minBlock << order
	if cap(buf)+headerSize != size || off&(size-1) != 0 {
		panic("buddy: corrupted size")
	}
	h.tag = 0

	for order < a.maxOrder {
		buddy := off ^ size
		b := a.block(buddy)
		if b.tag != freeMagic || int(b.order) != order {
			break
		}
		a.remove(buddy)
		off &^= size
		order++
		size <<= 1
	}
	a.push(off, order)
}

// Available returns the total free bytes available for allocation.
func (a *Buddy) Available() int {
	total := 0
	for order, head := range a.heads {
		size := a.minBlock << order
		for off := head; off != nilOffset; off = a.block(int(off)).next {
			total += size - headerSize
		}
	}
	return total
}

// MaxAlloc returns the largest n for which Alloc(n) would currently succeed, or 0.
func (a *Buddy) MaxAlloc() int {
	for o := a.maxOrder; o >= 0; o-- {
		if a.heads[o] != nilOffset {
			return a.minBlock<<o - headerSize
		}
	}
	return 0
}

// orderFor returns the smallest order whose block size is at least size.
func (a *Buddy) orderFor(size int) int {
	if size <= a.minBlock {
		return 0
	}
	return bits.Len(uint(size-1)) - a.minShift
}
