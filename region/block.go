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
	"math"
	"unsafe"
)

const (
	// wordSize is the natural alignment of every block and every bump allocation.
	wordSize = 8

	// blockHeaderSize prefixes every tracked allocation.
	blockHeaderSize = int(unsafe.Sizeof(blockHeader{}))

	// freeHeaderSize is a block header plus the free-list links.
	// Every block is at least this large so it can always be turned into a free node.
	freeHeaderSize = int(unsafe.Sizeof(freeHeader{}))

	minBlockSize = freeHeaderSize

	// splitThreshold is the smallest remainder worth keeping as a free node.
	// Anything smaller is handed out together with the allocation. It already
	// carries two words of slack over a free header, so a remainder equal to it
	// is kept.
	splitThreshold = freeHeaderSize + 2*wordSize

	// overflowHeaderSize is reserved at the start of every overflow extension.
	overflowHeaderSize = int(unsafe.Sizeof(overflowHeader{}))

	// maxSegmentSize keeps offsets representable as int32.
	maxSegmentSize = math.MaxInt32 &^ (wordSize - 1)

	// blockMagic occupies the high 24 bits of a block tag, the state the low 8.
	blockMagic uint32 = 0xB10C5E00
)

type blockState uint32

const (
	stateAllocated blockState = iota + 1
	stateFreeUnshared
	stateFreeShared
)

func (s blockState) String() string {
	switch s {
	case stateAllocated:
		return "allocated"
	case stateFreeUnshared:
		return "free-unshared"
	case stateFreeShared:
		return "free-shared"
	}
	return "invalid"
}

func tagOf(s blockState) uint32 { return blockMagic | uint32(s) }

// blockHeader is written in place at the start of every tracked-domain block.
// left and right are byte offsets of the physical neighbours inside the same
// segment, or -1 if the neighbour is not a tracked-domain block.
type blockHeader struct {
	size  uint32 // including this header
	tag   uint32
	left  int32
	right int32
	seg   uint32
	_     uint32
}

// state returns 0 if the tag does not carry the block magic.
func (h *blockHeader) state() blockState {
	if h.tag&^0xFF != blockMagic {
		return 0
	}
	return blockState(h.tag & 0xFF)
}

// freeHeader is valid only while the block is FreeUnshared or FreeShared.
type freeHeader struct {
	blockHeader
	next ref
	prev ref
}

// overflowHeader is written at the start of every overflow extension.
// prev is the segment index of the previously acquired extension, or -1.
type overflowHeader struct {
	size uint64
	prev int64
}

// ref addresses a block inside a region: segment index in the high 32 bits,
// byte offset in the low 32 bits.
type ref uint64

const nilRef = ^ref(0)

func mkref(seg, off int) ref { return ref(uint64(seg)<<32 | uint64(uint32(off))) }

func (x ref) seg() int { return int(x >> 32) }
func (x ref) off() int { return int(uint32(x)) }

// neighbour returns the ref of a physical neighbour at offset off in the same segment.
func (x ref) neighbour(off int32) ref { return mkref(x.seg(), int(off)) }

// segment is one contiguous piece of backing memory owned by a region:
// index 0 is the embedded storage, the rest are overflow extensions.
type segment struct {
	raw  []byte // as handed out by the parent or the system; released as is
	buf  []byte // word-aligned usable part of raw
	base unsafe.Pointer
}

func newSegment(raw []byte) segment {
	n := cap(raw) &^ (wordSize - 1)
	if n > maxSegmentSize {
		n = maxSegmentSize
	}
	if n < minBlockSize {
		panic("region: backing storage too small")
	}
	buf := raw[:n:n]
	base := unsafe.Pointer(unsafe.SliceData(buf))
	if uintptr(base)&(wordSize-1) != 0 {
		panic("region: misaligned backing storage")
	}
	return segment{raw: raw, buf: buf, base: base}
}

// node returns the header at x. x must address a block inside one of r's segments.
func (r *Region) node(x ref) *freeHeader {
	return (*freeHeader)(unsafe.Add(r.segs[x.seg()].base, x.off()))
}

// payload returns the user bytes of the block at x with len n and cap equal to
// the block's capacity.
func (r *Region) payload(x ref, n int) []byte {
	s := &r.segs[x.seg()]
	off := x.off()
	end := off + int(r.node(x).size)
	return s.buf[off+blockHeaderSize : off+blockHeaderSize+n : end]
}

// formatFree writes a fresh free header spanning [off, off+size) of segment seg.
func (r *Region) formatFree(seg, off, size int, st blockState) ref {
	x := mkref(seg, off)
	h := r.node(x)
	h.size = uint32(size)
	h.tag = tagOf(st)
	h.left = -1
	h.right = -1
	h.seg = uint32(seg)
	h.next = nilRef
	h.prev = nilRef
	return x
}

func alignUp(n int) int { return (n + wordSize - 1) &^ (wordSize - 1) }

// blockSizeFor returns the block size needed for a tracked payload of n bytes.
func blockSizeFor(n int) int {
	sz := alignUp(n) + blockHeaderSize
	if sz < minBlockSize {
		sz = minBlockSize
	}
	return sz
}
