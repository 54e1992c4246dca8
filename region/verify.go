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

import "fmt"

// Stats is a snapshot of a region's bookkeeping.
type Stats struct {
	Budget int
	// Overflows is the number of live overflow extensions.
	Overflows     int
	OverflowBytes int
	Children      int

	TrackedFree      int
	TrackedFreeBytes int
	SharedFree       int
	SharedFreeBytes  int
	// LargestFree is the size of the biggest free block, header included.
	LargestFree int
}

// Stats walks the region's free lists and returns a snapshot.
func (r *Region) Stats() Stats {
	r.mustActive()
	st := Stats{Budget: r.budget}
	for i := 1; i < len(r.segs); i++ {
		st.Overflows++
		st.OverflowBytes += len(r.segs[i].buf)
	}
	for c := r.firstChild; c != nil; c = c.nextSibling {
		st.Children++
	}
	for x := r.trackedFree.head; x != nilRef; x = r.node(x).next {
		st.TrackedFree++
		st.TrackedFreeBytes += int(r.node(x).size)
	}
	for x := r.sharedFree.head; x != nilRef; x = r.node(x).next {
		st.SharedFree++
		st.SharedFreeBytes += int(r.node(x).size)
	}
	st.LargestFree = max(r.headSize(&r.trackedFree), r.headSize(&r.sharedFree))
	return st
}

// Verify checks the free lists and the physical neighbour links reachable from
// them. It returns an error wrapping ErrCorrupted on the first violation.
func (r *Region) Verify() error {
	r.mustActive()
	if err := r.verifyList("tracked", &r.trackedFree, stateFreeUnshared); err != nil {
		return err
	}
	return r.verifyList("shared", &r.sharedFree, stateFreeShared)
}

func (r *Region) verifyList(name string, l *freeList, want blockState) error {
	// a list can't hold more nodes than fit in the region
	limit := 0
	for i := range r.segs {
		limit += len(r.segs[i].buf) / minBlockSize
	}

	prev := nilRef
	var prevSize uint32
	n := 0
	for x := l.head; x != nilRef; x = r.node(x).next {
		if n++; n > limit {
			return fmt.Errorf("%w: %s list has a cycle", ErrCorrupted, name)
		}
		if err := r.verifyBlock(x); err != nil {
			return fmt.Errorf("%s list: %w", name, err)
		}
		h := r.node(x)
		if st := h.state(); st != want {
			return fmt.Errorf("%w: %s list node %#x is %s", ErrCorrupted, name, uint64(x), st)
		}
		if h.prev != prev {
			return fmt.Errorf("%w: %s list node %#x has bad prev link", ErrCorrupted, name, uint64(x))
		}
		if prev != nilRef && h.size > prevSize {
			return fmt.Errorf("%w: %s list not sorted: %d after %d", ErrCorrupted, name, h.size, prevSize)
		}
		if err := r.verifyNeighbours(x); err != nil {
			return err
		}
		prev, prevSize = x, h.size
	}
	return nil
}

func (r *Region) verifyBlock(x ref) error {
	seg, off := x.seg(), x.off()
	if seg >= len(r.segs) || r.segs[seg].buf == nil {
		return fmt.Errorf("%w: block %#x in unknown segment", ErrCorrupted, uint64(x))
	}
	if off&(wordSize-1) != 0 || off+minBlockSize > len(r.segs[seg].buf) {
		return fmt.Errorf("%w: block %#x out of bounds", ErrCorrupted, uint64(x))
	}
	h := r.node(x)
	size := int(h.size)
	switch {
	case size&(wordSize-1) != 0:
		return fmt.Errorf("%w: block %#x has unaligned size %d", ErrCorrupted, uint64(x), size)
	case size < minBlockSize || off+size > len(r.segs[seg].buf):
		return fmt.Errorf("%w: block %#x has bad size %d", ErrCorrupted, uint64(x), size)
	case int(h.seg) != seg:
		return fmt.Errorf("%w: block %#x records segment %d", ErrCorrupted, uint64(x), h.seg)
	}
	return nil
}

// verifyNeighbours checks that x and its neighbours agree on being adjacent,
// and that no two unshared free blocks were left unmerged.
func (r *Region) verifyNeighbours(x ref) error {
	h := r.node(x)
	unshared := h.state() == stateFreeUnshared
	if h.left >= 0 {
		lx := x.neighbour(h.left)
		if err := r.verifyBlock(lx); err != nil {
			return err
		}
		lh := r.node(lx)
		if lh.state() == 0 || lh.right != int32(x.off()) || lx.off()+int(lh.size) != x.off() {
			return fmt.Errorf("%w: block %#x and its left neighbour disagree", ErrCorrupted, uint64(x))
		}
		if unshared && lh.state() == stateFreeUnshared {
			return fmt.Errorf("%w: block %#x not merged with its left neighbour", ErrCorrupted, uint64(x))
		}
	}
	if h.right >= 0 {
		rx := x.neighbour(h.right)
		if err := r.verifyBlock(rx); err != nil {
			return err
		}
		rh := r.node(rx)
		if rh.state() == 0 || rh.left != int32(x.off()) || x.off()+int(h.size) != rx.off() {
			return fmt.Errorf("%w: block %#x and its right neighbour disagree", ErrCorrupted, uint64(x))
		}
		if unshared && rh.state() == stateFreeUnshared {
			return fmt.Errorf("%w: block %#x not merged with its right neighbour", ErrCorrupted, uint64(x))
		}
	}
	return nil
}
