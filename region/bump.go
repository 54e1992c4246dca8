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

// BumpAlloc returns n bytes that live as long as the region.
// The memory is not zeroed and cannot be freed individually.
func (r *Region) BumpAlloc(n int) []byte {
	return r.bump(n, false)
}

// BumpAllocZero is like BumpAlloc but zeroes the returned bytes.
func (r *Region) BumpAllocZero(n int) []byte {
	return r.bump(n, true)
}

// Dup copies b into bump memory.
func (r *Region) Dup(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	buf := r.bump(len(b), false)
	copy(buf, b)
	return buf
}

// Strdup copies s into bump memory and returns a string backed by it.
func (r *Region) Strdup(s string) string {
	if len(s) == 0 {
		return ""
	}
	buf := r.bump(len(s), false)
	copy(buf, s)
	return unsafe.String(unsafe.SliceData(buf), len(buf))
}

func (r *Region) bump(n int, zero bool) []byte {
	r.mustActive()
	if n < 0 {
		panic("region: negative size")
	}
	if n == 0 {
		return []byte{}
	}
	need := alignUp(n)
	if r.headSize(&r.sharedFree) < need {
		r.acquireOverflow(need)
	}

	x := r.sharedFree.head
	h := r.node(x)
	seg, off, size := x.seg(), x.off(), int(h.size)
	if rem := size - need; rem >= splitThreshold {
		to := mkref(seg, off+need)
		r.relocateHead(&r.sharedFree, to)
		// the carved bytes leave the tracked domain
		if nh := r.node(to); nh.left >= 0 {
			r.node(to.neighbour(nh.left)).right = -1
			nh.left = -1
		}
		r.changeHeadSize(&r.sharedFree, rem)
	} else {
		if h.left >= 0 {
			r.node(x.neighbour(h.left)).right = -1
		}
		if h.right >= 0 {
			r.node(x.neighbour(h.right)).left = -1
		}
		r.changeHeadSize(&r.sharedFree, 0)
		need = size
	}
	// need is at least one word, so the stale tag never overlaps a moved header
	h.tag = 0

	buf := r.segs[seg].buf[off : off+n : off+need]
	if zero {
		clear(buf)
	}
	return buf
}
