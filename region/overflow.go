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

// acquireOverflow obtains a new extension able to hold at least need bytes and
// pushes its single free block onto the shared list. Extensions are never
// smaller than the region's budget.
func (r *Region) acquireOverflow(need int) ref {
	target := alignUp(need + overflowHeaderSize)
	if target < r.budget {
		target = r.budget
	}
	if target > maxSegmentSize {
		panic("region: allocation too large")
	}

	var raw []byte
	if r.parent != nil {
		raw = r.parent.TrackedAlloc(target)
	} else {
		raw = r.sys.Alloc(target)
	}
	if cap(raw) < target {
		panic("region: out of memory")
	}

	idx := len(r.segs)
	r.segs = append(r.segs, newSegment(raw))
	s := &r.segs[idx]
	oh := (*overflowHeader)(s.base)
	oh.size = uint64(len(s.buf))
	oh.prev = int64(r.overflow)
	r.overflow = idx

	// larger than the current head, so it goes to the front
	x := r.formatFree(idx, overflowHeaderSize, len(s.buf)-overflowHeaderSize, stateFreeShared)
	r.pushFront(&r.sharedFree, x)

	r.logger().Debug("region overflow", "budget", r.budget, "need", need, "size", len(s.buf), "extensions", idx)
	return x
}

// releaseOverflow returns every extension to the parent or the system,
// newest first, and drops them from the segment table.
func (r *Region) releaseOverflow() {
	for i := r.overflow; i > 0; {
		s := &r.segs[i]
		oh := (*overflowHeader)(s.base)
		next := int(oh.prev)
		r.release(s.raw)
		r.segs[i] = segment{}
		i = next
	}
	r.overflow = -1
	r.segs = r.segs[:1]
}

// release hands raw back to whoever provided it.
func (r *Region) release(raw []byte) {
	if r.parent != nil {
		r.parent.TrackedFree(raw)
	} else {
		r.sys.Free(raw)
	}
}
