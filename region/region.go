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

import "github.com/charmbracelet/log"

// Region is a node in a tree of memory regions. It hands out two kinds of
// memory from the same backing storage: bump allocations that live as long as
// the region, and tracked allocations that can be freed or resized one by one.
//
// A child region's storage is a tracked allocation in its parent, so ending a
// region releases everything beneath it at once.
//
// Regions are not safe for concurrent use. Since children draw overflow from
// their parent, callers must serialize access to a whole tree.
type Region struct {
	opt    *Option
	sys    System // root only
	budget int

	parent      *Region
	firstChild  *Region
	nextSibling *Region
	prevSibling *Region

	// segs[0] is the embedded storage, the rest are overflow extensions.
	segs []segment
	// overflow is the index of the newest extension, or -1.
	overflow int

	trackedFree freeList
	sharedFree  freeList
}

// NewRoot creates a root region of at least minBytes backed by opt.System.
// Zero fields of opt, or a nil opt, take the values of DefaultOption().
func NewRoot(minBytes int, opt *Option) (*Region, error) {
	o := opt.withDefaults()
	if err := o.validate(); err != nil {
		return nil, err
	}
	r := &Region{opt: o, sys: o.System, overflow: -1}
	r.budget = o.budgetFor(minBytes)
	raw := r.sys.Alloc(r.budget)
	if cap(raw) < r.budget {
		panic("region: out of memory")
	}
	r.init(raw)
	r.logger().Debug("region begin", "budget", r.budget, "root", true)
	return r, nil
}

// Begin creates a child region of at least minBytes whose storage is a
// tracked allocation in r. The child becomes r's first child.
func (r *Region) Begin(minBytes int) *Region {
	r.mustActive()
	c := &Region{opt: r.opt, parent: r, overflow: -1}
	c.budget = r.opt.budgetFor(minBytes)
	c.init(r.TrackedAlloc(c.budget))

	c.nextSibling = r.firstChild
	if r.firstChild != nil {
		r.firstChild.prevSibling = c
	}
	r.firstChild = c
	r.logger().Debug("region begin", "budget", c.budget, "root", false)
	return c
}

func (r *Region) init(raw []byte) {
	r.segs = append(r.segs[:0], newSegment(raw))
	r.resetFreeLists()
}

// resetFreeLists makes the embedded storage a single shared free block.
func (r *Region) resetFreeLists() {
	r.trackedFree.head = nilRef
	r.sharedFree.head = nilRef
	x := r.formatFree(0, 0, len(r.segs[0].buf), stateFreeShared)
	r.pushFront(&r.sharedFree, x)
}

// End releases the region, its overflow extensions and every region beneath
// it. Neither r nor any descendant may be used afterwards.
func (r *Region) End() {
	r.mustActive()
	r.end(false)
}

// end tears down r. If detached, an ancestor is being ended or reset: all of
// r's memory lies inside that ancestor's storage, so nothing is released or
// unlinked and the subtree is only invalidated.
func (r *Region) end(detached bool) {
	if !detached {
		r.releaseOverflow()
	}
	for c := r.firstChild; c != nil; {
		next := c.nextSibling
		c.end(true)
		c = next
	}
	if !detached {
		r.unlink()
		r.logger().Debug("region end", "budget", r.budget, "root", r.parent == nil)
		r.release(r.segs[0].raw)
	}
	r.invalidate()
}

// Reset releases overflow extensions and child regions and returns r to the
// state it had right after creation. Previously returned memory is invalid.
func (r *Region) Reset() {
	r.mustActive()
	r.releaseOverflow()
	for c := r.firstChild; c != nil; {
		next := c.nextSibling
		c.end(true)
		c = next
	}
	r.firstChild = nil
	r.resetFreeLists()
	r.logger().Debug("region reset", "budget", r.budget)
}

func (r *Region) unlink() {
	p := r.parent
	if p == nil {
		return
	}
	if r.prevSibling != nil {
		r.prevSibling.nextSibling = r.nextSibling
	} else {
		p.firstChild = r.nextSibling
	}
	if r.nextSibling != nil {
		r.nextSibling.prevSibling = r.prevSibling
	}
}

func (r *Region) invalidate() {
	r.segs = nil
	r.firstChild = nil
	r.nextSibling = nil
	r.prevSibling = nil
	r.trackedFree.head = nilRef
	r.sharedFree.head = nilRef
}

func (r *Region) mustActive() {
	if r.segs == nil {
		panic("region: use of ended region")
	}
}

func (r *Region) logger() *log.Logger {
	return r.opt.Logger
}

// Budget returns the size of the region's embedded storage.
func (r *Region) Budget() int {
	return r.budget
}

// Parent returns the parent region, or nil for a root.
func (r *Region) Parent() *Region {
	return r.parent
}

// Children calls f for each child, most recently created first, until f returns false.
func (r *Region) Children(f func(c *Region) bool) {
	r.mustActive()
	for c := r.firstChild; c != nil; c = c.nextSibling {
		if !f(c) {
			return
		}
	}
}
