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

// freeList is a doubly linked list of free blocks kept in non-increasing size
// order, so its head is always the largest node. The nodes themselves live in
// the region's segments.
type freeList struct {
	head ref
}

func (l *freeList) empty() bool { return l.head == nilRef }

// headSize returns the size of the head node, or 0 if the list is empty.
func (r *Region) headSize(l *freeList) int {
	if l.head == nilRef {
		return 0
	}
	return int(r.node(l.head).size)
}

// pushFront makes x the new head. x must be at least as large as the old head.
func (r *Region) pushFront(l *freeList, x ref) {
	n := r.node(x)
	n.prev = nilRef
	n.next = l.head
	if l.head != nilRef {
		r.node(l.head).prev = x
	}
	l.head = x
}

// insertSorted links x in front of the first node that is not larger than it.
func (r *Region) insertSorted(l *freeList, x ref) {
	n := r.node(x)
	prev, cur := nilRef, l.head
	for cur != nilRef {
		c := r.node(cur)
		if c.size <= n.size {
			break
		}
		prev, cur = cur, c.next
	}
	r.linkBetween(l, x, prev, cur)
}

func (r *Region) linkBetween(l *freeList, x, prev, next ref) {
	n := r.node(x)
	n.prev = prev
	n.next = next
	if prev == nilRef {
		l.head = x
	} else {
		r.node(prev).next = x
	}
	if next != nilRef {
		r.node(next).prev = x
	}
}

func (r *Region) remove(l *freeList, x ref) {
	n := r.node(x)
	if n.prev == nilRef {
		l.head = n.next
	} else {
		r.node(n.prev).next = n.next
	}
	if n.next != nilRef {
		r.node(n.next).prev = n.prev
	}
	n.next = nilRef
	n.prev = nilRef
}

// changeHeadSize updates the size of the head node after bytes were carved off it.
// A size of zero drops the head. If the head became smaller than its successor
// it is moved forward to its sorted position.
func (r *Region) changeHeadSize(l *freeList, size int) {
	x := l.head
	if size == 0 {
		r.remove(l, x)
		return
	}
	n := r.node(x)
	n.size = uint32(size)
	next := n.next
	if next == nilRef || r.node(next).size <= n.size {
		return
	}

	// unlink, then scan forward starting after the old successor
	l.head = next
	r.node(next).prev = nilRef
	prev, cur := next, r.node(next).next
	for cur != nilRef {
		c := r.node(cur)
		if c.size <= n.size {
			break
		}
		prev, cur = cur, c.next
	}
	r.linkBetween(l, x, prev, cur)
}

// relocateHead moves the head header from its current offset to `to`, which
// lies later in the same block. The two headers may overlap.
func (r *Region) relocateHead(l *freeList, to ref) {
	from := l.head
	tmp := *r.node(from)
	n := r.node(to)
	*n = tmp
	l.head = to
	if n.next != nilRef {
		r.node(n.next).prev = to
	}
	if n.left >= 0 {
		r.node(to.neighbour(n.left)).right = int32(to.off())
	}
	if n.right >= 0 {
		r.node(to.neighbour(n.right)).left = int32(to.off())
	}
}
