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


package darray

import (
	"unsafe"

	"github.com/cloudwego/regionkit/region"
)

// Array is a growable array stored in tracked memory of a region.
// type T must NOT contain pointer, the GC does not scan region memory.
type Array[T any] struct {
	r   *region.Region
	buf []byte
	n   int
}

func elemSize[T any]() int {
	var v T
	if unsafe.Alignof(v) > 8 {
		panic("darray: element alignment exceeds 8")
	}
	sz := int(unsafe.Sizeof(v))
	if sz == 0 {
		panic("darray: zero-sized element")
	}
	return sz
}

// New creates an Array in r with room for capacity elements.
func New[T any](r *region.Region, capacity int) *Array[T] {
	a := &Array[T]{r: r}
	sz := elemSize[T]()
	if capacity > 0 {
		a.buf = r.TrackedAlloc(capacity * sz)
	}
	return a
}

// Len returns the number of elements.
func (a *Array[T]) Len() int {
	return a.n
}

// Cap returns the number of elements a can hold without growing.
func (a *Array[T]) Cap() int {
	var v T
	return cap(a.buf) / int(unsafe.Sizeof(v))
}

func (a *Array[T]) data() *T {
	return (*T)(unsafe.Pointer(unsafe.SliceData(a.buf)))
}

// Slice returns the elements as a slice aliasing region memory.
// It is invalidated by the next call that grows a.
func (a *Array[T]) Slice() []T {
	if a.n == 0 {
		return nil
	}
	return unsafe.Slice(a.data(), a.n)
}

// Get returns the i'th element. It panics if i is out of range.
func (a *Array[T]) Get(i int) T {
	return a.Slice()[i]
}

// Set sets the i'th element. It panics if i is out of range.
func (a *Array[T]) Set(i int, v T) {
	a.Slice()[i] = v
}

// Append adds vs to the end of a.
func (a *Array[T]) Append(vs ...T) {
	n := a.n + len(vs)
	a.Grow(len(vs))
	copy(unsafe.Slice(a.data(), n)[a.n:], vs)
	a.n = n
}

// Grow makes room for at least n more elements.
// Capacity at least doubles, so repeated appends are amortized O(1).
func (a *Array[T]) Grow(n int) {
	need := a.n + n
	c := a.Cap()
	if need <= c {
		return
	}
	c = max(2*c, need, 4)
	var v T
	a.buf = a.r.TrackedRealloc(a.buf, c*int(unsafe.Sizeof(v)))
}

// Truncate drops all elements after the first n.
func (a *Array[T]) Truncate(n int) {
	if n < 0 || n > a.n {
		panic("darray: truncate out of range")
	}
	a.n = n
}

// Free returns the backing memory to the region. a is empty afterwards and
// may be reused.
func (a *Array[T]) Free() {
	a.r.TrackedFree(a.buf)
	a.buf = nil
	a.n = 0
}
