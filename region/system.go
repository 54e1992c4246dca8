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
	"github.com/bytedance/gopkg/lang/dirtmake"
	"github.com/bytedance/gopkg/lang/mcache"
)

// System provides backing memory to root regions.
// Implementations must not return less than requested unless they are out of
// memory, in which case the region treats the failure as fatal.
type System interface {
	Alloc(n int) []byte
	// Realloc is never called by regions. It serves code that shares a System
	// with a region tree and grows its own buffers.
	Realloc(buf []byte, n int) []byte
	Free(buf []byte)
}

// GoSystem allocates from the Go heap without zeroing. Free is a no-op and
// leaves reclamation to the GC.
type GoSystem struct{}

// Alloc returns n bytes from the Go heap.
func (GoSystem) Alloc(n int) []byte {
	return dirtmake.Bytes(n, n)
}

// Realloc grows buf to n bytes, copying it if cap(buf) is too small.
func (GoSystem) Realloc(buf []byte, n int) []byte {
	if n <= cap(buf) {
		return buf[:n]
	}
	nb := dirtmake.Bytes(n, n)
	copy(nb, buf)
	return nb
}

// Free is a no-op.
func (GoSystem) Free([]byte) {}

// MCacheSystem allocates from size-classed pools, so memory released by one
// root region is reused by the next.
type MCacheSystem struct{}

// Alloc returns n bytes from mcache.
func (MCacheSystem) Alloc(n int) []byte {
	return mcache.Malloc(n)
}

// Realloc grows buf to n bytes, copying it if cap(buf) is too small.
func (MCacheSystem) Realloc(buf []byte, n int) []byte {
	if n <= cap(buf) {
		return buf[:n]
	}
	nb := mcache.Malloc(n)
	copy(nb, buf)
	mcache.Free(buf)
	return nb
}

// Free returns buf to mcache.
func (MCacheSystem) Free(buf []byte) {
	mcache.Free(buf)
}

// CountingSystem wraps a System and counts calls.
// Like the regions themselves it is not safe for concurrent use.
type CountingSystem struct {
	System

	Allocs   int
	Reallocs int
	Frees    int
	// InUse is the number of bytes currently held by callers.
	InUse int
}

// NewCountingSystem wraps s, or GoSystem if s is nil.
func NewCountingSystem(s System) *CountingSystem {
	if s == nil {
		s = GoSystem{}
	}
	return &CountingSystem{System: s}
}

// Alloc counts the call and forwards it to the wrapped System.
func (c *CountingSystem) Alloc(n int) []byte {
	c.Allocs++
	buf := c.System.Alloc(n)
	c.InUse += cap(buf)
	return buf
}

// Realloc counts the call and forwards it to the wrapped System.
func (c *CountingSystem) Realloc(buf []byte, n int) []byte {
	c.Reallocs++
	c.InUse -= cap(buf)
	buf = c.System.Realloc(buf, n)
	c.InUse += cap(buf)
	return buf
}

// Free counts the call and forwards it to the wrapped System.
func (c *CountingSystem) Free(buf []byte) {
	c.Frees++
	c.InUse -= cap(buf)
	c.System.Free(buf)
}
