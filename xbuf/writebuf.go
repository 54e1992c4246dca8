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


package xbuf

import (
	"sync"

	"github.com/cloudwego/regionkit/region"
)

const pageSize = 1 << 13

var writeBufferPool = sync.Pool{
	New: func() interface{} {
		return &WriteBuffer{
			bufs: make([][]byte, 0, 16),
		}
	},
}

// WriteBuffer is a paged push buffer. Its pages are bump allocations from a
// region and live until that region ends or resets.
type WriteBuffer struct {
	r    *region.Region
	off  int // write offset of buf
	buf  []byte
	bufs [][]byte
	n    int // bytes in bufs
}

func NewWriteBuffer(r *region.Region) *WriteBuffer {
	b := writeBufferPool.Get().(*WriteBuffer)
	b.r = r
	return b
}

// Bytes returns the written data as a list of chunks.
func (b *WriteBuffer) Bytes() [][]byte {
	b.flush()
	return b.bufs
}

// Len returns the number of bytes written.
func (b *WriteBuffer) Len() int {
	return b.n + b.off
}

// Free recycles b. Pages stay in the region.
func (b *WriteBuffer) Free() {
	b.r = nil
	b.off = 0
	b.buf = nil
	for i := range b.bufs {
		b.bufs[i] = nil
	}
	b.bufs = b.bufs[:0]
	b.n = 0
	writeBufferPool.Put(b)
}

// MallocN returns n writable bytes, starting a new page if the current one is short.
func (b *WriteBuffer) MallocN(n int) (buf []byte) {
	buf = b.buf[b.off:]
	if len(buf) < n {
		buf = b.growSlow(n)
	}
	b.off += n
	return buf[:n:n]
}

func (b *WriteBuffer) growSlow(n int) []byte {
	b.flush()
	if n < pageSize {
		n = pageSize
	}
	buf := b.r.BumpAlloc(n)
	b.buf = buf[:cap(buf)]
	return b.buf
}

// flush moves the written part of the current page to bufs.
func (b *WriteBuffer) flush() {
	if b.off > 0 {
		b.bufs = append(b.bufs, b.buf[:b.off:b.off])
		b.n += b.off
		b.buf = b.buf[b.off:]
		b.off = 0
	}
}

// WriteDirect links buf into the buffer without copying.
func (b *WriteBuffer) WriteDirect(buf []byte) {
	b.flush()
	b.bufs = append(b.bufs, buf)
	b.n += len(buf)
}

func (b *WriteBuffer) WriteString(s string) {
	copy(b.MallocN(len(s)), s)
}
