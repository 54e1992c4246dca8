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
	"errors"
	"sync"

	"github.com/cloudwego/regionkit/region"
)

var (
	ErrReadBufferNotEnough = errors.New("xbuf: read buffer not enough")
	readBufferPool         = sync.Pool{
		New: func() interface{} {
			return &ReadBuffer{}
		},
	}
)

// ReadBuffer reads across a list of chunks. Reads that span chunks are
// gathered into bump memory of its region.
type ReadBuffer struct {
	r    *region.Region
	off  int
	buf  []byte
	bufs [][]byte
}

func NewReadBuffer(r *region.Region, bufs [][]byte) *ReadBuffer {
	rb := readBufferPool.Get().(*ReadBuffer)
	rb.r = r
	if len(bufs) > 0 {
		rb.buf = bufs[0]
		rb.bufs = bufs[1:]
	}
	return rb
}

// ReadN reads n bytes. It panics with ErrReadBufferNotEnough if fewer remain.
func (b *ReadBuffer) ReadN(n int) (buf []byte) {
	buf = b.buf[b.off:]
	if len(buf) < n {
		buf = b.readSlow(n)
	} else {
		b.off += n
	}
	return buf[:n:n]
}

func (b *ReadBuffer) readSlow(n int) (buf []byte) {
	buf = b.r.BumpAlloc(n)
	l := copy(buf, b.buf[b.off:])
	m := 0
	for l < n {
		b.next()
		m = copy(buf[l:], b.buf)
		l += m
	}
	b.off = m
	return
}

func (b *ReadBuffer) next() {
	if len(b.bufs) == 0 {
		panic(ErrReadBufferNotEnough.Error())
	}
	b.buf = b.bufs[0]
	b.off = 0
	b.bufs = b.bufs[1:]
}

// CopyBytes fills buf from the buffer, reading across chunks as needed.
func (b *ReadBuffer) CopyBytes(buf []byte) {
	n := copy(buf, b.buf[b.off:])
	if len(buf) > n {
		b.copySlow(buf, n)
	} else {
		b.off += n
	}
}

func (b *ReadBuffer) copySlow(buf []byte, l int) {
	m := 0
	for l < len(buf) {
		b.next()
		m = copy(buf[l:], b.buf)
		l += m
	}
	b.off = m
}

// Len returns the number of unread bytes.
func (b *ReadBuffer) Len() int {
	n := len(b.buf) - b.off
	for _, p := range b.bufs {
		n += len(p)
	}
	return n
}

func (b *ReadBuffer) Free() {
	b.r = nil
	b.off = 0
	b.buf = nil
	b.bufs = nil
	readBufferPool.Put(b)
}
