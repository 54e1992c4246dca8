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


package strmap

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unsafe"

	"github.com/bytedance/gopkg/util/xxhash3"

	"github.com/cloudwego/regionkit/container/darray"
	"github.com/cloudwego/regionkit/region"
)

// StrMap is a readonly string map stored entirely in a region: keys in bump
// memory, items and hashtable in tracked memory.
// type V must NOT contain pointer.
type StrMap[V any] struct {
	r *region.Region

	// `data` holds bytes of keys
	data []byte

	// `items` holds key meta, sorted by slot
	items *darray.Array[mapItem[V]]

	// max hashtable ~ 2 billions which means items.Len() < the num as well.
	hashtable *darray.Array[int32]
}

type mapItem[V any] struct {
	off  int
	sz   uint32 // 4GB, big enough for key
	slot uint32
	v    V
}

// New creates an empty StrMap in r.
func New[V any](r *region.Region) *StrMap[V] {
	return &StrMap[V]{
		r:         r,
		items:     darray.New[mapItem[V]](r, 0),
		hashtable: darray.New[int32](r, 0),
	}
}

// NewFromMap creates StrMap in r from map
func NewFromMap[V any](r *region.Region, m map[string]V) *StrMap[V] {
	ret := New[V](r)
	if err := ret.LoadFromMap(m); err != nil {
		panic(err)
	}
	return ret
}

// NewFromSlice creates StrMap in r from slices, len(kk) must equal to len(vv)
func NewFromSlice[V any](r *region.Region, kk []string, vv []V) *StrMap[V] {
	ret := New[V](r)
	if err := ret.LoadFromSlice(kk, vv); err != nil {
		panic(err)
	}
	return ret
}

// LoadFromMap resets StrMap and loads from map
func (m *StrMap[V]) LoadFromMap(src map[string]V) error {
	kk := make([]string, 0, len(src))
	vv := make([]V, 0, len(src))
	for k, v := range src {
		kk = append(kk, k)
		vv = append(vv, v)
	}
	return m.LoadFromSlice(kk, vv)
}

// LoadFromSlice resets StrMap and loads from slices, len(kk) must equal to len(vv).
// Key bytes of a previous load stay in the region until it ends or resets.
func (m *StrMap[V]) LoadFromSlice(kk []string, vv []V) error {
	if len(kk) != len(vv) {
		return errors.New("kv len not match")
	}
	sz := 0
	for _, k := range kk {
		if len(k) > math.MaxUint32 {
			return errors.New("key too large")
		}
		sz += len(k)
	}
	m.data = m.r.BumpAlloc(sz)[:0]
	m.items.Truncate(0)
	m.items.Grow(len(kk))

	for i, k := range kk {
		m.items.Append(mapItem[V]{
			off:  len(m.data),
			sz:   uint32(len(k)),
			slot: uint32(xxhash3.HashString(k)),
			v:    vv[i],
		})
		m.data = append(m.data, k...)
	}
	m.makeHashtable()
	return nil
}

// Len returns the size of map
func (m *StrMap[V]) Len() int {
	return m.items.Len()
}

func (m *StrMap[V]) key(e *mapItem[V]) string {
	if e.sz == 0 {
		return ""
	}
	return unsafe.String(&m.data[e.off], int(e.sz))
}

// Item returns the i'th item in map.
// It panics if i is not in the range [0, Len()).
func (m *StrMap[V]) Item(i int) (string, V) {
	e := &m.items.Slice()[i]
	return m.key(e), e.v
}

type itemsBySlot[V any] []mapItem[V]

func (x itemsBySlot[V]) Len() int           { return len(x) }
func (x itemsBySlot[V]) Less(i, j int) bool { return x[i].slot < x[j].slot }
func (x itemsBySlot[V]) Swap(i, j int)      { x[i], x[j] = x[j], x[i] }

func (m *StrMap[V]) makeHashtable() {
	slots := calcHashtableSlots(m.items.Len())
	items := m.items.Slice()

	// update `slot` of mapItem to fit the size of hashtable
	for i := range items {
		items[i].slot = items[i].slot % uint32(slots)
	}

	// make sure items with the same slot stored together
	sort.Sort(itemsBySlot[V](items))

	m.hashtable.Truncate(0)
	m.hashtable.Grow(int(slots))
	for i := int32(0); i < slots; i++ {
		m.hashtable.Append(-1)
	}
	ht := m.hashtable.Slice()
	for i := range items {
		e := &items[i]
		if ht[e.slot] < 0 {
			// only the 1st item of a slot, the rest follow it
			ht[e.slot] = int32(i)
		}
	}
}

// Get ...
func (m *StrMap[V]) Get(s string) (t V, ok bool) {
	ht := m.hashtable.Slice()
	if len(ht) == 0 {
		return t, false
	}
	slot := uint32(xxhash3.HashString(s)) % uint32(len(ht))
	i := ht[slot]
	if i < 0 {
		return t, false
	}
	items := m.items.Slice()
	// collision, worst O(n)
	// coz i always point to the 1st item with the same slot,
	// can scan till items end or e.slot != slot.
	for j := int(i); j < len(items); j++ {
		e := &items[j]
		if e.slot != slot {
			break
		}
		if m.key(e) == s {
			return e.v, true
		}
	}
	return t, false
}

// Free returns the items and hashtable to the region.
func (m *StrMap[V]) Free() {
	m.items.Free()
	m.hashtable.Free()
	m.data = nil
}

// String ...
func (m *StrMap[V]) String() string {
	b := &strings.Builder{}
	b.WriteString("{\n")
	for _, e := range m.items.Slice() {
		fmt.Fprintf(b, "%q: %v,\n", m.key(&e), e.v)
	}
	b.WriteString("}")
	return b.String()
}

func (m *StrMap[V]) debugString() string {
	b := &strings.Builder{}
	b.WriteString("{\n")
	for _, e := range m.items.Slice() {
		fmt.Fprintf(b, "{off:%d, slot:%x, str:%q, v:%v},\n", e.off, e.slot, m.key(&e), e.v)
	}
	fmt.Fprintf(b, "}(slots=%d, items=%d)", m.hashtable.Len(), m.items.Len())
	return b.String()
}

// strRef locates a value string in Str2Str.data.
type strRef struct {
	off uint32
	sz  uint32
}

// Str2Str stores map[string]string in a region.
type Str2Str struct {
	m    *StrMap[strRef]
	data []byte
}

func NewStr2Str(r *region.Region) *Str2Str {
	return &Str2Str{m: New[strRef](r)}
}

// NewStr2StrFromSlice creates Str2Str in r from key, value slices.
func NewStr2StrFromSlice(r *region.Region, kk, vv []string) *Str2Str {
	m := NewStr2Str(r)
	if err := m.LoadFromSlice(kk, vv); err != nil {
		panic(err)
	}
	return m
}

// NewStr2StrFromMap creates Str2Str in r from map.
func NewStr2StrFromMap(r *region.Region, m map[string]string) *Str2Str {
	sm := NewStr2Str(r)
	if err := sm.LoadFromMap(m); err != nil {
		panic(err)
	}
	return sm
}

// LoadFromSlice resets Str2Str and loads from slices.
func (sm *Str2Str) LoadFromSlice(kk, vv []string) error {
	if len(kk) != len(vv) {
		return errors.New("kv len not match")
	}
	sz := 0
	for _, v := range vv {
		sz += len(v)
	}
	if sz > math.MaxUint32 {
		return errors.New("values too large")
	}
	sm.data = sm.m.r.BumpAlloc(sz)[:0]
	refs := make([]strRef, len(vv))
	for i, v := range vv {
		refs[i] = strRef{off: uint32(len(sm.data)), sz: uint32(len(v))}
		sm.data = append(sm.data, v...)
	}
	return sm.m.LoadFromSlice(kk, refs)
}

// LoadFromMap resets Str2Str and loads from map.
func (sm *Str2Str) LoadFromMap(m map[string]string) error {
	kk := make([]string, 0, len(m))
	vv := make([]string, 0, len(m))
	for k, v := range m {
		kk = append(kk, k)
		vv = append(vv, v)
	}
	return sm.LoadFromSlice(kk, vv)
}

// Get ...
func (sm *Str2Str) Get(k string) (string, bool) {
	ref, ok := sm.m.Get(k)
	if !ok {
		return "", false
	}
	if ref.sz == 0 {
		return "", true
	}
	return unsafe.String(&sm.data[ref.off], int(ref.sz)), true
}

// Len returns the size of map
func (sm *Str2Str) Len() int {
	return sm.m.Len()
}

func (sm *Str2Str) Free() {
	sm.m.Free()
	sm.data = nil
}
