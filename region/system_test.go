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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/regionkit/unsafex/malloc"
)

func TestSystems(t *testing.T) {
	systems := []struct {
		name string
		sys  System
	}{
		{"go", GoSystem{}},
		{"mcache", MCacheSystem{}},
	}
	for _, tt := range systems {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.sys.Alloc(100)
			require.Len(t, b, 100)
			assert.GreaterOrEqual(t, cap(b), 100)
			for i := range b {
				b[i] = byte(i)
			}

			same := tt.sys.Realloc(b, 50)
			assert.Equal(t, dataPtr(b), dataPtr(same))
			assert.Len(t, same, 50)

			grown := tt.sys.Realloc(b, 10000)
			require.Len(t, grown, 10000)
			for i := 0; i < 100; i++ {
				assert.Equal(t, byte(i), grown[i])
			}
			tt.sys.Free(grown)
		})
	}
}

func TestCountingSystem(t *testing.T) {
	sys := NewCountingSystem(nil)
	b := sys.Alloc(64)
	b = sys.Realloc(b, 128)
	assert.Equal(t, 128, sys.InUse)
	sys.Free(b)
	assert.Equal(t, 1, sys.Allocs)
	assert.Equal(t, 1, sys.Reallocs)
	assert.Equal(t, 1, sys.Frees)
	assert.Zero(t, sys.InUse)
}

func TestRootOnMCache(t *testing.T) {
	sys := NewCountingSystem(MCacheSystem{})
	root, err := NewRoot(4096, &Option{System: sys})
	require.NoError(t, err)
	root.BumpAlloc(3000)
	root.TrackedAlloc(20000)
	root.Begin(0).BumpAlloc(10000)
	require.NoError(t, root.Verify())
	root.End()
	assert.Equal(t, sys.Allocs, sys.Frees)
	assert.Zero(t, sys.InUse)
}

func TestRootOnBuddy(t *testing.T) {
	buddy, err := malloc.NewBuddy(make([]byte, 1<<20), 4096, 256<<10)
	require.NoError(t, err)
	initial := buddy.Available()

	sys := NewCountingSystem(buddy)
	root, err := NewRoot(4096, &Option{System: sys})
	require.NoError(t, err)

	c := root.Begin(16 << 10)
	var held [][]byte
	for i := 0; i < 200; i++ {
		held = append(held, c.TrackedAlloc(100+i*7))
		c.BumpAlloc(64)
	}
	for _, b := range held[:100] {
		c.TrackedFree(b)
	}
	root.BumpAlloc(50000)
	require.NoError(t, root.Verify())
	require.NoError(t, c.Verify())
	require.Greater(t, sys.Allocs, 1)
	assert.Less(t, buddy.Available(), initial)

	root.End()
	assert.Equal(t, sys.Allocs, sys.Frees)
	assert.Equal(t, initial, buddy.Available())
}

func TestSystemExhaustion(t *testing.T) {
	buddy, err := malloc.NewBuddy(make([]byte, 64<<10), 1024, 64<<10)
	require.NoError(t, err)
	root, err := NewRoot(4096, &Option{System: buddy})
	require.NoError(t, err)

	assert.PanicsWithValue(t, "region: out of memory", func() { root.BumpAlloc(100000) })
}
