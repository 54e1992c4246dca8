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


// Package region implements a hierarchical region allocator.
//
// A Region owns one contiguous piece of storage and hands out memory from it
// in two ways:
//
//   - BumpAlloc carves from the low end of the largest shared free block.
//     The memory lives until the region ends or resets.
//   - TrackedAlloc carves from the high end of a free block and puts a header
//     in front of the payload, so the block can later be released with
//     TrackedFree or grown with TrackedRealloc. Freed blocks merge with free
//     physical neighbours.
//
// Free space is kept on two lists sorted by size, largest first. The shared
// list feeds both allocators; the tracked list holds blocks released by
// TrackedFree that were not adjacent to shared space. Only list heads are
// inspected, so an allocation either fits the largest block or grows the region.
//
// When a region runs out of space it acquires an overflow extension: from
// its parent's tracked allocator for a child, or from Option.System for a
// root. Child regions are created with Begin and draw their storage from the
// parent, so ending a region releases its whole subtree at once.
//
// Regions are not safe for concurrent use.
package region
