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
	"fmt"
	"io"

	"github.com/charmbracelet/log"
)

// DefaultMinRegionSize is the smallest budget a region is created with.
const DefaultMinRegionSize = 4 << 10

var discardLogger = log.New(io.Discard)

// Option configures a region tree. It is given to NewRoot and shared by every
// region created beneath that root.
type Option struct {
	// MinRegionSize is the floor applied to every requested budget.
	MinRegionSize int

	// System provides the backing memory of the root region and of its
	// overflow extensions. Child regions draw from their parent instead.
	System System

	// Logger receives debug records for region lifecycle and overflow growth.
	// Nothing is logged on the allocation fast paths.
	Logger *log.Logger
}

// DefaultOption returns the default values of Option.
func DefaultOption() *Option {
	return &Option{
		MinRegionSize: DefaultMinRegionSize,
		System:        GoSystem{},
		Logger:        discardLogger,
	}
}

func (o *Option) validate() error {
	if o.MinRegionSize < minBlockSize {
		return fmt.Errorf("MinRegionSize must be >= %d, got %d", minBlockSize, o.MinRegionSize)
	}
	if o.MinRegionSize > maxSegmentSize {
		return fmt.Errorf("MinRegionSize must be <= %d, got %d", maxSegmentSize, o.MinRegionSize)
	}
	return nil
}

// withDefaults returns a copy of o with zero fields set to their defaults.
func (o *Option) withDefaults() *Option {
	d := DefaultOption()
	if o == nil {
		return d
	}
	c := *o
	if c.MinRegionSize == 0 {
		c.MinRegionSize = d.MinRegionSize
	}
	if c.System == nil {
		c.System = d.System
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	return &c
}

// budgetFor returns the effective budget of a region asking for minBytes.
func (o *Option) budgetFor(minBytes int) int {
	if minBytes < o.MinRegionSize {
		minBytes = o.MinRegionSize
	}
	n := alignUp(minBytes)
	if n > maxSegmentSize {
		panic("region: budget too large")
	}
	return n
}
