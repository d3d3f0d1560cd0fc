// Copyright 2025 The numgrid Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dispatch

import (
	"encoding/binary"
	"sync"

	"github.com/numgrid/umath/dtypes"
)

// packTypes encodes a type tuple into a comparable cache key.
// Handles are identity-compared, so packing their raw values keys the
// cache by the exact tuple.
func packTypes(dts []dtypes.DType) string {
	buf := make([]byte, 4*len(dts))
	for i, dt := range dts {
		binary.BigEndian.PutUint32(buf[4*i:], uint32(dt))
	}
	return string(buf)
}

// cache memoizes resolved loops by operand type tuple. Concurrent
// resolutions may race to populate the same key: all writers for a key
// compute equivalent results, so the semantics are idempotent
// last-writer-wins. sync.Map guarantees a reader never observes a
// partially-formed entry.
type cache struct {
	m sync.Map
}

func (c *cache) load(dts []dtypes.DType) *Loop {
	v, ok := c.m.Load(packTypes(dts))
	if !ok {
		return nil
	}
	return v.(*Loop)
}

func (c *cache) store(dts []dtypes.DType, l *Loop) {
	c.m.Store(packTypes(dts), l)
}

// size returns the number of cached tuples. It takes O(n) time.
func (c *cache) size() (n int) {
	c.m.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
