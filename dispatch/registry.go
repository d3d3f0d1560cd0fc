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

import "github.com/numgrid/umath/dtypes"

// Pattern is a registry key: one constraint per operand slot.
// A Nil slot is a wildcard, a concrete class matches only itself, and
// an abstract class matches itself and its subclasses.
type Pattern []dtypes.DType

func (p Pattern) clone() Pattern {
	c := make(Pattern, len(p))
	copy(c, p)
	return c
}

// Loop pairs a pattern with either a kernel or a promoter.
// Loops are immutable once registered.
type Loop struct {
	pattern  Pattern
	kernel   Kernel
	promoter Promoter
}

// Pattern returns a copy of the loop's pattern.
func (l *Loop) Pattern() Pattern {
	return l.pattern.clone()
}

// Kernel returns the loop's kernel, or nil for a promoter loop.
func (l *Loop) Kernel() Kernel {
	return l.kernel
}

// IsPromoter returns true if the loop holds a promoter instead of a
// kernel.
func (l *Loop) IsPromoter() bool {
	return l.promoter != nil
}

// registry is the ordered collection of loops of one operation.
// Matching scans loops in registration order; the index only serves
// duplicate detection.
type registry struct {
	loops []*Loop
	index map[string]int
}

func newRegistry() *registry {
	return &registry{index: make(map[string]int)}
}

// add appends a loop. When a loop with the same pattern exists, add
// reports a duplicate and leaves the registry unchanged.
func (r *registry) add(l *Loop) (duplicate bool) {
	key := packTypes(l.pattern)
	if _, ok := r.index[key]; ok {
		return true
	}
	r.index[key] = len(r.loops)
	r.loops = append(r.loops, l)
	return false
}

// at returns the loop registered under a pattern, or nil.
func (r *registry) at(p Pattern) *Loop {
	i, ok := r.index[packTypes(p)]
	if !ok {
		return nil
	}
	return r.loops[i]
}
