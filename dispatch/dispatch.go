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

// Package dispatch resolves which implementation of a polymorphic
// elementwise operation to run for a given operand type tuple.
//
// An Operation owns an ordered registry of loops. Each loop pairs a
// type pattern with either a concrete kernel or a promoter, a rewrite
// rule that proposes a more specific operand type tuple. Resolution
// finds the single best-matching loop, following promoter rewrites
// recursively and falling back at most once to a legacy resolver.
// Successful resolutions are cached by the exact operand type tuple.
package dispatch

import (
	"github.com/pkg/errors"

	"github.com/numgrid/umath/dtypes"
)

// Hierarchy is the type-class hierarchy consulted during matching and
// promotion. Implementations must treat handles as identities: two
// handles are the same class iff they are equal.
type Hierarchy interface {
	// IsAbstract returns true if the class is abstract. Concrete
	// classes are never subclassed.
	IsAbstract(dt dtypes.DType) bool
	// IsSubclass returns true if sub equals super or is one of its
	// transitive subclasses.
	IsSubclass(sub, super dtypes.DType) (bool, error)
	// CommonType returns the promoted type of a sequence of classes,
	// or false when none exists.
	CommonType(dts ...dtypes.DType) (dtypes.DType, bool)
	// Name renders a class for error messages.
	Name(dt dtypes.DType) string
}

// Kernel is a concrete implementation of an operation for one type
// signature. The dispatcher never calls it; kernels are opaque and
// identity-compared.
type Kernel interface {
	// Name identifies the kernel in diagnostics.
	Name() string
}

// Promoter rewrites an operand type tuple into a more specific one so
// that a further dispatch round can find a concrete kernel. The
// returned tuple must be pointwise either unchanged or strictly more
// specific; that convergence property is the promoter author's
// contract. A promoter abstains by returning ErrPromotionRefused.
type Promoter func(h Hierarchy, op *Operation, dts, signature []dtypes.DType) ([]dtypes.DType, error)

// LegacyResolver is the pre-existing type resolution path, used only
// when no registered loop or promoter matches. The operands are passed
// through opaquely from ResolveOptions. The resolver may mutate the
// signature it receives in place (a legacy quirk the caller is shielded
// from: the dispatcher hands it a copy and applies the differences
// explicitly). A false cacheable return marks the result as
// deprecation-sensitive, preventing the cache write.
type LegacyResolver interface {
	Resolve(operands any, signature []dtypes.DType) (opTypes []dtypes.DType, cacheable bool, err error)
}

// Operation is a named polymorphic elementwise operation with a fixed
// arity. The loop registry is populated during a setup phase and read
// afterwards; concurrent registration during resolution must be
// serialized by the caller. The dispatch cache tolerates concurrent
// resolutions.
type Operation struct {
	name      string
	nin, nout int
	hierarchy Hierarchy
	loops     *registry
	cache     cache
	legacy    LegacyResolver
}

// NewOperation returns an operation with nin inputs and nout outputs
// dispatching over the given hierarchy.
func NewOperation(name string, nin, nout int, h Hierarchy) (*Operation, error) {
	if nin < 1 || nout < 1 {
		return nil, errors.Errorf("operation %s must have at least one input and one output, got nin=%d nout=%d", name, nin, nout)
	}
	if h == nil {
		return nil, errors.Errorf("operation %s must have a type hierarchy", name)
	}
	return &Operation{
		name:      name,
		nin:       nin,
		nout:      nout,
		hierarchy: h,
		loops:     newRegistry(),
	}, nil
}

// Name returns the operation name.
func (op *Operation) Name() string { return op.name }

// Nin returns the number of inputs.
func (op *Operation) Nin() int { return op.nin }

// Nout returns the number of outputs.
func (op *Operation) Nout() int { return op.nout }

// Nargs returns the total number of operands.
func (op *Operation) Nargs() int { return op.nin + op.nout }

// Hierarchy returns the type hierarchy the operation dispatches over.
func (op *Operation) Hierarchy() Hierarchy { return op.hierarchy }

// SetLegacyResolver installs the fallback resolver consulted when no
// registered loop matches.
func (op *Operation) SetLegacyResolver(r LegacyResolver) {
	op.legacy = r
}

// CacheSize returns the number of operand type tuples with a cached
// resolution.
func (op *Operation) CacheSize() int { return op.cache.size() }

// Loops returns a snapshot of the registered loops in registration
// order.
func (op *Operation) Loops() []*Loop {
	snapshot := make([]*Loop, len(op.loops.loops))
	copy(snapshot, op.loops.loops)
	return snapshot
}

// RegisterLoop registers a kernel under a pattern. Registering a
// pattern twice is an error unless ignoreDuplicate is set, in which
// case the original loop is kept and the call is a no-op.
func (op *Operation) RegisterLoop(pattern Pattern, k Kernel, ignoreDuplicate bool) error {
	if k == nil {
		return &RegistrationError{Op: op.name, Reason: "kernel is nil"}
	}
	return op.register(&Loop{pattern: pattern.clone(), kernel: k}, ignoreDuplicate)
}

// RegisterPromoter registers a promoter under a pattern.
func (op *Operation) RegisterPromoter(pattern Pattern, p Promoter, ignoreDuplicate bool) error {
	if p == nil {
		return &RegistrationError{Op: op.name, Reason: "promoter is nil"}
	}
	return op.register(&Loop{pattern: pattern.clone(), promoter: p}, ignoreDuplicate)
}

// EnsureLoop registers a kernel under a pattern if no loop exists for
// it yet, and returns the loop registered under the pattern. It lets a
// legacy resolution install the loop it resolved to.
func (op *Operation) EnsureLoop(pattern Pattern, k Kernel) (*Loop, error) {
	if err := op.RegisterLoop(pattern, k, true); err != nil {
		return nil, err
	}
	return op.loops.at(pattern), nil
}

func (op *Operation) register(l *Loop, ignoreDuplicate bool) error {
	if len(l.pattern) != op.Nargs() {
		return &RegistrationError{
			Op:     op.name,
			Reason: errors.Errorf("pattern has %d slots but the operation has %d operands", len(l.pattern), op.Nargs()).Error(),
		}
	}
	for i, dt := range l.pattern {
		if dt == dtypes.Nil {
			continue
		}
		// A handle the hierarchy does not know about would register
		// fine and then silently never match.
		if _, err := op.hierarchy.IsSubclass(dt, dt); err != nil {
			return &RegistrationError{
				Op:     op.name,
				Reason: errors.Wrapf(err, "pattern slot %d", i).Error(),
			}
		}
	}
	if op.loops.add(l) && !ignoreDuplicate {
		return &RegistrationError{
			Op:     op.name,
			Reason: "a loop is already registered for pattern " + typesString(op.hierarchy, l.pattern),
		}
	}
	return nil
}

func cloneTypes(dts []dtypes.DType) []dtypes.DType {
	c := make([]dtypes.DType, len(dts))
	copy(c, dts)
	return c
}

func sameTypes(a, b []dtypes.DType) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
