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
	"github.com/pkg/errors"

	"github.com/numgrid/umath/dtypes"
)

// promotionDepthLimit bounds the promoter rewrite chain of a single
// resolution. Promoters are contracted to make the operand types
// strictly more specific on each rewrite, so a well-formed chain
// converges long before this; the bound turns an authoring mistake
// into a ConvergenceError instead of unbounded recursion.
const promotionDepthLimit = 32

// ResolveOptions carries the per-call switches of Resolve.
type ResolveOptions struct {
	// EnsureReduceCompatible is set by reduction callers, which leave
	// signature slot 0 unset. If the resolved loop's output type
	// differs from its first input type, slot 0 of the signature is
	// forced to the output type and resolution runs once more.
	EnsureReduceCompatible bool
	// AllowLegacy enables the single legacy-resolver fallback when no
	// registered loop or promoter chain matches.
	AllowLegacy bool
	// Operands is passed through opaquely to the legacy resolver.
	Operands any
}

// Resolve picks the kernel to run for an operand type tuple.
//
// The signature holds the types fixed explicitly by the caller; fixed
// slots override the operand types. On success Resolve returns the
// fully determined signature alongside the kernel. Neither input slice
// is modified.
func (op *Operation) Resolve(opTypes, signature []dtypes.DType, opts ResolveOptions) ([]dtypes.DType, Kernel, error) {
	nargs := op.Nargs()
	if len(opTypes) != nargs {
		return nil, nil, errors.Errorf("%s expects %d operand types, got %d", op.name, nargs, len(opTypes))
	}
	if len(signature) != nargs {
		return nil, nil, errors.Errorf("%s expects a signature with %d slots, got %d", op.name, nargs, len(signature))
	}
	sig := cloneTypes(signature)
	dts := cloneTypes(opTypes)
	// Overlay the signature: fixed slots cannot be promoted, and
	// outputs not fixed by the caller never constrain matching.
	for i := 0; i < nargs; i++ {
		if sig[i] != dtypes.Nil {
			dts[i] = sig[i]
		} else if i >= op.nin {
			dts[i] = dtypes.Nil
		}
	}

	loop, err := op.promoteAndResolve(opts.Operands, sig, dts, opts.AllowLegacy, 0)
	if err != nil {
		return nil, nil, err
	}
	if loop == nil {
		return nil, nil, &NoMatchError{
			Op:     op.name,
			DTypes: dts,
			Types:  typesString(op.hierarchy, dts),
		}
	}

	pattern := loop.pattern
	if opts.EnsureReduceCompatible && sig[0] == dtypes.Nil &&
		pattern[0] != pattern[nargs-1] {
		// The loop is not reduce-compatible. Assume its output type is
		// the one to accumulate with, fix it in the signature and
		// resolve once more (never twice, to avoid a correction loop).
		sig[0] = pattern[nargs-1]
		next := opts
		next.EnsureReduceCompatible = false
		return op.Resolve(opTypes, sig, next)
	}

	for i := 0; i < nargs; i++ {
		if sig[i] == dtypes.Nil {
			sig[i] = pattern[i]
		}
	}
	return sig, loop.kernel, nil
}

// promoteAndResolve is the recursive core of resolution: cache probe,
// registry scan, promoter rewrite, legacy fallback. It returns nil
// without an error when nothing matched.
func (op *Operation) promoteAndResolve(operands any, sig, dts []dtypes.DType, allowLegacy bool, depth int) (*Loop, error) {
	if depth > promotionDepthLimit {
		return nil, &ConvergenceError{Op: op.name, Depth: depth}
	}

	loop := op.cache.load(dts)
	if loop != nil && !loop.IsPromoter() {
		return loop, nil
	}
	if loop == nil {
		var err error
		loop, err = op.bestLoop(dts, false)
		if err != nil {
			return nil, err
		}
		if loop != nil {
			// Promoter hits are cached too: a repeated query skips the
			// registry scan and goes straight to the rewrite.
			op.cache.store(dts, loop)
			if !loop.IsPromoter() {
				return loop, nil
			}
		}
	}

	if loop != nil {
		resolved, err := op.promoteAndRecurse(loop.promoter, operands, sig, dts, depth)
		if err != nil {
			return nil, err
		}
		if resolved != nil {
			// Cache under the original, pre-rewrite operand types.
			op.cache.store(dts, resolved)
			return resolved, nil
		}
	}

	// Even promotion found no loop. Give the legacy resolver its one
	// chance per top-level resolution.
	if !allowLegacy || op.legacy == nil {
		return nil, nil
	}
	newTypes, cacheable, err := op.legacyPromote(operands, sig)
	if err != nil {
		return nil, err
	}
	resolved, err := op.promoteAndResolve(operands, sig, newTypes, false, depth+1)
	if err != nil || resolved == nil {
		return resolved, err
	}
	if cacheable {
		op.cache.store(dts, resolved)
	}
	return resolved, nil
}

// promoteAndRecurse invokes a promoter and resolves the rewritten
// tuple. A refusal, or a rewrite that changed nothing (which would
// recurse forever), both report "nothing matched" without an error.
func (op *Operation) promoteAndRecurse(p Promoter, operands any, sig, dts []dtypes.DType, depth int) (*Loop, error) {
	newTypes, err := p(op.hierarchy, op, cloneTypes(dts), cloneTypes(sig))
	if err != nil {
		if errors.Is(err, ErrPromotionRefused) {
			return nil, nil
		}
		return nil, err
	}
	if len(newTypes) != op.Nargs() {
		return nil, errors.Errorf("promoter for %s returned %d operand types, want %d", op.name, len(newTypes), op.Nargs())
	}
	if sameTypes(newTypes, dts) {
		return nil, nil
	}
	return op.promoteAndResolve(operands, sig, newTypes, false, depth+1)
}

// legacyPromote runs the legacy resolver on a copy of the signature and
// applies its in-place edits explicitly. A fixed signature slot the
// resolver overrode carries a deprecation behavior that must not be
// cached.
func (op *Operation) legacyPromote(operands any, sig []dtypes.DType) ([]dtypes.DType, bool, error) {
	sigCopy := cloneTypes(sig)
	newTypes, cacheable, err := op.legacy.Resolve(operands, sigCopy)
	if err != nil {
		return nil, false, errors.Wrapf(err, "legacy resolution of %s failed", op.name)
	}
	if len(newTypes) != op.Nargs() {
		return nil, false, errors.Errorf("legacy resolver for %s returned %d operand types, want %d", op.name, len(newTypes), op.Nargs())
	}
	for i := range sig {
		if sigCopy[i] != sig[i] {
			sig[i] = sigCopy[i]
		}
	}
	for i := range sig {
		if sig[i] != dtypes.Nil && sig[i] != newTypes[i] {
			sig[i] = newTypes[i]
			cacheable = false
		}
	}
	return newTypes, cacheable, nil
}
