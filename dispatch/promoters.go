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

// DefaultPromoter is the generic fallback for homogeneous operations
// with at least two inputs: it rewrites every unconstrained slot to
// the common type of the inputs (or to the signature's homogeneous
// output type, when the caller fixed one). A reduction with an elided
// input broadcasts the remaining input type to all slots.
func DefaultPromoter(h Hierarchy, op *Operation, dts, sig []dtypes.DType) ([]dtypes.DType, error) {
	nin, nargs := op.Nin(), op.Nargs()
	if nin < 2 {
		// Promotion over a single input is a no-op; the promoter
		// should not have been registered.
		return nil, errors.Wrapf(ErrPromotionRefused, "%s has a single input", op.Name())
	}
	newTypes := cloneTypes(dts)
	if dts[0] == dtypes.Nil {
		if nin != 2 || op.Nout() != 1 {
			return nil, errors.Wrapf(ErrPromotionRefused, "%s is not reducible", op.Name())
		}
		for i := range newTypes {
			newTypes[i] = dts[1]
		}
		return newTypes, nil
	}

	// A signature homogeneous in its outputs fixes the common type.
	common := dtypes.Nil
	for i := nin; i < nargs; i++ {
		if sig[i] == dtypes.Nil {
			continue
		}
		if common == dtypes.Nil {
			common = sig[i]
		} else if common != sig[i] {
			common = dtypes.Nil
			break
		}
	}
	if common == dtypes.Nil {
		var ok bool
		common, ok = h.CommonType(dts[:nin]...)
		if !ok {
			return nil, errors.Wrapf(ErrPromotionRefused, "no common type for %s", typesString(h, dts[:nin]))
		}
	}
	for i := 0; i < nargs; i++ {
		if sig[i] != dtypes.Nil {
			// Never replace a slot the caller fixed.
			newTypes[i] = sig[i]
		} else {
			newTypes[i] = common
		}
	}
	return newTypes, nil
}

// ObjectOnlyPromoter returns a promoter for operations whose only
// implementation operates uniformly on the generic boxed type: every
// unconstrained slot becomes object, regardless of the operand types.
func ObjectOnlyPromoter(object dtypes.DType) Promoter {
	return func(h Hierarchy, op *Operation, dts, sig []dtypes.DType) ([]dtypes.DType, error) {
		newTypes := cloneTypes(dts)
		for i := range newTypes {
			if sig[i] == dtypes.Nil {
				newTypes[i] = object
			}
		}
		return newTypes, nil
	}
}

// LogicalPromoter returns the promoter for boolean-producing binary
// operations, which can always run their bool loop whatever the input
// types are. isTextual reports classes whose cast to bool is too
// surprising to infer; queries involving them are refused and left to
// the legacy path, as are calls fixing only the output to something
// other than bool (a preserved deprecation window).
func LogicalPromoter(boolType, object dtypes.DType, isTextual func(dtypes.DType) bool) Promoter {
	return func(h Hierarchy, op *Operation, dts, sig []dtypes.DType) ([]dtypes.DType, error) {
		if sig[0] == dtypes.Nil && sig[1] == dtypes.Nil &&
			sig[2] != dtypes.Nil && sig[2] != boolType {
			return nil, errors.Wrapf(ErrPromotionRefused, "output of %s fixed to %s", op.Name(), h.Name(sig[2]))
		}
		if (dts[0] != dtypes.Nil && isTextual(dts[0])) ||
			(dts[1] != dtypes.Nil && isTextual(dts[1])) {
			return nil, errors.Wrapf(ErrPromotionRefused, "%s does not infer boolean casts for textual types", op.Name())
		}

		// If any slot is the generic boxed type, the object loop must
		// run after all, unless the caller's output forbids it.
		forceObject := false
		newTypes := make([]dtypes.DType, 3)
		for i := 0; i < 3; i++ {
			if sig[i] != dtypes.Nil {
				newTypes[i] = sig[i]
				if sig[i] == object {
					forceObject = true
				}
				continue
			}
			newTypes[i] = boolType
			if dts[i] == object {
				forceObject = true
			}
		}
		if !forceObject || (dts[2] != dtypes.Nil && dts[2] != object) {
			return newTypes, nil
		}
		for i := 0; i < 3; i++ {
			if sig[i] != dtypes.Nil {
				continue
			}
			newTypes[i] = object
		}
		return newTypes, nil
	}
}
