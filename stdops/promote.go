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

package stdops

import (
	"github.com/pkg/errors"

	"github.com/numgrid/umath/dispatch"
	"github.com/numgrid/umath/dtypes"
)

// widenRank orders the numeric kinds along a simple widening ladder.
// Mixing signed and unsigned integers of the same width promotes to
// the wider operand rather than to a larger signed type; the catalog
// accepts this simplification.
var widenRank = map[dtypes.Kind]int{
	dtypes.Bool:    1,
	dtypes.Int8:    2,
	dtypes.Uint8:   3,
	dtypes.Int16:   4,
	dtypes.Uint16:  5,
	dtypes.Int32:   6,
	dtypes.Uint32:  7,
	dtypes.Int64:   8,
	dtypes.Uint64:  9,
	dtypes.Float32: 10,
	dtypes.Float64: 11,
}

// widenRule is the pairwise promotion rule of the standard catalog:
// object absorbs everything, textual classes promote only with
// themselves, and numeric classes widen along the ladder.
func widenRule(u *dtypes.Universe) dtypes.CommonTypeFunc {
	return func(a, b dtypes.DType) (dtypes.DType, bool) {
		ka, kb := u.Kind(a), u.Kind(b)
		if ka == dtypes.Object {
			return a, true
		}
		if kb == dtypes.Object {
			return b, true
		}
		if dtypes.IsTextualKind(ka) || dtypes.IsTextualKind(kb) {
			return dtypes.Nil, false
		}
		ra, oka := widenRank[ka]
		rb, okb := widenRank[kb]
		if !oka || !okb {
			return dtypes.Nil, false
		}
		if ra >= rb {
			return a, true
		}
		return b, true
	}
}

// comparePromoter rewrites a mixed-type comparison to the common type
// of its inputs with a bool output, so that the homogeneous comparison
// loops can serve it.
func comparePromoter(boolType dtypes.DType) dispatch.Promoter {
	return func(h dispatch.Hierarchy, op *dispatch.Operation, dts, sig []dtypes.DType) ([]dtypes.DType, error) {
		nin, nargs := op.Nin(), op.Nargs()
		if dts[0] == dtypes.Nil {
			return nil, errors.Wrapf(dispatch.ErrPromotionRefused, "%s is not reducible", op.Name())
		}
		common, ok := h.CommonType(dts[:nin]...)
		if !ok {
			return nil, errors.Wrapf(dispatch.ErrPromotionRefused, "no common type for the inputs of %s", op.Name())
		}
		newTypes := make([]dtypes.DType, nargs)
		for i := 0; i < nargs; i++ {
			switch {
			case sig[i] != dtypes.Nil:
				newTypes[i] = sig[i]
			case i < nin:
				newTypes[i] = common
			default:
				newTypes[i] = boolType
			}
		}
		return newTypes, nil
	}
}
