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

package dispatch_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/numgrid/umath/dispatch"
	"github.com/numgrid/umath/dtypes"
)

func TestPromoterNoProgressAborts(t *testing.T) {
	tt := newTestTypes(t)
	op := tt.newOperation(t, "stuck")
	identity := func(h dispatch.Hierarchy, op *dispatch.Operation, dts, sig []dtypes.DType) ([]dtypes.DType, error) {
		return dts, nil
	}
	tt.mustPromoter(t, op, make(dispatch.Pattern, 3), identity)

	// A promoter that changes nothing would recurse forever; it is
	// treated as "no match" instead.
	_, _, err := op.Resolve(
		[]dtypes.DType{tt.int32T, tt.int32T, dtypes.Nil},
		nilSignature(op), dispatch.ResolveOptions{})
	noMatch := &dispatch.NoMatchError{}
	if !errorAs(err, &noMatch) {
		t.Fatalf("got error %v but want a NoMatchError", err)
	}
}

func TestPromoterDoesNotConverge(t *testing.T) {
	tt := newTestTypes(t)
	op := tt.newOperation(t, "oscillate")
	flip := func(h dispatch.Hierarchy, op *dispatch.Operation, dts, sig []dtypes.DType) ([]dtypes.DType, error) {
		next := tt.int64T
		if dts[0] == tt.int64T {
			next = tt.int32T
		}
		return []dtypes.DType{next, next, next}, nil
	}
	tt.mustPromoter(t, op, make(dispatch.Pattern, 3), flip)

	_, _, err := op.Resolve(
		[]dtypes.DType{tt.int32T, tt.int32T, dtypes.Nil},
		nilSignature(op), dispatch.ResolveOptions{})
	conv := &dispatch.ConvergenceError{}
	if !errorAs(err, &conv) {
		t.Fatalf("got error %v but want a ConvergenceError", err)
	}
}

func TestPromoterRefusalFallsThrough(t *testing.T) {
	tt := newTestTypes(t)
	op := tt.newOperation(t, "refuse")
	refusing := func(h dispatch.Hierarchy, op *dispatch.Operation, dts, sig []dtypes.DType) ([]dtypes.DType, error) {
		return nil, dispatch.ErrPromotionRefused
	}
	tt.mustPromoter(t, op, make(dispatch.Pattern, 3), refusing)
	tt.mustLoop(t, op, dispatch.Pattern{tt.float64T, tt.float64T, tt.float64T}, "f64")

	legacy := &stubLegacy{types: []dtypes.DType{tt.float64T, tt.float64T, tt.float64T}, cacheable: true}
	op.SetLegacyResolver(legacy)

	_, kernel, err := op.Resolve(
		[]dtypes.DType{tt.int32T, tt.int32T, dtypes.Nil},
		nilSignature(op), dispatch.ResolveOptions{AllowLegacy: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := "f64"; kernel.Name() != want {
		t.Errorf("resolved kernel %s but want %s", kernel.Name(), want)
	}
	if legacy.calls != 1 {
		t.Errorf("legacy resolver called %d times but want 1", legacy.calls)
	}
}

type stubLegacy struct {
	types     []dtypes.DType
	cacheable bool
	calls     int
	err       error
}

func (s *stubLegacy) Resolve(operands any, sig []dtypes.DType) ([]dtypes.DType, bool, error) {
	s.calls++
	if s.err != nil {
		return nil, false, s.err
	}
	return s.types, s.cacheable, nil
}

func TestLegacyFallbackOnce(t *testing.T) {
	tt := newTestTypes(t)
	op := tt.newOperation(t, "legacy")
	// The legacy answer matches nothing either: the fallback must be
	// tried exactly once per resolution, then fail.
	legacy := &stubLegacy{types: []dtypes.DType{tt.int64T, tt.int64T, tt.int64T}, cacheable: true}
	op.SetLegacyResolver(legacy)

	_, _, err := op.Resolve(
		[]dtypes.DType{tt.int32T, tt.int32T, dtypes.Nil},
		nilSignature(op), dispatch.ResolveOptions{AllowLegacy: true})
	noMatch := &dispatch.NoMatchError{}
	if !errorAs(err, &noMatch) {
		t.Fatalf("got error %v but want a NoMatchError", err)
	}
	if legacy.calls != 1 {
		t.Errorf("legacy resolver called %d times but want 1", legacy.calls)
	}
}

func TestLegacyDisabled(t *testing.T) {
	tt := newTestTypes(t)
	op := tt.newOperation(t, "legacy")
	tt.mustLoop(t, op, dispatch.Pattern{tt.float64T, tt.float64T, tt.float64T}, "f64")
	legacy := &stubLegacy{types: []dtypes.DType{tt.float64T, tt.float64T, tt.float64T}, cacheable: true}
	op.SetLegacyResolver(legacy)

	_, _, err := op.Resolve(
		[]dtypes.DType{tt.int32T, tt.int32T, dtypes.Nil},
		nilSignature(op), dispatch.ResolveOptions{AllowLegacy: false})
	noMatch := &dispatch.NoMatchError{}
	if !errorAs(err, &noMatch) {
		t.Fatalf("got error %v but want a NoMatchError", err)
	}
	if legacy.calls != 0 {
		t.Errorf("legacy resolver called %d times but want 0", legacy.calls)
	}
}

func TestLegacySignatureOverride(t *testing.T) {
	tt := newTestTypes(t)
	op := tt.newOperation(t, "compare")
	tt.mustLoop(t, op, dispatch.Pattern{tt.float64T, tt.float64T, tt.float64T}, "f64")
	legacy := &stubLegacy{types: []dtypes.DType{tt.float64T, tt.float64T, tt.float64T}, cacheable: true}
	op.SetLegacyResolver(legacy)

	// The legacy resolver overrides the fixed output slot: the quirk
	// is accepted, and the result is marked deprecation-sensitive.
	sig := []dtypes.DType{dtypes.Nil, dtypes.Nil, tt.int64T}
	got, kernel, err := op.Resolve(
		[]dtypes.DType{tt.int32T, tt.int32T, dtypes.Nil}, sig,
		dispatch.ResolveOptions{AllowLegacy: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := "f64"; kernel.Name() != want {
		t.Errorf("resolved kernel %s but want %s", kernel.Name(), want)
	}
	if got[2] != tt.float64T {
		t.Errorf("signature slot 2 is %s but want float64", tt.universe.Name(got[2]))
	}
}

func TestObjectOnlyPromoter(t *testing.T) {
	tt := newTestTypes(t)
	op := tt.newOperation(t, "boxed")
	tt.mustLoop(t, op, dispatch.Pattern{tt.object, tt.object, tt.object}, "boxed_object")
	tt.mustPromoter(t, op, make(dispatch.Pattern, 3), dispatch.ObjectOnlyPromoter(tt.object))

	sig, kernel, err := op.Resolve(
		[]dtypes.DType{tt.int32T, tt.float64T, dtypes.Nil},
		nilSignature(op), dispatch.ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := "boxed_object"; kernel.Name() != want {
		t.Errorf("resolved kernel %s but want %s", kernel.Name(), want)
	}
	want := []dtypes.DType{tt.object, tt.object, tt.object}
	if !cmp.Equal(sig, want) {
		t.Errorf("signature mismatch (-got +want):\n%s", cmp.Diff(sig, want))
	}
}

func TestLogicalPromoter(t *testing.T) {
	tt := newTestTypes(t)
	isTextual := func(dt dtypes.DType) bool { return dt == tt.str }

	newLogical := func(t *testing.T) *dispatch.Operation {
		op := tt.newOperation(t, "logical_and")
		tt.mustLoop(t, op, dispatch.Pattern{tt.boolT, tt.boolT, tt.boolT}, "and_bool")
		tt.mustLoop(t, op, dispatch.Pattern{tt.object, tt.object, tt.object}, "and_object")
		tt.mustPromoter(t, op, make(dispatch.Pattern, 3),
			dispatch.LogicalPromoter(tt.boolT, tt.object, isTextual))
		return op
	}

	tests := []struct {
		name    string
		dts     []dtypes.DType
		sig     []dtypes.DType
		kernel  string
		noMatch bool
	}{
		{
			name:   "numeric inputs default to bool",
			dts:    []dtypes.DType{tt.int32T, tt.int64T, dtypes.Nil},
			kernel: "and_bool",
		},
		{
			name:   "reduction defaults to bool",
			dts:    []dtypes.DType{dtypes.Nil, tt.int32T, dtypes.Nil},
			kernel: "and_bool",
		},
		{
			name:   "object input escalates to object",
			dts:    []dtypes.DType{tt.object, tt.int32T, dtypes.Nil},
			kernel: "and_object",
		},
		{
			name:   "object output in signature escalates",
			dts:    []dtypes.DType{tt.int32T, tt.int32T, dtypes.Nil},
			sig:    []dtypes.DType{dtypes.Nil, dtypes.Nil, tt.object},
			kernel: "and_object",
		},
		{
			// Deprecation window: only the output fixed, and fixed to
			// something other than bool, defers to the legacy path.
			name:    "non-bool output refused",
			dts:     []dtypes.DType{tt.int32T, tt.int32T, dtypes.Nil},
			sig:     []dtypes.DType{dtypes.Nil, dtypes.Nil, tt.int64T},
			noMatch: true,
		},
		{
			name:    "textual input refused",
			dts:     []dtypes.DType{tt.str, tt.int32T, dtypes.Nil},
			noMatch: true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			op := newLogical(t)
			sig := test.sig
			if sig == nil {
				sig = nilSignature(op)
			}
			_, kernel, err := op.Resolve(test.dts, sig, dispatch.ResolveOptions{})
			if test.noMatch {
				noMatch := &dispatch.NoMatchError{}
				if !errorAs(err, &noMatch) {
					t.Fatalf("got error %v but want a NoMatchError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if kernel.Name() != test.kernel {
				t.Errorf("resolved kernel %s but want %s", kernel.Name(), test.kernel)
			}
		})
	}
}

func TestDefaultPromoterReduction(t *testing.T) {
	tt := newTestTypes(t)
	op := tt.newOperation(t, "add")
	tt.mustLoop(t, op, dispatch.Pattern{tt.float64T, tt.float64T, tt.float64T}, "add_float64")
	tt.mustPromoter(t, op, make(dispatch.Pattern, 3), dispatch.DefaultPromoter)

	// A reduction over int32 with the output fixed to float64: the
	// promoter first broadcasts the remaining input type, then widens
	// everything to the fixed output.
	sig, kernel, err := op.Resolve(
		[]dtypes.DType{dtypes.Nil, tt.int32T, dtypes.Nil},
		[]dtypes.DType{dtypes.Nil, dtypes.Nil, tt.float64T},
		dispatch.ResolveOptions{EnsureReduceCompatible: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := "add_float64"; kernel.Name() != want {
		t.Errorf("resolved kernel %s but want %s", kernel.Name(), want)
	}
	want := []dtypes.DType{tt.float64T, tt.float64T, tt.float64T}
	if !cmp.Equal(sig, want) {
		t.Errorf("signature mismatch (-got +want):\n%s", cmp.Diff(sig, want))
	}
}

func TestResolveCachesResolution(t *testing.T) {
	tt := newTestTypes(t)
	op := tt.newOperation(t, "add")
	tt.mustLoop(t, op, dispatch.Pattern{tt.int32T, tt.int32T, tt.int32T}, "add_int32")

	for i := 0; i < 2; i++ {
		_, kernel, err := op.Resolve(
			[]dtypes.DType{tt.int32T, tt.int32T, dtypes.Nil},
			nilSignature(op), dispatch.ResolveOptions{})
		if err != nil {
			t.Fatalf("Resolve #%d: %v", i, err)
		}
		if want := "add_int32"; kernel.Name() != want {
			t.Errorf("Resolve #%d: resolved kernel %s but want %s", i, kernel.Name(), want)
		}
	}
	if got, want := op.CacheSize(), 1; got != want {
		t.Errorf("cache holds %d tuples but want %d", got, want)
	}
}

func TestResolveCachesPromoterRewrite(t *testing.T) {
	tt := newTestTypes(t)
	op := tt.newOperation(t, "add")
	tt.mustLoop(t, op, dispatch.Pattern{tt.float64T, tt.float64T, tt.float64T}, "add_float64")
	tt.mustPromoter(t, op, make(dispatch.Pattern, 3), dispatch.DefaultPromoter)

	_, _, err := op.Resolve(
		[]dtypes.DType{tt.int32T, tt.float64T, dtypes.Nil},
		nilSignature(op), dispatch.ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Both the original tuple and the promoted one are cached.
	if got, want := op.CacheSize(), 2; got != want {
		t.Errorf("cache holds %d tuples but want %d", got, want)
	}
}

func TestLegacyResultCaching(t *testing.T) {
	tt := newTestTypes(t)

	newLegacyOp := func(t *testing.T, cacheable bool) (*dispatch.Operation, *stubLegacy) {
		op := tt.newOperation(t, "legacy")
		tt.mustLoop(t, op, dispatch.Pattern{tt.float64T, tt.float64T, tt.float64T}, "f64")
		legacy := &stubLegacy{types: []dtypes.DType{tt.float64T, tt.float64T, tt.float64T}, cacheable: cacheable}
		op.SetLegacyResolver(legacy)
		return op, legacy
	}
	resolve := func(t *testing.T, op *dispatch.Operation) {
		t.Helper()
		_, _, err := op.Resolve(
			[]dtypes.DType{tt.int32T, tt.int32T, dtypes.Nil},
			nilSignature(op), dispatch.ResolveOptions{AllowLegacy: true})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}

	t.Run("cacheable", func(t *testing.T) {
		op, legacy := newLegacyOp(t, true)
		resolve(t, op)
		resolve(t, op)
		if legacy.calls != 1 {
			t.Errorf("legacy resolver called %d times but want 1", legacy.calls)
		}
		if got, want := op.CacheSize(), 2; got != want {
			t.Errorf("cache holds %d tuples but want %d", got, want)
		}
	})
	t.Run("not cacheable", func(t *testing.T) {
		op, legacy := newLegacyOp(t, false)
		resolve(t, op)
		resolve(t, op)
		// Only the promoted tuple is cached; the original one goes
		// through the legacy resolver every time.
		if legacy.calls != 2 {
			t.Errorf("legacy resolver called %d times but want 2", legacy.calls)
		}
		if got, want := op.CacheSize(), 1; got != want {
			t.Errorf("cache holds %d tuples but want %d", got, want)
		}
	})
}

func TestDefaultPromoterNoCommonType(t *testing.T) {
	tt := newTestTypes(t)
	op := tt.newOperation(t, "add")
	tt.mustLoop(t, op, dispatch.Pattern{tt.int32T, tt.int32T, tt.int32T}, "add_int32")
	tt.mustPromoter(t, op, make(dispatch.Pattern, 3), dispatch.DefaultPromoter)

	// string has no common type with int32: the promoter abstains and
	// resolution fails cleanly.
	_, _, err := op.Resolve(
		[]dtypes.DType{tt.str, tt.int32T, dtypes.Nil},
		nilSignature(op), dispatch.ResolveOptions{})
	noMatch := &dispatch.NoMatchError{}
	if !errorAs(err, &noMatch) {
		t.Fatalf("got error %v but want a NoMatchError", err)
	}
}
