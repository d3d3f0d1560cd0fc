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
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/numgrid/umath/dtypes"
)

// ErrPromotionRefused is returned by a promoter to abstain: the
// promoter does not apply and resolution falls through, typically to
// the legacy resolver. It is not a failure of resolution itself.
var ErrPromotionRefused = errors.New("promotion refused")

// RegistrationError reports a malformed or conflicting loop
// registration.
type RegistrationError struct {
	// Op is the operation name.
	Op string
	// Reason describes what was wrong with the registration.
	Reason string
}

// Error returns the error message.
func (e *RegistrationError) Error() string {
	return fmt.Sprintf("cannot register loop for %s: %s", e.Op, e.Reason)
}

// NoMatchError reports that no loop, promoter chain, or legacy
// fallback produced an implementation for an operand type tuple.
type NoMatchError struct {
	// Op is the operation name.
	Op string
	// DTypes is the queried operand type tuple.
	DTypes []dtypes.DType
	// Types is the rendered operand type tuple.
	Types string
}

// Error returns the error message.
func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no implementation of %s found for operand types %s", e.Op, e.Types)
}

// AmbiguousError reports that two registered patterns matched an
// operand type tuple equally well. This is a registration authoring
// defect: promoters must be designed to disambiguate such queries.
type AmbiguousError struct {
	// Op is the operation name.
	Op string
	// Types is the rendered operand type tuple.
	Types string
	// First and Second are the rendered competing patterns.
	First, Second string
	// FirstPattern and SecondPattern are the competing patterns.
	FirstPattern, SecondPattern []dtypes.DType
}

// Error returns the error message.
func (e *AmbiguousError) Error() string {
	return fmt.Sprintf(
		"cannot resolve %s for operand types %s: the patterns %s and %s match the query equally well and must be disambiguated by a promoter",
		e.Op, e.Types, e.First, e.Second)
}

// AbstractOrderError reports that the matcher had to order two
// different abstract type classes against each other, which is not
// implemented.
type AbstractOrderError struct {
	// Op is the operation name.
	Op string
	// First and Second are the rendered abstract classes.
	First, Second string
}

// Error returns the error message.
func (e *AbstractOrderError) Error() string {
	return fmt.Sprintf(
		"cannot resolve %s: deciding whether abstract type class %s or %s is a better match is not implemented",
		e.Op, e.First, e.Second)
}

// ConvergenceError reports a promoter chain that kept rewriting the
// operand types without reaching a registered implementation within
// the recursion bound.
type ConvergenceError struct {
	// Op is the operation name.
	Op string
	// Depth is the recursion bound that was exhausted.
	Depth int
}

// Error returns the error message.
func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("promotion for %s did not converge after %d rewrites", e.Op, e.Depth)
}

// typesString renders a type tuple for error messages.
func typesString(h Hierarchy, dts []dtypes.DType) string {
	names := make([]string, len(dts))
	for i, dt := range dts {
		names[i] = h.Name(dt)
	}
	return "(" + strings.Join(names, ", ") + ")"
}
