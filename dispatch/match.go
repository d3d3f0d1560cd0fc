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

// Candidate ordering verdicts while comparing two matching loops.
const (
	betterNeither = -1 // no information, or conflicting slot votes
	betterPrev    = 0
	betterNew     = 1
)

// bestLoop scans the registry in registration order and returns the
// single loop matching dts that is strictly better than every other
// matching loop. It returns nil when nothing matches. When two loops
// match equally well, the scan is retried once restricted to promoters
// (which are expected to disambiguate what raw kernels cannot); the
// retry's result stands even when it is empty, so that the caller can
// still fall back to the legacy resolver. Only a tie between promoters
// themselves is an AmbiguousError.
func (op *Operation) bestLoop(dts []dtypes.DType, promotersOnly bool) (*Loop, error) {
	var best *Loop
	for _, loop := range op.loops.loops {
		if promotersOnly && !loop.IsPromoter() {
			continue
		}
		matches, err := op.loopMatches(loop, dts)
		if err != nil {
			return nil, err
		}
		if !matches {
			continue
		}
		if best != nil {
			verdict, err := op.betterLoop(best, loop, dts)
			if err != nil {
				return nil, err
			}
			switch verdict {
			case betterNeither:
				if !promotersOnly {
					return op.bestLoop(dts, true)
				}
				return nil, &AmbiguousError{
					Op:            op.name,
					Types:         typesString(op.hierarchy, dts),
					First:         typesString(op.hierarchy, best.pattern),
					Second:        typesString(op.hierarchy, loop.pattern),
					FirstPattern:  best.Pattern(),
					SecondPattern: loop.Pattern(),
				}
			case betterPrev:
				continue
			}
		}
		best = loop
	}
	return best, nil
}

// loopMatches reports whether every slot of the loop's pattern accepts
// the corresponding operand type.
func (op *Operation) loopMatches(loop *Loop, dts []dtypes.DType) (bool, error) {
	nargs := op.Nargs()
	for i := 0; i < nargs; i++ {
		pat := loop.pattern[i]
		if pat == dtypes.Nil {
			// Wildcard slots match unconditionally.
			continue
		}
		given := dts[i]
		if given == dtypes.Nil {
			if i >= op.nin {
				// Unspecified outputs always match.
				continue
			}
			// An unset input stands for the elided operand of a
			// reduction, which only reduce-compatible loops
			// (first and last slot coincide) can serve.
			if loop.pattern[0] == loop.pattern[nargs-1] {
				continue
			}
			return false, nil
		}
		if given == pat {
			continue
		}
		if !op.hierarchy.IsAbstract(pat) {
			// A concrete pattern slot matches only itself.
			return false, nil
		}
		sub, err := op.hierarchy.IsSubclass(given, pat)
		if err != nil {
			return false, err
		}
		if !sub {
			return false, nil
		}
	}
	return true, nil
}

// betterLoop orders two matching loops against the queried types.
// Slots vote one at a time; input slots have priority and output slots
// are only consulted when no input slot decided anything. All votes in
// one comparison must agree, otherwise there is no clear winner.
func (op *Operation) betterLoop(prev, next *Loop, dts []dtypes.DType) (int, error) {
	current := betterNeither
	for i := 0; i < op.Nargs(); i++ {
		if i == op.nin && current != betterNeither {
			// The inputs prefer one loop; outputs have lower priority.
			break
		}
		prevT := prev.pattern[i]
		nextT := next.pattern[i]
		if prevT == nextT {
			continue
		}
		if dts[i] == dtypes.Nil {
			// An unset operand slot matches anything, so neither
			// pattern is more specific here.
			continue
		}
		var vote int
		switch {
		case prevT == dtypes.Nil:
			vote = betterNew
		case nextT == dtypes.Nil:
			vote = betterPrev
		case !op.hierarchy.IsAbstract(prevT) && !op.hierarchy.IsAbstract(nextT):
			// Two different concrete classes are ambiguous unless one
			// of them is the queried type exactly.
			switch dts[i] {
			case prevT:
				vote = betterPrev
			case nextT:
				vote = betterNew
			default:
				vote = betterNeither
			}
		case !op.hierarchy.IsAbstract(prevT):
			vote = betterPrev
		case !op.hierarchy.IsAbstract(nextT):
			vote = betterNew
		default:
			// Ordering two distinct abstract classes needs their
			// subclass relation; bail out instead of guessing.
			return 0, &AbstractOrderError{
				Op:     op.name,
				First:  op.hierarchy.Name(prevT),
				Second: op.hierarchy.Name(nextT),
			}
		}
		if vote == betterNeither {
			continue
		}
		if current != betterNeither && current != vote {
			return betterNeither, nil
		}
		current = vote
	}
	return current, nil
}
