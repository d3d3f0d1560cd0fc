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

// umath-loops prints the loop table of a catalog operation and, given
// operand type names, explains how an operand tuple resolves.
//
// Usage:
//
//	umath-loops                     list the catalog operations
//	umath-loops -op add             print the loop table of add
//	umath-loops -op add int32 float64
//	                                resolve add for the given inputs
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/numgrid/umath/dispatch"
	"github.com/numgrid/umath/dtypes"
	"github.com/numgrid/umath/stdops"
)

var opName = flag.String("op", "", "operation to inspect")

type printer struct {
	colored bool
}

func (p printer) colorize(code, s string) string {
	if !p.colored {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}

func (p printer) kernel(s string) string   { return p.colorize("32", s) }
func (p printer) promoter(s string) string { return p.colorize("33", s) }

func patternString(u *dtypes.Universe, pattern dispatch.Pattern) string {
	names := make([]string, len(pattern))
	for i, dt := range pattern {
		if dt == dtypes.Nil {
			names[i] = "*"
			continue
		}
		names[i] = u.Name(dt)
	}
	return "(" + strings.Join(names, ", ") + ")"
}

func printLoops(p printer, table *stdops.Table, op *dispatch.Operation) {
	fmt.Printf("%s: %d input(s), %d output(s)\n", op.Name(), op.Nin(), op.Nout())
	for _, loop := range op.Loops() {
		target := p.promoter("promoter")
		if !loop.IsPromoter() {
			target = p.kernel(loop.Kernel().Name())
		}
		fmt.Printf("  %-40s -> %s\n", patternString(table.Universe(), loop.Pattern()), target)
	}
}

func resolve(p printer, table *stdops.Table, op *dispatch.Operation, names []string) error {
	if len(names) != op.Nin() {
		return fmt.Errorf("%s takes %d input type(s), got %d", op.Name(), op.Nin(), len(names))
	}
	u := table.Universe()
	dts := make([]dtypes.DType, op.Nargs())
	for i, name := range names {
		dts[i] = u.Lookup(name)
		if dts[i] == dtypes.Nil {
			return fmt.Errorf("unknown type class %s", name)
		}
	}
	signature := make([]dtypes.DType, op.Nargs())
	sig, kernel, err := op.Resolve(dts, signature, dispatch.ResolveOptions{})
	if err != nil {
		return err
	}
	fmt.Printf("%s%s -> %s\n",
		op.Name(), patternString(u, dispatch.Pattern(sig)), p.kernel(kernel.Name()))
	return nil
}

func run(p printer, args []string) error {
	table, err := stdops.New()
	if err != nil {
		return err
	}
	if *opName == "" {
		for _, name := range table.Names() {
			fmt.Println(name)
		}
		return nil
	}
	op := table.Operation(*opName)
	if op == nil {
		return fmt.Errorf("unknown operation %s (run without arguments to list the catalog)", *opName)
	}
	if len(args) == 0 {
		printLoops(p, table, op)
		return nil
	}
	return resolve(p, table, op, args)
}

func main() {
	flag.Parse()
	p := printer{colored: isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())}
	if err := run(p, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "umath-loops:", err)
		os.Exit(1)
	}
}
