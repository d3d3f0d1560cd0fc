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

// Package stdops builds the standard catalog of elementwise operations
// from a declarative YAML table: the numeric type tower, arithmetic and
// logical operations with their typed loops, and the promoters wired to
// each operation.
package stdops

import (
	_ "embed"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/numgrid/umath/dispatch"
	"github.com/numgrid/umath/dtypes"
)

//go:embed ops.yaml
var opsYAML []byte

type (
	classDecl struct {
		Name  string   `yaml:"name"`
		Kind  string   `yaml:"kind"`
		Bases []string `yaml:"bases"`
	}

	classesDecl struct {
		Abstract []classDecl `yaml:"abstract"`
		Concrete []classDecl `yaml:"concrete"`
	}

	loopDecl struct {
		Types  []string `yaml:"types"`
		Kernel string   `yaml:"kernel"`
	}

	opDecl struct {
		Name string `yaml:"name"`
		Nin  int    `yaml:"nin"`
		Nout int    `yaml:"nout"`
		// Homogeneous is a shorthand declaring one loop (t, ..., t)
		// per listed class t.
		Homogeneous []string `yaml:"homogeneous"`
		// Compare is a shorthand declaring one loop (t, t, bool) per
		// listed class t.
		Compare   []string   `yaml:"compare"`
		Loops     []loopDecl `yaml:"loops"`
		Promoters []string   `yaml:"promoters"`
	}

	catalogDecl struct {
		Classes    classesDecl `yaml:"classes"`
		Operations []opDecl    `yaml:"operations"`
	}
)

// Table is a catalog of operations sharing one type universe.
type Table struct {
	universe *dtypes.Universe
	ops      map[string]*dispatch.Operation
}

// New builds the standard catalog.
func New() (*Table, error) {
	return Load(opsYAML)
}

// Load builds a catalog from a YAML table. All declaration errors are
// collected and reported together.
func Load(src []byte) (*Table, error) {
	var decl catalogDecl
	if err := yaml.Unmarshal(src, &decl); err != nil {
		return nil, errors.Wrap(err, "cannot parse operation catalog")
	}
	t := &Table{
		universe: dtypes.NewUniverse(),
		ops:      make(map[string]*dispatch.Operation),
	}
	if err := t.declareClasses(decl.Classes); err != nil {
		return nil, err
	}
	t.universe.SetCommonType(widenRule(t.universe))
	var errs error
	for _, op := range decl.Operations {
		errs = multierr.Append(errs, t.declareOperation(op))
	}
	if errs != nil {
		return nil, errs
	}
	return t, nil
}

// Universe returns the type universe shared by the catalog operations.
func (t *Table) Universe() *dtypes.Universe {
	return t.universe
}

// Operation returns a catalog operation, or nil if the name is unknown.
func (t *Table) Operation(name string) *dispatch.Operation {
	return t.ops[name]
}

// Names returns the sorted names of the catalog operations.
func (t *Table) Names() []string {
	names := maps.Keys(t.ops)
	slices.Sort(names)
	return names
}

func (t *Table) declareClasses(decl classesDecl) error {
	for _, cl := range decl.Abstract {
		bases, err := t.lookupAll(cl.Bases)
		if err != nil {
			return err
		}
		if _, err := t.universe.NewAbstract(cl.Name, bases...); err != nil {
			return err
		}
	}
	for _, cl := range decl.Concrete {
		kind := dtypes.KindFromString(cl.Kind)
		if kind == dtypes.Invalid {
			return errors.Errorf("class %s has unknown kind %q", cl.Name, cl.Kind)
		}
		bases, err := t.lookupAll(cl.Bases)
		if err != nil {
			return err
		}
		if _, err := t.universe.NewConcrete(cl.Name, kind, bases...); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) lookupAll(names []string) ([]dtypes.DType, error) {
	dts := make([]dtypes.DType, len(names))
	for i, name := range names {
		dts[i] = t.universe.Lookup(name)
		if dts[i] == dtypes.Nil {
			return nil, errors.Errorf("unknown type class %s", name)
		}
	}
	return dts, nil
}

func (t *Table) declareOperation(decl opDecl) error {
	nin, nout := decl.Nin, decl.Nout
	if nin == 0 {
		nin = 2
	}
	if nout == 0 {
		nout = 1
	}
	op, err := dispatch.NewOperation(decl.Name, nin, nout, t.universe)
	if err != nil {
		return err
	}
	nargs := op.Nargs()
	for _, name := range decl.Homogeneous {
		dt := t.universe.Lookup(name)
		if dt == dtypes.Nil {
			return errors.Errorf("%s: unknown type class %s", decl.Name, name)
		}
		pattern := make(dispatch.Pattern, nargs)
		for i := range pattern {
			pattern[i] = dt
		}
		if err := op.RegisterLoop(pattern, NewKernel(decl.Name+"_"+name), false); err != nil {
			return err
		}
	}
	for _, name := range decl.Compare {
		dt := t.universe.Lookup(name)
		if dt == dtypes.Nil {
			return errors.Errorf("%s: unknown type class %s", decl.Name, name)
		}
		boolType := t.universe.Lookup("bool")
		if boolType == dtypes.Nil {
			return errors.Errorf("%s: comparison loops need a bool class", decl.Name)
		}
		pattern := make(dispatch.Pattern, nargs)
		for i := 0; i < nin; i++ {
			pattern[i] = dt
		}
		for i := nin; i < nargs; i++ {
			pattern[i] = boolType
		}
		if err := op.RegisterLoop(pattern, NewKernel(decl.Name+"_"+name), false); err != nil {
			return err
		}
	}
	for _, loop := range decl.Loops {
		pattern, err := t.lookupAll(loop.Types)
		if err != nil {
			return errors.Wrapf(err, "%s", decl.Name)
		}
		if err := op.RegisterLoop(dispatch.Pattern(pattern), NewKernel(loop.Kernel), false); err != nil {
			return err
		}
	}
	for _, name := range decl.Promoters {
		promoter, err := t.promoter(name)
		if err != nil {
			return errors.Wrapf(err, "%s", decl.Name)
		}
		// Promoters act as the operation's fallback: all wildcards.
		if err := op.RegisterPromoter(make(dispatch.Pattern, nargs), promoter, false); err != nil {
			return err
		}
	}
	t.ops[decl.Name] = op
	return nil
}

func (t *Table) promoter(name string) (dispatch.Promoter, error) {
	boolType := t.universe.Lookup("bool")
	object := t.universe.Lookup("object")
	isTextual := func(dt dtypes.DType) bool {
		return dtypes.IsTextualKind(t.universe.Kind(dt))
	}
	switch name {
	case "default":
		return dispatch.DefaultPromoter, nil
	case "logical":
		return dispatch.LogicalPromoter(boolType, object, isTextual), nil
	case "compare":
		return comparePromoter(boolType), nil
	case "object_only":
		return dispatch.ObjectOnlyPromoter(object), nil
	default:
		return nil, errors.Errorf("unknown promoter %q", name)
	}
}

type kernel struct {
	name string
}

// NewKernel returns an opaque kernel identified by name. The catalog
// does not execute kernels; callers pair names with their own compute
// routines.
func NewKernel(name string) dispatch.Kernel {
	return &kernel{name: name}
}

// Name returns the kernel identifier.
func (k *kernel) Name() string {
	return k.name
}
