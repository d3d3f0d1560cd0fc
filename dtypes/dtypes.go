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

// Package dtypes defines type classes for elementwise operations.
//
// A type class is a lightweight handle interned in a Universe. Concrete
// classes tag array element types and cannot be subclassed; abstract
// classes group concrete ones into a subclass DAG used by dispatch.
package dtypes

import (
	"fmt"

	"github.com/pkg/errors"
)

// DType is a handle to a type class interned in a Universe.
// The zero value Nil means "unset": an unconstrained operand slot or a
// wildcard pattern slot, depending on context.
type DType uint32

// Nil is the unset type class.
const Nil DType = 0

// HierarchyError reports a query with a handle the universe does not
// know about.
type HierarchyError struct {
	// Handle is the offending type class handle.
	Handle DType
}

// Error returns the error message.
func (e *HierarchyError) Error() string {
	return fmt.Sprintf("unknown type class handle %d", uint32(e.Handle))
}

// CommonTypeFunc computes the promoted type of a pair of concrete type
// classes. It returns false when the pair has no common type.
type CommonTypeFunc func(a, b DType) (DType, bool)

type class struct {
	name     string
	kind     Kind
	abstract bool
	bases    []DType
}

// Universe owns a set of type classes. All handles minted by a universe
// are only meaningful for that universe.
type Universe struct {
	classes []class
	byName  map[string]DType
	common  CommonTypeFunc
}

// NewUniverse returns an empty universe. The default common-type rule
// promotes a class only with itself.
func NewUniverse() *Universe {
	return &Universe{byName: make(map[string]DType)}
}

func (u *Universe) intern(cl class) (DType, error) {
	if cl.name == "" {
		return Nil, errors.Errorf("type class must have a name")
	}
	if _, ok := u.byName[cl.name]; ok {
		return Nil, errors.Errorf("type class %s already defined", cl.name)
	}
	for _, base := range cl.bases {
		if !u.valid(base) {
			return Nil, &HierarchyError{Handle: base}
		}
		if !u.class(base).abstract {
			return Nil, errors.Errorf("cannot subclass concrete type class %s", u.Name(base))
		}
	}
	u.classes = append(u.classes, cl)
	dt := DType(len(u.classes))
	u.byName[cl.name] = dt
	return dt, nil
}

// NewAbstract interns an abstract type class.
func (u *Universe) NewAbstract(name string, bases ...DType) (DType, error) {
	return u.intern(class{name: name, abstract: true, bases: bases})
}

// NewConcrete interns a concrete type class with a scalar kind.
func (u *Universe) NewConcrete(name string, kind Kind, bases ...DType) (DType, error) {
	return u.intern(class{name: name, kind: kind, bases: bases})
}

func (u *Universe) valid(dt DType) bool {
	return dt > 0 && int(dt) <= len(u.classes)
}

func (u *Universe) class(dt DType) *class {
	return &u.classes[dt-1]
}

// Lookup returns the handle of a class given its name, or Nil.
func (u *Universe) Lookup(name string) DType {
	return u.byName[name]
}

// Name returns the name of a type class. Nil renders as "nil" and a
// foreign handle as "invalid".
func (u *Universe) Name(dt DType) string {
	if dt == Nil {
		return "nil"
	}
	if !u.valid(dt) {
		return "invalid"
	}
	return u.class(dt).name
}

// Kind returns the scalar kind of a concrete type class.
// Abstract classes and foreign handles have kind Invalid.
func (u *Universe) Kind(dt DType) Kind {
	if !u.valid(dt) {
		return Invalid
	}
	return u.class(dt).kind
}

// IsAbstract returns true if the type class is abstract.
func (u *Universe) IsAbstract(dt DType) bool {
	if !u.valid(dt) {
		return false
	}
	return u.class(dt).abstract
}

// IsSubclass returns true if sub equals super or transitively lists it
// as a base.
func (u *Universe) IsSubclass(sub, super DType) (bool, error) {
	if !u.valid(sub) {
		return false, &HierarchyError{Handle: sub}
	}
	if !u.valid(super) {
		return false, &HierarchyError{Handle: super}
	}
	if sub == super {
		return true, nil
	}
	for _, base := range u.class(sub).bases {
		ok, err := u.IsSubclass(base, super)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// SetCommonType installs the pairwise promotion rule used by
// CommonType.
func (u *Universe) SetCommonType(f CommonTypeFunc) {
	u.common = f
}

// CommonType folds the pairwise promotion rule over a sequence of type
// classes. It returns false when any pair has no common type.
func (u *Universe) CommonType(dts ...DType) (DType, bool) {
	if len(dts) == 0 {
		return Nil, false
	}
	common := dts[0]
	for _, dt := range dts[1:] {
		var ok bool
		common, ok = u.commonPair(common, dt)
		if !ok {
			return Nil, false
		}
	}
	return common, true
}

func (u *Universe) commonPair(a, b DType) (DType, bool) {
	if a == b {
		return a, true
	}
	if u.common == nil {
		return Nil, false
	}
	return u.common(a, b)
}
