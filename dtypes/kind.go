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

package dtypes

import "github.com/gx-org/backend/dtype"

// Kind is the scalar kind tagging a concrete type class.
type Kind uint

// Kinds of concrete type classes. The first block aliases the backend
// scalar types; the second extends them with kinds the backend does not
// represent.
const (
	Invalid = Kind(dtype.Invalid)

	Bool     = Kind(dtype.Bool)
	Int32    = Kind(dtype.Int32)
	Int64    = Kind(dtype.Int64)
	Uint32   = Kind(dtype.Uint32)
	Uint64   = Kind(dtype.Uint64)
	Bfloat16 = Kind(dtype.Bfloat16)
	Float32  = Kind(dtype.Float32)
	Float64  = Kind(dtype.Float64)

	Int8 = Kind(iota + dtype.MaxDataType)
	Int16
	Uint8
	Uint16
	String
	Bytes
	Object
)

// String returns a string representation of a kind.
func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Bfloat16:
		return "bfloat16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case String:
		return "string"
	case Bytes:
		return "bytes"
	case Object:
		return "object"
	}
	return "invalid"
}

// DType converts a kind into a backend array data type.
// Kinds the backend cannot represent convert to dtype.Invalid.
func (k Kind) DType() dtype.DataType {
	if k >= Kind(dtype.MaxDataType) {
		return dtype.Invalid
	}
	return dtype.DataType(k)
}

// KindFromString returns a kind given an identifier.
func KindFromString(ident string) Kind {
	switch ident {
	case "bool":
		return Bool
	case "int8":
		return Int8
	case "int16":
		return Int16
	case "int32":
		return Int32
	case "int64":
		return Int64
	case "uint8":
		return Uint8
	case "uint16":
		return Uint16
	case "uint32":
		return Uint32
	case "uint64":
		return Uint64
	case "bfloat16":
		return Bfloat16
	case "float32":
		return Float32
	case "float64":
		return Float64
	case "string":
		return String
	case "bytes":
		return Bytes
	case "object":
		return Object
	default:
		return Invalid
	}
}

// IsIntegerKind returns true if kind is an integer.
func IsIntegerKind(k Kind) bool {
	switch k {
	case Int8, Int16, Int32, Int64:
		return true
	case Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}

// IsFloatKind returns true if kind is a float.
func IsFloatKind(k Kind) bool {
	switch k {
	case Bfloat16, Float32, Float64:
		return true
	}
	return false
}

// IsTextualKind returns true if kind stores text.
func IsTextualKind(k Kind) bool {
	return k == String || k == Bytes
}
