// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

package transcoder

import "fmt"

// TypeCode identifies the logical type of an envelope payload. The numbering
// is the canonical one shared by interoperating clients, so it must never be
// reordered or compacted.
type TypeCode byte

const (
	CodeEmpty    TypeCode = 0
	CodeObject   TypeCode = 1
	CodeDBNull   TypeCode = 2
	CodeBoolean  TypeCode = 3
	CodeChar     TypeCode = 4
	CodeSByte    TypeCode = 5
	CodeByte     TypeCode = 6
	CodeInt16    TypeCode = 7
	CodeUInt16   TypeCode = 8
	CodeInt32    TypeCode = 9
	CodeUInt32   TypeCode = 10
	CodeInt64    TypeCode = 11
	CodeUInt64   TypeCode = 12
	CodeSingle   TypeCode = 13
	CodeDouble   TypeCode = 14
	CodeDecimal  TypeCode = 15
	CodeDateTime TypeCode = 16
	CodeString   TypeCode = 18
)

const (
	// flagPrefix marks an envelope as produced by this codec. The low byte
	// carries the TypeCode.
	flagPrefix uint32 = 0x0100

	// RawFlag marks an opaque byte payload that carries no type information.
	// It is checked before any type dispatch.
	RawFlag uint32 = 0xfa52
)

// FlagsFor returns the wire flags for a type code.
func FlagsFor(code TypeCode) uint32 { return flagPrefix | uint32(code) }

// IsHandled reports whether the flags were produced by this codec's typed
// path. Raw envelopes intentionally do not satisfy this predicate; they are
// recognized by comparing against RawFlag instead.
func IsHandled(flags uint32) bool { return flags&flagPrefix != 0 }

// isRaw compares only the low 16 bits so that servers which negotiate a
// 16-bit flags field still round-trip raw payloads correctly.
func isRaw(flags uint32) bool { return uint16(flags) == uint16(RawFlag) }

// codeOf extracts the type code from the flags.
func codeOf(flags uint32) TypeCode { return TypeCode(flags & 0xff) }

// UnknownTypeCodeError reports an envelope whose type code is outside the
// closed set understood by this codec.
type UnknownTypeCodeError struct {
	Code TypeCode
}

func (e *UnknownTypeCodeError) Error() string {
	return fmt.Sprintf("transcoder: unknown type code %d", e.Code)
}
