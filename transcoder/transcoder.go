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

// Package transcoder implements the type-tagged binary envelope used for
// cache values. An envelope is a (flags, data) pair: flags records the
// value's original logical type, data the little-endian payload. Raw byte
// slices bypass typing entirely, scalars use fixed-width encodings, and
// structured objects fall back to BSON. The format is shared with other
// client implementations, so the encodings here are wire contracts, not
// implementation details.
package transcoder

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// CacheItem is the envelope written to and read from a cache slot.
type CacheItem struct {
	Flags uint32
	Data  []byte
}

// Transcoder converts between Go values and cache envelopes. Implementations
// must be safe for concurrent use.
type Transcoder interface {
	Serialize(value any) (CacheItem, error)
	Deserialize(item CacheItem) (any, error)
}

// Default is the standard envelope codec. The zero value is ready to use.
type Default struct{}

var _ Transcoder = Default{}

// Serialize encodes a value into an envelope. Byte slices are passed through
// untouched under RawFlag; nil becomes DBNull; scalar types use their fixed
// little-endian encodings; anything else is BSON-encoded as an Object.
func (Default) Serialize(value any) (CacheItem, error) {
	if value == nil {
		return CacheItem{Flags: FlagsFor(CodeDBNull)}, nil
	}

	// Raw fast path: no copy, no type dispatch.
	if b, ok := value.([]byte); ok {
		return CacheItem{Flags: RawFlag, Data: b}, nil
	}

	switch v := value.(type) {
	case string:
		return CacheItem{Flags: FlagsFor(CodeString), Data: []byte(v)}, nil
	case bool:
		d := []byte{0}
		if v {
			d[0] = 1
		}
		return CacheItem{Flags: FlagsFor(CodeBoolean), Data: d}, nil
	case int8:
		return CacheItem{Flags: FlagsFor(CodeSByte), Data: []byte{byte(v)}}, nil
	case uint8:
		return CacheItem{Flags: FlagsFor(CodeByte), Data: []byte{v}}, nil
	case int16:
		return CacheItem{Flags: FlagsFor(CodeInt16), Data: le16(uint16(v))}, nil
	case uint16:
		return CacheItem{Flags: FlagsFor(CodeUInt16), Data: le16(v)}, nil
	case int32:
		return CacheItem{Flags: FlagsFor(CodeInt32), Data: le32(uint32(v))}, nil
	case uint32:
		return CacheItem{Flags: FlagsFor(CodeUInt32), Data: le32(v)}, nil
	case int64:
		return CacheItem{Flags: FlagsFor(CodeInt64), Data: le64(uint64(v))}, nil
	case uint64:
		return CacheItem{Flags: FlagsFor(CodeUInt64), Data: le64(v)}, nil
	case int:
		return CacheItem{Flags: FlagsFor(CodeInt64), Data: le64(uint64(int64(v)))}, nil
	case uint:
		return CacheItem{Flags: FlagsFor(CodeUInt64), Data: le64(uint64(v))}, nil
	case float32:
		return CacheItem{Flags: FlagsFor(CodeSingle), Data: le32(math.Float32bits(v))}, nil
	case float64:
		return CacheItem{Flags: FlagsFor(CodeDouble), Data: le64(math.Float64bits(v))}, nil
	case time.Time:
		return CacheItem{Flags: FlagsFor(CodeDateTime), Data: le64(encodeDateTime(v))}, nil
	}

	data, err := marshalObject(value)
	if err != nil {
		return CacheItem{}, fmt.Errorf("transcoder: encode object: %w", err)
	}
	return CacheItem{Flags: FlagsFor(CodeObject), Data: data}, nil
}

// Deserialize decodes an envelope back into a value. Raw envelopes return
// their payload unchanged; typed envelopes dispatch on the low flag byte.
func (Default) Deserialize(item CacheItem) (any, error) {
	if isRaw(item.Flags) {
		return item.Data, nil
	}
	code := codeOf(item.Flags)
	dec, ok := decoders[code]
	if !ok {
		return nil, &UnknownTypeCodeError{Code: code}
	}
	return dec(item.Data)
}

// DeserializeAs decodes an envelope when the caller knows the expected
// logical type. For BSON payloads (Object, legacy Decimal) the payload is
// unmarshaled directly into T, which also makes slice targets decode their
// root as an array. For every other code the value is decoded normally and
// then asserted to T.
func DeserializeAs[T any](item CacheItem) (T, error) {
	var zero T
	if isRaw(item.Flags) {
		v, ok := any(item.Data).(T)
		if !ok {
			return zero, fmt.Errorf("transcoder: raw payload is not %T", zero)
		}
		return v, nil
	}
	switch codeOf(item.Flags) {
	case CodeObject, CodeDecimal:
		var doc objectEnvelope[T]
		if err := bson.Unmarshal(item.Data, &doc); err != nil {
			return zero, fmt.Errorf("transcoder: decode object: %w", err)
		}
		return doc.V, nil
	}
	v, err := (Default{}).Deserialize(item)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("transcoder: payload is %T, not %T", v, zero)
	}
	return t, nil
}

// objectEnvelope wraps a value so that non-document roots (arrays, scalars)
// are legal BSON. The single-field document is part of the stored format.
type objectEnvelope[T any] struct {
	V T `bson:"v"`
}

func marshalObject(value any) ([]byte, error) {
	return bson.Marshal(objectEnvelope[any]{V: value})
}

func le16(v uint16) []byte {
	d := make([]byte, 2)
	binary.LittleEndian.PutUint16(d, v)
	return d
}

func le32(v uint32) []byte {
	d := make([]byte, 4)
	binary.LittleEndian.PutUint32(d, v)
	return d
}

func le64(v uint64) []byte {
	d := make([]byte, 8)
	binary.LittleEndian.PutUint64(d, v)
	return d
}
