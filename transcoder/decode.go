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

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// decoders maps each type code to its payload decoder. Codes absent from the
// table fail with UnknownTypeCodeError.
var decoders = map[TypeCode]func([]byte) (any, error){
	CodeEmpty:    decodeEmpty,
	CodeObject:   decodeObject,
	CodeDBNull:   func([]byte) (any, error) { return nil, nil },
	CodeBoolean:  decodeBoolean,
	CodeChar:     decodeChar,
	CodeSByte:    decodeSByte,
	CodeByte:     decodeByte,
	CodeInt16:    decodeInt16,
	CodeUInt16:   decodeUInt16,
	CodeInt32:    decodeInt32,
	CodeUInt32:   decodeUInt32,
	CodeInt64:    decodeInt64,
	CodeUInt64:   decodeUInt64,
	CodeSingle:   decodeSingle,
	CodeDouble:   decodeDouble,
	CodeDecimal:  decodeObject,
	CodeDateTime: decodeDateTime,
	CodeString:   decodeString,
}

// decodeEmpty implements the legacy read rule: some servers return counter
// values as ASCII with zero flags after an increment. A non-empty payload is
// therefore text; an empty one is null.
func decodeEmpty(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return string(data), nil
}

func decodeString(data []byte) (any, error) { return string(data), nil }

func decodeBoolean(data []byte) (any, error) {
	if len(data) != 1 {
		return nil, fmt.Errorf("transcoder: boolean payload must be 1 byte, got %d", len(data))
	}
	return data[0] != 0, nil
}

func decodeChar(data []byte) (any, error) {
	if len(data) != 2 {
		return nil, fmt.Errorf("transcoder: char payload must be 2 bytes, got %d", len(data))
	}
	return rune(binary.LittleEndian.Uint16(data)), nil
}

func decodeSByte(data []byte) (any, error) {
	if len(data) != 1 {
		return nil, fmt.Errorf("transcoder: sbyte payload must be 1 byte, got %d", len(data))
	}
	return int8(data[0]), nil
}

func decodeByte(data []byte) (any, error) {
	if len(data) != 1 {
		return nil, fmt.Errorf("transcoder: byte payload must be 1 byte, got %d", len(data))
	}
	return data[0], nil
}

func decodeInt16(data []byte) (any, error) {
	u, err := fixed16(data)
	return int16(u), err
}

func decodeUInt16(data []byte) (any, error) { return fixed16(data) }

func decodeInt32(data []byte) (any, error) {
	u, err := fixed32(data)
	return int32(u), err
}

func decodeUInt32(data []byte) (any, error) { return fixed32(data) }

func decodeInt64(data []byte) (any, error) {
	u, err := fixed64(data)
	return int64(u), err
}

func decodeUInt64(data []byte) (any, error) { return fixed64(data) }

func decodeSingle(data []byte) (any, error) {
	u, err := fixed32(data)
	return math.Float32frombits(u), err
}

func decodeDouble(data []byte) (any, error) {
	u, err := fixed64(data)
	return math.Float64frombits(u), err
}

func decodeObject(data []byte) (any, error) {
	var doc objectEnvelope[any]
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("transcoder: decode object: %w", err)
	}
	return doc.V, nil
}

func fixed16(data []byte) (uint16, error) {
	if len(data) != 2 {
		return 0, fmt.Errorf("transcoder: payload must be 2 bytes, got %d", len(data))
	}
	return binary.LittleEndian.Uint16(data), nil
}

func fixed32(data []byte) (uint32, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("transcoder: payload must be 4 bytes, got %d", len(data))
	}
	return binary.LittleEndian.Uint32(data), nil
}

func fixed64(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("transcoder: payload must be 8 bytes, got %d", len(data))
	}
	return binary.LittleEndian.Uint64(data), nil
}

// DateTime wire form: the low 62 bits count 100ns ticks since
// 0001-01-01T00:00:00, the top 2 bits carry the time-zone kind. Both halves
// must survive a round-trip.
const (
	kindUnspecified = 0
	kindUTC         = 1
	kindLocal       = 2

	ticksPerSecond = 10_000_000
	// Ticks elapsed between 0001-01-01 and the Unix epoch.
	unixEpochTicks = 621_355_968_000_000_000

	ticksMask = (1 << 62) - 1
)

func encodeDateTime(t time.Time) uint64 {
	ticks := uint64(t.Unix()*ticksPerSecond+int64(t.Nanosecond()/100)) + unixEpochTicks

	var kind uint64
	switch t.Location() {
	case time.UTC:
		kind = kindUTC
	case time.Local:
		kind = kindLocal
	default:
		kind = kindUnspecified
	}
	return ticks&ticksMask | kind<<62
}

// unspecifiedZone distinguishes kind-0 timestamps from genuine UTC ones so
// that re-encoding preserves the original kind bits.
var unspecifiedZone = time.FixedZone("", 0)

func decodeDateTime(data []byte) (any, error) {
	u, err := fixed64(data)
	if err != nil {
		return nil, err
	}
	ticks := int64(u & ticksMask)
	sec := ticks/ticksPerSecond - unixEpochTicks/ticksPerSecond
	nsec := (ticks % ticksPerSecond) * 100

	t := time.Unix(sec, nsec)
	switch u >> 62 {
	case kindUTC:
		return t.UTC(), nil
	case kindLocal:
		return t.In(time.Local), nil
	default:
		return t.In(unspecifiedZone), nil
	}
}
