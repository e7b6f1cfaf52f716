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

package jsonval

// ToJSON returns the canonical byte serialization of v: object members in
// insertion order, array elements in order, strings with JSON escape
// semantics preserved.
func (v Value) ToJSON() []byte {
	buf := make([]byte, 0, 64)
	buf = v.appendJSON(buf)
	return buf
}

// String renders v as a JSON string, mostly useful for debugging/logging.
func (v Value) String() string { return string(v.ToJSON()) }

// Size returns the exact length in bytes of the canonical serialization,
// without allocating the serialization itself where avoidable.
func (v Value) Size() int {
	switch v.kind {
	case Null:
		return 4
	case True:
		return 4
	case False:
		return 5
	case String:
		return quotedLen(v.str)
	case Number:
		return len(formatNumber(v.num))
	case Array:
		n := 2 // [ ]
		for i, e := range v.arr {
			if i > 0 {
				n++ // comma
			}
			n += e.Size()
		}
		return n
	case Object:
		n := 2 // { }
		for i, m := range v.obj {
			if i > 0 {
				n++ // comma
			}
			n += quotedLen(m.Key) + 1 /* colon */ + m.Value.Size()
		}
		return n
	default:
		return 0
	}
}

func (v Value) appendJSON(buf []byte) []byte {
	switch v.kind {
	case Null:
		return append(buf, "null"...)
	case True:
		return append(buf, "true"...)
	case False:
		return append(buf, "false"...)
	case String:
		return appendQuoted(buf, v.str)
	case Number:
		return append(buf, formatNumber(v.num)...)
	case Array:
		buf = append(buf, '[')
		for i, e := range v.arr {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = e.appendJSON(buf)
		}
		return append(buf, ']')
	case Object:
		buf = append(buf, '{')
		for i, m := range v.obj {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendQuoted(buf, m.Key)
			buf = append(buf, ':')
			buf = m.Value.appendJSON(buf)
		}
		return append(buf, '}')
	default:
		return buf
	}
}

func quotedLen(s string) int {
	n := 2 // quotes
	for _, r := range s {
		switch r {
		case '"', '\\', '\n', '\r', '\t':
			n += 2
		default:
			if r < 0x20 {
				n += 6 // \u00XX
			} else {
				n += len(string(r))
			}
		}
	}
	return n
}

func appendQuoted(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for _, r := range s {
		switch r {
		case '"':
			buf = append(buf, '\\', '"')
		case '\\':
			buf = append(buf, '\\', '\\')
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		case '\t':
			buf = append(buf, '\\', 't')
		default:
			if r < 0x20 {
				const hex = "0123456789abcdef"
				buf = append(buf, '\\', 'u', '0', '0', hex[(r>>4)&0xf], hex[r&0xf])
			} else {
				buf = append(buf, []byte(string(r))...)
			}
		}
	}
	return append(buf, '"')
}
