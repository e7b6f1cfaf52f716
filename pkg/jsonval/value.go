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

// Package jsonval implements the tagged JSON value tree that the rest of
// pushbus builds on: strings, numbers (both int64 and float64), ordered
// objects, arrays, and the three singletons true/false/null. Values are
// immutable by convention — no method mutates a Value in place; code that
// needs a changed value builds a new one (NewArray, NewObject, Copy), so a
// Value already handed to an observer (a subscriber, a history entry) never
// changes under it.
package jsonval

import (
	"fmt"
	"sort"
	"strconv"
)

// Kind tags the underlying type of a Value.
type Kind int

const (
	Null Kind = iota
	True
	False
	String
	Number
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case True:
		return "true"
	case False:
		return "false"
	case String:
		return "string"
	case Number:
		return "number"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// Member is one key/value pair of an object, in insertion order.
type Member struct {
	Key   string
	Value Value
}

// Value is an immutable, tagged JSON value. The zero Value is JSON null.
type Value struct {
	kind Kind
	str  string
	num  numPayload
	arr  []Value
	obj  []Member
}

type numPayload struct {
	isInt bool
	i     int64
	f     float64
}

// NullValue is the JSON null singleton.
var NullValue = Value{kind: Null}

// TrueValue is the JSON true singleton.
var TrueValue = Value{kind: True}

// FalseValue is the JSON false singleton.
var FalseValue = Value{kind: False}

// NewString wraps a Go string as a JSON string value.
func NewString(s string) Value { return Value{kind: String, str: s} }

// NewInt wraps an int64 as a JSON number value that serializes without a
// fractional part.
func NewInt(n int64) Value {
	return Value{kind: Number, num: numPayload{isInt: true, i: n, f: float64(n)}}
}

// NewFloat wraps a float64 as a JSON number value.
func NewFloat(f float64) Value {
	return Value{kind: Number, num: numPayload{isInt: false, f: f}}
}

// NewBool returns TrueValue or FalseValue.
func NewBool(b bool) Value {
	if b {
		return TrueValue
	}
	return FalseValue
}

// NewArray builds an array value from the given elements. The slice is
// copied so later mutation of elems by the caller is not observable.
func NewArray(elems ...Value) Value {
	cp := make([]Value, len(elems))
	copy(cp, elems)
	return Value{kind: Array, arr: cp}
}

// NewObject builds an object value from the given members, in order. Keys
// must be unique; NewObject panics on a duplicate key since that indicates
// a programming error at the call site, not malformed input (malformed
// input goes through Parse, which rejects duplicates with an error).
func NewObject(members ...Member) Value {
	seen := make(map[string]struct{}, len(members))
	cp := make([]Member, len(members))
	for i, m := range members {
		if _, dup := seen[m.Key]; dup {
			panic(fmt.Sprintf("jsonval: duplicate object key %q", m.Key))
		}
		seen[m.Key] = struct{}{}
		cp[i] = m
	}
	return Value{kind: Object, obj: cp}
}

// Kind reports the tag of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null singleton.
func (v Value) IsNull() bool { return v.kind == Null }

// Bool reports the boolean value of v; ok is false unless Kind is True or False.
func (v Value) Bool() (b, ok bool) {
	switch v.kind {
	case True:
		return true, true
	case False:
		return false, true
	default:
		return false, false
	}
}

// Str returns the string payload of v; ok is false unless Kind is String.
func (v Value) Str() (s string, ok bool) {
	if v.kind != String {
		return "", false
	}
	return v.str, true
}

// Int returns the integer value of v, converting from float if necessary.
// ok is false unless Kind is Number.
func (v Value) Int() (n int64, ok bool) {
	if v.kind != Number {
		return 0, false
	}
	if v.num.isInt {
		return v.num.i, true
	}
	return int64(v.num.f), true
}

// Float returns the floating point value of v. ok is false unless Kind is Number.
func (v Value) Float() (f float64, ok bool) {
	if v.kind != Number {
		return 0, false
	}
	return v.num.f, true
}

// Len returns the number of elements (Array) or members (Object); 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.arr)
	case Object:
		return len(v.obj)
	default:
		return 0
	}
}

// At returns the i'th array element. It panics if v is not an Array or i is
// out of range, mirroring the source's at() contract.
func (v Value) At(i int) Value {
	if v.kind != Array {
		panic("jsonval: At called on non-array value")
	}
	return v.arr[i]
}

// Elements returns the underlying array slice. Callers must treat it as
// read-only; use Copy to get a slice safe to mutate.
func (v Value) Elements() []Value {
	if v.kind != Array {
		return nil
	}
	return v.arr
}

// Members returns the underlying object member slice in insertion order.
// Callers must treat it as read-only.
func (v Value) Members() []Member {
	if v.kind != Object {
		return nil
	}
	return v.obj
}

// Get returns the value for key in an Object, and whether it was present.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Object {
		return NullValue, false
	}
	for _, m := range v.obj {
		if m.Key == key {
			return m.Value, true
		}
	}
	return NullValue, false
}

// Copy returns a shallow clone of an Array or Object: a new backing slice
// holding the same element Values, so appends/inserts on the clone are not
// observable on the original and vice versa. Non-container kinds return v
// unchanged, since they carry no backing slice to alias.
func (v Value) Copy() Value {
	switch v.kind {
	case Array:
		cp := make([]Value, len(v.arr))
		copy(cp, v.arr)
		return Value{kind: Array, arr: cp}
	case Object:
		cp := make([]Member, len(v.obj))
		copy(cp, v.obj)
		return Value{kind: Object, obj: cp}
	default:
		return v
	}
}

// Keys returns the object's keys sorted ascending, mirroring the source's
// object::keys() "descent order" contract applied consistently across this
// port (sorted, not insertion order — insertion order is preserved by
// Members/serialization instead).
func (v Value) Keys() []string {
	if v.kind != Object {
		return nil
	}
	keys := make([]string, len(v.obj))
	for i, m := range v.obj {
		keys[i] = m.Key
	}
	sort.Strings(keys)
	return keys
}

// Equal reports structural equality. Object equality ignores member order;
// array equality is order-sensitive.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case Null, True, False:
		return true
	case String:
		return v.str == other.str
	case Number:
		af, _ := v.Float()
		bf, _ := other.Float()
		return af == bf
	case Array:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case Object:
		if len(v.obj) != len(other.obj) {
			return false
		}
		for _, m := range v.obj {
			ov, ok := other.Get(m.Key)
			if !ok || !m.Value.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Less implements the "defined, but unspecified, strict, weak order" the
// source promises: stable within one process, ordered first by Kind, then
// by payload.
func (v Value) Less(other Value) bool {
	if v.kind != other.kind {
		return v.kind < other.kind
	}
	switch v.kind {
	case Null, True, False:
		return false
	case String:
		return v.str < other.str
	case Number:
		af, _ := v.Float()
		bf, _ := other.Float()
		return af < bf
	case Array:
		for i := 0; i < len(v.arr) && i < len(other.arr); i++ {
			if v.arr[i].Less(other.arr[i]) {
				return true
			}
			if other.arr[i].Less(v.arr[i]) {
				return false
			}
		}
		return len(v.arr) < len(other.arr)
	case Object:
		ak, bk := v.Keys(), other.Keys()
		for i := 0; i < len(ak) && i < len(bk); i++ {
			if ak[i] != bk[i] {
				return ak[i] < bk[i]
			}
			av, _ := v.Get(ak[i])
			bv, _ := other.Get(bk[i])
			if av.Less(bv) {
				return true
			}
			if bv.Less(av) {
				return false
			}
		}
		return len(ak) < len(bk)
	default:
		return false
	}
}

// formatNumber renders a number payload without going through
// encoding/json. Integers render as plain digits, so the digit form of an
// integral literal round-trips exactly (no trailing ".0"); other numbers use
// strconv's shortest 'g' form, which switches to exponent notation for large
// or small magnitudes (1.5e+06, 1e-05).
func formatNumber(n numPayload) string {
	if n.isInt {
		return strconv.FormatInt(n.i, 10)
	}
	return strconv.FormatFloat(n.f, 'g', -1, 64)
}
