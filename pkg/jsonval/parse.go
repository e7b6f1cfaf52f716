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

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Parse decodes a single JSON text into a Value tree. The byte-level
// tokenizing is delegated to encoding/json.Decoder — the raw scanner is an
// out-of-scope external collaborator per this project's charter, and only
// the resulting ordered value tree is ours to own. UseNumber is set so
// integral literals round-trip as int64 instead of losing precision/shape
// through float64.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := parseFromDecoder(dec)
	if err != nil {
		return NullValue, err
	}
	// Reject trailing garbage: a single JSON text must consume the whole body.
	if _, err := dec.Token(); err != io.EOF {
		return NullValue, fmt.Errorf("jsonval: trailing data after JSON value")
	}
	return v, nil
}

func parseFromDecoder(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return NullValue, err
	}
	return parseToken(dec, tok)
}

func parseToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return NullValue, nil
	case bool:
		return NewBool(t), nil
	case string:
		return NewString(t), nil
	case json.Number:
		return parseNumber(t)
	case json.Delim:
		switch t {
		case '[':
			return parseArray(dec)
		case '{':
			return parseObject(dec)
		default:
			return NullValue, fmt.Errorf("jsonval: unexpected delimiter %q", t)
		}
	default:
		return NullValue, fmt.Errorf("jsonval: unexpected token %T", tok)
	}
}

func parseNumber(n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		return NewInt(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return NullValue, fmt.Errorf("jsonval: invalid number %q: %w", n.String(), err)
	}
	return NewFloat(f), nil
}

func parseArray(dec *json.Decoder) (Value, error) {
	var elems []Value
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return NullValue, err
		}
		v, err := parseToken(dec, tok)
		if err != nil {
			return NullValue, err
		}
		elems = append(elems, v)
	}
	// consume the closing ']'
	if _, err := dec.Token(); err != nil {
		return NullValue, err
	}
	return Value{kind: Array, arr: elems}, nil
}

func parseObject(dec *json.Decoder) (Value, error) {
	var members []Member
	seen := make(map[string]struct{})
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return NullValue, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return NullValue, fmt.Errorf("jsonval: object key must be a string, got %T", keyTok)
		}
		if _, dup := seen[key]; dup {
			return NullValue, fmt.Errorf("jsonval: duplicate object key %q", key)
		}
		seen[key] = struct{}{}

		valTok, err := dec.Token()
		if err != nil {
			return NullValue, err
		}
		v, err := parseToken(dec, valTok)
		if err != nil {
			return NullValue, err
		}
		members = append(members, Member{Key: key, Value: v})
	}
	// consume the closing '}'
	if _, err := dec.Token(); err != nil {
		return NullValue, err
	}
	return Value{kind: Object, obj: members}, nil
}
