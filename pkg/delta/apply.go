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

package delta

import (
	"fmt"

	"pushbus/pkg/jsonval"
)

// Apply implements update(value, script) from SPEC_FULL.md §4.1: if script
// is not an array it is a full replacement and is returned verbatim;
// otherwise each opcode is interpreted against the running state left by the
// previous one. Bounds or unknown-opcode violations are hard errors.
func Apply(value, script jsonval.Value) (jsonval.Value, error) {
	if script.Kind() != jsonval.Array {
		return script, nil
	}
	if value.Kind() == jsonval.Object {
		return applyObject(value, script)
	}
	return applyArray(value, script)
}

func applyArray(value, script jsonval.Value) (jsonval.Value, error) {
	result := value.Copy()

	elems := func() []jsonval.Value { return result.Elements() }
	setElems := func(e []jsonval.Value) { result = jsonval.NewArray(e...) }

	for n, op := range script.Elements() {
		if op.Kind() != jsonval.Array || len(op.Elements()) == 0 {
			return jsonval.NullValue, fmt.Errorf("delta: operation %d must be a non-empty array", n)
		}
		ops := op.Elements()
		code, ok := ops[0].Int()
		if !ok {
			return jsonval.NullValue, fmt.Errorf("delta: opcode must be a number in operation %d", n)
		}
		i := 1
		switch Opcode(code) {
		case OpUpdateAt:
			idx, err := intOperandOnly(ops, &i)
			if err != nil {
				return jsonval.NullValue, err
			}
			val, err := valueOperand(ops, &i)
			if err != nil {
				return jsonval.NullValue, err
			}
			e := append([]jsonval.Value{}, elems()...)
			if idx < 0 || idx >= len(e) {
				return jsonval.NullValue, fmt.Errorf("delta: update_at index %d out of range", idx)
			}
			e[idx] = val
			setElems(e)
		case OpDeleteAt:
			idx, err := intOperandOnly(ops, &i)
			if err != nil {
				return jsonval.NullValue, err
			}
			e := elems()
			if idx < 0 || idx >= len(e) {
				return jsonval.NullValue, fmt.Errorf("delta: delete_at index %d out of range", idx)
			}
			next := append([]jsonval.Value{}, e[:idx]...)
			next = append(next, e[idx+1:]...)
			setElems(next)
		case OpInsertAt:
			idx, err := intOperandOnly(ops, &i)
			if err != nil {
				return jsonval.NullValue, err
			}
			val, err := valueOperand(ops, &i)
			if err != nil {
				return jsonval.NullValue, err
			}
			e := elems()
			if idx < 0 || idx > len(e) {
				return jsonval.NullValue, fmt.Errorf("delta: insert_at index %d out of range", idx)
			}
			next := append([]jsonval.Value{}, e[:idx]...)
			next = append(next, val)
			next = append(next, e[idx:]...)
			setElems(next)
		case OpDeleteRange:
			from, to, err := rangeOperands(ops, &i)
			if err != nil {
				return jsonval.NullValue, err
			}
			e := elems()
			if from < 0 || to > len(e) || from > to {
				return jsonval.NullValue, fmt.Errorf("delta: delete_range [%d,%d) out of range", from, to)
			}
			next := append([]jsonval.Value{}, e[:from]...)
			next = append(next, e[to:]...)
			setElems(next)
		case OpUpdateRange:
			from, to, err := rangeOperands(ops, &i)
			if err != nil {
				return jsonval.NullValue, err
			}
			fill, err := valueOperand(ops, &i)
			if err != nil {
				return jsonval.NullValue, err
			}
			if fill.Kind() != jsonval.Array {
				return jsonval.NullValue, fmt.Errorf("delta: update_range fill must be an array")
			}
			e := elems()
			if from < 0 || to > len(e) || from > to {
				return jsonval.NullValue, fmt.Errorf("delta: update_range [%d,%d) out of range", from, to)
			}
			next := append([]jsonval.Value{}, e[:from]...)
			next = append(next, fill.Elements()...)
			next = append(next, e[to:]...)
			setElems(next)
		case OpEditAt:
			idx, err := intOperandOnly(ops, &i)
			if err != nil {
				return jsonval.NullValue, err
			}
			sub, err := valueOperand(ops, &i)
			if err != nil {
				return jsonval.NullValue, err
			}
			e := elems()
			if idx < 0 || idx >= len(e) {
				return jsonval.NullValue, fmt.Errorf("delta: edit_at index %d out of range", idx)
			}
			edited, err := Apply(e[idx], sub)
			if err != nil {
				return jsonval.NullValue, err
			}
			next := append([]jsonval.Value{}, e...)
			next[idx] = edited
			setElems(next)
		default:
			return jsonval.NullValue, fmt.Errorf("delta: invalid update operation: %d", code)
		}
	}
	return result, nil
}

func applyObject(value, script jsonval.Value) (jsonval.Value, error) {
	members := append([]jsonval.Member{}, value.Members()...)

	find := func(key string) int {
		for idx, m := range members {
			if m.Key == key {
				return idx
			}
		}
		return -1
	}

	for n, op := range script.Elements() {
		if op.Kind() != jsonval.Array || len(op.Elements()) == 0 {
			return jsonval.NullValue, fmt.Errorf("delta: operation %d must be a non-empty array", n)
		}
		ops := op.Elements()
		code, ok := ops[0].Int()
		if !ok {
			return jsonval.NullValue, fmt.Errorf("delta: opcode must be a number in operation %d", n)
		}
		i := 1
		switch Opcode(code) {
		case OpUpdateAt:
			key, err := stringOperandOnly(ops, &i)
			if err != nil {
				return jsonval.NullValue, err
			}
			val, err := valueOperand(ops, &i)
			if err != nil {
				return jsonval.NullValue, err
			}
			idx := find(key)
			if idx < 0 {
				return jsonval.NullValue, fmt.Errorf("delta: update_at key %q not found", key)
			}
			members[idx] = jsonval.Member{Key: key, Value: val}
		case OpDeleteAt:
			key, err := stringOperandOnly(ops, &i)
			if err != nil {
				return jsonval.NullValue, err
			}
			idx := find(key)
			if idx < 0 {
				return jsonval.NullValue, fmt.Errorf("delta: delete_at key %q not found", key)
			}
			members = append(members[:idx], members[idx+1:]...)
		case OpInsertAt:
			key, err := stringOperandOnly(ops, &i)
			if err != nil {
				return jsonval.NullValue, err
			}
			val, err := valueOperand(ops, &i)
			if err != nil {
				return jsonval.NullValue, err
			}
			if find(key) >= 0 {
				return jsonval.NullValue, fmt.Errorf("delta: insert_at key %q already present", key)
			}
			members = append(members, jsonval.Member{Key: key, Value: val})
		case OpEditAt:
			key, err := stringOperandOnly(ops, &i)
			if err != nil {
				return jsonval.NullValue, err
			}
			sub, err := valueOperand(ops, &i)
			if err != nil {
				return jsonval.NullValue, err
			}
			idx := find(key)
			if idx < 0 {
				return jsonval.NullValue, fmt.Errorf("delta: edit_at key %q not found", key)
			}
			edited, err := Apply(members[idx].Value, sub)
			if err != nil {
				return jsonval.NullValue, err
			}
			members[idx] = jsonval.Member{Key: key, Value: edited}
		default:
			return jsonval.NullValue, fmt.Errorf("delta: invalid object update operation: %d", code)
		}
	}
	return jsonval.NewObject(members...), nil
}

func intOperandOnly(ops []jsonval.Value, i *int) (int, error) {
	if *i >= len(ops) {
		return 0, fmt.Errorf("delta: missing index operand")
	}
	n, ok := ops[*i].Int()
	if !ok {
		return 0, fmt.Errorf("delta: index operand must be a number")
	}
	*i++
	return int(n), nil
}

func stringOperandOnly(ops []jsonval.Value, i *int) (string, error) {
	if *i >= len(ops) {
		return "", fmt.Errorf("delta: missing key operand")
	}
	s, ok := ops[*i].Str()
	if !ok {
		return "", fmt.Errorf("delta: key operand must be a string")
	}
	*i++
	return s, nil
}

func valueOperand(ops []jsonval.Value, i *int) (jsonval.Value, error) {
	if *i >= len(ops) {
		return jsonval.NullValue, fmt.Errorf("delta: missing value operand")
	}
	v := ops[*i]
	*i++
	return v, nil
}

func rangeOperands(ops []jsonval.Value, i *int) (from, to int, err error) {
	from, err = intOperandOnly(ops, i)
	if err != nil {
		return 0, 0, err
	}
	to, err = intOperandOnly(ops, i)
	if err != nil {
		return 0, 0, err
	}
	return from, to, nil
}
