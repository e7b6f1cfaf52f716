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

// Package delta computes and applies the minimal edit script between two
// jsonval.Value trees, bounded by a byte budget. An edit script is itself a
// jsonval array whose elements are opcodes of the shape [code, operands...].
package delta

import "pushbus/pkg/jsonval"

// Opcode identifies one editing instruction within a script.
type Opcode int64

const (
	OpUpdateAt    Opcode = 1
	OpDeleteAt    Opcode = 2
	OpInsertAt    Opcode = 3
	OpDeleteRange Opcode = 4
	OpUpdateRange Opcode = 5
	OpEditAt      Opcode = 6
)

func opUpdateAt(index int, value jsonval.Value) jsonval.Value {
	return jsonval.NewArray(jsonval.NewInt(int64(OpUpdateAt)), jsonval.NewInt(int64(index)), value)
}

func opUpdateAtKey(key string, value jsonval.Value) jsonval.Value {
	return jsonval.NewArray(jsonval.NewInt(int64(OpUpdateAt)), jsonval.NewString(key), value)
}

func opDeleteAt(index int) jsonval.Value {
	return jsonval.NewArray(jsonval.NewInt(int64(OpDeleteAt)), jsonval.NewInt(int64(index)))
}

func opDeleteAtKey(key string) jsonval.Value {
	return jsonval.NewArray(jsonval.NewInt(int64(OpDeleteAt)), jsonval.NewString(key))
}

func opInsertAt(index int, value jsonval.Value) jsonval.Value {
	return jsonval.NewArray(jsonval.NewInt(int64(OpInsertAt)), jsonval.NewInt(int64(index)), value)
}

func opInsertAtKey(key string, value jsonval.Value) jsonval.Value {
	return jsonval.NewArray(jsonval.NewInt(int64(OpInsertAt)), jsonval.NewString(key), value)
}

func opDeleteRange(from, to int) jsonval.Value {
	return jsonval.NewArray(jsonval.NewInt(int64(OpDeleteRange)), jsonval.NewInt(int64(from)), jsonval.NewInt(int64(to)))
}

func opUpdateRange(from, to int, fill jsonval.Value) jsonval.Value {
	return jsonval.NewArray(jsonval.NewInt(int64(OpUpdateRange)), jsonval.NewInt(int64(from)), jsonval.NewInt(int64(to)), fill)
}

func opEditAt(index int, script jsonval.Value) jsonval.Value {
	return jsonval.NewArray(jsonval.NewInt(int64(OpEditAt)), jsonval.NewInt(int64(index)), script)
}

func opEditAtKey(key string, script jsonval.Value) jsonval.Value {
	return jsonval.NewArray(jsonval.NewInt(int64(OpEditAt)), jsonval.NewString(key), script)
}
