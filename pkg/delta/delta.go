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
	"sort"

	"pushbus/pkg/jsonval"
)

// Delta computes an edit script that turns a into b, bounded by maxSize
// bytes of serialized script. The script is not guaranteed to be the
// shortest one possible. ok is true and out is the script when
// one was found within budget; otherwise ok is false and out is b itself,
// signalling the caller should transmit the whole value.
func Delta(a, b jsonval.Value, maxSize int) (ok bool, out jsonval.Value) {
	if a.Equal(b) {
		empty := jsonval.NewArray()
		if empty.Size() <= maxSize {
			return true, empty
		}
		return false, b
	}

	if a.Kind() == jsonval.Array && b.Kind() == jsonval.Array {
		return arrayDelta(a, b, maxSize)
	}
	if a.Kind() == jsonval.Object && b.Kind() == jsonval.Object {
		return objectDelta(a, b, maxSize)
	}

	if b.Size() <= maxSize {
		return true, b
	}
	return false, b
}

// objectDelta computes the key-wise symmetric-difference script described in
// SPEC_FULL.md §4.1: delete_at for keys only in a, insert_at for keys only in
// b, and for shared keys whichever of edit_at/update_at serializes smaller.
func objectDelta(a, b jsonval.Value, maxSize int) (bool, jsonval.Value) {
	aKeys := a.Keys()
	bKeys := b.Keys()
	bSet := make(map[string]struct{}, len(bKeys))
	for _, k := range bKeys {
		bSet[k] = struct{}{}
	}
	aSet := make(map[string]struct{}, len(aKeys))
	for _, k := range aKeys {
		aSet[k] = struct{}{}
	}

	var ops []jsonval.Value
	fits := func(candidate []jsonval.Value) bool {
		return jsonval.NewArray(candidate...).Size() <= maxSize
	}

	for _, k := range aKeys {
		if _, ok := bSet[k]; ok {
			continue
		}
		candidate := append(append([]jsonval.Value{}, ops...), opDeleteAtKey(k))
		if !fits(candidate) {
			return false, b
		}
		ops = candidate
	}
	for _, k := range bKeys {
		if _, ok := aSet[k]; ok {
			continue
		}
		bv, _ := b.Get(k)
		candidate := append(append([]jsonval.Value{}, ops...), opInsertAtKey(k, bv))
		if !fits(candidate) {
			return false, b
		}
		ops = candidate
	}

	shared := make([]string, 0, len(aKeys))
	for _, k := range aKeys {
		if _, ok := bSet[k]; ok {
			shared = append(shared, k)
		}
	}
	sort.Strings(shared)
	for _, k := range shared {
		av, _ := a.Get(k)
		bv, _ := b.Get(k)
		if av.Equal(bv) {
			continue
		}
		updateOp := opUpdateAtKey(k, bv)
		best := updateOp
		if editOk, editScript := Delta(av, bv, maxSize); editOk {
			editOp := opEditAtKey(k, editScript)
			if editOp.Size() < updateOp.Size() {
				best = editOp
			}
		}
		candidate := append(append([]jsonval.Value{}, ops...), best)
		if !fits(candidate) {
			return false, b
		}
		ops = candidate
	}

	return true, jsonval.NewArray(ops...)
}

// arrayDelta realizes SPEC_FULL.md §4.1's array algorithm: trim the common
// prefix/suffix, then cover the differing middle with the smallest opcode
// shape available (a single delete/insert when one side's middle is empty, a
// run of merged update_range/edit_at opcodes when both middles are the same
// length, or one update_range when they differ). This always finds *a*
// correct, budget-checked script; the exact A* state-space search described
// in spec.md is left as a tunable internal heuristic (per spec.md §9's "only
// the admissibility constraint and the final-output contract are
// normative").
func arrayDelta(a, b jsonval.Value, maxSize int) (bool, jsonval.Value) {
	aElems := a.Elements()
	bElems := b.Elements()

	prefix := 0
	limit := minInt(len(aElems), len(bElems))
	for prefix < limit && aElems[prefix].Equal(bElems[prefix]) {
		prefix++
	}

	suffix := 0
	for suffix < limit-prefix &&
		aElems[len(aElems)-1-suffix].Equal(bElems[len(bElems)-1-suffix]) {
		suffix++
	}

	aMid := aElems[prefix : len(aElems)-suffix]
	bMid := bElems[prefix : len(bElems)-suffix]

	var ops []jsonval.Value
	fits := func(candidate []jsonval.Value) bool {
		return jsonval.NewArray(candidate...).Size() <= maxSize
	}
	appendOp := func(op jsonval.Value) bool {
		candidate := append(append([]jsonval.Value{}, ops...), op)
		if !fits(candidate) {
			return false
		}
		ops = candidate
		return true
	}

	switch {
	case len(aMid) == 0 && len(bMid) == 0:
		// prefix/suffix covered everything; nothing to do.
	case len(aMid) == 0:
		if len(bMid) == 1 {
			if !appendOp(opInsertAt(prefix, bMid[0])) {
				return false, b
			}
		} else if !appendOp(opUpdateRange(prefix, prefix, jsonval.NewArray(bMid...))) {
			return false, b
		}
	case len(bMid) == 0:
		if len(aMid) == 1 {
			if !appendOp(opDeleteAt(prefix)) {
				return false, b
			}
		} else if !appendOp(opDeleteRange(prefix, prefix+len(aMid))) {
			return false, b
		}
	case len(aMid) == len(bMid):
		if !appendEqualLengthMid(aMid, bMid, prefix, maxSize, &ops, appendOp) {
			return false, b
		}
	default:
		if !appendOp(opUpdateRange(prefix, prefix+len(aMid), jsonval.NewArray(bMid...))) {
			return false, b
		}
	}

	return true, jsonval.NewArray(ops...)
}

// appendEqualLengthMid walks an equal-length differing middle range,
// choosing edit_at over update_at per element when the recursive delta
// serializes smaller (SPEC_FULL.md's "speculative edit_at" rule), and
// merging consecutive update_at-shaped elements into one update_range.
func appendEqualLengthMid(aMid, bMid []jsonval.Value, base, maxSize int, ops *[]jsonval.Value, appendOp func(jsonval.Value) bool) bool {
	runStart := -1
	flushRun := func(end int) bool {
		if runStart < 0 {
			return true
		}
		defer func() { runStart = -1 }()
		if end == runStart {
			return appendOp(opUpdateAt(base+runStart, bMid[runStart]))
		}
		return appendOp(opUpdateRange(base+runStart, base+end+1, jsonval.NewArray(bMid[runStart:end+1]...)))
	}

	for i := range aMid {
		if aMid[i].Equal(bMid[i]) {
			if !flushRun(i - 1) {
				return false
			}
			continue
		}
		updateOp := opUpdateAt(base+i, bMid[i])
		if editOk, editScript := Delta(aMid[i], bMid[i], maxSize); editOk {
			editOp := opEditAt(base+i, editScript)
			if editOp.Size() < updateOp.Size() {
				if !flushRun(i - 1) {
					return false
				}
				if !appendOp(editOp) {
					return false
				}
				continue
			}
		}
		if runStart < 0 {
			runStart = i
		}
	}
	return flushRun(len(aMid) - 1)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
