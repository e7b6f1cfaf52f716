// delta_test.go
package delta

import (
	"testing"

	"pushbus/pkg/jsonval"
)

func mustApply(t *testing.T, value, script jsonval.Value) jsonval.Value {
	t.Helper()
	out, err := Apply(value, script)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	return out
}

func TestDelta_SameValueYieldsEmptyScript(t *testing.T) {
	a := jsonval.NewArray(jsonval.NewInt(1), jsonval.NewInt(2))
	ok, script := Delta(a, a, 1000)
	if !ok {
		t.Fatalf("expected ok=true for identical values")
	}
	if script.Len() != 0 {
		t.Errorf("expected empty script, got %s", script.ToJSON())
	}
}

func TestDelta_ApplyRoundTrip_S6Scenario(t *testing.T) {
	a := jsonval.NewArray(
		jsonval.NewInt(1), jsonval.NewInt(2), jsonval.NewInt(3), jsonval.NewInt(4),
		jsonval.NewInt(5), jsonval.NewInt(6), jsonval.NewInt(7), jsonval.NewInt(8), jsonval.NewInt(10),
	)
	b := jsonval.NewArray(
		jsonval.NewInt(1), jsonval.NewInt(3), jsonval.NewInt(4),
		jsonval.NewInt(5), jsonval.NewInt(6), jsonval.NewInt(7), jsonval.NewInt(8), jsonval.NewInt(10),
	)

	ok, script := Delta(a, b, 8)
	if !ok {
		t.Fatalf("expected script to fit in an 8 byte budget, got %s (%d bytes)", script.ToJSON(), script.Size())
	}
	if script.Size() > 8 {
		t.Errorf("script exceeds budget: %d bytes", script.Size())
	}

	got := mustApply(t, a, script)
	if !got.Equal(b) {
		t.Errorf("update(a, delta(a,b)) = %s, want %s", got.ToJSON(), b.ToJSON())
	}
}

func TestDelta_ApplyRoundTrip_Arrays(t *testing.T) {
	testCases := []struct {
		name string
		a, b jsonval.Value
	}{
		{
			"AppendOne",
			jsonval.NewArray(jsonval.NewInt(1), jsonval.NewInt(2)),
			jsonval.NewArray(jsonval.NewInt(1), jsonval.NewInt(2), jsonval.NewInt(3)),
		},
		{
			"PrependOne",
			jsonval.NewArray(jsonval.NewInt(2), jsonval.NewInt(3)),
			jsonval.NewArray(jsonval.NewInt(1), jsonval.NewInt(2), jsonval.NewInt(3)),
		},
		{
			"ReplaceMiddleEqualLength",
			jsonval.NewArray(jsonval.NewInt(1), jsonval.NewInt(2), jsonval.NewInt(3)),
			jsonval.NewArray(jsonval.NewInt(1), jsonval.NewInt(9), jsonval.NewInt(3)),
		},
		{
			"ReplaceMiddleUnequalLength",
			jsonval.NewArray(jsonval.NewInt(1), jsonval.NewInt(2), jsonval.NewInt(2), jsonval.NewInt(3)),
			jsonval.NewArray(jsonval.NewInt(1), jsonval.NewInt(9), jsonval.NewInt(3)),
		},
		{
			"NestedObjectEdit",
			jsonval.NewArray(jsonval.NewObject(jsonval.Member{Key: "x", Value: jsonval.NewInt(1)})),
			jsonval.NewArray(jsonval.NewObject(jsonval.Member{Key: "x", Value: jsonval.NewInt(2)})),
		},
		{
			"EmptyToNonEmpty",
			jsonval.NewArray(),
			jsonval.NewArray(jsonval.NewInt(1), jsonval.NewInt(2)),
		},
		{
			"NonEmptyToEmpty",
			jsonval.NewArray(jsonval.NewInt(1), jsonval.NewInt(2)),
			jsonval.NewArray(),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ok, script := Delta(tc.a, tc.b, 10000)
			if !ok {
				t.Fatalf("Delta reported not ok within a generous budget")
			}
			got := mustApply(t, tc.a, script)
			if !got.Equal(tc.b) {
				t.Errorf("update(a, delta(a,b)) = %s, want %s", got.ToJSON(), tc.b.ToJSON())
			}
		})
	}
}

func TestDelta_ApplyRoundTrip_Objects(t *testing.T) {
	a := jsonval.NewObject(
		jsonval.Member{Key: "a", Value: jsonval.NewInt(1)},
		jsonval.Member{Key: "b", Value: jsonval.NewInt(2)},
		jsonval.Member{Key: "c", Value: jsonval.NewInt(3)},
	)
	b := jsonval.NewObject(
		jsonval.Member{Key: "a", Value: jsonval.NewInt(1)},
		jsonval.Member{Key: "c", Value: jsonval.NewInt(30)},
		jsonval.Member{Key: "d", Value: jsonval.NewInt(4)},
	)

	ok, script := Delta(a, b, 10000)
	if !ok {
		t.Fatalf("Delta reported not ok within a generous budget")
	}
	got := mustApply(t, a, script)
	if !got.Equal(b) {
		t.Errorf("update(a, delta(a,b)) = %s, want %s", got.ToJSON(), b.ToJSON())
	}
}

func TestDelta_ApplyRoundTrip_NestedObjectEditAt(t *testing.T) {
	a := jsonval.NewObject(
		jsonval.Member{Key: "inner", Value: jsonval.NewObject(jsonval.Member{Key: "x", Value: jsonval.NewInt(1)})},
	)
	b := jsonval.NewObject(
		jsonval.Member{Key: "inner", Value: jsonval.NewObject(jsonval.Member{Key: "x", Value: jsonval.NewInt(2)})},
	)
	ok, script := Delta(a, b, 10000)
	if !ok {
		t.Fatalf("Delta reported not ok")
	}
	got := mustApply(t, a, script)
	if !got.Equal(b) {
		t.Errorf("update(a, delta(a,b)) = %s, want %s", got.ToJSON(), b.ToJSON())
	}
}

func TestDelta_BudgetExceeded_FallsBackToFullValue(t *testing.T) {
	a := jsonval.NewArray(jsonval.NewInt(1))
	b := jsonval.NewArray(jsonval.NewInt(2), jsonval.NewInt(3), jsonval.NewInt(4), jsonval.NewInt(5), jsonval.NewInt(6))

	ok, out := Delta(a, b, 1)
	if ok {
		t.Fatalf("expected budget of 1 byte to be impossible to satisfy")
	}
	if !out.Equal(b) {
		t.Errorf("expected fallback value to equal b, got %s", out.ToJSON())
	}
}

func TestDelta_ScalarReplacement(t *testing.T) {
	ok, script := Delta(jsonval.NewInt(1), jsonval.NewInt(2), 10000)
	if !ok {
		t.Fatalf("Delta reported not ok")
	}
	got := mustApply(t, jsonval.NewInt(1), script)
	if !got.Equal(jsonval.NewInt(2)) {
		t.Errorf("got %s, want 2", got.ToJSON())
	}
}

func TestApply_NonArrayScriptIsFullReplacement(t *testing.T) {
	got := mustApply(t, jsonval.NewInt(1), jsonval.NewInt(99))
	if !got.Equal(jsonval.NewInt(99)) {
		t.Errorf("got %s, want 99", got.ToJSON())
	}
}

func TestApply_UnknownOpcodeIsError(t *testing.T) {
	bad := jsonval.NewArray(jsonval.NewArray(jsonval.NewInt(42), jsonval.NewInt(0)))
	if _, err := Apply(jsonval.NewArray(jsonval.NewInt(1)), bad); err == nil {
		t.Errorf("expected error for unknown opcode")
	}
}

func TestApply_OutOfRangeIsError(t *testing.T) {
	script := jsonval.NewArray(jsonval.NewArray(jsonval.NewInt(int64(OpDeleteAt)), jsonval.NewInt(5)))
	if _, err := Apply(jsonval.NewArray(jsonval.NewInt(1)), script); err == nil {
		t.Errorf("expected out-of-range error")
	}
}

func TestApply_EditAtRecursesIntoNestedArray(t *testing.T) {
	value := jsonval.NewArray(jsonval.NewArray(jsonval.NewInt(1), jsonval.NewInt(2)))
	inner := jsonval.NewArray(jsonval.NewInt(1), jsonval.NewInt(2), jsonval.NewInt(3))
	_, innerScript := Delta(jsonval.NewArray(jsonval.NewInt(1), jsonval.NewInt(2)), inner, 10000)
	script := jsonval.NewArray(opEditAt(0, innerScript))
	got := mustApply(t, value, script)
	want := jsonval.NewArray(inner)
	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got.ToJSON(), want.ToJSON())
	}
}
