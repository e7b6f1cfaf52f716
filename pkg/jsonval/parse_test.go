// parse_test.go
package jsonval

import "testing"

func TestParse_RoundTrip(t *testing.T) {
	testCases := []string{
		`null`,
		`true`,
		`false`,
		`42`,
		`-17`,
		`3.5`,
		`"hello"`,
		`[1,2,3]`,
		`{"a":1,"b":[true,false,null]}`,
		`{"nested":{"x":1},"arr":[{"y":2}]}`,
	}
	for _, in := range testCases {
		t.Run(in, func(t *testing.T) {
			v, err := Parse([]byte(in))
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", in, err)
			}
			if got := string(v.ToJSON()); got != in {
				t.Errorf("round trip: Parse(%q).ToJSON() = %q", in, got)
			}
		})
	}
}

func TestParse_PreservesObjectOrder(t *testing.T) {
	v, err := Parse([]byte(`{"z":1,"a":2,"m":3}`))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	members := v.Members()
	want := []string{"z", "a", "m"}
	if len(members) != len(want) {
		t.Fatalf("expected %d members, got %d", len(want), len(members))
	}
	for i, m := range members {
		if m.Key != want[i] {
			t.Errorf("member %d key = %q, want %q", i, m.Key, want[i])
		}
	}
}

func TestParse_Errors(t *testing.T) {
	testCases := []string{
		``,
		`{`,
		`[1,`,
		`{"a":1,"a":2}`,
		`1 2`,
		`{not-a-string: 1}`,
	}
	for _, in := range testCases {
		t.Run(in, func(t *testing.T) {
			if _, err := Parse([]byte(in)); err == nil {
				t.Errorf("Parse(%q) expected error, got nil", in)
			}
		})
	}
}

func TestParse_IntegerPreserved(t *testing.T) {
	v, err := Parse([]byte(`9007199254740993`))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	n, ok := v.Int()
	if !ok || n != 9007199254740993 {
		t.Errorf("Int() = (%d, %v), want (9007199254740993, true)", n, ok)
	}
}
