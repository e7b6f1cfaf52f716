// versioned_test.go
package pubsub

import (
	"testing"

	"pushbus/pkg/delta"
	"pushbus/pkg/jsonval"
)

func TestVersioned_UpdateNoOpOnSameValue(t *testing.T) {
	v := NewVersioned(jsonval.NewInt(1), 1000)
	if v.Update(jsonval.NewInt(1)) {
		t.Errorf("expected Update with identical value to report no change")
	}
	_, version := v.Current()
	if version != 0 {
		t.Errorf("expected version to stay 0, got %d", version)
	}
}

func TestVersioned_UpdateBumpsVersion(t *testing.T) {
	v := NewVersioned(jsonval.NewInt(1), 1000)
	if !v.Update(jsonval.NewInt(2)) {
		t.Fatalf("expected Update to report a change")
	}
	cur, version := v.Current()
	if version != 1 || !cur.Equal(jsonval.NewInt(2)) {
		t.Errorf("got (%s, %d), want (2, 1)", cur.ToJSON(), version)
	}
}

func TestVersioned_GetUpdateFrom_CurrentVersionYieldsEmptyScript(t *testing.T) {
	v := NewVersioned(jsonval.NewInt(1), 1000)
	ok, script := v.GetUpdateFrom(0, 1000)
	if !ok || script.Len() != 0 {
		t.Errorf("got (%v, %s), want (true, [])", ok, script.ToJSON())
	}
}

func TestVersioned_GetUpdateFrom_HistoryHitReconstructs(t *testing.T) {
	v := NewVersioned(jsonval.NewArray(jsonval.NewInt(1), jsonval.NewInt(2)), 1000)
	v.Update(jsonval.NewArray(jsonval.NewInt(1), jsonval.NewInt(2), jsonval.NewInt(3)))
	v.Update(jsonval.NewArray(jsonval.NewInt(1), jsonval.NewInt(2), jsonval.NewInt(3), jsonval.NewInt(4)))

	ok, script := v.GetUpdateFrom(0, 1000)
	if !ok {
		t.Fatalf("expected a hit for version 0")
	}
	v.mu.Lock()
	reconstructed, ok := v.reconstructLocked(0)
	v.mu.Unlock()
	if !ok {
		t.Fatalf("reconstructLocked(0) failed")
	}
	got, err := delta.Apply(reconstructed, script)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	cur, _ := v.Current()
	if !got.Equal(cur) {
		t.Errorf("reconstructed-then-applied = %s, want %s", got.ToJSON(), cur.ToJSON())
	}
}

func TestVersioned_GetUpdateFrom_MissOutsideHistory(t *testing.T) {
	v := NewVersioned(jsonval.NewInt(1), 1)
	for i := 2; i < 20; i++ {
		v.Update(jsonval.NewInt(int64(i)))
	}
	ok, value := v.GetUpdateFrom(0, 1000)
	if ok {
		t.Fatalf("expected a miss once history has been pruned past version 0")
	}
	cur, _ := v.Current()
	if !value.Equal(cur) {
		t.Errorf("miss should return current value, got %s want %s", value.ToJSON(), cur.ToJSON())
	}
}

func TestVersioned_HistoryPrunedToBudget(t *testing.T) {
	v := NewVersioned(jsonval.NewInt(0), 4)
	for i := 1; i <= 50; i++ {
		v.Update(jsonval.NewInt(int64(i)))
	}
	if v.bytes > v.budget {
		t.Errorf("history bytes %d exceed budget %d", v.bytes, v.budget)
	}
	if len(v.history) == 0 {
		t.Errorf("expected at least some history to be retained")
	}
}
