package plancache

import (
	"fmt"
	"testing"

	"github.com/Domusgpt/parserator-sub000/internal/plan"
)

func planFor(key string) plan.SearchPlan {
	return plan.SearchPlan{
		Steps: []plan.SearchStep{{
			TargetKey:         key,
			SearchInstruction: "find the " + key + " value",
			ValidationType:    plan.TypeString,
		}},
		TotalSteps:          1,
		EstimatedComplexity: plan.ComplexityLow,
		Confidence:          0.9,
	}
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := Fingerprint(map[string]string{"name": "string", "total": "number", "date": "iso_date"})
	b := Fingerprint(map[string]string{"date": "iso_date", "name": "string", "total": "number"})
	if a != b {
		t.Errorf("fingerprints differ for same schema: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestFingerprint_DistinguishesSchemas(t *testing.T) {
	base := Fingerprint(map[string]string{"name": "string"})
	tests := []struct {
		desc   string
		schema map[string]string
	}{
		{"renamed field", map[string]string{"title": "string"}},
		{"changed type", map[string]string{"name": "number"}},
		{"extra field", map[string]string{"name": "string", "age": "number"}},
	}
	for _, tt := range tests {
		if got := Fingerprint(tt.schema); got == base {
			t.Errorf("%s: fingerprint collided with base schema", tt.desc)
		}
	}
}

func TestCache_LookupStore(t *testing.T) {
	c := New(10)
	fp := Fingerprint(map[string]string{"name": "string"})

	if _, ok := c.Lookup(fp); ok {
		t.Fatal("lookup on empty cache returned a plan")
	}

	c.Store(fp, planFor("name"))
	got, ok := c.Lookup(fp)
	if !ok {
		t.Fatal("stored plan not found")
	}
	if got.Steps[0].TargetKey != "name" {
		t.Errorf("wrong plan returned: %q", got.Steps[0].TargetKey)
	}
}

func TestCache_EvictsOldestInserted(t *testing.T) {
	c := New(2)
	c.Store("a", planFor("a"))
	c.Store("b", planFor("b"))

	// Reading "a" must not protect it: eviction follows insertion order.
	if _, ok := c.Lookup("a"); !ok {
		t.Fatal("entry a missing before eviction")
	}

	c.Store("c", planFor("c"))

	if _, ok := c.Lookup("a"); ok {
		t.Error("oldest entry a should have been evicted")
	}
	if _, ok := c.Lookup("b"); !ok {
		t.Error("entry b should survive")
	}
	if _, ok := c.Lookup("c"); !ok {
		t.Error("entry c should be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestCache_StoreRefreshMovesToBack(t *testing.T) {
	c := New(2)
	c.Store("a", planFor("a"))
	c.Store("b", planFor("b"))
	c.Store("a", planFor("a")) // refresh: a is now newest
	c.Store("c", planFor("c"))

	if _, ok := c.Lookup("b"); ok {
		t.Error("b should be evicted after a was refreshed")
	}
	if _, ok := c.Lookup("a"); !ok {
		t.Error("refreshed entry a should survive")
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := New(5)
	c.Store("a", planFor("a"))
	c.Invalidate("a")
	if _, ok := c.Lookup("a"); ok {
		t.Error("invalidated entry still present")
	}
	// Invalidating a missing key is a no-op.
	c.Invalidate("nope")
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(8)
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 50; j++ {
				fp := fmt.Sprintf("fp-%d-%d", n, j%10)
				c.Store(fp, planFor("k"))
				c.Lookup(fp)
				if j%7 == 0 {
					c.Invalidate(fp)
				}
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	if c.Len() > 8 {
		t.Errorf("Len() = %d exceeds capacity", c.Len())
	}
}
