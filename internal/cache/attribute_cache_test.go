package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := NewAttributeCache(10, time.Minute)

	c.Set("session-1", map[string]any{"age_over_19": "true"})

	got, ok := c.Get("session-1")
	if !ok {
		t.Fatal("entry missing")
	}
	if got["age_over_19"] != "true" {
		t.Fatalf("age_over_19 = %v", got["age_over_19"])
	}
}

func TestGetAbsent(t *testing.T) {
	c := NewAttributeCache(10, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected absent entry")
	}
}

func TestEntriesExpireAutonomously(t *testing.T) {
	c := NewAttributeCache(10, 20*time.Millisecond)

	c.Set("session-1", map[string]any{"age_over_19": "true"})
	time.Sleep(40 * time.Millisecond)

	if _, ok := c.Get("session-1"); ok {
		t.Fatal("entry survived its TTL")
	}
}

func TestCapacityBound(t *testing.T) {
	c := NewAttributeCache(2, time.Minute)

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("session-%d", i), map[string]any{"n": i})
	}

	// Oldest entry evicted to stay within capacity.
	if _, ok := c.Get("session-0"); ok {
		t.Fatal("capacity bound not enforced")
	}
	if _, ok := c.Get("session-2"); !ok {
		t.Fatal("most recent entry missing")
	}
}

func TestOverwriteReplacesEntry(t *testing.T) {
	c := NewAttributeCache(10, time.Minute)

	c.Set("session-1", map[string]any{"v": 1})
	c.Set("session-1", map[string]any{"v": 2})

	got, ok := c.Get("session-1")
	if !ok || got["v"] != 2 {
		t.Fatalf("got %v %v", got, ok)
	}
}
