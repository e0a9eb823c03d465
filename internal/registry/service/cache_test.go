package service

import (
	"testing"
	"time"

	"github.com/deathcert/registry/internal/registry/model"
)

func testCache(ttl time.Duration) (*lookupCache, *time.Time) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newLookupCache(ttl)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestCache_SetAndGet(t *testing.T) {
	c, _ := testCache(time.Minute)
	c.set("900101145678", model.Certificate{IC: "900101145678", ContentAddress: "QmA", IsValid: true})

	got, ok := c.get("900101145678")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.ContentAddress != "QmA" || !got.IsValid {
		t.Errorf("cached certificate = %+v", got)
	}
}

func TestCache_Miss(t *testing.T) {
	c, _ := testCache(time.Minute)
	if _, ok := c.get("nonexistent"); ok {
		t.Error("expected cache miss")
	}
}

func TestCache_Expiry(t *testing.T) {
	c, now := testCache(time.Minute)
	c.set("ic", model.Certificate{IC: "ic"})

	if _, ok := c.get("ic"); !ok {
		t.Fatal("expected hit before expiry")
	}
	*now = now.Add(2 * time.Minute)
	if _, ok := c.get("ic"); ok {
		t.Error("expected miss after TTL expiry")
	}
}

func TestCache_ZeroTTLDisables(t *testing.T) {
	c, _ := testCache(0)
	c.set("ic", model.Certificate{IC: "ic"})
	if c.len() != 0 {
		t.Errorf("zero TTL cache stored %d entries", c.len())
	}
}

func TestCache_InvalidateAndClear(t *testing.T) {
	c, _ := testCache(time.Minute)
	c.set("a", model.Certificate{IC: "a"})
	c.set("b", model.Certificate{IC: "b"})

	c.invalidate("a")
	if _, ok := c.get("a"); ok {
		t.Error("expected miss after invalidate")
	}
	if _, ok := c.get("b"); !ok {
		t.Error("invalidate removed an unrelated entry")
	}

	c.clear()
	if c.len() != 0 {
		t.Errorf("len after clear = %d", c.len())
	}
}

func TestCache_Evict(t *testing.T) {
	c, now := testCache(time.Minute)
	c.set("k1", model.Certificate{})
	c.set("k2", model.Certificate{})
	*now = now.Add(30 * time.Second)
	c.set("k3", model.Certificate{})

	*now = now.Add(45 * time.Second)
	if n := c.evict(); n != 2 {
		t.Errorf("evict() removed %d, want 2", n)
	}
	if c.len() != 1 {
		t.Errorf("len after evict = %d, want 1", c.len())
	}
}
