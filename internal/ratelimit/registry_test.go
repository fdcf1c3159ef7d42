package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRegistry_GetIdempotent(t *testing.T) {
	r := NewRegistry()

	a := r.Get("kis", "VOLUME_RANK|/uapi/domestic-stock/v1/quotations/volume-rank")
	b := r.Get("kis", "VOLUME_RANK|/uapi/domestic-stock/v1/quotations/volume-rank")
	if a != b {
		t.Error("same (provider, key) must return the same limiter instance")
	}
}

func TestRegistry_DistinctKeysDistinctLimiters(t *testing.T) {
	r := NewRegistry()

	const n = 50
	var mu sync.Mutex
	seen := make(map[*Limiter]string)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("endpoint-%d", i)
			l := r.Get("upbit", key)
			mu.Lock()
			defer mu.Unlock()
			if prev, ok := seen[l]; ok && prev != key {
				t.Errorf("limiter shared between keys %q and %q", prev, key)
			}
			seen[l] = key
		}(i)
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("expected %d distinct limiters, got %d", n, len(seen))
	}
}

func TestRegistry_ProviderDefaults(t *testing.T) {
	r := NewRegistry()

	cases := []struct {
		provider string
		rate     int
		period   time.Duration
	}{
		{"kis", 19, time.Second},
		{"upbit", 10, time.Second},
		{"unknown-provider", 19, time.Second},
	}
	for _, tc := range cases {
		stats := r.Get(tc.provider, "_global").Stats()
		if stats.Rate != tc.rate || stats.Period != tc.period {
			t.Errorf("%s: got (%d, %v), want (%d, %v)", tc.provider, stats.Rate, stats.Period, tc.rate, tc.period)
		}
	}
}

func TestRegistry_ExplicitWindowOverride(t *testing.T) {
	r := NewRegistry()

	stats := r.Get("krx", "stock:all", Window{Rate: 2, Period: 5 * time.Second}).Stats()
	if stats.Rate != 2 || stats.Period != 5*time.Second {
		t.Errorf("override ignored: got (%d, %v)", stats.Rate, stats.Period)
	}

	// Override applies at creation only.
	again := r.Get("krx", "stock:all", Window{Rate: 9, Period: time.Second}).Stats()
	if again.Rate != 2 {
		t.Errorf("second Get must return the original limiter, got rate %d", again.Rate)
	}
}

func TestRegistry_Reset(t *testing.T) {
	r := NewRegistry()
	before := r.Get("kis", "_global")
	r.Reset()
	after := r.Get("kis", "_global")
	if before == after {
		t.Error("Reset must clear the registry")
	}
	if len(r.Snapshot()) != 1 {
		t.Errorf("expected 1 limiter after reset+get, got %d", len(r.Snapshot()))
	}
}
