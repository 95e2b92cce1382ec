package entitlements

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type stubSource struct {
	mu    sync.Mutex
	owned map[string][]string
	err   error
	calls int
}

func (s *stubSource) OwnedAgents(ctx context.Context, account string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]string(nil), s.owned[account]...), nil
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestCacheHydrateOnSetAccount(t *testing.T) {
	source := &stubSource{owned: map[string][]string{
		"0xaaa": {"momentum-alpha", "grid-master"},
	}}
	cache := NewCache(source, nil)

	owned := cache.SetAccount(context.Background(), "0xAAA")
	if len(owned) != 2 {
		t.Fatalf("owned = %v, want two agents", owned)
	}
	if !cache.Owns("0xaaa", "momentum-alpha") {
		t.Error("expected ownership of momentum-alpha")
	}
	if !cache.Owns("0xAAA", "grid-master") {
		t.Error("account comparison should ignore case")
	}
	if cache.Owns("0xaaa", "arb-hunter") {
		t.Error("unowned agent reported owned")
	}
}

func TestCacheHydrateFailsSoft(t *testing.T) {
	source := &stubSource{owned: map[string][]string{
		"0xaaa": {"momentum-alpha"},
	}}
	cache := NewCache(source, nil)
	cache.SetAccount(context.Background(), "0xaaa")

	source.mu.Lock()
	source.err = errors.New("store down")
	source.mu.Unlock()

	owned := cache.Hydrate(context.Background())
	if len(owned) != 1 || owned[0] != "momentum-alpha" {
		t.Fatalf("owned after failed hydration = %v, want previous set", owned)
	}
	if !cache.Owns("0xaaa", "momentum-alpha") {
		t.Error("previous set discarded on hydration failure")
	}
}

func TestCacheAccountSwitchClearsKnowledge(t *testing.T) {
	source := &stubSource{owned: map[string][]string{
		"0xaaa": {"momentum-alpha"},
	}}
	cache := NewCache(source, nil)
	cache.SetAccount(context.Background(), "0xaaa")

	// The new account's hydration fails, yet the old account's agents must
	// not leak through.
	source.mu.Lock()
	source.err = errors.New("store down")
	source.mu.Unlock()

	cache.SetAccount(context.Background(), "0xbbb")
	if cache.Owns("0xbbb", "momentum-alpha") {
		t.Error("previous account's entitlement visible after switch")
	}
	if cache.Owns("0xaaa", "momentum-alpha") {
		t.Error("cache answers for an account it no longer tracks")
	}
}

func TestCacheDisconnectClearsWithoutFetch(t *testing.T) {
	source := &stubSource{owned: map[string][]string{
		"0xaaa": {"momentum-alpha"},
	}}
	cache := NewCache(source, nil)
	cache.SetAccount(context.Background(), "0xaaa")
	before := source.callCount()

	owned := cache.SetAccount(context.Background(), "")
	if owned != nil {
		t.Errorf("owned = %v, want nil after disconnect", owned)
	}
	if source.callCount() != before {
		t.Error("store queried for empty account")
	}
	if cache.Owns("0xaaa", "momentum-alpha") {
		t.Error("entitlements survive disconnect")
	}
}

func TestCacheRecordLocal(t *testing.T) {
	cache := NewCache(nil, nil)
	cache.SetAccount(context.Background(), "0xaaa")

	cache.RecordLocal("0xAAA", "momentum-alpha")
	if !cache.Owns("0xaaa", "momentum-alpha") {
		t.Fatal("RecordLocal did not take effect")
	}

	got := cache.Owned("0xaaa")
	if len(got) != 1 || got[0] != "momentum-alpha" {
		t.Errorf("Owned = %v", got)
	}
	if cache.Owned("0xbbb") != nil {
		t.Error("Owned answered for an untracked account")
	}
}

func TestCacheRecordLocalInactiveAccount(t *testing.T) {
	cache := NewCache(nil, nil)
	cache.SetAccount(context.Background(), "0xbbb")

	cache.RecordLocal("0xaaa", "momentum-alpha")
	if cache.Owns("0xbbb", "momentum-alpha") {
		t.Error("record for a previous account leaked into the active one")
	}
	if cache.Owns("0xaaa", "momentum-alpha") {
		t.Error("record kept for an account the cache no longer tracks")
	}

	cache.RecordLocal("", "momentum-alpha")
	if len(cache.Owned("0xbbb")) != 0 {
		t.Error("record with an empty account was cached")
	}
}

func TestCacheOwnedSorted(t *testing.T) {
	source := &stubSource{owned: map[string][]string{
		"0xaaa": {"grid-master", "arb-hunter", "momentum-alpha"},
	}}
	cache := NewCache(source, nil)
	cache.SetAccount(context.Background(), "0xaaa")

	got := cache.Owned("0xaaa")
	want := []string{"arb-hunter", "grid-master", "momentum-alpha"}
	if len(got) != len(want) {
		t.Fatalf("Owned = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Owned = %v, want %v", got, want)
		}
	}
}
