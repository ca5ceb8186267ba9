package syncx

import (
	"sync"
	"testing"
)

func TestGuardGetSet(t *testing.T) {
	g := NewGuard(42)

	if got := g.Get(); got != 42 {
		t.Errorf("Get() = %d, want 42", got)
	}

	g.Set(100)
	if got := g.Get(); got != 100 {
		t.Errorf("Get() after Set = %d, want 100", got)
	}
}

func TestGuardSwap(t *testing.T) {
	g := NewGuard("idle")

	if old := g.Swap("running"); old != "idle" {
		t.Errorf("Swap returned %q, want %q", old, "idle")
	}
	if got := g.Get(); got != "running" {
		t.Errorf("Get() after Swap = %q, want %q", got, "running")
	}
}

func TestView(t *testing.T) {
	g := NewGuard([]string{"a", "b", "c"})

	if n := View(g, func(v []string) int { return len(v) }); n != 3 {
		t.Errorf("View() = %d, want 3", n)
	}
}

func TestUpdate(t *testing.T) {
	type stats struct{ captures, failures int }
	g := NewGuard(stats{})

	old := Update(g, func(s *stats) int {
		prev := s.captures
		s.captures = 5
		s.failures++
		return prev
	})

	if old != 0 {
		t.Errorf("Update returned %d, want 0", old)
	}
	if got := g.Get(); got.captures != 5 || got.failures != 1 {
		t.Errorf("Get() = %+v", got)
	}
}

func TestClaim(t *testing.T) {
	g := NewGuard(false)

	if !Claim(g) {
		t.Fatal("first Claim should succeed")
	}
	if Claim(g) {
		t.Fatal("second Claim should fail while held")
	}
	g.Set(false)
	if !Claim(g) {
		t.Fatal("Claim after release should succeed")
	}
}

func TestClaimConcurrent(t *testing.T) {
	g := NewGuard(false)
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if Claim(g) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("winners = %d, want 1", winners)
	}
}

func TestGuardConcurrentWrites(t *testing.T) {
	g := NewGuard(0)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			g.Write(func(v *int) { *v++ })
		}()
		go func() {
			defer wg.Done()
			_ = g.Get()
		}()
	}
	wg.Wait()

	if got := g.Get(); got != 100 {
		t.Errorf("Get() = %d, want 100", got)
	}
}
