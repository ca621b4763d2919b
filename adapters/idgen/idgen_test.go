package idgen_test

import (
	"regexp"
	"sync"
	"testing"

	"github.com/artpar/modgate/adapters/idgen"
)

func TestUUID_New(t *testing.T) {
	var g idgen.Generator = idgen.UUID{}

	uuidRegex := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := g.New()
		if !uuidRegex.MatchString(id) {
			t.Fatalf("ID %s doesn't match UUID v4 format", id)
		}
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestSequential(t *testing.T) {
	g := idgen.NewSequential("req-")

	for _, want := range []string{"req-1", "req-2", "req-3"} {
		if got := g.New(); got != want {
			t.Errorf("New() = %s, want %s", got, want)
		}
	}

	g.Reset()
	if got := g.New(); got != "req-1" {
		t.Errorf("after Reset = %s, want req-1", got)
	}
}

func TestSequential_Concurrent(t *testing.T) {
	g := idgen.NewSequential("")

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.New()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Errorf("unique ids = %d, want 50", len(seen))
	}
}
