package registry

import (
	"sync"
	"testing"
)

func TestGroupLocks_SameGroup(t *testing.T) {
	locks := NewGroupLocks()

	if locks.Get("wedding") != locks.Get("wedding") {
		t.Error("expected the same mutex for the same group")
	}
	if locks.Get("wedding") == locks.Get("party") {
		t.Error("expected distinct mutexes for distinct groups")
	}
}

func TestGroupLocks_ConcurrentGet(t *testing.T) {
	locks := NewGroupLocks()

	var wg sync.WaitGroup
	results := make([]*sync.Mutex, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = locks.Get("wedding")
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent Get returned different mutexes")
		}
	}
}

func TestGroupLocks_Serializes(t *testing.T) {
	locks := NewGroupLocks()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mu := locks.Get("wedding")
			mu.Lock()
			counter++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("expected 50 increments, got %d", counter)
	}
}
