package keylock

import (
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	locker := New()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock(7)
			current := counter
			counter = current + 1
			unlock()
		}()
	}
	wg.Wait()

	if counter != 64 {
		t.Fatalf("lost updates: got %d want 64", counter)
	}
	if locker.Len() != 0 {
		t.Fatalf("entries leaked: %d", locker.Len())
	}
}

func TestLockDifferentKeysDoNotBlock(t *testing.T) {
	locker := New()
	unlockA := locker.Lock(1)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locker.Lock(2)
		unlock()
		close(done)
	}()
	<-done
}
