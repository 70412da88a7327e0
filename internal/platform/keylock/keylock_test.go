package keylock_test

import (
	"sync"
	"testing"

	"github.com/p-n-ai/coursecraft/internal/platform/keylock"
)

func TestLocker_SerializesSameKey(t *testing.T) {
	l := keylock.New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("user-1")
			v := counter
			v++
			counter = v
			unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestLocker_ReleasesEntries(t *testing.T) {
	l := keylock.New()

	unlockA := l.Lock("a")
	unlockB := l.Lock("b")
	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}
	unlockA()
	unlockB()
	if l.Len() != 0 {
		t.Errorf("Len() = %d after unlock, want 0", l.Len())
	}
}

func TestLocker_IndependentKeys(t *testing.T) {
	l := keylock.New()

	unlockA := l.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := l.Lock("b")
		unlock()
		close(done)
	}()
	<-done
	unlockA()
}
