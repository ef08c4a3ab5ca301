package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionLocksSerializeSameSession(t *testing.T) {
	locks := newSessionLocks()

	var mu sync.Mutex
	active := 0
	maxActive := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.acquire("s1")
			defer unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "turns on one session never overlap")
}

func TestSessionLocksIndependentSessions(t *testing.T) {
	locks := newSessionLocks()

	u1 := locks.acquire("a")
	done := make(chan struct{})
	go func() {
		u2 := locks.acquire("b")
		u2()
		close(done)
	}()
	<-done // a held, b still acquirable
	u1()
}

func TestSessionLocksCleanUp(t *testing.T) {
	locks := newSessionLocks()

	unlock := locks.acquire("s1")
	unlock()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.locks, "released sessions leave no entries behind")
}
