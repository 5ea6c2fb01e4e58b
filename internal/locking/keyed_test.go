package locking

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedSerializesSameKey(t *testing.T) {
	k := NewKeyed()
	const workers = 8
	const iters = 200

	var counter int // защищён только Keyed-мьютексом
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iters; i++ {
				unlock := k.Lock(1)
				counter++
				unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, workers*iters, counter)
}

func TestKeyedIndependentKeys(t *testing.T) {
	k := NewKeyed()

	unlock1 := k.Lock(1)
	done := make(chan struct{})
	go func() {
		// Другой ключ не должен ждать первого.
		unlock2 := k.Lock(2)
		unlock2()
		close(done)
	}()
	<-done
	unlock1()
}

func TestKeyedReleasesEntries(t *testing.T) {
	k := NewKeyed()
	for i := uint(0); i < 10; i++ {
		unlock := k.Lock(i)
		unlock()
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.locks)
}
