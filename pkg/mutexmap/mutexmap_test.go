package mutexmap

import (
	"sync"
	"testing"

	"github.com/function61/gokit/assert"
)

func TestTryLock(t *testing.T) {
	mm := New()

	releaseFoo, fooOk := mm.TryLock("foo")
	assert.Assert(t, fooOk)

	_, fooConcurrentOk := mm.TryLock("foo")
	assert.Assert(t, !fooConcurrentOk)

	// other keys are independent
	releaseBar, barOk := mm.TryLock("bar")
	assert.Assert(t, barOk)
	releaseBar()

	releaseFoo()
	releaseFoo() // double release is harmless

	assert.Assert(t, mm.Len() == 0)

	releaseFoo, fooOk = mm.TryLock("foo")
	assert.Assert(t, fooOk)
	releaseFoo()
}

func TestLockSerializes(t *testing.T) {
	mm := New()

	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			unlock := mm.Lock("shared")
			defer unlock()

			current := counter
			counter = current + 1
		}()
	}
	wg.Wait()

	assert.Assert(t, counter == 50)
	assert.Assert(t, mm.Len() == 0)
}
