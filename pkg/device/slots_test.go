package device

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlotAllocatorLowestFree(t *testing.T) {
	a := newSlotAllocator(4)

	for want := 0; want < 4; want++ {
		slot, err := a.allocate()
		assert.Nil(t, err)
		assert.Equal(t, want, slot)
	}
	_, err := a.allocate()
	assert.Equal(t, ErrBusy, err)

	a.release(2)
	slot, err := a.allocate()
	assert.Nil(t, err)
	assert.Equal(t, 2, slot)

	_, err = a.allocate()
	assert.Equal(t, ErrBusy, err)
}

func TestSlotAllocatorConcurrent(t *testing.T) {
	const n = 30
	a := newSlotAllocator(n)

	var wg sync.WaitGroup
	got := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot, err := a.allocate()
			if err == nil {
				got <- slot
			}
		}()
	}
	wg.Wait()
	close(got)

	seen := map[int]bool{}
	for slot := range got {
		assert.False(t, seen[slot], "slot %d allocated twice", slot)
		seen[slot] = true
	}
	assert.Len(t, seen, n)

	_, err := a.allocate()
	assert.Equal(t, ErrBusy, err)
	assert.Equal(t, n, a.pending())
}

func TestSlotAllocatorReleaseBounds(t *testing.T) {
	a := newSlotAllocator(2)
	// out-of-range releases must not corrupt the bitmap
	a.release(-1)
	a.release(7)
	slot, err := a.allocate()
	assert.Nil(t, err)
	assert.Equal(t, 0, slot)
}
