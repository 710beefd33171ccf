package device

import (
	"errors"
	"math/bits"
	"sync"
)

// ErrBusy is the backpressure signal: every TX slot is in flight. Callers
// must stop submitting until a completion frees a slot; it is not a fault.
var ErrBusy = errors.New("device: all transmit slots busy")

// slotAllocator hands out TX FIFO slots. Lower slot index means higher
// transmit priority, so handing out the lowest free index keeps the
// high-priority slots in use first. The bitmap is in-memory state only and
// has its own lock, independent of the device lock.
type slotAllocator struct {
	mu    sync.Mutex
	used  uint32
	count int
}

func newSlotAllocator(count int) *slotAllocator {
	return &slotAllocator{count: count}
}

func (a *slotAllocator) allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	slot := bits.TrailingZeros32(^a.used)
	if slot >= a.count {
		return 0, ErrBusy
	}
	a.used |= 1 << slot
	return slot, nil
}

// release frees a slot once its transmit event confirmed completion or an
// error aborted it. Releasing a free slot is a no-op.
func (a *slotAllocator) release(slot int) {
	if slot < 0 || slot >= a.count {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.used &^= 1 << slot
}

// pending returns the number of slots still in flight.
func (a *slotAllocator) pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return bits.OnesCount32(a.used)
}

func (a *slotAllocator) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.used = 0
}
