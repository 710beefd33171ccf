package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsambor/gocanfd/pkg/mob"
	"github.com/tsambor/gocanfd/pkg/reg"
	"github.com/tsambor/gocanfd/pkg/spi"
	"github.com/tsambor/gocanfd/pkg/spi/virtual"
)

func TestSizing(t *testing.T) {
	tx, rx, payload := sizing(PayloadClassic)
	assert.Equal(t, 30, tx)
	assert.Equal(t, 32, rx)
	assert.Equal(t, 8, payload)

	tx, rx, payload = sizing(PayloadFD)
	assert.Equal(t, 14, tx)
	assert.Equal(t, 8, rx)
	assert.Equal(t, 64, payload)
}

func TestSizingFitsMessageRAM(t *testing.T) {
	for _, mode := range []PayloadMode{PayloadClassic, PayloadFD} {
		tx, rx, payload := sizing(mode)
		total := tx*mob.TEFEventSize +
			rx*mob.RxObjectSize(payload, true) +
			tx*mob.TxObjectSize(payload)
		assert.LessOrEqual(t, total, int(reg.RAMSize), "mode %v", mode)
	}
}

// the current pointer must always be base plus (consumed mod count) elements
func TestRingAdvanceWraps(t *testing.T) {
	const count = 5
	r := ring{base: 0x4A0, end: 0x4A0 + count*16, elemSize: 16, current: 0x4A0}
	for k := 1; k <= 3*count+2; k++ {
		r.advance()
		assert.Equal(t, r.base+uint32(k%count)*16, r.current, "after %d advances", k)
		assert.GreaterOrEqual(t, r.current, r.base)
		assert.Less(t, r.current, r.end)
	}
}

func TestFifoConfigureSamplesLayout(t *testing.T) {
	ctrl := virtual.NewController(testLogger())
	client := spi.NewClient(ctrl)
	cfg := testConfig()
	logger := testLogger()

	// steady-state CON: transmit events on, TXQ off so RAM belongs to the FIFOs
	assert.Nil(t, client.WriteRegister(reg.CON, reg.ConStoreTEF, reg.ConStoreTEF|reg.ConTXQEnable))

	modes := &modeController{client: client, cfg: cfg, logger: logger}
	f := newFifoManager(client, cfg, logger)
	assert.Nil(t, f.configure(modes))

	// layout is contiguous: TEF, then the RX ring, then one single-element
	// FIFO per TX slot
	assert.Equal(t, uint32(0), f.tef.base)
	assert.Equal(t, uint32(30*mob.TEFEventSize), f.rx.base)
	elem := uint32(mob.RxObjectSize(8, cfg.RxTimestamps))
	assert.Equal(t, f.rx.base+32*elem, f.slotAddrs[0])
	for slot := 1; slot < f.txSlots; slot++ {
		assert.Equal(t, f.slotAddrs[slot-1]+uint32(mob.TxObjectSize(8)), f.slotAddrs[slot])
	}

	// the sampling pass must end back in configuration mode
	assert.Equal(t, reg.ModeConfig, ctrl.Mode())
}
