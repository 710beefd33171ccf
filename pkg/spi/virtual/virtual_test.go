package virtual

import (
	"testing"

	"github.com/tsambor/gocanfd/pkg/reg"
	"github.com/tsambor/gocanfd/pkg/spi"

	"github.com/stretchr/testify/assert"
)

func TestMaskedWriteReadIdempotence(t *testing.T) {
	client := spi.NewClient(NewController(nil))

	masks := []uint32{0xFF, 0xFF00, 0xFFFF0000, 0x00FFFF00, 0xFFFFFFFF, 0x1}
	for _, mask := range masks {
		value := uint32(0xA5C3D27B) & mask
		assert.Nil(t, client.WriteRegister(reg.NBTCFG, value, mask))
		got, err := client.ReadRegister(reg.NBTCFG, mask)
		assert.Nil(t, err)
		assert.Equal(t, value, got, "mask 0x%08X", mask)
	}
}

func TestMaskedWriteLeavesNeighborsAlone(t *testing.T) {
	client := spi.NewClient(NewController(nil))

	assert.Nil(t, client.WriteRegister(reg.DBTCFG, 0xFFFFFFFF, 0xFFFFFFFF))
	assert.Nil(t, client.WriteRegister(reg.DBTCFG, 0, 0x0000FF00))

	got, err := client.ReadRegister(reg.DBTCFG, 0xFFFFFFFF)
	assert.Nil(t, err)
	assert.EqualValues(t, 0xFFFF00FF, got)
}

func TestResetOnlyActsInConfigMode(t *testing.T) {
	ctrl := NewController(nil)
	client := spi.NewClient(ctrl)

	ctrl.SetPowerOnMode(reg.ModeCAN20)
	assert.Nil(t, client.WriteRegister(reg.NBTCFG, 0x1234, 0xFFFF))
	assert.Nil(t, client.Reset())

	// not in configuration mode: the write must have survived the reset
	got, err := client.ReadRegister(reg.NBTCFG, 0xFFFF)
	assert.Nil(t, err)
	assert.EqualValues(t, 0x1234, got)

	// request configuration mode, then reset clears the register file
	con, err := client.ReadRegister(reg.CON, 0xFFFFFFFF)
	assert.Nil(t, err)
	assert.Nil(t, client.WriteRegister(reg.CON, reg.RequestMode(con, reg.ModeConfig), 0xFFFFFFFF))
	assert.Nil(t, client.Reset())

	got, err = client.ReadRegister(reg.NBTCFG, 0xFFFF)
	assert.Nil(t, err)
	assert.Zero(t, got)
}

func TestModeLatency(t *testing.T) {
	ctrl := NewController(nil)
	ctrl.SetModeLatency(2)
	client := spi.NewClient(ctrl)

	con, _ := client.ReadRegister(reg.CON, 0xFFFFFFFF)
	assert.Nil(t, client.WriteRegister(reg.CON, reg.RequestMode(con, reg.ModeCAN20), 0xFFFFFFFF))

	first, _ := client.ReadRegister(reg.CON, reg.ConOPMOD.Mask())
	assert.Equal(t, reg.ModeConfig, reg.CurrentMode(first))

	second, _ := client.ReadRegister(reg.CON, reg.ConOPMOD.Mask())
	assert.Equal(t, reg.ModeConfig, reg.CurrentMode(second))

	third, _ := client.ReadRegister(reg.CON, reg.ConOPMOD.Mask())
	assert.Equal(t, reg.ModeCAN20, reg.CurrentMode(third))
}

func TestUserAddressHiddenInConfigMode(t *testing.T) {
	ctrl := NewController(nil)
	client := spi.NewClient(ctrl)

	ua, err := client.ReadRegister(reg.TEFUA, 0xFFFFFFFF)
	assert.Nil(t, err)
	assert.Zero(t, ua)

	// drop the power-on TXQ so FIFO 1 follows the TEF region directly
	con, _ := client.ReadRegister(reg.CON, 0xFFFFFFFF)
	con &^= reg.ConTXQEnable
	assert.Nil(t, client.WriteRegister(reg.CON, reg.RequestMode(con, reg.ModeInternalLoopback), 0xFFFFFFFF))

	ua1, err := client.ReadRegister(reg.FIFOUA(1), 0xFFFFFFFF)
	assert.Nil(t, err)
	tefSize, _ := client.ReadRegister(reg.TEFCON, reg.TefconFSize.Mask())
	expected := (reg.TefconFSize.Unpack(tefSize) + 1) * 12
	assert.EqualValues(t, expected, ua1)
}

func TestOscillatorReadyAfterPolls(t *testing.T) {
	ctrl := NewController(nil)
	ctrl.SetOscillator(true, 3)
	client := spi.NewClient(ctrl)

	status, err := client.ReadRegister(reg.OSC, 0xFFFFFFFF)
	assert.Nil(t, err)
	assert.NotZero(t, status&reg.OscDisable)
	assert.Zero(t, status&reg.OscReady)

	// enable the oscillator with the PLL
	assert.Nil(t, client.WriteRegister(reg.OSC, reg.OscPLLEnable, 0xFF))
	for i := 0; i < 3; i++ {
		status, err = client.ReadRegister(reg.OSC, 0xFFFFFFFF)
		assert.Nil(t, err)
		assert.Zero(t, status&reg.OscReady, "poll %d", i)
	}
	status, err = client.ReadRegister(reg.OSC, 0xFFFFFFFF)
	assert.Nil(t, err)
	assert.NotZero(t, status&reg.OscReady)
	assert.NotZero(t, status&reg.OscPLLReady)
}
