package reg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFifoRegisterAddresses(t *testing.T) {
	assert.EqualValues(t, 0x05C, FIFOCON(1))
	assert.EqualValues(t, 0x060, FIFOSTA(1))
	assert.EqualValues(t, 0x064, FIFOUA(1))
	assert.EqualValues(t, 0x05C+12*30, FIFOCON(31))
}

func TestFilterAddresses(t *testing.T) {
	assert.EqualValues(t, 0x1D0, FLTCONByte(0))
	assert.EqualValues(t, 0x1F0, FLTOBJ(0))
	assert.EqualValues(t, 0x1F4, FLTMASK(0))
	assert.EqualValues(t, 0x1F8, FLTOBJ(1))
}

func TestModeField(t *testing.T) {
	con := RequestMode(ConDefault, ModeCAN20)
	assert.Equal(t, ModeCAN20, Mode(ConREQOP.Unpack(con)))
	// the confirmed mode field is untouched by a request
	assert.Equal(t, ModeConfig, CurrentMode(con))
}

func TestConDefaultMatchesItsMask(t *testing.T) {
	assert.EqualValues(t, ConDefault, ConDefault&ConDefaultMask)
}

func TestIntEnablesMirrorFlags(t *testing.T) {
	// each enable bit sits sixteen positions above its flag
	pairs := map[uint32]uint32{
		IntTXIF:     IntTXIE,
		IntRXIF:     IntRXIE,
		IntTBCIF:    IntTBCIE,
		IntMODIF:    IntMODIE,
		IntTEFIF:    IntTEFIE,
		IntECCIF:    IntECCIE,
		IntSPICRCIF: IntSPICRCIE,
		IntTXATIF:   IntTXATIE,
		IntRXOVIF:   IntRXOVIE,
		IntSERRIF:   IntSERRIE,
		IntCERRIF:   IntCERRIE,
		IntWAKIF:    IntWAKIE,
		IntIVMIF:    IntIVMIE,
	}
	for flag, enable := range pairs {
		assert.EqualValues(t, flag<<16, enable)
		assert.Zero(t, flag&IntEnableMask)
		assert.Zero(t, enable&IntFlagMask)
	}
}

func TestPayloadCode(t *testing.T) {
	code, ok := PayloadCode(8)
	assert.True(t, ok)
	assert.EqualValues(t, 0, code)

	code, ok = PayloadCode(64)
	assert.True(t, ok)
	assert.EqualValues(t, 7, code)

	_, ok = PayloadCode(10)
	assert.False(t, ok)
}
