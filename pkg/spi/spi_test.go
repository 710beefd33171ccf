package spi

import (
	"testing"

	"github.com/tsambor/gocanfd/internal/crc"
	"github.com/tsambor/gocanfd/pkg/reg"

	"github.com/stretchr/testify/assert"
)

// recorderBus captures the last command and plays back a canned response.
type recorderBus struct {
	lastTx   []byte
	response []byte
	err      error
}

func (b *recorderBus) Exchange(tx []byte, rx []byte) error {
	b.lastTx = append([]byte{}, tx...)
	copy(rx, b.response)
	return b.err
}

func TestMaskSpan(t *testing.T) {
	cases := []struct {
		mask        uint32
		first, last int
	}{
		{0x000000FF, 0, 0},
		{0x00000100, 1, 1},
		{0xFF000000, 3, 3},
		{0x00FFFF00, 1, 2},
		{0xFFFFFFFF, 0, 3},
		{0x00000001, 0, 0},
		{0x80000000, 3, 3},
		{0x01000002, 0, 3},
	}
	for _, c := range cases {
		first, last, err := maskSpan(c.mask)
		assert.Nil(t, err)
		assert.Equal(t, c.first, first, "mask 0x%08X", c.mask)
		assert.Equal(t, c.last, last, "mask 0x%08X", c.mask)
	}
	_, _, err := maskSpan(0)
	assert.Equal(t, ErrZeroMask, err)
}

func TestResetEncoding(t *testing.T) {
	bus := &recorderBus{}
	client := NewClient(bus)
	assert.Nil(t, client.Reset())
	assert.Equal(t, []byte{0x00, 0x00}, bus.lastTx)
}

func TestWriteRegisterMinimalSpan(t *testing.T) {
	bus := &recorderBus{}
	client := NewClient(bus)

	// mask only covers byte 1, so the command addresses addr+1 and
	// carries a single data byte
	err := client.WriteRegister(reg.CON, 0x0000BB00, 0x0000FF00)
	assert.Nil(t, err)
	assert.Equal(t, []byte{0x20, 0x01, 0xBB}, bus.lastTx)
}

func TestWriteRegisterFullWord(t *testing.T) {
	bus := &recorderBus{}
	client := NewClient(bus)

	err := client.WriteRegister(reg.NBTCFG, 0x11223344, 0xFFFFFFFF)
	assert.Nil(t, err)
	// header 0x2004, then the word little-endian
	assert.Equal(t, []byte{0x20, 0x04, 0x44, 0x33, 0x22, 0x11}, bus.lastTx)
}

func TestReadRegisterMaskedValue(t *testing.T) {
	bus := &recorderBus{response: []byte{0x44, 0x33, 0x22, 0x11}}
	client := NewClient(bus)

	value, err := client.ReadRegister(reg.CON, 0xFFFFFFFF)
	assert.Nil(t, err)
	assert.EqualValues(t, 0x11223344, value)
	assert.Equal(t, []byte{0x30, 0x00}, bus.lastTx)

	// high-byte mask shifts the span and positions the byte correctly
	bus.response = []byte{0xAB}
	value, err = client.ReadRegister(reg.CON, 0xFF000000)
	assert.Nil(t, err)
	assert.EqualValues(t, 0xAB000000, value)
	assert.Equal(t, []byte{0x30, 0x03}, bus.lastTx)
}

func TestReadRegisterZeroMask(t *testing.T) {
	client := NewClient(&recorderBus{})
	_, err := client.ReadRegister(reg.CON, 0)
	assert.Equal(t, ErrZeroMask, err)
}

func TestWriteBytesCRC(t *testing.T) {
	bus := &recorderBus{}
	client := NewClient(bus)

	data := []byte{0xDE, 0xAD}
	assert.Nil(t, client.WriteBytesCRC(0x400, data))

	// header | addr, length byte, payload, then CRC over everything before it
	expected := []byte{0xA4, 0x00, 0x02, 0xDE, 0xAD}
	sum := crc.Checksum(expected)
	expected = append(expected, byte(sum>>8), byte(sum))
	assert.Equal(t, expected, bus.lastTx)
}

func TestReadBytesCRCMismatch(t *testing.T) {
	bus := &recorderBus{response: []byte{0x01, 0x02, 0xFF, 0xFF}}
	client := NewClient(bus)

	buf := make([]byte, 2)
	err := client.ReadBytesCRC(0x400, buf)
	assert.ErrorIs(t, err, ErrCRC)
}

func TestReadBytesCRCValid(t *testing.T) {
	data := []byte{0x01, 0x02}
	cmd := []byte{0xB4, 0x00, 0x02}
	sum := crc.New()
	sum.Block(cmd)
	sum.Block(data)

	response := append(append([]byte{}, data...), byte(uint16(sum)>>8), byte(sum))
	bus := &recorderBus{response: response}
	client := NewClient(bus)

	buf := make([]byte, 2)
	assert.Nil(t, client.ReadBytesCRC(0x400, buf))
	assert.Equal(t, data, buf)
}
