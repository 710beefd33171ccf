package bits

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldPackUnpack(t *testing.T) {
	f := Field{Shift: 24, Width: 3}
	assert.EqualValues(t, 0x07000000, f.Mask())
	assert.EqualValues(t, 7, f.Max())
	assert.EqualValues(t, 0x04000000, f.Pack(4))
	assert.EqualValues(t, 4, f.Unpack(0x04123456))
	assert.True(t, f.Fits(7))
	assert.False(t, f.Fits(8))
}

func TestPackTruncates(t *testing.T) {
	f := Field{Shift: 0, Width: 4}
	assert.EqualValues(t, 0x0F, f.Pack(0xFF))
}
