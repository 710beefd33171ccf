package can

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFrame(t *testing.T) {
	t.Run("standard id classic", func(t *testing.T) {
		frame, err := NewFrame(0x123, []byte{1, 2, 3, 4, 5, 6, 7, 8})
		assert.Nil(t, err)
		assert.False(t, frame.Extended)
		assert.False(t, frame.FD)
		assert.EqualValues(t, 8, frame.Length)
	})
	t.Run("extended id", func(t *testing.T) {
		frame, err := NewFrame(0x1234567, []byte{1})
		assert.Nil(t, err)
		assert.True(t, frame.Extended)
	})
	t.Run("fd length", func(t *testing.T) {
		frame, err := NewFrame(0x123, make([]byte, 64))
		assert.Nil(t, err)
		assert.True(t, frame.FD)
		assert.EqualValues(t, 64, frame.Length)
	})
	t.Run("id out of range", func(t *testing.T) {
		_, err := NewFrame(0x20000000, nil)
		assert.Equal(t, ErrInvalidId, err)
	})
	t.Run("length not a dlc step", func(t *testing.T) {
		_, err := NewFrame(0x123, make([]byte, 13))
		assert.Equal(t, ErrLengthNotDLC, err)
	})
}

func TestDLCForLength(t *testing.T) {
	dlc, err := DLCForLength(8)
	assert.Nil(t, err)
	assert.EqualValues(t, 8, dlc)

	dlc, err = DLCForLength(48)
	assert.Nil(t, err)
	assert.EqualValues(t, 14, dlc)

	_, err = DLCForLength(9)
	assert.Equal(t, ErrLengthNotDLC, err)
}

func TestLengthForDLC(t *testing.T) {
	assert.EqualValues(t, 64, LengthForDLC(15, true))
	// classic framing caps the long codes at 8 bytes
	assert.EqualValues(t, 8, LengthForDLC(15, false))
	assert.EqualValues(t, 3, LengthForDLC(3, false))
}
