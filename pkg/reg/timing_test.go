package reg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimingRoundTrip(t *testing.T) {
	params := []BitTiming{
		{SJW: 1, PhaseSeg1: 7, PhaseSeg2: 2, PropSeg: 6, Prescaler: 0},
		{SJW: 4, PhaseSeg1: 15, PhaseSeg2: 8, PropSeg: 1, Prescaler: 3},
		{SJW: 16, PhaseSeg1: 64, PhaseSeg2: 32, PropSeg: 63, Prescaler: 255},
	}
	for _, p := range params {
		fields, err := p.Fields()
		assert.Nil(t, err)
		word, err := nominalLayout.encode(fields)
		assert.Nil(t, err)
		assert.Equal(t, fields, DecodeNominal(word))
	}
}

func TestTimingDataRoundTrip(t *testing.T) {
	p := BitTiming{SJW: 2, PhaseSeg1: 8, PhaseSeg2: 4, PropSeg: 7, Prescaler: 1}
	fields, err := p.Fields()
	assert.Nil(t, err)
	word, err := dataLayout.encode(fields)
	assert.Nil(t, err)
	assert.Equal(t, fields, DecodeData(word))
}

func TestTimingFieldPlacement(t *testing.T) {
	word, err := EncodeNominal(BitTiming{
		SJW: 1, PhaseSeg1: 1, PhaseSeg2: 1, PropSeg: 0, Prescaler: 0x12,
	})
	assert.Nil(t, err)
	// SJW-1 and TSEG2-1 are zero, TSEG1 = 1+0-1 = 0, BRP in the top byte
	assert.EqualValues(t, 0x12000000, word)
}

func TestTimingRange(t *testing.T) {
	t.Run("data sjw too wide", func(t *testing.T) {
		// data phase SJW field is 4 bits, stored value 16 does not fit
		_, err := EncodeData(BitTiming{SJW: 17, PhaseSeg1: 2, PhaseSeg2: 2, Prescaler: 0})
		assert.ErrorIs(t, err, ErrTimingRange)
	})
	t.Run("nominal tseg1 too wide", func(t *testing.T) {
		_, err := EncodeNominal(BitTiming{SJW: 1, PhaseSeg1: 200, PropSeg: 100, PhaseSeg2: 2, Prescaler: 0})
		assert.ErrorIs(t, err, ErrTimingRange)
	})
	t.Run("zero segment", func(t *testing.T) {
		_, err := EncodeNominal(BitTiming{})
		assert.ErrorIs(t, err, ErrTimingRange)
	})
}
