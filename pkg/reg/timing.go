package reg

import (
	"errors"
	"fmt"

	"github.com/tsambor/gocanfd/internal/bits"
)

var ErrTimingRange = errors.New("reg: bit timing parameter exceeds register field width")

// BitTiming holds one phase's bit timing parameters in time quanta, as
// produced by an external bit rate negotiator. The hardware stores most
// segment values with a -1 bias which Encode applies; Encode rejects values
// that would silently truncate.
type BitTiming struct {
	SJW       uint32 // synchronization jump width
	PhaseSeg1 uint32
	PhaseSeg2 uint32
	PropSeg   uint32
	Prescaler uint32 // baud rate prescaler
}

// TimingFields is the register-level view of a bit timing word.
type TimingFields struct {
	SJW   uint32 // stored value, sjw - 1
	TSEG1 uint32 // stored value, phase_seg1 + prop_seg - 1
	TSEG2 uint32 // stored value, phase_seg2 - 1
	BRP   uint32
}

// timingLayout describes where the fields live in NBTCFG or DBTCFG.
type timingLayout struct {
	sjw   bits.Field
	tseg2 bits.Field
	tseg1 bits.Field
	brp   bits.Field
}

var (
	nominalLayout = timingLayout{
		sjw:   bits.Field{Shift: 0, Width: 7},
		tseg2: bits.Field{Shift: 8, Width: 7},
		tseg1: bits.Field{Shift: 16, Width: 8},
		brp:   bits.Field{Shift: 24, Width: 8},
	}
	dataLayout = timingLayout{
		sjw:   bits.Field{Shift: 0, Width: 4},
		tseg2: bits.Field{Shift: 8, Width: 4},
		tseg1: bits.Field{Shift: 16, Width: 5},
		brp:   bits.Field{Shift: 24, Width: 8},
	}
)

// Fields applies the hardware encoding bias to the raw parameters.
func (bt BitTiming) Fields() (TimingFields, error) {
	if bt.SJW == 0 || bt.PhaseSeg1+bt.PropSeg == 0 || bt.PhaseSeg2 == 0 {
		return TimingFields{}, fmt.Errorf("%w: segments must be at least 1", ErrTimingRange)
	}
	return TimingFields{
		SJW:   bt.SJW - 1,
		TSEG1: bt.PhaseSeg1 + bt.PropSeg - 1,
		TSEG2: bt.PhaseSeg2 - 1,
		BRP:   bt.Prescaler,
	}, nil
}

func (l timingLayout) encode(f TimingFields) (uint32, error) {
	checks := []struct {
		name  string
		field bits.Field
		value uint32
	}{
		{"sjw", l.sjw, f.SJW},
		{"tseg2", l.tseg2, f.TSEG2},
		{"tseg1", l.tseg1, f.TSEG1},
		{"brp", l.brp, f.BRP},
	}
	var word uint32
	for _, c := range checks {
		if !c.field.Fits(c.value) {
			return 0, fmt.Errorf("%w: %s=%d does not fit %d bits",
				ErrTimingRange, c.name, c.value, c.field.Width)
		}
		word |= c.field.Pack(c.value)
	}
	return word, nil
}

func (l timingLayout) decode(word uint32) TimingFields {
	return TimingFields{
		SJW:   l.sjw.Unpack(word),
		TSEG2: l.tseg2.Unpack(word),
		TSEG1: l.tseg1.Unpack(word),
		BRP:   l.brp.Unpack(word),
	}
}

// EncodeNominal packs nominal phase bit timing into an NBTCFG word.
func EncodeNominal(bt BitTiming) (uint32, error) {
	f, err := bt.Fields()
	if err != nil {
		return 0, err
	}
	return nominalLayout.encode(f)
}

// EncodeData packs data phase bit timing into a DBTCFG word.
func EncodeData(bt BitTiming) (uint32, error) {
	f, err := bt.Fields()
	if err != nil {
		return 0, err
	}
	return dataLayout.encode(f)
}

// DecodeNominal unpacks an NBTCFG word into its register fields.
func DecodeNominal(word uint32) TimingFields {
	return nominalLayout.decode(word)
}

// DecodeData unpacks a DBTCFG word into its register fields.
func DecodeData(word uint32) TimingFields {
	return dataLayout.decode(word)
}
