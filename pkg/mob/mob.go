// Package mob encodes and decodes the controller's message objects: the
// binary layout CAN frames take inside the FIFO RAM rings.
//
// Every object starts with two little-endian 32-bit words, an identifier
// word and a control word. Receive objects may carry a timestamp word and
// transmit event objects always do. The payload follows, padded to the
// FIFO's configured payload capacity.
package mob

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tsambor/gocanfd/internal/bits"
	"github.com/tsambor/gocanfd/pkg/can"
)

var (
	ErrPayloadCapacity = errors.New("mob: frame payload exceeds FIFO payload capacity")
	ErrShortObject     = errors.New("mob: object buffer shorter than its declared layout")
)

// Identifier word fields
var (
	fieldSID = bits.Field{Shift: 0, Width: 11}
	fieldEID = bits.Field{Shift: 11, Width: 18}
)

// Control word bits and fields
const (
	ctrlIDE = 1 << 4
	ctrlRTR = 1 << 5
	ctrlBRS = 1 << 6
	ctrlFDF = 1 << 7
	ctrlESI = 1 << 8
)

var (
	fieldDLC       = bits.Field{Shift: 0, Width: 4}
	fieldSequence  = bits.Field{Shift: 9, Width: 7}
	fieldFilterHit = bits.Field{Shift: 11, Width: 5}
)

const (
	headerSize    = 8 // identifier word + control word
	timestampSize = 4

	// TEFEventSize is the transmit event object size with timestamping on.
	TEFEventSize = headerSize + timestampSize
)

// TxObjectSize returns the RAM footprint of one transmit object for a
// FIFO payload capacity.
func TxObjectSize(payloadSize int) int {
	return headerSize + payloadSize
}

// RxObjectSize returns the RAM footprint of one receive object.
func RxObjectSize(payloadSize int, timestamped bool) int {
	size := headerSize + payloadSize
	if timestamped {
		size += timestampSize
	}
	return size
}

func packID(frame can.Frame) uint32 {
	if frame.Extended {
		// 29-bit identifier: 11 most significant bits in SID,
		// 18 least significant in EID
		return fieldSID.Pack(frame.ID>>18) | fieldEID.Pack(frame.ID&0x3FFFF)
	}
	return fieldSID.Pack(frame.ID)
}

func unpackID(word uint32, extended bool) uint32 {
	if extended {
		return fieldSID.Unpack(word)<<18 | fieldEID.Unpack(word)
	}
	return fieldSID.Unpack(word)
}

// EncodeTx lays out frame as a transmit object. The sequence tag comes back
// in the transmit event once the frame has gone out and is how completions
// are matched to TX slots.
func EncodeTx(frame can.Frame, sequence uint8, payloadSize int) ([]byte, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	if int(frame.Length) > payloadSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadCapacity, frame.Length, payloadSize)
	}
	dlc, err := can.DLCForLength(frame.Length)
	if err != nil {
		return nil, err
	}

	ctrl := fieldDLC.Pack(uint32(dlc)) | fieldSequence.Pack(uint32(sequence))
	if frame.Extended {
		ctrl |= ctrlIDE
	}
	if frame.Remote {
		ctrl |= ctrlRTR
	}
	if frame.FD {
		ctrl |= ctrlFDF
	}
	if frame.BRS {
		ctrl |= ctrlBRS
	}
	if frame.ESI {
		ctrl |= ctrlESI
	}

	object := make([]byte, TxObjectSize(payloadSize))
	binary.LittleEndian.PutUint32(object[0:4], packID(frame))
	binary.LittleEndian.PutUint32(object[4:8], ctrl)
	copy(object[headerSize:], frame.Data[:frame.Length])
	return object, nil
}

// DecodeRx parses a receive object read from the RX ring.
func DecodeRx(object []byte, timestamped bool) (can.Frame, error) {
	payloadStart := headerSize
	if timestamped {
		payloadStart += timestampSize
	}
	if len(object) < payloadStart {
		return can.Frame{}, ErrShortObject
	}
	id := binary.LittleEndian.Uint32(object[0:4])
	ctrl := binary.LittleEndian.Uint32(object[4:8])

	frame := can.Frame{
		Extended:  ctrl&ctrlIDE != 0,
		Remote:    ctrl&ctrlRTR != 0,
		FD:        ctrl&ctrlFDF != 0,
		BRS:       ctrl&ctrlBRS != 0,
		ESI:       ctrl&ctrlESI != 0,
		FilterHit: uint8(fieldFilterHit.Unpack(ctrl)),
	}
	frame.ID = unpackID(id, frame.Extended)
	frame.Length = can.LengthForDLC(uint8(fieldDLC.Unpack(ctrl)), frame.FD)
	if timestamped {
		frame.Timestamp = binary.LittleEndian.Uint32(object[8:12])
	}
	if len(object) < payloadStart+int(frame.Length) {
		return can.Frame{}, ErrShortObject
	}
	copy(frame.Data[:frame.Length], object[payloadStart:])
	return frame, nil
}

// TEFEvent is one decoded transmit event FIFO entry.
type TEFEvent struct {
	ID        uint32
	Extended  bool
	Sequence  uint8
	Timestamp uint32
}

// DecodeTEF parses a transmit event object read from the TEF ring.
func DecodeTEF(object []byte) (TEFEvent, error) {
	if len(object) < TEFEventSize {
		return TEFEvent{}, ErrShortObject
	}
	id := binary.LittleEndian.Uint32(object[0:4])
	ctrl := binary.LittleEndian.Uint32(object[4:8])
	event := TEFEvent{
		Extended:  ctrl&ctrlIDE != 0,
		Sequence:  uint8(fieldSequence.Unpack(ctrl)),
		Timestamp: binary.LittleEndian.Uint32(object[8:12]),
	}
	event.ID = unpackID(id, event.Extended)
	return event, nil
}
