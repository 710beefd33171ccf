// Package can defines the CAN classic / CAN-FD frame model exchanged with
// the controller core.
package can

import "errors"

const (
	MaxStandardId uint32 = 0x7FF
	MaxExtendedId uint32 = 0x1FFFFFFF

	// Payload capacity per framing mode
	MaxClassicData = 8
	MaxFDData      = 64
)

var (
	ErrInvalidId     = errors.New("can: identifier out of range")
	ErrInvalidLength = errors.New("can: data length out of range")
	ErrLengthNotDLC  = errors.New("can: length not representable as a DLC")
)

// A CAN frame, classic or FD.
type Frame struct {
	ID        uint32 // 11-bit standard or 29-bit extended identifier
	Extended  bool   // 29-bit identifier
	Remote    bool   // remote transmission request (classic only)
	FD        bool   // CAN-FD framing
	BRS       bool   // bit rate switch (FD only)
	ESI       bool   // error state indicator (FD only)
	Length    uint8  // 0..8 classic, 0..64 FD
	Data      [MaxFDData]byte
	Timestamp uint32 // hardware time base value, RX frames only
	FilterHit uint8  // matching filter index, RX frames only
}

func NewFrame(id uint32, data []byte) (Frame, error) {
	frame := Frame{ID: id, Extended: id > MaxStandardId}
	if len(data) > MaxClassicData {
		frame.FD = true
	}
	frame.Length = uint8(len(data))
	copy(frame.Data[:], data)
	return frame, frame.Validate()
}

// Validate checks identifier range and length against the framing mode.
func (f Frame) Validate() error {
	max := MaxStandardId
	if f.Extended {
		max = MaxExtendedId
	}
	if f.ID > max {
		return ErrInvalidId
	}
	limit := uint8(MaxClassicData)
	if f.FD {
		limit = MaxFDData
	}
	if f.Length > limit {
		return ErrInvalidLength
	}
	if _, err := DLCForLength(f.Length); err != nil {
		return err
	}
	return nil
}

// dlcToLength maps the 4-bit data length code to a byte count.
var dlcToLength = [16]uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}

// DLCForLength returns the data length code for an exact byte count.
// Lengths between the discrete FD steps are rejected rather than padded,
// the caller decides on padding policy.
func DLCForLength(length uint8) (uint8, error) {
	for dlc, l := range dlcToLength {
		if l == length {
			return uint8(dlc), nil
		}
	}
	return 0, ErrLengthNotDLC
}

// LengthForDLC returns the byte count a data length code stands for.
// In classic framing codes above 8 still mean 8 bytes on the wire.
func LengthForDLC(dlc uint8, fd bool) uint8 {
	length := dlcToLength[dlc&0x0F]
	if !fd && length > MaxClassicData {
		return MaxClassicData
	}
	return length
}
