// Package reg describes the controller's register and RAM address space:
// addresses, bitfield layouts and typed pack/unpack helpers.
//
// The controller exposes a flat 12-bit address space. CAN registers start at
// 0x000, message RAM is windowed at 0x400 and the special function registers
// (oscillator, IO, CRC, ECC) start at 0xE00.
package reg

import "github.com/tsambor/gocanfd/internal/bits"

// Address is an offset into the controller's unified register + RAM space.
type Address = uint16

const (
	// RAM window holding the FIFO message objects
	RAMBase Address = 0x400
	RAMSize         = 0x800

	// Special function register block
	sfrBase Address = 0xE00

	OSC     = sfrBase + 0x00
	IOCON   = sfrBase + 0x04
	CRCREG  = sfrBase + 0x08
	ECCCON  = sfrBase + 0x0C
	ECCSTAT = sfrBase + 0x10

	// CAN controller register block
	CON    Address = 0x000
	NBTCFG Address = 0x004
	DBTCFG Address = 0x008
	TDC    Address = 0x00C
	TBC    Address = 0x010
	TSCON  Address = 0x014
	VEC    Address = 0x018
	INT    Address = 0x01C
	RXIF   Address = 0x020
	TXIF   Address = 0x024
	RXOVIF Address = 0x028
	TXATIF Address = 0x02C
	TXREQ  Address = 0x030
	TREC   Address = 0x034
	BDIAG0 Address = 0x038
	BDIAG1 Address = 0x040
	TEFCON Address = 0x044
	TEFSTA Address = 0x048
	TEFUA  Address = 0x04C
	TXQCON Address = 0x054
	TXQUA  Address = 0x058
)

// FIFOCON returns the control register address of FIFO n (1..31).
func FIFOCON(n int) Address {
	return Address(0x05C + 12*(n-1))
}

// FIFOSTA returns the status register address of FIFO n (1..31).
func FIFOSTA(n int) Address {
	return Address(0x060 + 12*(n-1))
}

// FIFOUA returns the user address register of FIFO n (1..31). It holds the
// RAM offset of the element the FIFO head currently points at.
func FIFOUA(n int) Address {
	return Address(0x064 + 12*(n-1))
}

// FLTCONByte returns the per-filter control byte address of filter n (0..31).
func FLTCONByte(n int) Address {
	return Address(0x1D0 + n)
}

// FLTOBJ returns the filter object register address of filter n (0..31).
func FLTOBJ(n int) Address {
	return Address(0x1F0 + 8*n)
}

// FLTMASK returns the filter mask register address of filter n (0..31).
func FLTMASK(n int) Address {
	return Address(0x1F4 + 8*n)
}

// RAMAddress converts a FIFO user-address register value into an absolute
// address inside the RAM window.
func RAMAddress(offset uint32) Address {
	return RAMBase + Address(offset)
}

// Filters implemented by the controller.
const FilterCount = 32

// Operating modes, values of the CON REQOP/OPMOD fields.
type Mode uint8

const (
	ModeMixed            Mode = 0 // CAN-FD and classic frames
	ModeSleep            Mode = 1
	ModeInternalLoopback Mode = 2
	ModeListenOnly       Mode = 3
	ModeConfig           Mode = 4
	ModeExternalLoopback Mode = 5
	ModeCAN20            Mode = 6 // classic frames only
	ModeRestricted       Mode = 7
)

func (m Mode) String() string {
	switch m {
	case ModeMixed:
		return "normal-fd"
	case ModeSleep:
		return "sleep"
	case ModeInternalLoopback:
		return "internal-loopback"
	case ModeListenOnly:
		return "listen-only"
	case ModeConfig:
		return "configuration"
	case ModeExternalLoopback:
		return "external-loopback"
	case ModeCAN20:
		return "normal-can2.0"
	case ModeRestricted:
		return "restricted"
	}
	return "unknown"
}

// CON register bits and fields
const (
	ConISOCRCEn  = 1 << 5
	ConPXEDis    = 1 << 6
	ConWakeFil   = 1 << 8
	ConBusy      = 1 << 11
	ConBRSDis    = 1 << 12
	ConRTXAT     = 1 << 16
	ConESIGM     = 1 << 17
	ConSERR2LOM  = 1 << 18
	ConStoreTEF  = 1 << 19
	ConTXQEnable = 1 << 20
	ConAbortAll  = 1 << 27
)

var (
	ConDNCNT = bits.Field{Shift: 0, Width: 5}
	ConWFT   = bits.Field{Shift: 9, Width: 2}
	ConOPMOD = bits.Field{Shift: 21, Width: 3}
	ConREQOP = bits.Field{Shift: 24, Width: 3}
	ConTXBWS = bits.Field{Shift: 28, Width: 3}
)

// ConDefault is the CON content after a reset; ConDefaultMask selects the
// bits compared during the device identity probe.
var (
	ConDefault = uint32(ConISOCRCEn|ConPXEDis|ConWakeFil|
		ConStoreTEF|ConTXQEnable) |
		ConWFT.Pack(3) |
		ConOPMOD.Pack(uint32(ModeConfig)) |
		ConREQOP.Pack(uint32(ModeConfig))

	ConDefaultMask = ConDNCNT.Mask() |
		uint32(ConISOCRCEn|ConPXEDis|ConWakeFil|ConBRSDis|
			ConRTXAT|ConESIGM|ConSERR2LOM|ConStoreTEF|ConTXQEnable|
			ConAbortAll) |
		ConWFT.Mask() | ConOPMOD.Mask() | ConREQOP.Mask() | ConTXBWS.Mask()
)

// RequestMode returns the CON word with the requested-mode field replaced.
func RequestMode(con uint32, mode Mode) uint32 {
	return (con &^ ConREQOP.Mask()) | ConREQOP.Pack(uint32(mode))
}

// CurrentMode extracts the confirmed operating mode from the CON word.
func CurrentMode(con uint32) Mode {
	return Mode(ConOPMOD.Unpack(con))
}

// OSC register bits and fields
const (
	OscPLLEnable = 1 << 0
	OscDisable   = 1 << 2
	OscSysDiv2   = 1 << 4
	OscPLLReady  = 1 << 8
	OscReady     = 1 << 10
	OscSclkReady = 1 << 12
)

var OscClkoDiv = bits.Field{Shift: 5, Width: 2}

// TSCON register, free running time base used for RX/TEF timestamps
const TsconTBCEnable = 1 << 24

var TsconPrescaler = bits.Field{Shift: 0, Width: 10}

// INT register. The low half holds the interrupt flags, the high half the
// matching enable bits.
const (
	IntTXIF     = 1 << 0
	IntRXIF     = 1 << 1
	IntTBCIF    = 1 << 2
	IntMODIF    = 1 << 3
	IntTEFIF    = 1 << 4
	IntECCIF    = 1 << 8
	IntSPICRCIF = 1 << 9
	IntTXATIF   = 1 << 10
	IntRXOVIF   = 1 << 11
	IntSERRIF   = 1 << 12
	IntCERRIF   = 1 << 13
	IntWAKIF    = 1 << 14
	IntIVMIF    = 1 << 15

	IntTXIE     = 1 << 16
	IntRXIE     = 1 << 17
	IntTBCIE    = 1 << 18
	IntMODIE    = 1 << 19
	IntTEFIE    = 1 << 20
	IntECCIE    = 1 << 24
	IntSPICRCIE = 1 << 25
	IntTXATIE   = 1 << 26
	IntRXOVIE   = 1 << 27
	IntSERRIE   = 1 << 28
	IntCERRIE   = 1 << 29
	IntWAKIE    = 1 << 30
	IntIVMIE    = 1 << 31

	IntFlagMask   = 0x0000FFFF
	IntEnableMask = 0xFFFF0000
)

// TREC register, transmit/receive error counters and bus state
const (
	TrecEWarn        = 1 << 16
	TrecRxWarn       = 1 << 17
	TrecTxWarn       = 1 << 18
	TrecRxBusPassive = 1 << 19
	TrecTxBusPassive = 1 << 20
	TrecTxBusOff     = 1 << 21
)

var (
	TrecREC = bits.Field{Shift: 0, Width: 8}
	TrecTEC = bits.Field{Shift: 8, Width: 8}
)

// TEFCON register
const (
	TefconNotEmptyIE  = 1 << 0
	TefconHalfFullIE  = 1 << 1
	TefconFullIE      = 1 << 2
	TefconOverflowIE  = 1 << 3
	TefconTimestampEn = 1 << 5
	TefconUINC        = 1 << 8
	TefconFReset      = 1 << 10
)

var TefconFSize = bits.Field{Shift: 24, Width: 5}

// TEFSTA register
const (
	TefstaNotEmpty = 1 << 0
	TefstaHalfFull = 1 << 1
	TefstaFull     = 1 << 2
	TefstaOverflow = 1 << 3
)

// FIFOCON registers (transmit and receive FIFOs share the layout)
const (
	FifoconNotEmptyIE  = 1 << 0 // RX not empty / TX not full
	FifoconHalfIE      = 1 << 1
	FifoconFullIE      = 1 << 2 // RX full / TX empty
	FifoconOverflowIE  = 1 << 3
	FifoconTxAttemptIE = 1 << 4
	FifoconTimestampEn = 1 << 5
	FifoconAutoRTR     = 1 << 6
	FifoconTxEnable    = 1 << 7
	FifoconUINC        = 1 << 8
	FifoconTxRequest   = 1 << 9
	FifoconFReset      = 1 << 10
)

var (
	FifoconTxPriority = bits.Field{Shift: 16, Width: 5}
	FifoconTxAttempts = bits.Field{Shift: 21, Width: 2}
	FifoconFSize      = bits.Field{Shift: 24, Width: 5}
	FifoconPLSize     = bits.Field{Shift: 29, Width: 3}
)

// FIFOSTA registers
const (
	FifostaNotEmpty = 1 << 0
	FifostaHalfFull = 1 << 1
	FifostaFull     = 1 << 2
	FifostaOverflow = 1 << 3
)

var FifostaIndex = bits.Field{Shift: 8, Width: 5}

// Filter control byte: bind filter to a FIFO and enable it
const FltconEnable = 1 << 7

var FltconBufferPointer = bits.Field{Shift: 0, Width: 5}

// Filter object / mask registers
const (
	FltobjSID11     = 1 << 29
	FltobjExtended  = 1 << 30
	FltmaskMatchIDE = 1 << 30
)

var (
	FltobjSID = bits.Field{Shift: 0, Width: 11}
	FltobjEID = bits.Field{Shift: 12, Width: 18}
)

// PayloadCode returns the PLSIZE register code for a payload byte capacity.
// Valid capacities are the FD steps 8..64.
func PayloadCode(payloadSize int) (uint32, bool) {
	sizes := [8]int{8, 12, 16, 20, 24, 32, 48, 64}
	for code, size := range sizes {
		if size == payloadSize {
			return uint32(code), true
		}
	}
	return 0, false
}
