// Package virtual implements an in-memory model of the CAN controller behind
// the spi.Bus interface. It is primarily used for testing the control core
// without hardware, the same role the virtual CAN bus plays for a real one.
//
// The model keeps a byte-addressed register file plus message RAM and
// emulates the behaviors the core depends on: reset only acting in
// configuration mode, requested-vs-confirmed mode tracking, oscillator
// readiness appearing after a configurable number of polls, hardware FIFO
// RAM layout reported through the user-address registers, and UINC/TXREQ
// side effects on the rings.
package virtual

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tsambor/gocanfd/internal/crc"
	"github.com/tsambor/gocanfd/pkg/reg"
)

const (
	instrMask   uint16 = 0xF000
	addressMask uint16 = 0x0FFF

	fifoCount = 31
)

var ErrBadCommand = errors.New("virtual: malformed command")

type fifoState struct {
	head  int // element index the user address points at
	tail  int // element index the next produced element lands at
	count int // occupied elements
}

// Controller is an in-memory stand-in for the device.
type Controller struct {
	mu     sync.Mutex
	logger *slog.Logger

	space [0x1000]byte // registers + RAM window

	// oscillator model
	oscConfig     uint32
	oscConfigured bool
	oscReads      int
	oscReadyAfter int
	oscOverride   *uint32

	// mode model
	modeLatency int // CON reads until OPMOD follows REQOP
	pendingMode *reg.Mode
	pendingIn   int

	tef   fifoState
	fifos [fifoCount + 1]fifoState // 1-based

	intFlags uint32 // latched error/event flags (low half of INT)

	transmitted [][]byte
	autoTEF     bool

	// Fail, when set, makes every exchange return this error.
	Fail error
}

// NewController returns a model in its power-on state: configuration mode,
// oscillator ready.
func NewController(logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{logger: logger, autoTEF: true, oscConfigured: true}
	c.powerOn(reg.ModeConfig)
	return c
}

func (c *Controller) powerOn(mode reg.Mode) {
	for i := range c.space {
		c.space[i] = 0
	}
	con := reg.RequestMode(reg.ConDefault, mode)
	con = (con &^ reg.ConOPMOD.Mask()) | reg.ConOPMOD.Pack(uint32(mode))
	c.putWord(reg.CON, con)
	c.tef = fifoState{}
	for i := range c.fifos {
		c.fifos[i] = fifoState{}
	}
	c.intFlags = 0
	c.pendingMode = nil
}

// SetPowerOnMode re-initializes the model as a device left in an arbitrary
// mode by earlier software, for exercising the forced configuration sequence.
func (c *Controller) SetPowerOnMode(mode reg.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.powerOn(mode)
}

// SetOscillator shapes the oscillator model: when disabled is true the
// status register reports the oscillator off until it has been configured
// and then polled readyAfter times.
func (c *Controller) SetOscillator(disabled bool, readyAfter int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.oscReadyAfter = readyAfter
	c.oscConfigured = !disabled
	c.oscReads = 0
	c.oscOverride = nil
	if disabled {
		c.oscConfig = reg.OscDisable
	}
}

// ForceOscillatorStatus pins the oscillator status word to an arbitrary
// value, for fault-suspected paths.
func (c *Controller) ForceOscillatorStatus(status uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.oscOverride = &status
}

// SetModeLatency delays confirmed-mode tracking by n CON reads after a
// mode request, modelling that transitions are not instantaneous.
func (c *Controller) SetModeLatency(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modeLatency = n
}

// SetAutoComplete controls whether a transmit request immediately produces
// a transmit event (the default). When off, completions are delivered
// manually with CompleteTransmissions.
func (c *Controller) SetAutoComplete(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoTEF = enabled
}

// Transmitted returns the message objects captured from transmit requests,
// oldest first.
func (c *Controller) Transmitted() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.transmitted))
	copy(out, c.transmitted)
	return out
}

// Mode returns the confirmed operating mode.
func (c *Controller) Mode() reg.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return reg.CurrentMode(c.word(reg.CON))
}

// Exchange implements spi.Bus.
func (c *Controller) Exchange(tx []byte, rx []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Fail != nil {
		return c.Fail
	}
	if len(tx) < 2 {
		return ErrBadCommand
	}
	cmd := uint16(tx[0])<<8 | uint16(tx[1])
	addr := reg.Address(cmd & addressMask)

	switch cmd & instrMask {
	case 0x0000:
		c.reset()
	case 0x3000:
		c.readSpan(addr, rx)
	case 0x2000:
		c.writeSpan(addr, tx[2:])
	case 0xB000:
		if len(tx) < 3 || len(rx) < int(tx[2])+2 {
			return ErrBadCommand
		}
		n := int(tx[2])
		c.readSpan(addr, rx[:n])
		sum := crc.New()
		sum.Block(tx[:3])
		sum.Block(rx[:n])
		rx[n] = byte(uint16(sum) >> 8)
		rx[n+1] = byte(sum)
	case 0xA000:
		if len(tx) < 5 {
			return ErrBadCommand
		}
		n := int(tx[2])
		if len(tx) != 3+n+2 {
			return ErrBadCommand
		}
		if crc.Checksum(tx[:3+n]) != uint16(tx[3+n])<<8|uint16(tx[4+n]) {
			return fmt.Errorf("virtual: crc write rejected")
		}
		c.writeSpan(addr, tx[3:3+n])
	case 0xC000:
		if len(tx) < 4 {
			return ErrBadCommand
		}
		n := len(tx) - 4
		if crc.Checksum(tx[:2+n]) != uint16(tx[2+n])<<8|uint16(tx[3+n]) {
			return fmt.Errorf("virtual: safe write rejected")
		}
		c.writeSpan(addr, tx[2:2+n])
	default:
		return fmt.Errorf("%w: instruction 0x%04X", ErrBadCommand, cmd&instrMask)
	}
	return nil
}

// reset returns the register file to defaults, but only when the device is
// already in configuration mode. Anywhere else the command is swallowed,
// which is exactly why the core's forced-config sequence exists.
func (c *Controller) reset() {
	if reg.CurrentMode(c.word(reg.CON)) != reg.ModeConfig {
		c.logger.Debug("virtual: reset ignored outside configuration mode")
		return
	}
	c.powerOn(reg.ModeConfig)
}

func (c *Controller) word(addr reg.Address) uint32 {
	return binary.LittleEndian.Uint32(c.space[addr : addr+4])
}

func (c *Controller) putWord(addr reg.Address, v uint32) {
	binary.LittleEndian.PutUint32(c.space[addr:addr+4], v)
}

// derived register reads

func (c *Controller) oscWord() uint32 {
	if c.oscOverride != nil {
		return *c.oscOverride
	}
	status := c.oscConfig
	if status&reg.OscDisable != 0 {
		return status
	}
	if !c.oscConfigured {
		return status
	}
	if c.oscReads <= c.oscReadyAfter {
		return status
	}
	status |= reg.OscReady
	if status&reg.OscPLLEnable != 0 {
		status |= reg.OscPLLReady
	}
	if status&reg.OscSysDiv2 != 0 {
		status |= reg.OscSclkReady
	}
	return status
}

func (c *Controller) confirmMode(mode reg.Mode) {
	con := c.word(reg.CON)
	con = (con &^ reg.ConOPMOD.Mask()) | reg.ConOPMOD.Pack(uint32(mode))
	c.putWord(reg.CON, con)
	c.pendingMode = nil
}

func (c *Controller) conWord() uint32 {
	if c.pendingMode != nil {
		if c.pendingIn > 0 {
			c.pendingIn--
		} else {
			c.confirmMode(*c.pendingMode)
		}
	}
	return c.word(reg.CON)
}

func (c *Controller) intWord() uint32 {
	flags := c.intFlags
	if c.rxReadable() > 0 {
		flags |= reg.IntRXIF
	}
	if c.tef.count > 0 {
		flags |= reg.IntTEFIF
	}
	enables := c.word(reg.INT) & reg.IntEnableMask
	return flags | enables
}

func (c *Controller) rxReadable() int {
	total := 0
	for n := 1; n <= fifoCount; n++ {
		if c.word(reg.FIFOCON(n))&reg.FifoconTxEnable == 0 {
			total += c.fifos[n].count
		}
	}
	return total
}

// layout mirrors the hardware RAM allocator: TEF first, then the TXQ when
// enabled, then FIFO 1..31 contiguously.
func (c *Controller) layout() (tefBase int, base [fifoCount + 1]int, elem [fifoCount + 1]int, size [fifoCount + 1]int) {
	offset := 0
	tefBase = offset
	if c.word(reg.CON)&reg.ConStoreTEF != 0 {
		offset += (int(reg.TefconFSize.Unpack(c.word(reg.TEFCON))) + 1) * 12
	}
	if c.word(reg.CON)&reg.ConTXQEnable != 0 {
		txqcon := c.word(reg.TXQCON)
		plsize := payloadBytes(reg.FifoconPLSize.Unpack(txqcon))
		offset += (int(reg.FifoconFSize.Unpack(txqcon)) + 1) * (8 + plsize)
	}
	for n := 1; n <= fifoCount; n++ {
		con := c.word(reg.FIFOCON(n))
		elemSize := 8 + payloadBytes(reg.FifoconPLSize.Unpack(con))
		if con&reg.FifoconTxEnable == 0 && con&reg.FifoconTimestampEn != 0 {
			elemSize += 4
		}
		base[n] = offset
		elem[n] = elemSize
		size[n] = int(reg.FifoconFSize.Unpack(con)) + 1
		offset += size[n] * elemSize
	}
	return tefBase, base, elem, size
}

func payloadBytes(code uint32) int {
	sizes := [8]int{8, 12, 16, 20, 24, 32, 48, 64}
	return sizes[code&7]
}

func (c *Controller) readByte(addr reg.Address) byte {
	word := addr &^ 3
	shift := 8 * (addr & 3)
	switch {
	case word == reg.OSC:
		// one poll per register read, counted on the first byte lane
		if addr&3 == 0 {
			c.oscReads++
		}
		return byte(c.oscWord() >> shift)
	case word == reg.CON:
		return byte(c.conWord() >> shift)
	case word == reg.INT:
		return byte(c.intWord() >> shift)
	case word == reg.TEFSTA:
		var sta uint32
		if c.tef.count > 0 {
			sta |= reg.TefstaNotEmpty
		}
		return byte(sta >> shift)
	case word == reg.TEFUA:
		// RAM addresses are only assigned once configuration mode is left
		if reg.CurrentMode(c.word(reg.CON)) == reg.ModeConfig {
			return 0
		}
		tefBase, _, _, _ := c.layout()
		return byte(uint32(tefBase+c.tef.head*12) >> shift)
	default:
		if n, kind := fifoRegister(word); n != 0 {
			switch kind {
			case "sta":
				var sta uint32
				if c.word(reg.FIFOCON(n))&reg.FifoconTxEnable != 0 {
					// for TX FIFOs bit 0 reads as "not full"
					sta |= reg.FifostaNotEmpty
				} else if c.fifos[n].count > 0 {
					sta |= reg.FifostaNotEmpty
				}
				sta |= reg.FifostaIndex.Pack(uint32(c.fifos[n].head))
				return byte(sta >> shift)
			case "ua":
				if reg.CurrentMode(c.word(reg.CON)) == reg.ModeConfig {
					return 0
				}
				_, base, elem, _ := c.layout()
				return byte(uint32(base[n]+c.fifos[n].head*elem[n]) >> shift)
			}
		}
	}
	return c.space[addr]
}

// fifoRegister maps a word address to (fifo number, register kind).
func fifoRegister(word reg.Address) (int, string) {
	if word < reg.FIFOCON(1) || word > reg.FIFOUA(fifoCount) {
		return 0, ""
	}
	rel := int(word - reg.FIFOCON(1))
	n := rel/12 + 1
	switch rel % 12 {
	case 0:
		return n, "con"
	case 4:
		return n, "sta"
	default:
		return n, "ua"
	}
}

func (c *Controller) readSpan(addr reg.Address, buf []byte) {
	for i := range buf {
		buf[i] = c.readByte(addr + reg.Address(i))
	}
}

func (c *Controller) writeSpan(addr reg.Address, data []byte) {
	for i, b := range data {
		c.writeByte(addr+reg.Address(i), b)
	}
}

func (c *Controller) writeByte(addr reg.Address, value byte) {
	word := addr &^ 3
	lane := addr & 3

	switch {
	case word == reg.OSC && lane == 0:
		c.space[addr] = value
		c.oscConfig = uint32(value)
		c.oscConfigured = c.oscConfig&reg.OscDisable == 0
		c.oscReads = 0
		return
	case word == reg.INT:
		switch lane {
		case 0, 1:
			// interrupt flags clear when written back as zero
			shift := 8 * lane
			mask := uint32(0xFF) << shift
			c.intFlags = (c.intFlags &^ mask) | (c.intFlags & (uint32(value) << shift))
		default:
			c.space[addr] = value
		}
		return
	case word == reg.CON && lane == 3:
		c.space[addr] = value
		requested := reg.Mode(reg.ConREQOP.Unpack(c.word(reg.CON)))
		c.logger.Debug("virtual: mode requested", "mode", requested.String())
		if c.modeLatency == 0 {
			c.confirmMode(requested)
			return
		}
		mode := requested
		c.pendingMode = &mode
		c.pendingIn = c.modeLatency
		return
	case word == reg.TEFCON && lane == 1:
		c.space[addr] = value &^ byte(reg.TefconUINC>>8)
		if uint32(value)<<8&reg.TefconUINC != 0 && c.tef.count > 0 {
			tefSize := int(reg.TefconFSize.Unpack(c.word(reg.TEFCON))) + 1
			c.tef.count--
			c.tef.head = (c.tef.head + 1) % tefSize
		}
		return
	}

	if n, kind := fifoRegister(word); n != 0 && kind == "con" && lane == 1 {
		bits := uint32(value) << 8
		c.space[addr] = value &^ byte((reg.FifoconUINC|reg.FifoconTxRequest|reg.FifoconFReset)>>8)
		if bits&reg.FifoconFReset != 0 {
			c.fifos[n] = fifoState{}
		}
		if bits&reg.FifoconTxRequest != 0 {
			c.transmit(n)
		}
		if bits&reg.FifoconUINC != 0 {
			_, _, _, size := c.layout()
			f := &c.fifos[n]
			if c.word(reg.FIFOCON(n))&reg.FifoconTxEnable == 0 && f.count > 0 {
				f.count--
				f.head = (f.head + 1) % size[n]
			}
		}
		return
	}

	c.space[addr] = value
}

// transmit captures the object at the FIFO's head and, with auto-complete
// on, immediately records a transmit event for it.
func (c *Controller) transmit(n int) {
	_, base, elem, _ := c.layout()
	start := int(reg.RAMBase) + base[n] + c.fifos[n].head*elem[n]
	object := make([]byte, elem[n])
	copy(object, c.space[start:start+elem[n]])
	c.transmitted = append(c.transmitted, object)
	c.logger.Debug("virtual: transmit", "fifo", n, "bytes", elem[n])
	if c.autoTEF {
		c.pushTEF(object)
	}
}

func (c *Controller) pushTEF(object []byte) {
	tefBase, _, _, _ := c.layout()
	tefSize := int(reg.TefconFSize.Unpack(c.word(reg.TEFCON))) + 1
	if c.tef.count >= tefSize {
		c.intFlags |= reg.IntIVMIF
		return
	}
	start := int(reg.RAMBase) + tefBase + c.tef.tail*12
	copy(c.space[start:start+8], object[:8])
	// synthesised completion timestamp
	binary.LittleEndian.PutUint32(c.space[start+8:start+12], uint32(len(c.transmitted)))
	c.tef.tail = (c.tef.tail + 1) % tefSize
	c.tef.count++
}

// CompleteTransmissions records transmit events for the n oldest captured
// objects that have not completed yet. Used with auto-complete off.
func (c *Controller) CompleteTransmissions(objects [][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, object := range objects {
		c.pushTEF(object)
	}
}

// InjectRx places a received message object into FIFO n's ring and raises
// the receive condition.
func (c *Controller) InjectRx(n int, object []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, base, elem, size := c.layout()
	if len(object) > elem[n] {
		return fmt.Errorf("virtual: object of %d bytes exceeds fifo %d element size %d", len(object), n, elem[n])
	}
	f := &c.fifos[n]
	if f.count >= size[n] {
		c.intFlags |= reg.IntRXOVIF
		return nil
	}
	start := int(reg.RAMBase) + base[n] + f.tail*elem[n]
	copy(c.space[start:start+elem[n]], object)
	f.tail = (f.tail + 1) % size[n]
	f.count++
	return nil
}

// RaiseErrorFlags latches error interrupt flags (CERRIF, SERRIF, ...) as the
// hardware would.
func (c *Controller) RaiseErrorFlags(flags uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intFlags |= flags & reg.IntFlagMask
}
