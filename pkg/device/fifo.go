package device

import (
	"fmt"
	"log/slog"

	"github.com/tsambor/gocanfd/pkg/mob"
	"github.com/tsambor/gocanfd/pkg/reg"
	"github.com/tsambor/gocanfd/pkg/spi"
)

// FIFO sizing per payload mode. The controller's 2KiB of message RAM is
// split between the transmit event ring (12 bytes per TX slot), one receive
// ring and one single-element transmit FIFO per slot, so the payload
// capacity dictates how many slots fit.
const (
	classicTxSlots    = 30
	classicRxElements = 32
	classicPayload    = 8

	fdTxSlots    = 14
	fdRxElements = 8
	fdPayload    = 64

	// hardware FIFO numbers: FIFO 1 receives, the rest transmit
	rxFifoNumber      = 1
	firstTxFifoNumber = 2
)

func sizing(mode PayloadMode) (txSlots, rxElements, payloadSize int) {
	if mode == PayloadFD {
		return fdTxSlots, fdRxElements, fdPayload
	}
	return classicTxSlots, classicRxElements, classicPayload
}

// ring tracks one circular FIFO in controller RAM. base and end are offsets
// into the RAM window; the current pointer always lies in [base, end) and
// wraps back to base.
type ring struct {
	base     uint32
	end      uint32
	elemSize uint32
	current  uint32
}

func (r *ring) advance() {
	r.current += r.elemSize
	if r.current >= r.end {
		r.current = r.base
	}
}

// fifoManager owns the RAM ring addresses and issues the pointer-increment
// commands that keep the hardware's view and ours in step.
type fifoManager struct {
	client *spi.Client
	logger *slog.Logger

	txSlots      int
	rxElements   int
	payloadSize  int
	rxTimestamps bool

	tef       ring
	rx        ring
	slotAddrs []uint32 // fixed RAM offset per single-element TX FIFO
}

func newFifoManager(client *spi.Client, cfg Config, logger *slog.Logger) *fifoManager {
	txSlots, rxElements, payloadSize := sizing(cfg.PayloadMode)
	return &fifoManager{
		client:       client,
		logger:       logger,
		txSlots:      txSlots,
		rxElements:   rxElements,
		payloadSize:  payloadSize,
		rxTimestamps: cfg.RxTimestamps,
	}
}

func txFifoNumber(slot int) int {
	return firstTxFifoNumber + slot
}

// configure programs FIFO sizes and filters, then samples the RAM addresses
// the hardware assigned. The user-address registers only hold valid
// addresses outside configuration mode, so the manager transiently enters
// internal loopback, reads every base address and drops back to
// configuration mode before the rest of setup continues.
func (f *fifoManager) configure(modes *modeController) error {
	plsize, ok := reg.PayloadCode(f.payloadSize)
	if !ok {
		return fmt.Errorf("device: unsupported payload size %d", f.payloadSize)
	}

	tefcon := uint32(reg.TefconNotEmptyIE|reg.TefconTimestampEn|reg.TefconFReset) |
		reg.TefconFSize.Pack(uint32(f.txSlots-1))
	if err := f.client.WriteRegister(reg.TEFCON, tefcon, 0xFFFFFFFF); err != nil {
		return err
	}

	rxcon := uint32(reg.FifoconNotEmptyIE|reg.FifoconFReset) |
		reg.FifoconFSize.Pack(uint32(f.rxElements-1)) |
		reg.FifoconPLSize.Pack(plsize)
	if f.rxTimestamps {
		rxcon |= reg.FifoconTimestampEn
	}
	if err := f.client.WriteRegister(reg.FIFOCON(rxFifoNumber), rxcon, 0xFFFFFFFF); err != nil {
		return err
	}

	for slot := 0; slot < f.txSlots; slot++ {
		// lower slot index = higher transmit priority
		txcon := uint32(reg.FifoconTxEnable|reg.FifoconFReset) |
			reg.FifoconPLSize.Pack(plsize) |
			reg.FifoconTxPriority.Pack(uint32(31-slot))
		if err := f.client.WriteRegister(reg.FIFOCON(txFifoNumber(slot)), txcon, 0xFFFFFFFF); err != nil {
			return err
		}
	}

	if err := f.configureFilters(); err != nil {
		return err
	}

	// loopback pass to sample hardware-assigned addresses
	if err := modes.set(reg.ModeInternalLoopback); err != nil {
		return err
	}
	tefBase, err := f.client.ReadRegister(reg.TEFUA, 0xFFFFFFFF)
	if err != nil {
		return err
	}
	rxBase, err := f.client.ReadRegister(reg.FIFOUA(rxFifoNumber), 0xFFFFFFFF)
	if err != nil {
		return err
	}
	f.slotAddrs = make([]uint32, f.txSlots)
	for slot := 0; slot < f.txSlots; slot++ {
		addr, err := f.client.ReadRegister(reg.FIFOUA(txFifoNumber(slot)), 0xFFFFFFFF)
		if err != nil {
			return err
		}
		f.slotAddrs[slot] = addr
	}
	if err := modes.set(reg.ModeConfig); err != nil {
		return err
	}

	// ring boundaries follow from the neighboring FIFO's base, the
	// hardware lays the rings out contiguously
	f.tef = ring{base: tefBase, end: rxBase, elemSize: mob.TEFEventSize, current: tefBase}
	f.rx = ring{
		base:     rxBase,
		end:      f.slotAddrs[0],
		elemSize: uint32(mob.RxObjectSize(f.payloadSize, f.rxTimestamps)),
		current:  rxBase,
	}
	f.logger.Info("fifo layout",
		"tef_base", tefBase,
		"rx_base", rxBase,
		"rx_elements", f.rxElements,
		"tx_slots", f.txSlots,
		"payload", f.payloadSize)

	if f.rx.end-f.rx.base != uint32(f.rxElements)*f.rx.elemSize {
		return fmt.Errorf("device: rx ring span %d does not match %d elements of %d bytes",
			f.rx.end-f.rx.base, f.rxElements, f.rx.elemSize)
	}
	return nil
}

// configureFilters clears all filter slots, then binds filter 0 to the
// receive FIFO with an accept-all mask.
func (f *fifoManager) configureFilters() error {
	for i := 0; i < reg.FilterCount; i++ {
		if err := f.client.WriteRegister(reg.FLTCONByte(i), 0, 0xFF); err != nil {
			return err
		}
	}
	if err := f.client.WriteRegister(reg.FLTOBJ(0), 0, 0xFFFFFFFF); err != nil {
		return err
	}
	if err := f.client.WriteRegister(reg.FLTMASK(0), 0, 0xFFFFFFFF); err != nil {
		return err
	}
	fltcon := uint32(reg.FltconEnable) | reg.FltconBufferPointer.Pack(rxFifoNumber)
	return f.client.WriteRegister(reg.FLTCONByte(0), fltcon, 0xFF)
}

// produceTx writes the encoded object into the slot's fixed RAM address and
// triggers transmission. TX slots are single-element FIFOs, so there is no
// pointer to advance on our side; the trigger write carries both the
// increment and the transmit-request flag.
func (f *fifoManager) produceTx(slot int, object []byte) error {
	if err := f.client.WriteBytes(reg.RAMAddress(f.slotAddrs[slot]), object); err != nil {
		return err
	}
	trigger := uint32(reg.FifoconUINC | reg.FifoconTxRequest)
	return f.client.WriteRegister(reg.FIFOCON(txFifoNumber(slot)), trigger, trigger)
}

// rxPending reports whether the receive FIFO holds at least one element.
func (f *fifoManager) rxPending() (bool, error) {
	sta, err := f.client.ReadRegister(reg.FIFOSTA(rxFifoNumber), 0xFF)
	if err != nil {
		return false, err
	}
	return sta&reg.FifostaNotEmpty != 0, nil
}

// consumeRx reads the element at the current RX pointer, issues the
// increment command and advances, wrapping at the ring end.
func (f *fifoManager) consumeRx() ([]byte, error) {
	object := make([]byte, f.rx.elemSize)
	if err := f.client.ReadBytes(reg.RAMAddress(f.rx.current), object); err != nil {
		return nil, err
	}
	if err := f.client.WriteRegister(reg.FIFOCON(rxFifoNumber), reg.FifoconUINC, reg.FifoconUINC); err != nil {
		return nil, err
	}
	f.rx.advance()
	return object, nil
}

// tefPending reports whether the transmit event FIFO holds an element.
func (f *fifoManager) tefPending() (bool, error) {
	sta, err := f.client.ReadRegister(reg.TEFSTA, 0xFF)
	if err != nil {
		return false, err
	}
	return sta&reg.TefstaNotEmpty != 0, nil
}

// consumeTef reads and decodes one transmit event, advancing the TEF ring.
func (f *fifoManager) consumeTef() (mob.TEFEvent, error) {
	raw := make([]byte, f.tef.elemSize)
	if err := f.client.ReadBytes(reg.RAMAddress(f.tef.current), raw); err != nil {
		return mob.TEFEvent{}, err
	}
	if err := f.client.WriteRegister(reg.TEFCON, reg.TefconUINC, reg.TefconUINC); err != nil {
		return mob.TEFEvent{}, err
	}
	f.tef.advance()
	return mob.DecodeTEF(raw)
}
