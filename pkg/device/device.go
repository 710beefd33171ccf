// Package device is the control core for an SPI-attached CAN/CAN-FD
// controller: clock bring-up, identity probing, mode sequencing, FIFO ring
// management in controller RAM and transmit slot allocation.
//
// One Device owns all mutable state for one controller instance. The
// command link is a single shared channel, so every register or RAM
// transaction goes through one mutual-exclusion domain (the device lock);
// the TX slot bitmap has its own narrower lock since it never touches the
// link.
package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tsambor/gocanfd/pkg/can"
	"github.com/tsambor/gocanfd/pkg/mob"
	"github.com/tsambor/gocanfd/pkg/reg"
	"github.com/tsambor/gocanfd/pkg/spi"
)

var (
	ErrClosed        = errors.New("device: stopped, not accepting frames")
	ErrSubmitTimeout = errors.New("device: timed out waiting for the command link")
	ErrNotConfigured = errors.New("device: not opened")
)

// Counters accumulates per-device statistics.
type Counters struct {
	TxSubmitted uint64
	TxCompleted uint64
	TxDropped   uint64 // in flight when the device stopped
	RxReceived  uint64
	RxOverflow  uint64
	BusErrors   uint64
}

type counterStore struct {
	mu sync.Mutex
	c  Counters
}

func (s *counterStore) add(update func(*Counters)) {
	s.mu.Lock()
	update(&s.c)
	s.mu.Unlock()
}

func (s *counterStore) snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c
}

// Device is the per-controller context object.
type Device struct {
	logger *slog.Logger
	client *spi.Client
	cfg    Config

	// device lock: a one-slot semaphore so waiters can bound their wait
	lock chan struct{}

	modes *modeController
	rings *fifoManager
	slots *slotAllocator

	opened    atomic.Bool
	closed    atomic.Bool
	servicing atomic.Bool

	intEnables uint32
	counters   counterStore

	onReceive func(can.Frame)
	onError   func(Event)
}

// New wires a Device to a command link. Open must be called before anything
// else.
func New(bus spi.Bus, cfg Config, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	client := spi.NewClient(bus)
	d := &Device{
		logger: logger,
		client: client,
		cfg:    cfg,
		lock:   make(chan struct{}, 1),
		modes:  &modeController{client: client, cfg: cfg, logger: logger},
		slots:  newSlotAllocator(0),
	}
	return d
}

// OnReceive registers the inbound frame callback. Must be set before Start;
// frames arriving without a callback are counted and dropped.
func (d *Device) OnReceive(fn func(can.Frame)) {
	d.onReceive = fn
}

// OnError registers the hardware error event callback.
func (d *Device) OnError(fn func(Event)) {
	d.onError = fn
}

func (d *Device) acquire() {
	d.lock <- struct{}{}
}

func (d *Device) acquireTimeout(timeout time.Duration) error {
	select {
	case d.lock <- struct{}{}:
		return nil
	case <-time.After(timeout):
		return ErrSubmitTimeout
	}
}

func (d *Device) release() {
	<-d.lock
}

// Open brings the controller from an unknown state to a configured one:
// oscillator bring-up, forced configuration mode with identity probe, bit
// timing and feature programming, then FIFO and filter setup. No FIFO state
// exists if Open fails.
func (d *Device) Open() error {
	d.acquire()
	defer d.release()

	bringup := &clockBringup{client: d.client, cfg: d.cfg, logger: d.logger}
	if err := bringup.run(); err != nil {
		return fmt.Errorf("device: clock bring-up: %w", err)
	}
	d.modes.invalidate()

	if err := d.modes.forceConfig(); err != nil {
		return err
	}

	if err := d.programTiming(); err != nil {
		return err
	}
	if err := d.programFeatures(); err != nil {
		return err
	}

	rings := newFifoManager(d.client, d.cfg, d.logger)
	if err := rings.configure(d.modes); err != nil {
		return err
	}
	d.rings = rings
	d.slots = newSlotAllocator(rings.txSlots)
	d.opened.Store(true)
	d.closed.Store(false)

	d.logger.Info("device opened",
		"payload_mode", d.cfg.PayloadMode.String(),
		"tx_slots", rings.txSlots)
	return nil
}

func (d *Device) programTiming() error {
	nominal, err := reg.EncodeNominal(d.cfg.NominalTiming)
	if err != nil {
		return err
	}
	if err := d.client.WriteRegister(reg.NBTCFG, nominal, 0xFFFFFFFF); err != nil {
		return err
	}
	if d.cfg.PayloadMode == PayloadFD {
		data, err := reg.EncodeData(d.cfg.DataTiming)
		if err != nil {
			return err
		}
		if err := d.client.WriteRegister(reg.DBTCFG, data, 0xFFFFFFFF); err != nil {
			return err
		}
	}
	return nil
}

// programFeatures writes the CON feature bits for steady-state operation:
// transmit events stored, the TXQ disabled so RAM belongs to the FIFOs,
// and the time base running for RX/TEF timestamps.
func (d *Device) programFeatures() error {
	con := uint32(reg.ConISOCRCEn|reg.ConPXEDis|reg.ConWakeFil|reg.ConStoreTEF) |
		reg.ConWFT.Pack(3) |
		reg.ConREQOP.Pack(uint32(reg.ModeConfig)) |
		reg.ConOPMOD.Pack(uint32(reg.ModeConfig))
	if err := d.client.WriteRegister(reg.CON, con, 0xFFFFFFFF); err != nil {
		return err
	}
	tscon := uint32(reg.TsconTBCEnable) | reg.TsconPrescaler.Pack(d.cfg.TimestampPrescaler)
	return d.client.WriteRegister(reg.TSCON, tscon, 0xFFFFFFFF)
}

// Start moves the controller into its normal operating mode and enables
// interrupt delivery.
func (d *Device) Start() error {
	if !d.opened.Load() {
		return ErrNotConfigured
	}
	d.acquire()
	defer d.release()

	target := reg.ModeCAN20
	if d.cfg.PayloadMode == PayloadFD {
		target = reg.ModeMixed
	}
	if err := d.modes.set(target); err != nil {
		return err
	}

	d.intEnables = uint32(reg.IntRXIE | reg.IntTEFIE | reg.IntCERRIE |
		reg.IntSERRIE | reg.IntRXOVIE | reg.IntIVMIE | reg.IntECCIE | reg.IntSPICRCIE)
	if err := d.client.WriteRegister(reg.INT, d.intEnables, reg.IntEnableMask); err != nil {
		return err
	}
	d.logger.Info("device started", "mode", target.String())
	return nil
}

// Submit queues one outbound frame. It returns ErrBusy when every TX slot
// is in flight (backpressure, retry after a completion), ErrClosed once the
// device is stopping and ErrSubmitTimeout when the command link stayed
// occupied past the configured bound.
func (d *Device) Submit(frame can.Frame) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if !d.opened.Load() {
		return ErrNotConfigured
	}

	slot, err := d.slots.allocate()
	if err != nil {
		return err
	}
	object, err := mob.EncodeTx(frame, uint8(slot), d.rings.payloadSize)
	if err != nil {
		d.slots.release(slot)
		return err
	}

	if err := d.acquireTimeout(d.cfg.SubmitTimeout); err != nil {
		d.slots.release(slot)
		return err
	}
	defer d.release()

	// the closed flag may have flipped while we waited for the link
	if d.closed.Load() {
		d.slots.release(slot)
		return ErrClosed
	}
	if err := d.rings.produceTx(slot, object); err != nil {
		d.slots.release(slot)
		return err
	}
	d.counters.add(func(c *Counters) { c.TxSubmitted++ })
	return nil
}

// Stop first refuses new submissions, then waits for the in-flight link
// transaction, disables interrupts and parks the controller in sleep mode.
// Frames still in flight are not delivered; they are accounted for in the
// dropped counter rather than vanishing silently.
func (d *Device) Stop() error {
	if d.closed.Load() {
		return nil
	}
	if !d.opened.Load() {
		return ErrNotConfigured
	}
	if d.closed.Swap(true) {
		return nil
	}
	d.acquire()
	defer d.release()

	if pending := d.slots.pending(); pending > 0 {
		d.counters.add(func(c *Counters) { c.TxDropped += uint64(pending) })
		d.logger.Warn("stopping with frames in flight", "count", pending)
	}

	if err := d.client.WriteRegister(reg.INT, 0, reg.IntEnableMask); err != nil {
		return err
	}
	if err := d.modes.set(reg.ModeConfig); err != nil {
		return err
	}
	if err := d.modes.set(reg.ModeSleep); err != nil {
		return err
	}

	// rings stays in place: a Submit that raced past the closed check may
	// still read the payload size before its re-check under the lock.
	d.slots.reset()
	d.opened.Store(false)
	d.logger.Info("device stopped")
	return nil
}

// Counters returns a snapshot of the device statistics.
func (d *Device) Counters() Counters {
	return d.counters.snapshot()
}
