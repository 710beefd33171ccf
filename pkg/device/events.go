package device

import (
	"errors"
	"fmt"

	"github.com/tsambor/gocanfd/pkg/can"
	"github.com/tsambor/gocanfd/pkg/mob"
	"github.com/tsambor/gocanfd/pkg/reg"
)

// ErrServiceBusy is returned when Service is entered while a previous drain
// burst for the same device is still in progress.
var ErrServiceBusy = errors.New("device: interrupt service already in progress")

// ErrorKind classifies hardware error events surfaced to the OnError
// callback. The core reports them and keeps counters; restart policy is the
// caller's decision.
type ErrorKind int

const (
	ErrorBus ErrorKind = iota // CAN protocol error, see Trec for counters
	ErrorBusOff
	ErrorRxOverflow
	ErrorSystem // controller-internal operation error
	ErrorECC    // RAM single/double bit error
	ErrorCRC    // link-level CRC failure on a protected transfer
	ErrorInvalidMessage
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorBus:
		return "bus-error"
	case ErrorBusOff:
		return "bus-off"
	case ErrorRxOverflow:
		return "rx-overflow"
	case ErrorSystem:
		return "system-error"
	case ErrorECC:
		return "ecc-error"
	case ErrorCRC:
		return "crc-error"
	case ErrorInvalidMessage:
		return "invalid-message"
	}
	return "unknown"
}

// Event is one hardware error condition observed during interrupt service.
type Event struct {
	Kind ErrorKind
	Trec uint32 // TREC snapshot for bus errors, zero otherwise
}

// Service handles one interrupt-flags snapshot: it reads the interrupt
// register once, drains whatever the flags announce, acknowledges the
// consumed flags and re-enables delivery. It is invoked by the external
// interrupt collaborator and never waits for new interrupts itself.
//
// The device lock is held for the whole drain burst; decoded frames and
// error events are delivered to the callbacks only after it is released so
// a callback may submit frames without deadlocking.
func (d *Device) Service() error {
	if !d.servicing.CompareAndSwap(false, true) {
		return ErrServiceBusy
	}
	defer d.servicing.Store(false)

	d.acquire()
	if !d.opened.Load() {
		d.release()
		return ErrNotConfigured
	}
	frames, events, err := d.drain()
	d.release()

	for _, frame := range frames {
		d.counters.add(func(c *Counters) { c.RxReceived++ })
		if d.onReceive != nil {
			d.onReceive(frame)
		}
	}
	for _, event := range events {
		if d.onError != nil {
			d.onError(event)
		}
	}
	return err
}

func (d *Device) drain() ([]can.Frame, []Event, error) {
	intr, err := d.client.ReadRegister(reg.INT, 0xFFFFFFFF)
	if err != nil {
		return nil, nil, err
	}
	flags := intr & reg.IntFlagMask

	var frames []can.Frame
	var events []Event

	if flags&reg.IntRXIF != 0 {
		frames, err = d.drainRx()
		if err != nil {
			return frames, events, err
		}
	}
	if flags&reg.IntTEFIF != 0 {
		if err := d.drainTef(); err != nil {
			return frames, events, err
		}
	}

	events, err = d.collectErrors(flags)
	if err != nil {
		return frames, events, err
	}

	// acknowledge the handled error flags (cleared by writing them back
	// as zero) and rewrite the enable half to re-arm delivery
	ackMask := flags & (reg.IntMODIF | reg.IntCERRIF | reg.IntSERRIF |
		reg.IntRXOVIF | reg.IntIVMIF | reg.IntECCIF | reg.IntSPICRCIF |
		reg.IntTXATIF | reg.IntWAKIF | reg.IntTBCIF)
	if ackMask != 0 {
		if err := d.client.WriteRegister(reg.INT, 0, ackMask); err != nil {
			return frames, events, err
		}
	}
	if err := d.client.WriteRegister(reg.INT, d.intEnables, reg.IntEnableMask); err != nil {
		return frames, events, err
	}
	return frames, events, nil
}

// drainRx consumes RX elements until the not-empty condition clears.
func (d *Device) drainRx() ([]can.Frame, error) {
	var frames []can.Frame
	for {
		pending, err := d.rings.rxPending()
		if err != nil {
			return frames, err
		}
		if !pending {
			return frames, nil
		}
		object, err := d.rings.consumeRx()
		if err != nil {
			return frames, err
		}
		frame, err := mob.DecodeRx(object, d.cfg.RxTimestamps)
		if err != nil {
			return frames, fmt.Errorf("device: undecodable rx object: %w", err)
		}
		frames = append(frames, frame)
	}
}

// drainTef consumes transmit events, releasing the TX slot each one names.
func (d *Device) drainTef() error {
	for {
		pending, err := d.rings.tefPending()
		if err != nil {
			return err
		}
		if !pending {
			return nil
		}
		event, err := d.rings.consumeTef()
		if err != nil {
			return err
		}
		d.logger.Debug("tx complete", "slot", event.Sequence, "id", event.ID)
		d.slots.release(int(event.Sequence))
		d.counters.add(func(c *Counters) { c.TxCompleted++ })
	}
}

func (d *Device) collectErrors(flags uint32) ([]Event, error) {
	var events []Event
	if flags&reg.IntCERRIF != 0 {
		trec, err := d.client.ReadRegister(reg.TREC, 0xFFFFFFFF)
		if err != nil {
			return events, err
		}
		kind := ErrorBus
		if trec&reg.TrecTxBusOff != 0 {
			kind = ErrorBusOff
		}
		events = append(events, Event{Kind: kind, Trec: trec})
		d.counters.add(func(c *Counters) { c.BusErrors++ })
	}
	if flags&reg.IntRXOVIF != 0 {
		events = append(events, Event{Kind: ErrorRxOverflow})
		d.counters.add(func(c *Counters) { c.RxOverflow++ })
	}
	if flags&reg.IntSERRIF != 0 {
		events = append(events, Event{Kind: ErrorSystem})
	}
	if flags&reg.IntECCIF != 0 {
		events = append(events, Event{Kind: ErrorECC})
	}
	if flags&reg.IntSPICRCIF != 0 {
		events = append(events, Event{Kind: ErrorCRC})
	}
	if flags&reg.IntIVMIF != 0 {
		events = append(events, Event{Kind: ErrorInvalidMessage})
	}
	return events, nil
}
