package device

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tsambor/gocanfd/pkg/reg"
	"github.com/tsambor/gocanfd/pkg/spi"
)

var (
	// ErrClockTimeout means the oscillator never reported ready within the
	// configured deadline; the device is unavailable.
	ErrClockTimeout = errors.New("device: oscillator not ready before deadline")

	// ErrFaultSuspected means the oscillator status was neither "ready" nor
	// "disabled" right after reset, which points at a prior fault the chip
	// can only leave through a power cycle.
	ErrFaultSuspected = errors.New("device: inconsistent oscillator state, power cycle required")
)

type clockState uint8

const (
	clockUnconfigured clockState = iota
	clockAwaitingReset
	clockAwaitingOscillator
	clockReady
	clockFailed
)

// clockBringup sequences oscillator and PLL configuration. It never retries
// beyond its deadline; the timeout is the caller-visible failure boundary.
type clockBringup struct {
	client *spi.Client
	cfg    Config
	logger *slog.Logger
	state  clockState
}

func (b *clockBringup) oscConfigWord() uint32 {
	var word uint32
	if b.cfg.EnablePLL {
		word |= reg.OscPLLEnable
	}
	if b.cfg.SysClockDiv2 {
		word |= reg.OscSysDiv2
	}
	word |= reg.OscClkoDiv.Pack(b.cfg.ClockOutputDiv)
	return word
}

func (b *clockBringup) ready(status uint32) bool {
	if status&reg.OscReady == 0 {
		return false
	}
	if b.cfg.EnablePLL && status&reg.OscPLLReady == 0 {
		return false
	}
	if b.cfg.SysClockDiv2 && status&reg.OscSclkReady == 0 {
		return false
	}
	return true
}

// run drives the state machine to clockReady or an error.
func (b *clockBringup) run() error {
	b.state = clockAwaitingReset
	if err := b.client.Reset(); err != nil {
		b.state = clockFailed
		return err
	}
	time.Sleep(b.cfg.OscSettleDelay)

	status, err := b.client.ReadRegister(reg.OSC, 0xFFFFFFFF)
	if err != nil {
		b.state = clockFailed
		return err
	}
	switch {
	case status&reg.OscReady != 0:
		b.logger.Debug("oscillator already running", "status", fmt.Sprintf("0x%08X", status))
		b.state = clockReady
		return nil
	case status&reg.OscDisable != 0:
		if err := b.client.WriteRegister(reg.OSC, b.oscConfigWord(), 0xFF); err != nil {
			b.state = clockFailed
			return err
		}
		b.state = clockAwaitingOscillator
	default:
		b.state = clockFailed
		return fmt.Errorf("%w: status 0x%08X", ErrFaultSuspected, status)
	}

	deadline := time.Now().Add(b.cfg.ClockTimeout)
	for {
		status, err = b.client.ReadRegister(reg.OSC, 0xFFFFFFFF)
		if err != nil {
			b.state = clockFailed
			return err
		}
		if b.ready(status) {
			b.logger.Debug("oscillator ready", "status", fmt.Sprintf("0x%08X", status))
			b.state = clockReady
			return nil
		}
		if time.Now().After(deadline) {
			b.state = clockFailed
			return fmt.Errorf("%w: last status 0x%08X", ErrClockTimeout, status)
		}
		time.Sleep(b.cfg.ClockPoll)
	}
}
