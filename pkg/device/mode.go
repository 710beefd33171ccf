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
	// ErrNotFound means the identity probe after the forced configuration
	// sequence did not match this controller: wrong device or wiring.
	ErrNotFound = errors.New("device: controller identity mismatch, wrong device or wiring")

	ErrModeTimeout = errors.New("device: mode transition not confirmed")
)

// forceConfigAttempts bounds the blind forced-configuration sequence. One
// pass is normally enough; the retries cover a device caught mid transition
// or in a partially programmed state.
const forceConfigAttempts = 3

// modeController owns the operating-mode field. The hardware is the source
// of truth: a transition is requested by writing REQOP and only trusted
// once OPMOD reads back with the target mode, because mode changes are not
// synchronous with the request.
type modeController struct {
	client *spi.Client
	cfg    Config
	logger *slog.Logger
	known  bool
	mode   reg.Mode
}

// invalidate drops mode tracking after a link reset: until re-probed the
// device must be assumed to be in an arbitrary, config-incapable state.
func (m *modeController) invalidate() {
	m.known = false
}

func (m *modeController) read() (reg.Mode, error) {
	word, err := m.client.ReadRegister(reg.CON, reg.ConOPMOD.Mask())
	if err != nil {
		return 0, err
	}
	return reg.CurrentMode(word), nil
}

func (m *modeController) request(mode reg.Mode) error {
	return m.client.WriteRegister(reg.CON, reg.ConREQOP.Pack(uint32(mode)), reg.ConREQOP.Mask())
}

// set requests a mode and polls the confirmed-mode field until the device
// reports it, bounded by the configured attempt count.
func (m *modeController) set(mode reg.Mode) error {
	if err := m.request(mode); err != nil {
		return err
	}
	for attempt := 0; attempt < m.cfg.ModeAttempts; attempt++ {
		current, err := m.read()
		if err != nil {
			return err
		}
		if current == mode {
			m.known = true
			m.mode = mode
			m.logger.Debug("mode confirmed", "mode", mode.String())
			return nil
		}
		time.Sleep(m.cfg.ModePoll)
	}
	return fmt.Errorf("%w: requested %v", ErrModeTimeout, mode)
}

// forceConfig drives the device into configuration mode from an unknown
// state. The reset instruction only takes effect while the device is
// already in configuration mode, so the attach-time mode cannot be trusted:
// blindly request configuration mode, wait, reset, wait, then verify the
// register defaults. A mismatch after all attempts means this is not the
// expected controller.
func (m *modeController) forceConfig() error {
	for attempt := 1; attempt <= forceConfigAttempts; attempt++ {
		if err := m.request(reg.ModeConfig); err != nil {
			return err
		}
		time.Sleep(m.cfg.OscSettleDelay)
		if err := m.client.Reset(); err != nil {
			return err
		}
		m.invalidate()
		time.Sleep(m.cfg.OscSettleDelay)

		con, err := m.client.ReadRegister(reg.CON, 0xFFFFFFFF)
		if err != nil {
			return err
		}
		if con&reg.ConDefaultMask == reg.ConDefault {
			m.known = true
			m.mode = reg.ModeConfig
			return nil
		}
		m.logger.Warn("identity probe mismatch",
			"attempt", attempt,
			"con", fmt.Sprintf("0x%08X", con),
			"expected", fmt.Sprintf("0x%08X", reg.ConDefault))
	}
	return ErrNotFound
}
