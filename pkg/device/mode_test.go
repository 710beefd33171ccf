package device

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsambor/gocanfd/pkg/reg"
	"github.com/tsambor/gocanfd/pkg/spi"
	"github.com/tsambor/gocanfd/pkg/spi/virtual"
)

// zeroBus answers every read with zeros, the behavior of a missing or
// miswired chip: writes vanish and the identity probe can never match.
type zeroBus struct{}

func (zeroBus) Exchange(tx, rx []byte) error { return nil }

func TestForceConfigFromUnknownPowerOnMode(t *testing.T) {
	for _, mode := range []reg.Mode{reg.ModeCAN20, reg.ModeMixed, reg.ModeListenOnly, reg.ModeSleep} {
		t.Run(mode.String(), func(t *testing.T) {
			ctrl := virtual.NewController(testLogger())
			ctrl.SetPowerOnMode(mode)
			m := &modeController{client: spi.NewClient(ctrl), cfg: testConfig(), logger: testLogger()}
			assert.Nil(t, m.forceConfig())
			assert.Equal(t, reg.ModeConfig, ctrl.Mode())
			assert.True(t, m.known)
		})
	}
}

func TestForceConfigIdentityMismatch(t *testing.T) {
	m := &modeController{client: spi.NewClient(zeroBus{}), cfg: testConfig(), logger: testLogger()}
	err := m.forceConfig()
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	assert.False(t, m.known)
}

func TestModeSetConfirmedAfterLatency(t *testing.T) {
	ctrl := virtual.NewController(testLogger())
	ctrl.SetModeLatency(3)
	m := &modeController{client: spi.NewClient(ctrl), cfg: testConfig(), logger: testLogger()}
	assert.Nil(t, m.set(reg.ModeInternalLoopback))
	assert.Equal(t, reg.ModeInternalLoopback, ctrl.Mode())
}

func TestModeSetTimeout(t *testing.T) {
	ctrl := virtual.NewController(testLogger())
	ctrl.SetModeLatency(20)
	cfg := testConfig()
	cfg.ModeAttempts = 3
	m := &modeController{client: spi.NewClient(ctrl), cfg: cfg, logger: testLogger()}
	err := m.set(reg.ModeCAN20)
	assert.True(t, errors.Is(err, ErrModeTimeout), "got %v", err)
}
