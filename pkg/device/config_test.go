package device

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tsambor/gocanfd/pkg/reg"
)

const testProfile = `
[clock]
pll = true
sys_div2 = true
clko_div = 2
timeout = 250ms

[fifo]
payload_mode = fd
rx_timestamps = false
timestamp_prescaler = 39

[nominal]
sjw = 4
phase_seg1 = 31
phase_seg2 = 8
prescaler = 1

[data]
sjw = 2
phase_seg1 = 7
phase_seg2 = 2

[submit]
timeout = 50ms
`

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.ini")
	assert.Nil(t, os.WriteFile(path, []byte(testProfile), 0o644))

	cfg, err := LoadProfile(path)
	assert.Nil(t, err)

	assert.True(t, cfg.EnablePLL)
	assert.True(t, cfg.SysClockDiv2)
	assert.Equal(t, uint32(2), cfg.ClockOutputDiv)
	assert.Equal(t, 250*time.Millisecond, cfg.ClockTimeout)
	// keys the profile omits keep their defaults
	assert.Equal(t, DefaultConfig().ClockPoll, cfg.ClockPoll)

	assert.Equal(t, PayloadFD, cfg.PayloadMode)
	assert.False(t, cfg.RxTimestamps)
	assert.Equal(t, uint32(39), cfg.TimestampPrescaler)

	assert.Equal(t, reg.BitTiming{SJW: 4, PhaseSeg1: 31, PhaseSeg2: 8, Prescaler: 1}, cfg.NominalTiming)
	assert.Equal(t, reg.BitTiming{SJW: 2, PhaseSeg1: 7, PhaseSeg2: 2}, cfg.DataTiming)

	assert.Equal(t, 50*time.Millisecond, cfg.SubmitTimeout)
}

func TestLoadProfileMissingFile(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "nope.ini"))
	assert.NotNil(t, err)
}

func TestLoadProfileBadPayloadModeFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.ini")
	assert.Nil(t, os.WriteFile(path, []byte("[fifo]\npayload_mode = turbo\n"), 0o644))

	cfg, err := LoadProfile(path)
	assert.Nil(t, err)
	assert.Equal(t, PayloadClassic, cfg.PayloadMode)
}
