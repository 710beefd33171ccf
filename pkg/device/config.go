package device

import (
	"fmt"
	"time"

	"github.com/tsambor/gocanfd/pkg/reg"

	"gopkg.in/ini.v1"
)

// PayloadMode selects the controller's per-element payload capacity, which
// in turn fixes FIFO element sizes and how many TX FIFOs fit in RAM.
type PayloadMode int

const (
	PayloadClassic PayloadMode = iota // 8 byte payloads
	PayloadFD                         // 64 byte payloads
)

func (m PayloadMode) String() string {
	if m == PayloadFD {
		return "fd"
	}
	return "classic"
}

// Config holds everything Open needs to bring the controller up.
type Config struct {
	// Oscillator / PLL
	EnablePLL      bool
	SysClockDiv2   bool
	ClockOutputDiv uint32        // CLKO divider code, 0..3
	OscSettleDelay time.Duration // oscillator start-up time after reset
	ClockPoll      time.Duration // oscillator readiness poll interval
	ClockTimeout   time.Duration // bring-up deadline

	// Mode transitions
	ModePoll     time.Duration
	ModeAttempts int // read-backs before a transition counts as failed

	// Bit timing
	NominalTiming reg.BitTiming
	DataTiming    reg.BitTiming

	// FIFO configuration
	PayloadMode        PayloadMode
	RxTimestamps       bool
	TimestampPrescaler uint32

	// Concurrency
	SubmitTimeout time.Duration // bounded wait for the device lock
}

// DefaultConfig returns a working 500k/2M configuration for a 40MHz clock.
func DefaultConfig() Config {
	return Config{
		OscSettleDelay: 5 * time.Millisecond,
		ClockPoll:      time.Millisecond,
		ClockTimeout:   100 * time.Millisecond,
		ModePoll:       time.Millisecond,
		ModeAttempts:   10,
		NominalTiming:  reg.BitTiming{SJW: 1, PhaseSeg1: 63, PhaseSeg2: 16, PropSeg: 0, Prescaler: 0},
		DataTiming:     reg.BitTiming{SJW: 1, PhaseSeg1: 15, PhaseSeg2: 4, PropSeg: 0, Prescaler: 0},
		PayloadMode:    PayloadClassic,
		RxTimestamps:   true,
		SubmitTimeout:  100 * time.Millisecond,
	}
}

// LoadProfile reads a device profile in INI format and overlays it on the
// defaults. Sections: [clock], [fifo], [nominal], [data], [submit].
func LoadProfile(path string) (Config, error) {
	cfg := DefaultConfig()
	file, err := ini.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("device: loading profile %v failed: %w", path, err)
	}

	clock := file.Section("clock")
	cfg.EnablePLL = clock.Key("pll").MustBool(cfg.EnablePLL)
	cfg.SysClockDiv2 = clock.Key("sys_div2").MustBool(cfg.SysClockDiv2)
	cfg.ClockOutputDiv = uint32(clock.Key("clko_div").MustUint(uint(cfg.ClockOutputDiv)))
	cfg.OscSettleDelay = clock.Key("settle").MustDuration(cfg.OscSettleDelay)
	cfg.ClockPoll = clock.Key("poll").MustDuration(cfg.ClockPoll)
	cfg.ClockTimeout = clock.Key("timeout").MustDuration(cfg.ClockTimeout)

	fifo := file.Section("fifo")
	switch mode := fifo.Key("payload_mode").In("classic", []string{"classic", "fd"}); mode {
	case "fd":
		cfg.PayloadMode = PayloadFD
	default:
		cfg.PayloadMode = PayloadClassic
	}
	cfg.RxTimestamps = fifo.Key("rx_timestamps").MustBool(cfg.RxTimestamps)
	cfg.TimestampPrescaler = uint32(fifo.Key("timestamp_prescaler").MustUint(uint(cfg.TimestampPrescaler)))

	for _, phase := range []struct {
		name   string
		timing *reg.BitTiming
	}{
		{"nominal", &cfg.NominalTiming},
		{"data", &cfg.DataTiming},
	} {
		if !file.HasSection(phase.name) {
			continue
		}
		section := file.Section(phase.name)
		timing := reg.BitTiming{
			SJW:       uint32(section.Key("sjw").MustUint(uint(phase.timing.SJW))),
			PhaseSeg1: uint32(section.Key("phase_seg1").MustUint(uint(phase.timing.PhaseSeg1))),
			PhaseSeg2: uint32(section.Key("phase_seg2").MustUint(uint(phase.timing.PhaseSeg2))),
			PropSeg:   uint32(section.Key("prop_seg").MustUint(uint(phase.timing.PropSeg))),
			Prescaler: uint32(section.Key("prescaler").MustUint(uint(phase.timing.Prescaler))),
		}
		*phase.timing = timing
	}

	cfg.SubmitTimeout = file.Section("submit").Key("timeout").MustDuration(cfg.SubmitTimeout)
	return cfg, nil
}
