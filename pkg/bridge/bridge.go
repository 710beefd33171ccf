// Package bridge forwards frames between a controller owned by this module
// and a Linux SocketCAN interface, using the implementation that can be
// found here: https://github.com/brutella/can
//
// SocketCAN carries classic frames of up to 8 data bytes, so FD frames
// coming off the controller are counted and dropped rather than truncated.
package bridge

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	sockcan "github.com/brutella/can"

	"github.com/tsambor/gocanfd/pkg/can"
	"github.com/tsambor/gocanfd/pkg/device"
)

// SocketCAN packs the frame flags into the identifier's upper bits.
const (
	effFlag uint32 = 1 << 31
	rtrFlag uint32 = 1 << 30
	errFlag uint32 = 1 << 29
	idMask  uint32 = 0x1FFFFFFF
)

// Bridge couples one device to one SocketCAN interface in both directions.
type Bridge struct {
	dev    *device.Device
	bus    *sockcan.Bus
	logger *slog.Logger

	dropped atomic.Uint64 // FD frames that cannot cross to SocketCAN
}

// New opens the named SocketCAN interface. The device must already be
// opened and started by the caller.
func New(dev *device.Device, interfaceName string, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bus, err := sockcan.NewBusForInterfaceWithName(interfaceName)
	if err != nil {
		return nil, fmt.Errorf("bridge: opening %v: %w", interfaceName, err)
	}
	return &Bridge{dev: dev, bus: bus, logger: logger}, nil
}

// Start wires the two directions and begins publishing. It returns
// immediately; reception runs until Close.
func (b *Bridge) Start() error {
	b.dev.OnReceive(b.forward)
	b.bus.Subscribe(b)
	go func() {
		if err := b.bus.ConnectAndPublish(); err != nil {
			b.logger.Error("socketcan receive loop ended", "error", err)
		}
	}()
	return nil
}

// forward publishes one controller frame onto SocketCAN.
func (b *Bridge) forward(frame can.Frame) {
	out, ok := ToSocket(frame)
	if !ok {
		b.dropped.Add(1)
		b.logger.Debug("dropping fd frame, socketcan is classic only", "id", frame.ID)
		return
	}
	if err := b.bus.Publish(out); err != nil {
		b.logger.Warn("socketcan publish failed", "error", err, "id", frame.ID)
	}
}

// Handle implements brutella/can's receive interface: frames arriving on
// SocketCAN are submitted to the controller. Backpressure is logged and the
// frame dropped; SocketCAN has no way to push back on the sender anyway.
func (b *Bridge) Handle(frame sockcan.Frame) {
	if frame.ID&errFlag != 0 {
		return
	}
	if err := b.dev.Submit(FromSocket(frame)); err != nil {
		b.logger.Warn("submit from socketcan failed", "error", err, "id", frame.ID&idMask)
	}
}

// Dropped returns how many FD frames were discarded on the way out.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops the SocketCAN side. The device stays open.
func (b *Bridge) Close() error {
	return b.bus.Disconnect()
}

// ToSocket converts a controller frame for SocketCAN. FD frames do not fit
// the classic wire format and report ok = false.
func ToSocket(frame can.Frame) (sockcan.Frame, bool) {
	if frame.FD || frame.Length > can.MaxClassicData {
		return sockcan.Frame{}, false
	}
	id := frame.ID & idMask
	if frame.Extended {
		id |= effFlag
	}
	if frame.Remote {
		id |= rtrFlag
	}
	out := sockcan.Frame{ID: id, Length: frame.Length}
	copy(out.Data[:], frame.Data[:frame.Length])
	return out, true
}

// FromSocket converts a SocketCAN frame for submission to the controller.
func FromSocket(frame sockcan.Frame) can.Frame {
	out := can.Frame{
		ID:       frame.ID & idMask,
		Extended: frame.ID&effFlag != 0,
		Remote:   frame.ID&rtrFlag != 0,
		Length:   frame.Length,
	}
	if out.Length > can.MaxClassicData {
		out.Length = can.MaxClassicData
	}
	copy(out.Data[:], frame.Data[:out.Length])
	return out
}
