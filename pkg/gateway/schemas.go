package gateway

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/tsambor/gocanfd/pkg/can"
)

// FrameJSON is the wire form of one frame. The identifier travels as a hex
// string, the payload as a hex string of Length bytes.
type FrameJSON struct {
	ID        string `json:"id"`
	Data      string `json:"data"`
	Extended  bool   `json:"extended,omitempty"`
	Remote    bool   `json:"remote,omitempty"`
	FD        bool   `json:"fd,omitempty"`
	BRS       bool   `json:"brs,omitempty"`
	ESI       bool   `json:"esi,omitempty"`
	Timestamp uint32 `json:"timestamp,omitempty"`
}

// StatusResponse carries the device counters and the configured payload mode.
type StatusResponse struct {
	PayloadMode string `json:"payload_mode"`
	TxSubmitted uint64 `json:"tx_submitted"`
	TxCompleted uint64 `json:"tx_completed"`
	TxDropped   uint64 `json:"tx_dropped"`
	RxReceived  uint64 `json:"rx_received"`
	RxOverflow  uint64 `json:"rx_overflow"`
	BusErrors   uint64 `json:"bus_errors"`
}

type FramesResponse struct {
	Frames []FrameJSON `json:"frames"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func encodeFrame(frame can.Frame) FrameJSON {
	return FrameJSON{
		ID:        fmt.Sprintf("0x%X", frame.ID),
		Data:      hex.EncodeToString(frame.Data[:frame.Length]),
		Extended:  frame.Extended,
		Remote:    frame.Remote,
		FD:        frame.FD,
		BRS:       frame.BRS,
		ESI:       frame.ESI,
		Timestamp: frame.Timestamp,
	}
}

func decodeFrame(in FrameJSON) (can.Frame, error) {
	id, err := strconv.ParseUint(in.ID, 0, 32)
	if err != nil {
		return can.Frame{}, fmt.Errorf("gateway: bad frame id %q: %w", in.ID, err)
	}
	data, err := hex.DecodeString(in.Data)
	if err != nil {
		return can.Frame{}, fmt.Errorf("gateway: bad frame data: %w", err)
	}
	if len(data) > can.MaxFDData {
		return can.Frame{}, errors.New("gateway: frame data too long")
	}
	frame := can.Frame{
		ID:       uint32(id),
		Extended: in.Extended,
		Remote:   in.Remote,
		FD:       in.FD,
		BRS:      in.BRS,
		ESI:      in.ESI,
		Length:   uint8(len(data)),
	}
	copy(frame.Data[:], data)
	if err := frame.Validate(); err != nil {
		return can.Frame{}, err
	}
	return frame, nil
}
