package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/tsambor/gocanfd/pkg/can"
	"github.com/tsambor/gocanfd/pkg/device"
	"github.com/tsambor/gocanfd/pkg/spi/virtual"
)

var DEFAULT_FRAME_COUNT = 5

func main() {
	log.SetLevel(log.DebugLevel)
	// Command line arguments
	profile := flag.String("p", "", "device profile in INI format")
	useFD := flag.Bool("fd", false, "use CAN-FD payloads")
	count := flag.Int("n", DEFAULT_FRAME_COUNT, "number of frames to send")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := device.DefaultConfig()
	if *profile != "" {
		loaded, err := device.LoadProfile(*profile)
		if err != nil {
			panic(err)
		}
		cfg = loaded
	}
	if *useFD {
		cfg.PayloadMode = device.PayloadFD
	}

	// No hardware needed: the in-memory controller model answers the same
	// command protocol a real chip would.
	ctrl := virtual.NewController(logger)
	dev := device.New(ctrl, cfg, logger)
	dev.OnReceive(func(frame can.Frame) {
		log.Infof("received id=0x%X len=%d data=% X", frame.ID, frame.Length, frame.Data[:frame.Length])
	})
	dev.OnError(func(event device.Event) {
		log.Warnf("hardware error: %v", event.Kind)
	})

	if err := dev.Open(); err != nil {
		panic(err)
	}
	if err := dev.Start(); err != nil {
		panic(err)
	}

	for i := 0; i < *count; i++ {
		frame := can.Frame{ID: uint32(0x100 + i), Length: 8, FD: *useFD}
		copy(frame.Data[:], []byte{byte(i), 1, 2, 3, 4, 5, 6, 7})
		if err := dev.Submit(frame); err != nil {
			panic(err)
		}
	}

	// loop the transmitted objects back as received ones
	for _, object := range ctrl.Transmitted() {
		rx := make([]byte, 0, len(object)+4)
		rx = append(rx, object[:8]...)
		rx = append(rx, 0, 0, 0, 0)
		rx = append(rx, object[8:]...)
		if err := ctrl.InjectRx(1, rx); err != nil {
			panic(err)
		}
	}
	if err := dev.Service(); err != nil {
		panic(err)
	}

	if err := dev.Stop(); err != nil {
		panic(err)
	}
	fmt.Printf("%+v\n", dev.Counters())
}
