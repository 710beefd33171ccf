package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/tsambor/gocanfd/pkg/bridge"
	"github.com/tsambor/gocanfd/pkg/device"
	"github.com/tsambor/gocanfd/pkg/spi/virtual"
)

var DEFAULT_CAN_INTERFACE = "vcan0"

// Forwards traffic between a controller and a SocketCAN interface. The
// controller side is the in-memory model; swap in a real spi.Bus to drive
// hardware.
func main() {
	log.SetLevel(log.DebugLevel)
	// Command line arguments
	canInterface := flag.String("i", DEFAULT_CAN_INTERFACE, "socketcan interface e.g. can0,vcan0")
	profile := flag.String("p", "", "device profile in INI format")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := device.DefaultConfig()
	if *profile != "" {
		loaded, err := device.LoadProfile(*profile)
		if err != nil {
			panic(err)
		}
		cfg = loaded
	}

	dev := device.New(virtual.NewController(logger), cfg, logger)
	if err := dev.Open(); err != nil {
		panic(err)
	}
	if err := dev.Start(); err != nil {
		panic(err)
	}

	b, err := bridge.New(dev, *canInterface, logger)
	if err != nil {
		panic(err)
	}
	if err := b.Start(); err != nil {
		panic(err)
	}
	log.Infof("bridging %s", *canInterface)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	if err := b.Close(); err != nil {
		log.Warnf("closing socketcan: %v", err)
	}
	if err := dev.Stop(); err != nil {
		log.Warnf("stopping device: %v", err)
	}
	log.Infof("dropped %d fd frames, counters %+v", b.Dropped(), dev.Counters())
}
