package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/tsambor/gocanfd/pkg/device"
	"github.com/tsambor/gocanfd/pkg/gateway"
	"github.com/tsambor/gocanfd/pkg/spi/virtual"
)

var DEFAULT_HTTP_PORT = 8090

func main() {
	log.SetLevel(log.DebugLevel)
	// Command line arguments
	port := flag.Int("port", DEFAULT_HTTP_PORT, "gateway listen port")
	profile := flag.String("p", "", "device profile in INI format")
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

	dev := device.New(virtual.NewController(logger), cfg, logger)
	if err := dev.Open(); err != nil {
		panic(err)
	}
	if err := dev.Start(); err != nil {
		panic(err)
	}

	server := gateway.NewServer(dev, cfg, logger)
	log.Infof("gateway listening on :%d", *port)
	if err := server.ListenAndServe(fmt.Sprintf(":%d", *port)); err != nil {
		panic(err)
	}
}
