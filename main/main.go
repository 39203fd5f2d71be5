package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"wxbridge"
	"wxbridge/forwarder"
)

var (
	configFile  = flag.String("config", "", "path to bridge configuration file")
	port        = flag.String("port", "", "serial port, overrides configuration")
	passThrough = flag.Bool("passthrough", false, "log raw sentences instead of forwarding telemetry")
	testMode    = flag.Bool("testmode", false, "generate synthetic station data")
	listPorts   = flag.Bool("list-ports", false, "list available serial ports and exit")
	debug       = flag.Bool("debug", false, "enable debug logging")
)

func main() {
	flag.Parse()
	log.SetLevel(log.InfoLevel)
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	if *listPorts {
		ports, err := wxbridge.ListPorts()
		if err != nil {
			log.Fatal("unable to list serial ports: ", err)
		}
		for _, p := range ports {
			log.WithField("description", p.Description).Info(p.Port)
		}
		return
	}

	cfg := wxbridge.DefaultConfig()
	if *configFile != "" {
		loaded, err := wxbridge.LoadConfig(*configFile)
		if err != nil {
			log.Fatal("unable to load configuration: ", err)
		}
		cfg = *loaded
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *passThrough {
		cfg.PassThrough = true
	}

	var sink wxbridge.TelemetrySink
	if !cfg.PassThrough {
		fwder, err := forwarder.NewUDPForwarder(cfg.Downstream.Server, cfg.Downstream.Port)
		if err != nil {
			log.Fatal("unable to create UDP forwarder: ", err)
		}
		defer fwder.Close()
		sink = fwder
	}

	bridge := wxbridge.New(cfg, sink)
	bridge.SetTestMode(*testMode)
	bridge.Start(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("shutdown signal received")
	bridge.Stop()
}
