package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mtpsuite/gomtp"
	log "github.com/sirupsen/logrus"
)

func main() {
	// Command line arguments
	configPath := flag.String("c", "", "daemon configuration file (ini)")
	socketPath := flag.String("s", "", "control socket path, overrides the configuration file")
	loss := flag.Float64("p", -1, "datagram loss probability in [0,1], overrides the configuration file")
	metricsAddr := flag.String("m", "", "prometheus listen address, overrides the configuration file")
	flag.Parse()

	cfg := mtp.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = mtp.LoadConfig(*configPath)
		if err != nil {
			fmt.Printf("could not load configuration %v : %v\n", *configPath, err)
			os.Exit(1)
		}
	}
	if *socketPath != "" {
		cfg.SocketPath = *socketPath
	}
	if *loss >= 0 {
		cfg.LossProbability = *loss
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Printf("unknown log level %v\n", cfg.LogLevel)
		os.Exit(1)
	}
	log.SetLevel(level)

	daemon := mtp.NewDaemon(cfg)
	if err := daemon.Start(); err != nil {
		fmt.Printf("could not start daemon : %v\n", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	daemon.Stop()
	fmt.Println("Exiting gracefully")
}
