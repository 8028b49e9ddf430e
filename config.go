package mtp

import (
	"time"

	"gopkg.in/ini.v1"
)

// Config holds the daemon runtime settings. Transport sizing (buffers,
// windows, message size) is compile time and shared by both peers; only
// timing, loss injection and host facing knobs are configurable.
type Config struct {
	// Path of the unix socket clients connect to.
	SocketPath string

	// Probability in [0,1] of silently dropping a received datagram,
	// injected loss for testing.
	LossProbability float64

	// Sender tick and receiver timeout, the T of the protocol.
	RetransmitPeriod time.Duration

	// Reaper tick.
	GCInterval time.Duration

	// Listen address for the prometheus endpoint, empty disables it.
	MetricsAddr string

	// logrus level name.
	LogLevel string
}

func DefaultConfig() Config {
	return Config{
		SocketPath:       DefaultSocketPath,
		LossProbability:  0,
		RetransmitPeriod: 5 * time.Second,
		GCInterval:       5 * time.Second,
		LogLevel:         "info",
	}
}

// LoadConfig reads an ini daemon configuration file. Missing keys keep
// their defaults.
func LoadConfig(filePath string) (Config, error) {
	cfg := DefaultConfig()
	iniFile, err := ini.Load(filePath)
	if err != nil {
		return cfg, err
	}
	daemon := iniFile.Section("daemon")
	if key, err := daemon.GetKey("socket_path"); err == nil {
		cfg.SocketPath = key.String()
	}
	if key, err := daemon.GetKey("metrics_addr"); err == nil {
		cfg.MetricsAddr = key.String()
	}
	if key, err := daemon.GetKey("log_level"); err == nil {
		cfg.LogLevel = key.String()
	}
	transport := iniFile.Section("transport")
	if key, err := transport.GetKey("loss_probability"); err == nil {
		p, err := key.Float64()
		if err != nil {
			return cfg, err
		}
		cfg.LossProbability = p
	}
	if key, err := transport.GetKey("retransmit_period"); err == nil {
		seconds, err := key.Float64()
		if err != nil {
			return cfg, err
		}
		cfg.RetransmitPeriod = time.Duration(seconds * float64(time.Second))
	}
	if key, err := transport.GetKey("gc_interval"); err == nil {
		seconds, err := key.Float64()
		if err != nil {
			return cfg, err
		}
		cfg.GCInterval = time.Duration(seconds * float64(time.Second))
	}
	return cfg, nil
}
