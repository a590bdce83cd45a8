package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/netmirror/internal/config"
	"grimm.is/netmirror/internal/hwinfo"
	"grimm.is/netmirror/internal/logging"
	"grimm.is/netmirror/internal/metrics"
	"grimm.is/netmirror/internal/observer"
	"grimm.is/netmirror/internal/rtnl"
	"grimm.is/netmirror/internal/wifi"
)

// RunWatch mirrors the host's network state and streams every
// inventory change as JSON lines until interrupted.
func RunWatch(configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	log := setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nl, err := newNetlinker(cfg)
	if err != nil {
		return err
	}
	defer nl.Close()

	prober := hwinfo.NewProber(log)
	defer prober.Close()

	mirror := observer.NewMirror(newStreamReceiver(os.Stdout), log,
		observer.WithHardware(prober))
	listener := rtnl.NewListener(nl, mirror, log)
	mirror.SetLinkControl(listener)

	var correlator *wifi.Correlator
	if cfg.WifiEnabled() {
		correlator, err = wifi.Dial(mirror, log)
		switch {
		case errors.Is(err, wifi.ErrUnsupported):
			log.Info("no wireless stack, correlator disabled")
		case err != nil:
			return err
		default:
			mirror.SetScanControl(correlator)
		}
	}

	if err := listener.Start(); err != nil {
		return fmt.Errorf("start listener: %w", err)
	}
	defer listener.Stop()

	if cfg.MetricsListen != "" {
		go serveMetrics(cfg.MetricsListen, log)
	}

	errCh := make(chan error, 2)
	if correlator != nil {
		if err := correlator.Start(); err != nil {
			return fmt.Errorf("start wireless correlator: %w", err)
		}
		go func() { errCh <- correlator.Run(ctx) }()
	}
	go func() { errCh <- listener.Run(ctx) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func loadConfig(configFile string) (*config.Config, error) {
	if configFile == "" {
		return config.Load()
	}
	return config.LoadFile(configFile)
}

func setupLogging(cfg *config.Config) *logging.Logger {
	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Output: os.Stderr,
		JSON:   cfg.JSONLog,
	})
	logging.SetDefault(log)
	return log
}

func newNetlinker(cfg *config.Config) (*rtnl.RealNetlinker, error) {
	if cfg.NetnsPath != "" {
		return rtnl.NewNetlinkerAt(cfg.NetnsPath)
	}
	return rtnl.NewNetlinker()
}

func serveMetrics(listen string, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(listen, mux); err != nil {
		log.Error("metrics listener failed", "addr", listen, "err", err)
	}
}
