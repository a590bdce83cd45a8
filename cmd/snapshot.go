package cmd

import (
	"fmt"
	"os"

	"grimm.is/netmirror/internal/hwinfo"
	"grimm.is/netmirror/internal/observer"
	"grimm.is/netmirror/internal/rtnl"
)

// RunSnapshot performs a one-shot dump of the current network state and
// writes it as a snapshot document to output ("-" for stdout).
func RunSnapshot(configFile, output string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	log := setupLogging(cfg)

	nl, err := newNetlinker(cfg)
	if err != nil {
		return err
	}
	defer nl.Close()

	prober := hwinfo.NewProber(log)
	defer prober.Close()

	// The initial dump alone populates the mirror; no live events are
	// consumed.
	mirror := observer.NewMirror(observer.NopReceiver{}, log,
		observer.WithHardware(prober))
	listener := rtnl.NewListener(nl, mirror, log)
	if err := listener.Start(); err != nil {
		return fmt.Errorf("dump network state: %w", err)
	}
	listener.Stop()

	w := os.Stdout
	if output != "" && output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}
	return observer.Export(w, mirror.Snapshot())
}
