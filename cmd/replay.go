package cmd

import (
	"fmt"
	"os"

	"grimm.is/netmirror/internal/observer"
)

// RunReplay feeds a recorded snapshot through the receiver interface
// without touching any socket, streaming the resulting calls as JSON
// lines. Useful for exercising consumers deterministically.
func RunReplay(input string) error {
	r := os.Stdin
	if input != "" && input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return fmt.Errorf("open %s: %w", input, err)
		}
		defer f.Close()
		r = f
	}

	snap, err := observer.Load(r)
	if err != nil {
		return err
	}
	observer.Replay(snap, newStreamReceiver(os.Stdout))
	return nil
}
