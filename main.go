package main

import (
	"flag"
	"fmt"
	"os"

	"grimm.is/netmirror/cmd"
	"grimm.is/netmirror/internal/brand"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "watch":
		watchFlags := flag.NewFlagSet("watch", flag.ExitOnError)
		configFile := watchFlags.String("config", "", "Configuration file")
		watchFlags.StringVar(configFile, "c", "", "Configuration file (short)")
		watchFlags.Parse(os.Args[2:])

		if err := cmd.RunWatch(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Watch failed: %v\n", err)
			os.Exit(1)
		}

	case "snapshot":
		snapFlags := flag.NewFlagSet("snapshot", flag.ExitOnError)
		configFile := snapFlags.String("config", "", "Configuration file")
		snapFlags.StringVar(configFile, "c", "", "Configuration file (short)")
		output := snapFlags.String("output", "-", "Output file (- for stdout)")
		snapFlags.StringVar(output, "o", "-", "Output file (short)")
		snapFlags.Parse(os.Args[2:])

		if err := cmd.RunSnapshot(*configFile, *output); err != nil {
			fmt.Fprintf(os.Stderr, "Snapshot failed: %v\n", err)
			os.Exit(1)
		}

	case "replay":
		replayFlags := flag.NewFlagSet("replay", flag.ExitOnError)
		input := replayFlags.String("input", "-", "Snapshot file (- for stdin)")
		replayFlags.StringVar(input, "i", "-", "Snapshot file (short)")
		replayFlags.Parse(os.Args[2:])

		if err := cmd.RunReplay(*input); err != nil {
			fmt.Fprintf(os.Stderr, "Replay failed: %v\n", err)
			os.Exit(1)
		}

	case "version", "--version", "-v":
		cmd.RunVersion()

	case "help", "--help", "-h":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s - live netlink topology mirror

Usage: %s <command> [options]

Commands:
  watch      Mirror network state and stream changes as JSON lines
  snapshot   Dump the current network state to a snapshot document
  replay     Feed a recorded snapshot through the receiver interface
  version    Show version information

Options:
  watch      -c/--config <file>
  snapshot   -c/--config <file>  -o/--output <file>
  replay     -i/--input <file>

Configuration is read from %s/%s unless -c is given.
`, brand.Name, brand.BinaryName, brand.DefaultConfigDir, brand.ConfigFileName)
}
