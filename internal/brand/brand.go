// Package brand provides centralized naming constants for netmirror.
package brand

import (
	"os"
	"path/filepath"
)

const (
	Name             = "Netmirror"
	LowerName        = "netmirror"
	Description      = "Live mirror of the host network topology"
	ConfigEnvPrefix  = "NETMIRROR"
	DefaultConfigDir = "/etc/netmirror"
	DefaultRunDir    = "/run/netmirror"
	BinaryName       = "netmirror"
	ConfigFileName   = "netmirror.hcl"
)

// Version is set at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// GetConfigDir returns the config directory, checking env vars first.
// Priority: NETMIRROR_CONFIG_DIR > NETMIRROR_PREFIX/config > DefaultConfigDir
func GetConfigDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "config")
	}
	return DefaultConfigDir
}

// GetRunDir returns the runtime directory for sockets and PID files.
// Priority: NETMIRROR_RUN_DIR > NETMIRROR_PREFIX/run > DefaultRunDir
func GetRunDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_RUN_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "run")
	}
	return DefaultRunDir
}
