// Package config loads the daemon's HCL configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"grimm.is/netmirror/internal/brand"
)

// Config holds the daemon settings.
type Config struct {
	LogLevel      string `hcl:"log_level,optional"`
	JSONLog       bool   `hcl:"json_log,optional"`
	Wifi          *bool  `hcl:"wifi,optional"`
	NetnsPath     string `hcl:"netns_path,optional"`
	MetricsListen string `hcl:"metrics_listen,optional"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
	}
}

// WifiEnabled reports whether the wireless correlator should run.
// Enabled unless explicitly turned off.
func (c *Config) WifiEnabled() bool {
	return c.Wifi == nil || *c.Wifi
}

// LoadFile parses an HCL config file. Fields not present keep their
// defaults. The eval context exposes environment variables as env.NAME.
func LoadFile(path string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %s", path, diags.Error())
	}
	return decode(file)
}

// LoadBytes parses HCL config from memory.
func LoadBytes(data []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %s", filename, diags.Error())
	}
	return decode(file)
}

func decode(file *hcl.File) (*Config, error) {
	cfg := Default()
	if diags := gohcl.DecodeBody(file.Body, evalContext(), cfg); diags.HasErrors() {
		return nil, fmt.Errorf("decode config: %s", diags.Error())
	}
	return cfg, nil
}

// evalContext exposes the process environment to config expressions.
func evalContext() *hcl.EvalContext {
	env := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			env[key] = cty.StringVal(value)
		}
	}
	vars := map[string]cty.Value{}
	if len(env) > 0 {
		vars["env"] = cty.ObjectVal(env)
	}
	return &hcl.EvalContext{Variables: vars}
}

// Load reads the standard config file, falling back to defaults when it
// does not exist.
func Load() (*Config, error) {
	path := filepath.Join(brand.GetConfigDir(), brand.ConfigFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return LoadFile(path)
}
