package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestConsoleHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, Output: &buf})

	logger.WithComponent("rtnl").Info("link appeared", "ifindex", 3, "name", "eth0")

	out := buf.String()
	if !strings.Contains(out, "[info]") {
		t.Errorf("expected level in output, got %q", out)
	}
	if !strings.Contains(out, "rtnl: link appeared") {
		t.Errorf("expected component header, got %q", out)
	}
	if !strings.Contains(out, "ifindex=3") {
		t.Errorf("expected attribute, got %q", out)
	}
}

func TestConsoleHandler_QuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Output: &buf})

	logger.Info("scan", "ssid", "coffee shop")

	if !strings.Contains(buf.String(), `ssid="coffee shop"`) {
		t.Errorf("expected quoted value, got %q", buf.String())
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Output: &buf})

	logger.Debug("invisible")
	logger.Info("invisible too")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "invisible") {
		t.Errorf("debug/info should be filtered, got %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("warn should pass, got %q", out)
	}
}

func TestLogger_SetLevelDynamic(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Output: &buf})

	logger.Debug("dropped")
	logger.SetLevel(LevelDebug)
	logger.Debug("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("debug should have been filtered before SetLevel, got %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("debug should pass after SetLevel, got %q", out)
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Output: &buf, JSON: true})

	logger.Info("hello", "k", "v")

	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Errorf("expected JSON output, got %q", out)
	}
}
