package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nostrchat/internal/config"
)

func TestManager_Configure_RejectsUnknownLevel(t *testing.T) {
	m := NewManager()
	defer func() { _ = m.Close() }()

	err := m.Configure(config.LoggingConfig{Level: "loud"}, "")
	if err == nil {
		t.Fatalf("expected error for unsupported level")
	}
}

func TestManager_Configure_WritesLogFile(t *testing.T) {
	m := NewManager()
	defer func() { _ = m.Close() }()

	logPath := filepath.Join(t.TempDir(), "app.log")
	if err := m.Configure(config.LoggingConfig{Level: "debug", LogToFile: true}, logPath); err != nil {
		t.Fatalf("configure: %v", err)
	}

	m.Logger("test").Info("hello from test")

	raw, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), "hello from test") {
		t.Fatalf("log file missing entry: %q", string(raw))
	}
}

func TestManager_Logger_AttachesComponent(t *testing.T) {
	m := NewManager()
	defer func() { _ = m.Close() }()

	if m.Logger("broker") == nil {
		t.Fatalf("expected component logger")
	}
}
