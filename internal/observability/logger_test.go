package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/sqlprompt/sqlprompt/internal/config"
)

func TestNewLoggerJSONIncludesServiceAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.Config{
		Profile:       config.ProfileTest,
		Service:       config.ServiceConfig{Name: "sqlprompt-api"},
		Observability: config.ObservabilityConfig{LogLevel: slog.LevelInfo, LogJSON: true},
	}, &buf)
	logger.Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if entry["service"] != "sqlprompt-api" || entry["profile"] != "test" {
		t.Fatalf("entry = %#v", entry)
	}
}

func TestNewLoggerTextRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.Config{
		Service:       config.ServiceConfig{Name: "sqlprompt-api"},
		Observability: config.ObservabilityConfig{LogLevel: slog.LevelWarn},
	}, &buf)
	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn line missing: %s", out)
	}
}
