package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewDefaultTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	log := NewDefault("ledger")
	log.SetOutput(&buf)

	log.Info("debit recorded")

	out := buf.String()
	if !strings.Contains(out, "component=ledger") {
		t.Fatalf("expected component field in output, got %q", out)
	}
	if !strings.Contains(out, "debit recorded") {
		t.Fatalf("expected message in output, got %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(LoggingConfig{Level: "debug", Format: "json"})
	log.SetOutput(&buf)

	log.WithField("request_id", "r1").Debug("probe")

	if !strings.Contains(buf.String(), `"request_id":"r1"`) {
		t.Fatalf("expected json field, got %q", buf.String())
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(LoggingConfig{Level: "verbose"})
	log.SetOutput(&buf)

	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug output should be suppressed at info level: %q", buf.String())
	}

	log.Info("visible")
	if buf.Len() == 0 {
		t.Fatal("info output expected")
	}
}
