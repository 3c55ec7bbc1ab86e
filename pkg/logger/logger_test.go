package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_JSONWithServiceAttr(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: INFO, Format: JSON, Output: &buf, Service: "reservations"})

	log.Info("booking created", "booking_id", "b-1")

	out := buf.String()
	if !strings.Contains(out, `"service":"reservations"`) {
		t.Errorf("expected service attr, got %s", out)
	}
	if !strings.Contains(out, `"booking_id":"b-1"`) {
		t.Errorf("expected booking_id attr, got %s", out)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: WARN, Output: &buf})

	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn record should be written: %s", out)
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: TEXT, Output: &buf}).Component("notifier")

	log.Info("started")

	if !strings.Contains(buf.String(), "component=notifier") {
		t.Errorf("expected component attr, got %s", buf.String())
	}
}
