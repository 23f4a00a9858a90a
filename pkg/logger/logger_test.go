package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONFormatIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&Config{Level: DebugLevel, Format: JSONFormat, Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.WithComponent("engine").WithField("run_id", "r-1").Info("started")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["component"] != "engine" {
		t.Errorf("component = %v, want engine", entry["component"])
	}
	if entry["run_id"] != "r-1" {
		t.Errorf("run_id = %v, want r-1", entry["run_id"])
	}
	if entry["msg"] != "started" {
		t.Errorf("msg = %v, want started", entry["msg"])
	}
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud", Format: TextFormat}); err == nil {
		t.Fatal("expected error for invalid level")
	}
	if _, err := New(&Config{Level: InfoLevel, Format: "xml"}); err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&Config{Level: WarnLevel, Format: TextFormat, Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Debug("hidden")
	log.Info("hidden too")
	log.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("below-threshold entries were emitted:\n%s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("warn entry missing:\n%s", out)
	}
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&Config{Level: InfoLevel, Format: JSONFormat, Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_ = log.WithFields(Fields{"side": "bank"})
	log.Info("plain")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if _, ok := entry["side"]; ok {
		t.Error("field from child logger leaked into parent")
	}
}

func TestNopDiscards(t *testing.T) {
	// Must not panic and must not write anywhere observable.
	Nop().WithError(nil).WithComponent("test").Infof("ignored %d", 1)
}
