package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_JSONFormatIncludesComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New("chain", Config{Level: "debug", Format: "json", Output: &buf})

	log.WithField("signature", "abc").Info("submitted")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v (%q)", err, buf.String())
	}
	if entry["component"] != "chain" {
		t.Errorf("component = %v, want chain", entry["component"])
	}
	if entry["signature"] != "abc" {
		t.Errorf("signature = %v, want abc", entry["signature"])
	}
	if entry["msg"] != "submitted" {
		t.Errorf("msg = %v, want submitted", entry["msg"])
	}
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New("x", Config{Level: "loud", Output: &buf})

	log.WithField("k", 1).Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug line written at info level: %q", buf.String())
	}
	log.WithField("k", 1).Info("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("info line missing: %q", buf.String())
	}
}

func TestNamed(t *testing.T) {
	var buf bytes.Buffer
	log := New("ledger", Config{Format: "json", Output: &buf}).Named("round")

	if log.Component() != "ledger.round" {
		t.Errorf("Component() = %s, want ledger.round", log.Component())
	}
	log.WithFields(map[string]interface{}{"slot": 7}).Info("activated")
	if !strings.Contains(buf.String(), `"component":"ledger.round"`) {
		t.Errorf("component missing from %q", buf.String())
	}
}
