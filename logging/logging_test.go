package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "debug", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("worker spawned", "slot", "a", "pid", 123)
	out := buf.String()
	if !strings.Contains(out, "INFO") || !strings.Contains(out, "worker spawned") {
		t.Errorf("output missing level or message: %q", out)
	}
	if !strings.Contains(out, "slot=a") || !strings.Contains(out, "pid=123") {
		t.Errorf("output missing attrs: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("colors emitted to a non-terminal writer: %q", out)
	}
}

func TestConsoleLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "warn", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hidden")
	log.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info leaked through a warn filter")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn suppressed")
	}
}

func TestConsoleWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Format: "console", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	log.With("slot", "b").WithGroup("ring").Info("written", "seq", 9)
	out := buf.String()
	if !strings.Contains(out, "slot=b") || !strings.Contains(out, "ring.seq=9") {
		t.Errorf("grouped attrs wrong: %q", out)
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Format: "json", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	log.Info("patch committed", "nodes", 3)
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("not JSON: %v (%q)", err, buf.String())
	}
	if record["msg"] != "patch committed" || record["nodes"] != float64(3) {
		t.Errorf("record = %v", record)
	}
}

func TestBadOptions(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("bad level accepted")
	}
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Error("bad format accepted")
	}
}
