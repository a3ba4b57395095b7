package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew_DefaultsToJSONInfo(t *testing.T) {
	var buf bytes.Buffer
	log, closeFn := newWithStderr(Config{Level: "bogus"}, &buf)
	defer closeFn()

	if log.GetLevel() != logrus.InfoLevel {
		t.Errorf("expected info level, got %s", log.GetLevel())
	}
	ForRun(log, "run-1").Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if line["run_id"] != "run-1" || line["msg"] != "hello" {
		t.Errorf("unexpected fields %v", line)
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	log, closeFn := newWithStderr(Config{Level: "debug", Format: "text"}, &buf)
	defer closeFn()

	Component(ForRun(log, "r"), "pipeline").Debug("merged")
	out := buf.String()
	if !strings.Contains(out, "component=pipeline") || !strings.Contains(out, "msg=merged") {
		t.Errorf("unexpected text output %q", out)
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "autoconfig.log")
	var buf bytes.Buffer
	log, closeFn := newWithStderr(Config{FilePath: path}, &buf)

	log.Info("to file")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("file missing line: %q", data)
	}
	if !strings.Contains(buf.String(), "to file") {
		t.Error("stderr mirror missing line")
	}
}

func TestDiscard(t *testing.T) {
	Discard().WithField("k", "v").Error("dropped")
}
