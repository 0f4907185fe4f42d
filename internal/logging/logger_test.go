package logging_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"loom/internal/logging"
)

func TestNewWritesConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	logger, err := logging.New(logging.Options{
		Level:   "info",
		Format:  "console",
		LogDir:  dir,
		Console: &console,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("run started", logging.String(logging.FieldRunID, "abc"))

	if !strings.Contains(console.String(), "run started") {
		t.Fatalf("console output missing message: %q", console.String())
	}

	raw, err := os.ReadFile(filepath.Join(dir, "loom.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(raw, &entry); err != nil {
		t.Fatalf("log file is not JSON lines: %v (%q)", err, raw)
	}
	if entry[logging.FieldRunID] != "abc" {
		t.Fatalf("missing run_id attr: %v", entry)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLevelFiltering(t *testing.T) {
	var console bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Format: "json", Console: &console})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("quiet")
	logger.Warn("loud")
	out := console.String()
	if strings.Contains(out, "quiet") || !strings.Contains(out, "loud") {
		t.Fatalf("level filtering broken: %q", out)
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := logging.NewNop()
	logger.Error("nothing to see", logging.Error(nil))
}
