package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestSetLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text", false)
	defer InitWithWriter(&buf, "INFO", "text", false)

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below WARN should be filtered, got: %s", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("WARN and ERROR should be logged, got: %s", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)
	defer InitWithWriter(&buf, "INFO", "text", false)

	id := uuid.New()
	Info("volume created", KeyVolumeID, id.String(), KeySize, uint64(1<<30))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not valid JSON: %v: %s", err, buf.String())
	}
	if record["msg"] != "volume created" {
		t.Errorf("unexpected msg: %v", record["msg"])
	}
	if record[KeyVolumeID] != id.String() {
		t.Errorf("expected volume_id %s, got %v", id, record[KeyVolumeID])
	}
}

func TestTextFormatFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	Info("reaper pass", KeyChunks, 3, KeyState, "destroying")

	out := buf.String()
	if !strings.Contains(out, "chunks=3") {
		t.Errorf("expected chunks=3 in output: %s", out)
	}
	if !strings.Contains(out, "state=destroying") {
		t.Errorf("expected state=destroying in output: %s", out)
	}
}

func TestTextFormatQuotesSpaces(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	Info("volume created", KeyVolumeName, "scratch volume 1")

	if !strings.Contains(buf.String(), `volume_name="scratch volume 1"`) {
		t.Errorf("string values with spaces should be quoted: %s", buf.String())
	}
}

func TestInvalidLevelIgnored(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	SetLevel("NOPE")

	Info("still info")
	if !strings.Contains(buf.String(), "still info") {
		t.Errorf("invalid level must not change filtering: %s", buf.String())
	}
}
