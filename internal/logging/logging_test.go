package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWritesJSONAtLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New("warn", &buf)

	logger.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %s", buf.String())
	}

	logger.Warn().Str("project_id", "p1").Msg("autosave failed")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "warn" || entry["project_id"] != "p1" || entry["time"] == nil {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestNewDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New("chatty", &buf)
	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")
	if bytes.Count(buf.Bytes(), []byte("\n")) != 1 {
		t.Fatalf("expected exactly one line, got %q", buf.String())
	}
}
