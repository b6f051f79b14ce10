package progress

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestReporterEmitsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	r.Report(StageLoadingAudio, 0.12)
	r.Report(StageComplete, 1.0)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}

	var first struct {
		Type     string  `json:"type"`
		Stage    string  `json:"stage"`
		Progress float64 `json:"progress"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if first.Type != "progress" || first.Stage != StageLoadingAudio || first.Progress != 0.12 {
		t.Fatalf("unexpected event: %+v", first)
	}
}

func TestNilReporterIsSilentAndSafe(t *testing.T) {
	var r *Reporter
	r.Report(StageComplete, 1.0) // must not panic

	r = NewReporter(nil)
	r.Report(StageComplete, 1.0)
}
