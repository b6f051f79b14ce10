// Package progress reports pipeline stages as JSON lines.
package progress

import (
	"encoding/json"
	"fmt"
	"io"
)

// Stage names match the host application's progress display.
const (
	StageLoadingAudio  = "Loading audio features..."
	StageRunningModel  = "Running NeuralNote model..."
	StageBuildingMIDI  = "Building MIDI events..."
	StageEstimateTempo = "Estimating tempo..."
	StageComplete      = "Conversion complete."
)

type event struct {
	Type     string  `json:"type"`
	Stage    string  `json:"stage"`
	Progress float64 `json:"progress"`
}

// Reporter writes progress events for a single pipeline run.
type Reporter struct {
	out io.Writer
}

// NewReporter creates a reporter writing to out. A nil out discards events.
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// Report emits one {"type":"progress",...} line.
func (r *Reporter) Report(stage string, progress float64) {
	if r == nil || r.out == nil {
		return
	}

	line, err := json.Marshal(event{Type: "progress", Stage: stage, Progress: progress})
	if err != nil {
		return
	}
	fmt.Fprintln(r.out, string(line))
}
