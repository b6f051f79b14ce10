package pipeline

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/markod0925/GuitarHelio/internal/basicpitch"
	"github.com/markod0925/GuitarHelio/internal/tempo"
)

func sampleEvents() []basicpitch.Event {
	return []basicpitch.Event{
		{StartTime: 0.1, EndTime: 0.5, Pitch: 69, Amplitude: 0.75},
		{StartTime: 1.0 / 3.0, EndTime: 2, Pitch: 60, Amplitude: 0.5},
	}
}

func sampleTempo() *tempo.Result {
	return &tempo.Result{
		Bpm: 120.5,
		TempoMap: []tempo.Point{
			{TimeSeconds: 0, Bpm: 120.5},
			{TimeSeconds: 1.486077, Bpm: 121.25},
		},
	}
}

func TestEncodeEventsIsValidJSONWithFixedDecimals(t *testing.T) {
	document := EncodeEvents(sampleEvents())

	var parsed struct {
		Events []struct {
			StartTimeSeconds float64 `json:"startTimeSeconds"`
			DurationSeconds  float64 `json:"durationSeconds"`
			PitchMidi        int     `json:"pitchMidi"`
			Amplitude        float64 `json:"amplitude"`
		} `json:"events"`
	}
	if err := json.Unmarshal(document, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, document)
	}
	if len(parsed.Events) != 2 {
		t.Fatalf("events = %d", len(parsed.Events))
	}
	if parsed.Events[0].PitchMidi != 69 {
		t.Errorf("pitch = %d", parsed.Events[0].PitchMidi)
	}
	if parsed.Events[0].DurationSeconds != 0.4 {
		t.Errorf("duration = %f", parsed.Events[0].DurationSeconds)
	}

	// nine fixed decimals on event fields
	if !strings.Contains(string(document), `"startTimeSeconds":0.100000000`) {
		t.Errorf("missing 9-decimal start time:\n%s", document)
	}
	if !strings.Contains(string(document), `"startTimeSeconds":0.333333333`) {
		t.Errorf("missing rounded repeating fraction:\n%s", document)
	}
}

func TestEncodeCombined(t *testing.T) {
	document := EncodeCombined(sampleEvents(), sampleTempo())

	var parsed struct {
		Events   []map[string]any `json:"events"`
		TempoBpm float64          `json:"tempoBpm"`
		TempoMap []struct {
			TimeSeconds float64 `json:"timeSeconds"`
			Bpm         float64 `json:"bpm"`
		} `json:"tempoMap"`
	}
	if err := json.Unmarshal(document, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, document)
	}

	if parsed.TempoBpm != 120.5 {
		t.Errorf("tempoBpm = %f", parsed.TempoBpm)
	}
	if len(parsed.TempoMap) != 2 {
		t.Fatalf("tempoMap = %d points", len(parsed.TempoMap))
	}

	// six fixed decimals on tempo fields
	if !strings.Contains(string(document), `"tempoBpm": 120.500000`) {
		t.Errorf("missing 6-decimal tempoBpm:\n%s", document)
	}
	if !strings.Contains(string(document), `"timeSeconds":1.486077`) {
		t.Errorf("missing 6-decimal timeSeconds:\n%s", document)
	}
}

func TestEncodeCombinedEmptyEvents(t *testing.T) {
	document := EncodeCombined(nil, sampleTempo())

	var parsed map[string]any
	if err := json.Unmarshal(document, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, document)
	}
	events, ok := parsed["events"].([]any)
	if !ok || len(events) != 0 {
		t.Fatalf("events = %v, want empty array", parsed["events"])
	}
}

func TestEncodeTempoLine(t *testing.T) {
	result := sampleTempo()

	t.Run("GlobalOnly", func(t *testing.T) {
		line := EncodeTempoLine(result, true, false)
		if strings.Contains(line, "tempo_map") {
			t.Fatalf("tempo_map must be omitted: %s", line)
		}
		if !strings.HasPrefix(line, `{"bpm":120.500000,"interpolate":true`) {
			t.Fatalf("unexpected line: %s", line)
		}
		if strings.Contains(line, "\n") {
			t.Fatal("must be a single line")
		}
	})

	t.Run("WithLocalTempo", func(t *testing.T) {
		line := EncodeTempoLine(result, false, true)

		var parsed struct {
			Bpm         float64 `json:"bpm"`
			Interpolate bool    `json:"interpolate"`
			TempoMap    []struct {
				Time float64 `json:"time"`
				Bpm  float64 `json:"bpm"`
			} `json:"tempo_map"`
		}
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, line)
		}
		if len(parsed.TempoMap) != 2 {
			t.Fatalf("tempo_map = %d", len(parsed.TempoMap))
		}
		if parsed.Interpolate {
			t.Fatal("interpolate must be false")
		}
	})
}

func TestEncodeEventPitchBends(t *testing.T) {
	events := []basicpitch.Event{
		{StartTime: 0, EndTime: 1, Pitch: 60, Amplitude: 0.5, Bends: []int{0, 1, -1}},
	}
	document := EncodeEvents(events)

	var parsed struct {
		Events []struct {
			PitchBends []int `json:"pitchBends"`
		} `json:"events"`
	}
	if err := json.Unmarshal(document, &parsed); err != nil {
		t.Fatal(err)
	}
	if len(parsed.Events[0].PitchBends) != 3 {
		t.Fatalf("pitchBends = %v", parsed.Events[0].PitchBends)
	}
}
