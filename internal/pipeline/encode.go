package pipeline

import (
	"strconv"
	"strings"

	"github.com/markod0925/GuitarHelio/internal/basicpitch"
	"github.com/markod0925/GuitarHelio/internal/tempo"
)

// Event fields are written with 9 fixed decimals, tempo fields with 6,
// matching the host application's parser.

func f9(v float64) string { return strconv.FormatFloat(v, 'f', 9, 64) }
func f6(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }

func writeEvent(b *strings.Builder, event basicpitch.Event) {
	b.WriteString(`{"startTimeSeconds":`)
	b.WriteString(f9(event.StartTime))
	b.WriteString(`,"durationSeconds":`)
	duration := event.EndTime - event.StartTime
	if duration < 0 {
		duration = 0
	}
	b.WriteString(f9(duration))
	b.WriteString(`,"pitchMidi":`)
	b.WriteString(strconv.Itoa(event.Pitch))
	b.WriteString(`,"amplitude":`)
	b.WriteString(f9(event.Amplitude))
	if len(event.Bends) > 0 {
		b.WriteString(`,"pitchBends":[`)
		for i, bend := range event.Bends {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(bend))
		}
		b.WriteByte(']')
	}
	b.WriteByte('}')
}

// EncodeEvents renders the notes-only document.
func EncodeEvents(events []basicpitch.Event) []byte {
	var b strings.Builder
	b.WriteString("{\n  \"events\": [\n")
	for i, event := range events {
		b.WriteString("    ")
		writeEvent(&b, event)
		if i+1 < len(events) {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("  ]\n}\n")
	return []byte(b.String())
}

// EncodeCombined renders events plus the tempo estimate in one document.
func EncodeCombined(events []basicpitch.Event, tempoResult *tempo.Result) []byte {
	var b strings.Builder
	b.WriteString("{\n  \"events\": [\n")
	for i, event := range events {
		b.WriteString("    ")
		writeEvent(&b, event)
		if i+1 < len(events) {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("  ],\n")

	b.WriteString("  \"tempoBpm\": ")
	b.WriteString(f6(tempoResult.Bpm))
	b.WriteString(",\n  \"tempoMap\": [\n")
	for i, point := range tempoResult.TempoMap {
		b.WriteString(`    {"timeSeconds":`)
		b.WriteString(f6(point.TimeSeconds))
		b.WriteString(`,"bpm":`)
		b.WriteString(f6(point.Bpm))
		b.WriteByte('}')
		if i+1 < len(tempoResult.TempoMap) {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("  ]\n}\n")
	return []byte(b.String())
}

// EncodeTempoLine renders the single-line document the tempo CLI prints.
// The tempo map is included only when it was requested.
func EncodeTempoLine(result *tempo.Result, interpolate, localTempo bool) string {
	var b strings.Builder
	b.WriteString(`{"bpm":`)
	b.WriteString(f6(result.Bpm))
	b.WriteString(`,"interpolate":`)
	b.WriteString(strconv.FormatBool(interpolate))
	if localTempo {
		b.WriteString(`,"tempo_map":[`)
		for i, point := range result.TempoMap {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(`{"time":`)
			b.WriteString(f6(point.TimeSeconds))
			b.WriteString(`,"bpm":`)
			b.WriteString(f6(point.Bpm))
			b.WriteByte('}')
		}
		b.WriteByte(']')
	}
	b.WriteByte('}')
	return b.String()
}
