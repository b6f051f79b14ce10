// Package midifile exports note events as a single-track standard MIDI
// file, with the estimated tempo baked into the tempo meta event so DAWs
// lay the notes out on the right grid.
package midifile

import (
	"fmt"
	"math"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/markod0925/GuitarHelio/internal/basicpitch"
	apperrors "github.com/markod0925/GuitarHelio/internal/errors"
)

const ticksPerQuarter = 960

type timedMessage struct {
	tick    uint32
	order   int // note-offs before note-ons at the same tick
	message midi.Message
}

func secondsToTicks(seconds, bpm float64) uint32 {
	ticks := math.Round(seconds * bpm / 60 * ticksPerQuarter)
	if ticks < 0 {
		return 0
	}
	return uint32(ticks)
}

func velocity(amplitude float64) uint8 {
	v := math.Round(amplitude * 127)
	if v < 1 {
		v = 1
	}
	if v > 127 {
		v = 127
	}
	return uint8(v)
}

// Write renders events into an SMF at path.
func Write(path string, events []basicpitch.Event, bpm float64) error {
	if bpm <= 0 {
		bpm = 120
	}

	var messages []timedMessage
	for _, event := range events {
		if event.Pitch < 0 || event.Pitch > 127 {
			continue
		}
		key := uint8(event.Pitch)
		messages = append(messages,
			timedMessage{
				tick:    secondsToTicks(event.StartTime, bpm),
				order:   1,
				message: midi.NoteOn(0, key, velocity(event.Amplitude)),
			},
			timedMessage{
				tick:    secondsToTicks(event.EndTime, bpm),
				order:   0,
				message: midi.NoteOff(0, key),
			},
		)
	}

	sort.SliceStable(messages, func(a, b int) bool {
		if messages[a].tick != messages[b].tick {
			return messages[a].tick < messages[b].tick
		}
		return messages[a].order < messages[b].order
	})

	file := smf.New()
	file.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	var track smf.Track
	track.Add(0, smf.MetaTempo(bpm))

	lastTick := uint32(0)
	for _, m := range messages {
		track.Add(m.tick-lastTick, m.message)
		lastTick = m.tick
	}
	track.Close(0)

	if err := file.Add(track); err != nil {
		return fmt.Errorf("%w: build MIDI track: %v", apperrors.ErrIO, err)
	}
	if err := file.WriteFile(path); err != nil {
		return fmt.Errorf("%w: write MIDI file %s: %v", apperrors.ErrIO, path, err)
	}
	return nil
}
