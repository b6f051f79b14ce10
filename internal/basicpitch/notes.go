package basicpitch

import (
	"math"
	"sort"

	"github.com/markod0925/GuitarHelio/internal/basicpitch/pitchconst"
)

// Event is one transcribed note.
type Event struct {
	StartTime float64
	EndTime   float64
	Pitch     int
	Amplitude float64
	// Bends holds per-frame pitch offsets in thirds of a semitone,
	// one entry per event frame. Empty unless bend inference ran.
	Bends []int
}

// ConvertParams controls the posteriorgram walk.
type ConvertParams struct {
	FrameThreshold  float32
	OnsetThreshold  float32
	MinNoteLength   int
	InferOnsets     bool
	MelodiaTrick    bool
	PitchBends      bool
	MinFrequency    float64 // Hz, < 0 means unset
	MaxFrequency    float64 // Hz, < 0 means unset
	EnergyTolerance int
}

func hzToMidi(hz float64) int {
	return int(math.Round(12*math.Log2(hz/440) + 69))
}

// midiToHz is the inverse mapping of hzToMidi, without rounding.
func midiToHz(midi float64) float64 {
	return 440 * math.Pow(2, (midi-69)/12)
}

// Convert turns the three posteriorgrams into discrete note events, sorted
// by (start time, pitch).
func Convert(notesPG, onsetsPG, contoursPG [][]float32, p ConvertParams) []Event {
	n := len(notesPG)
	if n == 0 {
		return nil
	}

	frames := copyMatrix(notesPG)
	onsets := copyMatrix(onsetsPG)

	constrainFrequency(onsets, frames, p.MinFrequency, p.MaxFrequency)

	if p.InferOnsets {
		onsets = inferredOnsets(onsets, frames)
	}

	remaining := copyMatrix(frames)
	energyTol := p.EnergyTolerance
	if energyTol < 1 {
		energyTol = 1
	}

	var events []Event

	// walk onset peaks backwards in time so earlier notes see the energy
	// later notes have already claimed
	type peak struct{ frame, bin int }
	var peaks []peak
	for t := 1; t < n-1; t++ {
		for f := 0; f < pitchconst.NumFreqOut; f++ {
			v := onsets[t][f]
			if v < p.OnsetThreshold {
				continue
			}
			if v > onsets[t-1][f] && v > onsets[t+1][f] {
				peaks = append(peaks, peak{t, f})
			}
		}
	}
	for i := len(peaks) - 1; i >= 0; i-- {
		start, bin := peaks[i].frame, peaks[i].bin
		if start >= n-1 {
			continue
		}

		// extend while the note posteriorgram stays above threshold,
		// tolerating up to energyTol consecutive quiet frames
		i2 := start + 1
		k := 0
		for i2 < n-1 && k < energyTol {
			if remaining[i2][bin] < p.FrameThreshold {
				k++
			} else {
				k = 0
			}
			i2++
		}
		i2 -= k

		if i2-start <= p.MinNoteLength {
			continue
		}

		amplitude := meanColumn(frames, start, i2, bin)
		events = append(events, Event{
			StartTime: float64(start) * pitchconst.HopSeconds,
			EndTime:   float64(i2) * pitchconst.HopSeconds,
			Pitch:     bin + pitchconst.MidiOffset,
			Amplitude: amplitude,
		})
		clearColumn(remaining, start, i2, bin)
	}

	if p.MelodiaTrick {
		events = append(events, melodiaPass(frames, remaining, p, energyTol)...)
	}

	if p.PitchBends {
		attachPitchBends(contoursPG, events)
	}

	sort.Slice(events, func(a, b int) bool {
		if events[a].StartTime != events[b].StartTime {
			return events[a].StartTime < events[b].StartTime
		}
		return events[a].Pitch < events[b].Pitch
	})
	return events
}

func copyMatrix(m [][]float32) [][]float32 {
	out := make([][]float32, len(m))
	for i, row := range m {
		out[i] = append([]float32(nil), row...)
	}
	return out
}

// constrainFrequency zeroes onset and frame bins outside the pitch gate.
func constrainFrequency(onsets, frames [][]float32, minHz, maxHz float64) {
	if maxHz > 0 {
		maxIdx := hzToMidi(maxHz) - pitchconst.MidiOffset
		if maxIdx < 0 {
			maxIdx = 0
		}
		for t := range frames {
			for f := maxIdx; f < pitchconst.NumFreqOut; f++ {
				onsets[t][f] = 0
				frames[t][f] = 0
			}
		}
	}
	if minHz > 0 {
		minIdx := hzToMidi(minHz) - pitchconst.MidiOffset
		if minIdx > pitchconst.NumFreqOut {
			minIdx = pitchconst.NumFreqOut
		}
		for t := range frames {
			for f := 0; f < minIdx; f++ {
				onsets[t][f] = 0
				frames[t][f] = 0
			}
		}
	}
}

// inferredOnsets sharpens the onset posteriorgram with the positive part of
// the frame-energy difference, rescaled to the onset peak, and takes the
// element-wise max with the model onsets.
func inferredOnsets(onsets, frames [][]float32) [][]float32 {
	const nDiff = 2
	n := len(frames)
	width := pitchconst.NumFreqOut

	diff := make([][]float32, n)
	var maxDiff, maxOnset float32
	for t := 0; t < n; t++ {
		diff[t] = make([]float32, width)
		for f := 0; f < width; f++ {
			d := float32(math.MaxFloat32)
			for step := 1; step <= nDiff; step++ {
				var prev float32
				if t-step >= 0 {
					prev = frames[t-step][f]
				}
				if v := frames[t][f] - prev; v < d {
					d = v
				}
			}
			if t < nDiff || d < 0 {
				d = 0
			}
			diff[t][f] = d
			if d > maxDiff {
				maxDiff = d
			}
			if onsets[t][f] > maxOnset {
				maxOnset = onsets[t][f]
			}
		}
	}

	out := copyMatrix(onsets)
	if maxDiff <= 0 {
		return out
	}
	scale := maxOnset / maxDiff
	for t := 0; t < n; t++ {
		for f := 0; f < width; f++ {
			if v := diff[t][f] * scale; v > out[t][f] {
				out[t][f] = v
			}
		}
	}
	return out
}

func meanColumn(m [][]float32, from, to, bin int) float64 {
	sum := 0.0
	for t := from; t < to; t++ {
		sum += float64(m[t][bin])
	}
	return sum / float64(to-from)
}

// clearColumn removes claimed energy at bin and its neighbors.
func clearColumn(m [][]float32, from, to, bin int) {
	for t := from; t < to; t++ {
		m[t][bin] = 0
		if bin+1 < pitchconst.NumFreqOut {
			m[t][bin+1] = 0
		}
		if bin > 0 {
			m[t][bin-1] = 0
		}
	}
}

// melodiaPass recovers notes the onset walk missed by repeatedly tracing
// the loudest remaining frame energy forwards and backwards. It only adds
// events; accepted notes are never shortened.
func melodiaPass(frames, remaining [][]float32, p ConvertParams, energyTol int) []Event {
	n := len(remaining)
	var events []Event

	for {
		tMid, bin, peak := argmaxMatrix(remaining)
		if peak <= p.FrameThreshold {
			break
		}
		remaining[tMid][bin] = 0

		// forward
		i := tMid + 1
		k := 0
		for i < n-1 && k < energyTol {
			if remaining[i][bin] < p.FrameThreshold {
				k++
			} else {
				k = 0
			}
			remaining[i][bin] = 0
			if bin+1 < pitchconst.NumFreqOut {
				remaining[i][bin+1] = 0
			}
			if bin > 0 {
				remaining[i][bin-1] = 0
			}
			i++
		}
		iEnd := i - 1 - k

		// backward
		i = tMid - 1
		k = 0
		for i > 0 && k < energyTol {
			if remaining[i][bin] < p.FrameThreshold {
				k++
			} else {
				k = 0
			}
			remaining[i][bin] = 0
			if bin+1 < pitchconst.NumFreqOut {
				remaining[i][bin+1] = 0
			}
			if bin > 0 {
				remaining[i][bin-1] = 0
			}
			i--
		}
		iStart := i + 1 + k

		if iEnd-iStart <= p.MinNoteLength {
			continue
		}

		events = append(events, Event{
			StartTime: float64(iStart) * pitchconst.HopSeconds,
			EndTime:   float64(iEnd) * pitchconst.HopSeconds,
			Pitch:     bin + pitchconst.MidiOffset,
			Amplitude: meanColumn(frames, iStart, iEnd, bin),
		})
	}
	return events
}

func argmaxMatrix(m [][]float32) (frame, bin int, value float32) {
	value = float32(math.Inf(-1))
	for t, row := range m {
		for f, v := range row {
			if v > value {
				value = v
				frame = t
				bin = f
			}
		}
	}
	return frame, bin, value
}

// attachPitchBends estimates a per-frame bend for each event from the
// contour posteriorgram: a gaussian-weighted argmax around the event's
// contour bin, in thirds of a semitone.
func attachPitchBends(contours [][]float32, events []Event) {
	const (
		binTolerance = 25
		gaussianStd  = 5.0
	)
	if len(contours) == 0 {
		return
	}

	windowLen := 2*binTolerance + 1
	gaussian := make([]float64, windowLen)
	for i := range gaussian {
		d := float64(i-binTolerance) / gaussianStd
		gaussian[i] = math.Exp(-0.5 * d * d)
	}

	for e := range events {
		ev := &events[e]
		contourBin := (ev.Pitch - pitchconst.MidiOffset) * pitchconst.ContourBinsPerSemitone

		freqStart := contourBin - binTolerance
		if freqStart < 0 {
			freqStart = 0
		}
		freqEnd := contourBin + binTolerance + 1
		if freqEnd > pitchconst.NumFreqIn {
			freqEnd = pitchconst.NumFreqIn
		}

		startFrame := int(math.Round(ev.StartTime / pitchconst.HopSeconds))
		endFrame := int(math.Round(ev.EndTime / pitchconst.HopSeconds))
		if endFrame > len(contours) {
			endFrame = len(contours)
		}

		bends := make([]int, 0, endFrame-startFrame)
		for t := startFrame; t < endFrame; t++ {
			best := 0
			bestVal := math.Inf(-1)
			for f := freqStart; f < freqEnd; f++ {
				w := gaussian[f-contourBin+binTolerance]
				if v := float64(contours[t][f]) * w; v > bestVal {
					bestVal = v
					best = f
				}
			}
			bends = append(bends, best-contourBin)
		}
		ev.Bends = bends
	}
}
