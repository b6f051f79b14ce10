// Package pitchconst holds the fixed dimensions of the note model.
package pitchconst

const (
	// SampleRate is the audio rate the note pipeline consumes.
	SampleRate = 22050
	// FFTHop is the feature hop in samples; one posteriorgram frame spans
	// FFTHop/SampleRate seconds.
	FFTHop = 256

	// NumFreqIn is the contour width: 88 semitones subdivided by three.
	NumFreqIn = 264
	// NumFreqOut is the note/onset width, one bin per piano key.
	NumFreqOut = 88
	// NumHarmonics is the channel depth of the stacked CQT.
	NumHarmonics = 8

	// FrameSize is one CQT frame: freq bins with harmonics innermost.
	FrameSize = NumFreqIn * NumHarmonics

	// MidiOffset maps note bin 0 to MIDI pitch 21 (A0).
	MidiOffset = 21
	// ContourBinsPerSemitone subdivides each semitone in the contour.
	ContourBinsPerSemitone = 3
)

// HopSeconds is the duration of one posteriorgram frame.
const HopSeconds = float64(FFTHop) / float64(SampleRate)
