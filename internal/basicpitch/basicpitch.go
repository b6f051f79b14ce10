// Package basicpitch transcribes 22050 Hz mono audio into note events by
// streaming a harmonic-CQT tensor through the four note sub-networks and
// converting the resulting posteriorgrams.
package basicpitch

import (
	"fmt"
	"math"

	"github.com/markod0925/GuitarHelio/internal/basicpitch/pitchconst"
	"github.com/markod0925/GuitarHelio/internal/diag"
	apperrors "github.com/markod0925/GuitarHelio/internal/errors"
	"github.com/markod0925/GuitarHelio/internal/features"
)

// Preset holds the tunable parameters of the notes pipeline. The zero
// value is not valid; start from DefaultPreset.
type Preset struct {
	NoteSensitivity   float64
	SplitSensitivity  float64
	MinNoteDurationMs float64
	MelodiaTrick      bool
	MinPitchHz        float64 // 0 means unset
	MaxPitchHz        float64 // 0 means unset
	EnergyTolerance   int
	PitchBends        bool
}

// DefaultPreset returns the balanced preset.
func DefaultPreset() Preset {
	return Preset{
		NoteSensitivity:   0.645,
		SplitSensitivity:  0.69,
		MinNoteDurationMs: 24.0,
		MelodiaTrick:      false,
		MinPitchHz:        1,
		MaxPitchHz:        3000,
		EnergyTolerance:   11,
	}
}

// Validate checks parameter ranges.
func (p Preset) Validate() error {
	if p.NoteSensitivity < 0 || p.NoteSensitivity > 1 {
		return fmt.Errorf("%w: --note-sensitivity must be in [0,1]", apperrors.ErrArg)
	}
	if p.SplitSensitivity < 0 || p.SplitSensitivity > 1 {
		return fmt.Errorf("%w: --split-sensitivity must be in [0,1]", apperrors.ErrArg)
	}
	if p.MinNoteDurationMs <= 0 {
		return fmt.Errorf("%w: --min-note-ms must be > 0", apperrors.ErrArg)
	}
	if p.MinPitchHz < 0 {
		return fmt.Errorf("%w: --min-pitch-hz must be >= 0", apperrors.ErrArg)
	}
	if p.MaxPitchHz < 0 {
		return fmt.Errorf("%w: --max-pitch-hz must be >= 0", apperrors.ErrArg)
	}
	if p.MinPitchHz > 0 && p.MaxPitchHz > 0 && p.MaxPitchHz < p.MinPitchHz {
		return fmt.Errorf("%w: --max-pitch-hz must be >= --min-pitch-hz", apperrors.ErrArg)
	}
	if p.EnergyTolerance < 1 {
		return fmt.Errorf("%w: --energy-tolerance must be >= 1", apperrors.ErrArg)
	}
	return nil
}

// convertParams translates the preset into posteriorgram-walk parameters.
func (p Preset) convertParams() ConvertParams {
	params := ConvertParams{
		FrameThreshold:  float32(1 - p.NoteSensitivity),
		OnsetThreshold:  float32(1 - p.SplitSensitivity),
		MinNoteLength:   int(math.Round(p.MinNoteDurationMs / 1000 / pitchconst.HopSeconds)),
		InferOnsets:     true,
		MelodiaTrick:    p.MelodiaTrick,
		PitchBends:      p.PitchBends,
		MinFrequency:    -1,
		MaxFrequency:    -1,
		EnergyTolerance: p.EnergyTolerance,
	}
	if params.EnergyTolerance < 1 {
		params.EnergyTolerance = 1
	}
	if p.MinPitchHz > 0 {
		params.MinFrequency = p.MinPitchHz
	}
	if p.MaxPitchHz > 0 {
		params.MaxFrequency = p.MaxPitchHz
	}
	return params
}

// Transcriber owns the features model and the streaming CNN.
type Transcriber struct {
	features *features.Extractor
	cnn      *CNN
}

// NewTranscriber loads all note models from modelDir: features_model.onnx
// plus the four JSON sub-networks.
func NewTranscriber(modelDir string) (*Transcriber, error) {
	extractor, err := features.NewExtractor(modelDir + "/features_model.onnx")
	if err != nil {
		return nil, err
	}
	net, err := NewCNN(modelDir)
	if err != nil {
		extractor.Close()
		return nil, err
	}
	diag.Emit("transcriber", "constructed", modelDir, -1)
	return &Transcriber{features: extractor, cnn: net}, nil
}

// Close releases the ONNX session.
func (t *Transcriber) Close() error {
	return t.features.Close()
}

func heartbeatEvery(totalFrames int) int {
	switch {
	case totalFrames <= 120:
		return 8
	case totalFrames <= 600:
		return 20
	default:
		if v := totalFrames / 24; v > 30 {
			return v
		}
		return 30
	}
}

func frameHeartbeat(event string, frame, total int, progressStart, progressSpan float64) {
	if !diag.Enabled() {
		return
	}
	ratio := 1.0
	if total > 0 {
		ratio = math.Min(1, math.Max(0, float64(frame)/float64(total)))
	}
	progress := math.Min(0.88, progressStart+progressSpan*ratio)
	diag.Emit("basic_pitch", event, fmt.Sprintf("frame=%d/%d", frame, total), progress)
}

// Transcribe runs the full notes pipeline on audio sampled at 22050 Hz.
func (t *Transcriber) Transcribe(audio []float32, preset Preset) ([]Event, error) {
	if len(audio) == 0 {
		return nil, apperrors.ErrEmptyInput
	}
	if err := preset.Validate(); err != nil {
		return nil, err
	}

	diag.Emit("basic_pitch", "transcribe_start", fmt.Sprintf("samples=%d", len(audio)), 0.46)
	diag.Emit("basic_pitch", "features_start", "", 0.48)
	stackedCqt, numFrames, err := t.features.Compute(audio)
	if err != nil {
		return nil, err
	}
	diag.Emit("basic_pitch", "features_done", fmt.Sprintf("frames=%d", numFrames), 0.64)

	onsetsPG := allocMatrix(numFrames, pitchconst.NumFreqOut)
	notesPG := allocMatrix(numFrames, pitchconst.NumFreqOut)
	contoursPG := allocMatrix(numFrames, pitchconst.NumFreqIn)

	t.cnn.Reset()
	diag.Emit("basic_pitch", "cnn_reset_done", "", 0.69)

	lookahead := t.cnn.NumFramesLookahead()
	every := heartbeatEvery(numFrames)
	diag.Emit("basic_pitch", "inference_setup",
		fmt.Sprintf("lookaheadFrames=%d heartbeatEvery=%d", lookahead, every), 0.7)

	zeroFrame := make([]float32, pitchconst.FrameSize)

	// scratch rows absorb warmup output; nothing is emitted until the
	// delay lines are aligned with the real stream
	scratchContours := make([]float32, pitchconst.NumFreqIn)
	scratchNotes := make([]float32, pitchconst.NumFreqOut)
	scratchOnsets := make([]float32, pitchconst.NumFreqOut)

	diag.Emit("basic_pitch", "warmup_zero_start", "", 0.705)
	for i := 0; i < lookahead; i++ {
		if err := t.cnn.FrameInference(zeroFrame, scratchContours, scratchNotes, scratchOnsets); err != nil {
			return nil, err
		}
	}
	diag.Emit("basic_pitch", "warmup_zero_done", "", 0.715)

	cqtFrame := func(idx int) []float32 {
		if idx >= numFrames {
			return zeroFrame
		}
		return stackedCqt[idx*pitchconst.FrameSize : (idx+1)*pitchconst.FrameSize]
	}

	diag.Emit("basic_pitch", "warmup_cqt_start", "", 0.72)
	for i := 0; i < lookahead && i < numFrames; i++ {
		if err := t.cnn.FrameInference(cqtFrame(i), scratchContours, scratchNotes, scratchOnsets); err != nil {
			return nil, err
		}
	}
	diag.Emit("basic_pitch", "warmup_cqt_done", "", 0.73)

	diag.Emit("basic_pitch", "stream_inference_start", "", 0.735)
	total := numFrames - lookahead
	for frame := lookahead; frame < numFrames; frame++ {
		processed := frame - lookahead + 1
		beat := processed == 1 || processed == total || (every > 0 && processed%every == 0)
		if beat {
			frameHeartbeat("stream_inference_pre", processed, total, 0.735, 0.11)
		}

		row := frame - lookahead
		if err := t.cnn.FrameInference(cqtFrame(frame), contoursPG[row], notesPG[row], onsetsPG[row]); err != nil {
			return nil, err
		}

		if beat {
			frameHeartbeat("stream_inference_post", processed, total, 0.735, 0.11)
		}
	}
	diag.Emit("basic_pitch", "stream_inference_done", "", 0.845)

	diag.Emit("basic_pitch", "tail_flush_start", "", 0.85)
	for frame := numFrames; frame < numFrames+lookahead; frame++ {
		row := frame - lookahead
		if row < 0 {
			// clips shorter than the lookahead still need every flush
			// step to keep the delay lines advancing
			if err := t.cnn.FrameInference(zeroFrame, scratchContours, scratchNotes, scratchOnsets); err != nil {
				return nil, err
			}
			continue
		}
		if err := t.cnn.FrameInference(zeroFrame, contoursPG[row], notesPG[row], onsetsPG[row]); err != nil {
			return nil, err
		}
	}
	diag.Emit("basic_pitch", "tail_flush_done", "", 0.86)

	diag.Emit("basic_pitch", "notes_convert_start", "", 0.87)
	events := Convert(notesPG, onsetsPG, contoursPG, preset.convertParams())
	diag.Emit("basic_pitch", "notes_convert_done", fmt.Sprintf("events=%d", len(events)), 0.9)

	return events, nil
}

func allocMatrix(rows, cols int) [][]float32 {
	backing := make([]float32, rows*cols)
	m := make([][]float32, rows)
	for i := range m {
		m[i] = backing[i*cols : (i+1)*cols]
	}
	return m
}
