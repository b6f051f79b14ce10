// Package features computes the harmonic-CQT input tensor of the note
// model from raw 22050 Hz audio.
package features

import (
	"fmt"

	"github.com/markod0925/GuitarHelio/internal/basicpitch/pitchconst"
	"github.com/markod0925/GuitarHelio/internal/diag"
	apperrors "github.com/markod0925/GuitarHelio/internal/errors"
	"github.com/markod0925/GuitarHelio/internal/infer"
)

// Model signature of features_model.onnx.
const (
	inputName  = "input_1"
	outputName = "harmonic_stacking"
)

// Extractor runs the features model.
type Extractor struct {
	session *infer.Session
}

// NewExtractor loads the features model from modelPath.
func NewExtractor(modelPath string) (*Extractor, error) {
	session, err := infer.Open(modelPath, inputName, outputName)
	if err != nil {
		return nil, err
	}
	return &Extractor{session: session}, nil
}

// Compute transforms audio into the stacked-CQT tensor. The returned slice
// is laid out [frames][264 freq bins][8 harmonics] with harmonics innermost;
// one frame is pitchconst.FrameSize floats.
func (e *Extractor) Compute(audio []float32) ([]float32, int, error) {
	diag.Emit("features", "compute_start", fmt.Sprintf("samples=%d", len(audio)), 0.48)

	diag.Emit("features", "session_run_start", "", 0.5)
	out, shape, err := e.session.Run(audio, []int64{1, int64(len(audio)), 1})
	if err != nil {
		return nil, 0, err
	}
	diag.Emit("features", "session_run_done", "", 0.62)

	if len(shape) != 4 || shape[0] != 1 ||
		shape[2] != pitchconst.NumFreqIn || shape[3] != pitchconst.NumHarmonics {
		return nil, 0, apperrors.NewShapeError("harmonic_stacking", shape,
			fmt.Sprintf("[1 T %d %d]", pitchconst.NumFreqIn, pitchconst.NumHarmonics))
	}

	frames := int(shape[1])
	diag.Emit("features", "shape_validated", fmt.Sprintf("frames=%d", frames), 0.64)
	return out, frames, nil
}

// Close releases the model session.
func (e *Extractor) Close() error {
	return e.session.Close()
}
