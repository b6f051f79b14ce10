// Package tempo estimates a global BPM and an optional local tempo map
// from 11025 Hz mono audio using the tempo classifier model.
package tempo

import (
	"fmt"
	"math"

	"github.com/markod0925/GuitarHelio/internal/dsp"
	apperrors "github.com/markod0925/GuitarHelio/internal/errors"
	"github.com/markod0925/GuitarHelio/internal/infer"
)

const (
	// TempoClasses is the width of the classifier posterior; class i maps
	// to clip(i+30, 20, 300) BPM.
	TempoClasses = 256

	WindowFrames    = 256
	GlobalHopFrames = 128
	LocalHopFrames  = 32

	localSmoothingWindow = 5

	MinBpm = 20.0
	MaxBpm = 300.0

	minTimeDelta = 0.7
	minBpmDelta  = 0.75

	// featureFrameSeconds is the duration of one mel frame.
	featureFrameSeconds = float64(dsp.HopSize) / float64(dsp.SampleRate)
)

// Point is one entry of the tempo map.
type Point struct {
	TimeSeconds float64
	Bpm         float64
}

// Options selects optional estimation behavior.
type Options struct {
	Interpolate bool
	LocalTempo  bool
}

// Result is the outcome of one estimation.
type Result struct {
	Bpm      float64
	TempoMap []Point
}

// Estimator runs the tempo classifier.
type Estimator struct {
	session *infer.Session
}

// NewEstimator loads the tempo model from an .onnx path. The model's first
// input and output tensors form its signature.
func NewEstimator(modelPath string) (*Estimator, error) {
	session, err := infer.Open(modelPath, "", "")
	if err != nil {
		return nil, err
	}
	return &Estimator{session: session}, nil
}

// Close releases the model session.
func (e *Estimator) Close() error {
	return e.session.Close()
}

// runModel classifies a window tensor, returning the [N x 256] posterior.
func (e *Estimator) runModel(windows *WindowTensor) ([]float32, error) {
	if windows.NumWindows <= 0 {
		return nil, fmt.Errorf("%w: tempo input tensor is empty", apperrors.ErrEmptyInput)
	}

	shape := []int64{int64(windows.NumWindows), dsp.MelBands, WindowFrames, 1}
	out, outShape, err := e.session.Run(windows.Data, shape)
	if err != nil {
		return nil, err
	}

	if len(outShape) != 2 || outShape[0] != int64(windows.NumWindows) || outShape[1] != TempoClasses {
		return nil, apperrors.NewShapeError("tempo posterior", outShape,
			fmt.Sprintf("[%d %d]", windows.NumWindows, TempoClasses))
	}
	return out, nil
}

// Estimate runs the full tempo pipeline.
func (e *Estimator) Estimate(samples []float32, opts Options) (*Result, error) {
	if len(samples) == 0 {
		return nil, apperrors.ErrEmptyInput
	}

	mel := dsp.MelSpectrogram(samples)
	if mel.Frames <= 0 || len(mel.Data) == 0 {
		return nil, fmt.Errorf("%w: audio too short for mel features", apperrors.ErrEmptyInput)
	}

	globalWindows := SlidingWindows(mel, WindowFrames, GlobalHopFrames, false)
	if globalWindows.NumWindows <= 0 {
		return nil, fmt.Errorf("%w: no tempo windows", apperrors.ErrEmptyInput)
	}

	NormalizeByMax(globalWindows.Data)
	prediction, err := e.runModel(globalWindows)
	if err != nil {
		return nil, err
	}

	averaged := averagePredictions(prediction, globalWindows.NumWindows)
	coarse := argmax(averaged)
	index := float64(coarse)
	if opts.Interpolate {
		index = interpolateArgmax(averaged, coarse)
	}

	result := &Result{Bpm: classIndexToBpm(index)}

	if opts.LocalTempo {
		localWindows := SlidingWindows(mel, WindowFrames, LocalHopFrames, true)
		if localWindows.NumWindows > 0 {
			NormalizeByMax(localWindows.Data)
			localPrediction, err := e.runModel(localWindows)
			if err != nil {
				return nil, err
			}

			series := rowsToBpmSeries(localPrediction, localWindows.NumWindows)
			series = movingAverageSame(series, localSmoothingWindow)
			for i, bpm := range series {
				series[i] = clamp(bpm, MinBpm, MaxBpm)
			}

			hopSeconds := LocalHopFrames * featureFrameSeconds
			result.TempoMap = compressTempoPoints(series, hopSeconds)
		}
	}

	return result, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func roundToDecimals(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}

func classIndexToBpm(index float64) float64 {
	return clamp(index+30, MinBpm, MaxBpm)
}

func averagePredictions(prediction []float32, numWindows int) []float64 {
	averaged := make([]float64, TempoClasses)
	if numWindows <= 0 {
		return averaged
	}
	for row := 0; row < numWindows; row++ {
		offset := row * TempoClasses
		for col := 0; col < TempoClasses; col++ {
			averaged[col] += float64(prediction[offset+col])
		}
	}
	for i := range averaged {
		averaged[i] /= float64(numWindows)
	}
	return averaged
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// interpolateArgmax refines a coarse argmax with a parabola through the
// neighboring classes. The correction is clamped to one class either side;
// a flat neighborhood falls back to the coarse index.
func interpolateArgmax(values []float64, index int) float64 {
	if index <= 0 || index >= len(values)-1 {
		return float64(index)
	}

	left, center, right := values[index-1], values[index], values[index+1]
	denominator := left - 2*center + right
	if math.Abs(denominator) < 1e-12 {
		return float64(index)
	}

	delta := 0.5 * (left - right) / denominator
	return float64(index) + clamp(delta, -1, 1)
}

// rowsToBpmSeries takes a plain per-window argmax; no averaging, no
// interpolation.
func rowsToBpmSeries(prediction []float32, numWindows int) []float64 {
	series := make([]float64, numWindows)
	for row := 0; row < numWindows; row++ {
		offset := row * TempoClasses
		best := 0
		for col := 1; col < TempoClasses; col++ {
			if prediction[offset+col] > prediction[offset+best] {
				best = col
			}
		}
		series[row] = classIndexToBpm(float64(best))
	}
	return series
}

// movingAverageSame smooths with an odd window, always dividing by the
// nominal window width so boundary values attenuate. The tempo model was
// calibrated against this behavior; do not switch to an edge-aware
// denominator.
func movingAverageSame(values []float64, windowSize int) []float64 {
	if len(values) == 0 {
		return nil
	}

	window := windowSize
	if window < 1 {
		window = 1
	}
	if window%2 == 0 {
		window++
	}
	half := window / 2

	out := make([]float64, len(values))
	for i := range values {
		sum := 0.0
		for offset := -half; offset <= half; offset++ {
			j := i + offset
			if j < 0 || j >= len(values) {
				continue
			}
			sum += values[j]
		}
		out[i] = sum / float64(window)
	}
	return out
}

// compressTempoPoints turns a dense BPM series into a sparse map: a point
// survives only if it moved at least minTimeDelta in time or minBpmDelta in
// value since the last kept point. Both fields are rounded to 6 decimals
// before comparison.
func compressTempoPoints(series []float64, hopSeconds float64) []Point {
	if len(series) == 0 {
		return nil
	}

	raw := make([]Point, len(series))
	for i, bpm := range series {
		raw[i] = Point{
			TimeSeconds: roundToDecimals(float64(i)*hopSeconds, 6),
			Bpm:         roundToDecimals(clamp(bpm, MinBpm, MaxBpm), 6),
		}
	}

	compressed := raw[:1]
	for _, current := range raw[1:] {
		last := compressed[len(compressed)-1]
		if current.TimeSeconds-last.TimeSeconds < minTimeDelta &&
			math.Abs(current.Bpm-last.Bpm) < minBpmDelta {
			continue
		}
		compressed = append(compressed, current)
	}
	return compressed
}
