// Package pipeline wires the notes and tempo pipelines into the single
// synchronous procedure the host application calls.
package pipeline

import (
	"fmt"
	"io"
	"os"

	"github.com/markod0925/GuitarHelio/internal/audio"
	"github.com/markod0925/GuitarHelio/internal/basicpitch"
	"github.com/markod0925/GuitarHelio/internal/cache"
	"github.com/markod0925/GuitarHelio/internal/diag"
	apperrors "github.com/markod0925/GuitarHelio/internal/errors"
	"github.com/markod0925/GuitarHelio/internal/midifile"
	"github.com/markod0925/GuitarHelio/internal/progress"
	"github.com/markod0925/GuitarHelio/internal/tempo"
)

// Config holds everything one transcription request needs.
type Config struct {
	NotesPCMPath   string // 22050 Hz f32le
	TempoPCMPath   string // 11025 Hz f32le
	ModelDir       string // features_model.onnx + four JSON sub-networks
	TempoModelPath string // tempo classifier .onnx
	OutputJSONPath string
	MIDIOutputPath string // optional SMF export

	Preset      basicpitch.Preset
	Interpolate bool
	LocalTempo  bool
	UseCache    bool

	// Progress receives {"type":"progress",...} lines; nil discards them.
	Progress io.Writer
}

// DefaultConfig returns a config with the balanced preset and local tempo
// enabled.
func DefaultConfig() Config {
	return Config{
		Preset:      basicpitch.DefaultPreset(),
		Interpolate: true,
		LocalTempo:  true,
	}
}

// Result carries the in-memory outputs of a run.
type Result struct {
	Events    []basicpitch.Event
	Tempo     *tempo.Result
	Document  []byte
	FromCache bool
}

// Run executes the combined pipeline: notes, then tempo, then the JSON
// document. Nothing is written until both pipelines have succeeded; the
// JSON document is written before the optional MIDI export, so a failed
// MIDI write leaves the JSON file in place.
func Run(cfg Config) (*Result, error) {
	if err := cfg.Preset.Validate(); err != nil {
		return nil, err
	}

	reporter := progress.NewReporter(cfg.Progress)

	var resultCache *cache.ResultCache
	var cacheKey string
	if cfg.UseCache {
		var err error
		resultCache, err = cache.New()
		if err != nil {
			resultCache = nil // cache is best-effort
		} else {
			cacheKey, err = cache.Key(cfg.NotesPCMPath, cfg.TempoPCMPath, cfg.ModelDir,
				cfg.TempoModelPath, fmt.Sprintf("%+v|%v|%v", cfg.Preset, cfg.Interpolate, cfg.LocalTempo))
			if err != nil {
				cacheKey = ""
			}
		}
	}

	// a cached document cannot satisfy a MIDI export request
	if resultCache != nil && cacheKey != "" && cfg.MIDIOutputPath == "" {
		if document, ok := resultCache.Get(cacheKey); ok {
			diag.Emit("pipeline", "cache_hit", cacheKey, -1)
			if err := finishRun(cfg, nil, nil, document, reporter); err != nil {
				return nil, err
			}
			return &Result{Document: document, FromCache: true}, nil
		}
	}

	reporter.Report(progress.StageLoadingAudio, 0.12)

	notesAudio, err := audio.ReadFloat32LE(cfg.NotesPCMPath)
	if err != nil {
		return nil, err
	}
	tempoAudio, err := audio.ReadFloat32LE(cfg.TempoPCMPath)
	if err != nil {
		return nil, err
	}

	reporter.Report(progress.StageRunningModel, 0.45)

	transcriber, err := basicpitch.NewTranscriber(cfg.ModelDir)
	if err != nil {
		return nil, err
	}
	defer transcriber.Close()

	events, err := transcriber.Transcribe(notesAudio, cfg.Preset)
	if err != nil {
		return nil, err
	}

	reporter.Report(progress.StageEstimateTempo, 0.9)

	estimator, err := tempo.NewEstimator(cfg.TempoModelPath)
	if err != nil {
		return nil, err
	}
	defer estimator.Close()

	tempoResult, err := estimator.Estimate(tempoAudio, tempo.Options{
		Interpolate: cfg.Interpolate,
		LocalTempo:  cfg.LocalTempo,
	})
	if err != nil {
		return nil, err
	}

	reporter.Report(progress.StageBuildingMIDI, 0.92)

	document := EncodeCombined(events, tempoResult)

	// only documents with events are cached, so a cache hit never hides a
	// no-notes result from the caller
	if resultCache != nil && cacheKey != "" && len(events) > 0 {
		resultCache.Put(cacheKey, document)
	}

	if err := finishRun(cfg, events, tempoResult, document, reporter); err != nil {
		return nil, err
	}

	return &Result{Events: events, Tempo: tempoResult, Document: document}, nil
}

func finishRun(cfg Config, events []basicpitch.Event, tempoResult *tempo.Result,
	document []byte, reporter *progress.Reporter) error {

	if cfg.OutputJSONPath != "" {
		if err := os.WriteFile(cfg.OutputJSONPath, document, 0o644); err != nil {
			return fmt.Errorf("%w: write output JSON %s: %v", apperrors.ErrIO, cfg.OutputJSONPath, err)
		}
	}

	if cfg.MIDIOutputPath != "" && events != nil {
		bpm := 120.0
		if tempoResult != nil {
			bpm = tempoResult.Bpm
		}
		if err := midifile.Write(cfg.MIDIOutputPath, events, bpm); err != nil {
			return err
		}
	}

	reporter.Report(progress.StageComplete, 1.0)
	return nil
}
