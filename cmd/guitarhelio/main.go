package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/markod0925/GuitarHelio/internal/audio"
	"github.com/markod0925/GuitarHelio/internal/basicpitch"
	"github.com/markod0925/GuitarHelio/internal/diag"
	apperrors "github.com/markod0925/GuitarHelio/internal/errors"
	"github.com/markod0925/GuitarHelio/internal/midifile"
	"github.com/markod0925/GuitarHelio/internal/pipeline"
	"github.com/markod0925/GuitarHelio/internal/progress"
	"github.com/markod0925/GuitarHelio/internal/server"
	"github.com/markod0925/GuitarHelio/internal/tempo"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(apperrors.ExitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "guitarhelio",
	Short: "Transcribe audio to note events and estimate tempo",
	Long: `GuitarHelio's offline transcription core: converts raw mono PCM into
discrete note events with the NeuralNote model stack, and estimates
tempo with a 256-class tempo classifier.

Both pipelines read raw little-endian float32 PCM and emit JSON.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Transcribe a 22050 Hz PCM file to note events",
	Long: `Transcribe a mono 22050 Hz raw float32 PCM file into note events.

Examples:
  guitarhelio notes --input-f32le take.f32 --output-json events.json --model-dir ./models
  guitarhelio notes -i take.f32 -o events.json -m ./models --melodia-trick true`,
	RunE: runNotes,
}

var tempoCmd = &cobra.Command{
	Use:   "tempo",
	Short: "Estimate tempo from an 11025 Hz PCM file",
	Long: `Estimate the global BPM (and optionally a local tempo map) of a mono
11025 Hz raw float32 PCM file. The result is printed to stdout as a
single JSON line.

Examples:
  guitarhelio tempo --input-f32le take.f32 --model-onnx tempo.onnx
  guitarhelio tempo -i take.f32 --model-onnx tempo.onnx --interpolate --local-tempo`,
	RunE: runTempo,
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe",
	Short: "Run both pipelines and write the combined document",
	Long: `Run the notes and tempo pipelines on a pair of PCM files and write
one combined JSON document, the same format the mobile host consumes.

Example:
  guitarhelio transcribe --input-f32le notes.f32 --tempo-input-f32le tempo.f32 \
      --model-dir ./models --tempo-model-onnx tempo.onnx --output-json out.json`,
	RunE: runTranscribe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the transcription job API",
	Long: `Start an HTTP server that accepts PCM uploads and runs the combined
pipeline asynchronously.

Example:
  guitarhelio serve --port 8080 --model-dir ./models --tempo-model-onnx tempo.onnx`,
	RunE: runServe,
}

var (
	inputPath      string
	outputJSONPath string
	outputMIDIPath string
	modelDir       string
	presetName     string

	noteSensitivity  float64
	splitSensitivity float64
	minNoteMs        float64
	melodiaTrick     bool
	minPitchHz       float64
	maxPitchHz       float64
	energyTolerance  int
	pitchBends       bool

	tempoModelPath string
	interpolate    bool
	localTempo     bool

	tempoInputPath string
	noCache        bool

	servePort int
)

func init() {
	rootCmd.AddCommand(notesCmd)
	rootCmd.AddCommand(tempoCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(serveCmd)

	notesCmd.Flags().StringVarP(&inputPath, "input-f32le", "i", "", "Input raw float32 PCM file (22050 Hz mono)")
	notesCmd.Flags().StringVarP(&outputJSONPath, "output-json", "o", "", "Output JSON file for note events")
	notesCmd.Flags().StringVarP(&modelDir, "model-dir", "m", "", "Directory with features_model.onnx and the four CNN JSON models")
	notesCmd.Flags().StringVar(&presetName, "preset", "balanced", "Parameter preset (only 'balanced')")
	notesCmd.Flags().StringVar(&outputMIDIPath, "output-midi", "", "Also write the events as a standard MIDI file")
	addPresetFlags(notesCmd)
	_ = notesCmd.MarkFlagRequired("input-f32le")
	_ = notesCmd.MarkFlagRequired("output-json")
	_ = notesCmd.MarkFlagRequired("model-dir")

	tempoCmd.Flags().StringVarP(&inputPath, "input-f32le", "i", "", "Input raw float32 PCM file (11025 Hz mono)")
	tempoCmd.Flags().StringVar(&tempoModelPath, "model-onnx", "", "Tempo classifier model (.onnx)")
	tempoCmd.Flags().BoolVar(&interpolate, "interpolate", false, "Refine the BPM with parabolic interpolation")
	tempoCmd.Flags().BoolVar(&localTempo, "local-tempo", false, "Also compute a local tempo map")
	_ = tempoCmd.MarkFlagRequired("input-f32le")
	_ = tempoCmd.MarkFlagRequired("model-onnx")

	transcribeCmd.Flags().StringVarP(&inputPath, "input-f32le", "i", "", "Notes input PCM file (22050 Hz mono)")
	transcribeCmd.Flags().StringVar(&tempoInputPath, "tempo-input-f32le", "", "Tempo input PCM file (11025 Hz mono)")
	transcribeCmd.Flags().StringVarP(&outputJSONPath, "output-json", "o", "", "Output JSON file for the combined document")
	transcribeCmd.Flags().StringVarP(&modelDir, "model-dir", "m", "", "Directory with the note models")
	transcribeCmd.Flags().StringVar(&tempoModelPath, "tempo-model-onnx", "", "Tempo classifier model (.onnx)")
	transcribeCmd.Flags().StringVar(&outputMIDIPath, "output-midi", "", "Also write the events as a standard MIDI file")
	transcribeCmd.Flags().BoolVar(&interpolate, "interpolate", true, "Refine the BPM with parabolic interpolation")
	transcribeCmd.Flags().BoolVar(&localTempo, "local-tempo", true, "Also compute a local tempo map")
	transcribeCmd.Flags().BoolVar(&noCache, "no-cache", false, "Skip the result cache")
	addPresetFlags(transcribeCmd)
	_ = transcribeCmd.MarkFlagRequired("input-f32le")
	_ = transcribeCmd.MarkFlagRequired("tempo-input-f32le")
	_ = transcribeCmd.MarkFlagRequired("output-json")
	_ = transcribeCmd.MarkFlagRequired("model-dir")
	_ = transcribeCmd.MarkFlagRequired("tempo-model-onnx")

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().StringVarP(&modelDir, "model-dir", "m", "", "Directory with the note models")
	serveCmd.Flags().StringVar(&tempoModelPath, "tempo-model-onnx", "", "Tempo classifier model (.onnx)")
	_ = serveCmd.MarkFlagRequired("model-dir")
	_ = serveCmd.MarkFlagRequired("tempo-model-onnx")
}

func addPresetFlags(cmd *cobra.Command) {
	defaults := basicpitch.DefaultPreset()
	cmd.Flags().Float64Var(&noteSensitivity, "note-sensitivity", defaults.NoteSensitivity, "Note sensitivity in [0,1]")
	cmd.Flags().Float64Var(&splitSensitivity, "split-sensitivity", defaults.SplitSensitivity, "Split sensitivity in [0,1]")
	cmd.Flags().Float64Var(&minNoteMs, "min-note-ms", defaults.MinNoteDurationMs, "Minimum note duration in milliseconds")
	cmd.Flags().BoolVar(&melodiaTrick, "melodia-trick", defaults.MelodiaTrick, "Enable the Melodia-style contour extension pass")
	cmd.Flags().Float64Var(&minPitchHz, "min-pitch-hz", defaults.MinPitchHz, "Lowest pitch to keep in Hz (0 disables)")
	cmd.Flags().Float64Var(&maxPitchHz, "max-pitch-hz", defaults.MaxPitchHz, "Highest pitch to keep in Hz (0 disables)")
	cmd.Flags().IntVar(&energyTolerance, "energy-tolerance", defaults.EnergyTolerance, "Quiet frames tolerated inside a note")
	cmd.Flags().BoolVar(&pitchBends, "pitch-bends", false, "Include per-event pitch bend estimates")
}

func presetFromFlags() (basicpitch.Preset, error) {
	if presetName != "balanced" {
		return basicpitch.Preset{}, fmt.Errorf("%w: only preset 'balanced' is supported", apperrors.ErrArg)
	}

	preset := basicpitch.Preset{
		NoteSensitivity:   noteSensitivity,
		SplitSensitivity:  splitSensitivity,
		MinNoteDurationMs: minNoteMs,
		MelodiaTrick:      melodiaTrick,
		MinPitchHz:        minPitchHz,
		MaxPitchHz:        maxPitchHz,
		EnergyTolerance:   energyTolerance,
		PitchBends:        pitchBends,
	}
	return preset, preset.Validate()
}

func runNotes(cmd *cobra.Command, args []string) error {
	diag.Emit("cli", "start", "", -1)

	preset, err := presetFromFlags()
	if err != nil {
		return err
	}

	reporter := progress.NewReporter(os.Stdout)
	reporter.Report(progress.StageLoadingAudio, 0.12)

	samples, err := audio.ReadFloat32LE(inputPath)
	if err != nil {
		return err
	}
	diag.Emit("cli", "read_input_done", fmt.Sprintf("samples=%d", len(samples)), 0.12)

	reporter.Report(progress.StageRunningModel, 0.45)

	transcriber, err := basicpitch.NewTranscriber(modelDir)
	if err != nil {
		return err
	}
	defer transcriber.Close()

	events, err := transcriber.Transcribe(samples, preset)
	if err != nil {
		return err
	}
	diag.Emit("cli", "transcribe_done", fmt.Sprintf("events=%d", len(events)), 0.9)

	if len(events) == 0 {
		return fmt.Errorf("%w in uploaded audio", apperrors.ErrNoEvents)
	}

	reporter.Report(progress.StageBuildingMIDI, 0.92)

	if err := os.WriteFile(outputJSONPath, pipeline.EncodeEvents(events), 0o644); err != nil {
		return fmt.Errorf("%w: write output JSON %s: %v", apperrors.ErrIO, outputJSONPath, err)
	}

	if outputMIDIPath != "" {
		if err := midifile.Write(outputMIDIPath, events, 120); err != nil {
			return err
		}
	}

	reporter.Report(progress.StageComplete, 1.0)
	diag.Emit("cli", "done", "", 1.0)
	return nil
}

func runTempo(cmd *cobra.Command, args []string) error {
	samples, err := audio.ReadFloat32LE(inputPath)
	if err != nil {
		return err
	}

	estimator, err := tempo.NewEstimator(tempoModelPath)
	if err != nil {
		return err
	}
	defer estimator.Close()

	result, err := estimator.Estimate(samples, tempo.Options{
		Interpolate: interpolate,
		LocalTempo:  localTempo,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, pipeline.EncodeTempoLine(result, interpolate, localTempo))
	return nil
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	preset, err := presetFromFlags()
	if err != nil {
		return err
	}

	cfg := pipeline.Config{
		NotesPCMPath:   inputPath,
		TempoPCMPath:   tempoInputPath,
		ModelDir:       modelDir,
		TempoModelPath: tempoModelPath,
		OutputJSONPath: outputJSONPath,
		MIDIOutputPath: outputMIDIPath,
		Preset:         preset,
		Interpolate:    interpolate,
		LocalTempo:     localTempo,
		UseCache:       !noCache,
		Progress:       os.Stdout,
	}

	result, err := pipeline.Run(cfg)
	if err != nil {
		return err
	}

	if !result.FromCache && len(result.Events) == 0 {
		return fmt.Errorf("%w in uploaded audio", apperrors.ErrNoEvents)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	srv, err := server.New(server.Config{
		Port:           servePort,
		ModelDir:       modelDir,
		TempoModelPath: tempoModelPath,
	})
	if err != nil {
		return err
	}
	return srv.Run()
}
