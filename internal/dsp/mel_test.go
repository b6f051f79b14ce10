package dsp

import (
	"math"
	"testing"
)

func tone(freq float64, samples int) []float32 {
	out := make([]float32, samples)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / SampleRate))
	}
	return out
}

func TestMelSpectrogramEmptyAndShortInput(t *testing.T) {
	for _, n := range []int{0, 1, 512, NFFT - 1} {
		mel := MelSpectrogram(make([]float32, n))
		if mel.Frames != 0 || len(mel.Data) != 0 {
			t.Errorf("input of %d samples: got %d frames, want empty tensor", n, mel.Frames)
		}
	}
}

func TestMelSpectrogramFrameCount(t *testing.T) {
	samples := make([]float32, 4*SampleRate)
	mel := MelSpectrogram(samples)

	padded := len(samples) + NFFT
	want := 1 + (padded-NFFT)/HopSize
	if mel.Frames != want {
		t.Fatalf("frames = %d, want %d", mel.Frames, want)
	}
	if len(mel.Data) != MelBands*want {
		t.Fatalf("data length = %d, want %d", len(mel.Data), MelBands*want)
	}
}

func TestMelSpectrogramToneLandsInRightBand(t *testing.T) {
	mel := MelSpectrogram(tone(440, 2*SampleRate))
	if mel.Frames == 0 {
		t.Fatal("empty tensor")
	}

	frame := mel.Frames / 2
	best := 0
	for band := 1; band < MelBands; band++ {
		if mel.At(band, frame) > mel.At(best, frame) {
			best = band
		}
	}

	// 440 Hz sits in the linear region of the Slaney scale, well below
	// the 1 kHz breakpoint
	if best < 2 || best > 12 {
		t.Fatalf("440 Hz peak in band %d, expected a low linear-region band", best)
	}

	total := float32(0)
	for band := 0; band < MelBands; band++ {
		total += mel.At(band, frame)
	}
	if total <= 0 {
		t.Fatal("no energy in mid frame")
	}
}

// Padding a signal with >= NFFT zeros on both ends must not change the mel
// frames covering the original support region.
func TestMelSpectrogramPaddingInvariance(t *testing.T) {
	signal := tone(523.25, SampleRate) // one second of C5

	base := MelSpectrogram(signal)

	padSamples := NFFT * 2 // multiple of HopSize, so frames align exactly
	padded := make([]float32, padSamples+len(signal)+padSamples)
	copy(padded[padSamples:], signal)
	shifted := MelSpectrogram(padded)

	frameShift := padSamples / HopSize
	for frame := 0; frame < base.Frames; frame++ {
		for band := 0; band < MelBands; band++ {
			got := shifted.At(band, frame+frameShift)
			want := base.At(band, frame)
			if math.Abs(float64(got-want)) > 1e-6 {
				t.Fatalf("band %d frame %d: padded %g, original %g", band, frame, got, want)
			}
		}
	}
}

func TestMelFilterBankShapeAndNormalization(t *testing.T) {
	fb := MelFilterBank()
	fftBins := NFFT/2 + 1

	if len(fb) != MelBands*fftBins {
		t.Fatalf("filterbank length %d, want %d", len(fb), MelBands*fftBins)
	}

	melFreqs := melFrequencies(MelBands+2, MelMinHz, MelMaxHz)
	for band := 0; band < MelBands; band++ {
		peak := 0.0
		for bin := 0; bin < fftBins; bin++ {
			if w := fb[band*fftBins+bin]; w > peak {
				peak = w
			}
			if fb[band*fftBins+bin] < 0 {
				t.Fatalf("negative weight at band %d bin %d", band, bin)
			}
		}
		if peak == 0 {
			t.Fatalf("band %d has no support", band)
		}
		// slaney normalization bounds every weight by 2/(f_hi - f_lo)
		bound := 2 / (melFreqs[band+2] - melFreqs[band])
		if peak > bound+1e-12 {
			t.Fatalf("band %d peak %g exceeds slaney bound %g", band, peak, bound)
		}
	}
}

func TestHzMelRoundTrip(t *testing.T) {
	for _, hz := range []float64{20, 200, 999, 1000, 1001, 2500, 5000} {
		back := melToHzSlaney(hzToMelSlaney(hz))
		if math.Abs(back-hz) > 1e-9*hz {
			t.Errorf("round trip %f Hz -> %f Hz", hz, back)
		}
	}
}
