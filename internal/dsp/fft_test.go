package dsp

import (
	"math"
	"testing"

	reference "github.com/mjibson/go-dsp/fft"
)

func TestFFTMatchesReference(t *testing.T) {
	const n = 1024

	input := make([]complex128, n)
	for i := range input {
		// deterministic, aperiodic-ish signal
		input[i] = complex(math.Sin(0.1*float64(i))+0.5*math.Cos(0.37*float64(i)), 0)
	}

	got := make([]complex128, n)
	copy(got, input)
	FFT(got)

	want := reference.FFT(input)

	for i := range got {
		if math.Abs(real(got[i])-real(want[i])) > 1e-6 ||
			math.Abs(imag(got[i])-imag(want[i])) > 1e-6 {
			t.Fatalf("bin %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFFTPureTonePeak(t *testing.T) {
	const (
		n   = 1024
		bin = 32
	)

	input := make([]complex128, n)
	for i := range input {
		input[i] = complex(math.Cos(2*math.Pi*float64(bin)*float64(i)/n), 0)
	}
	FFT(input)

	best := 0
	bestMag := 0.0
	for i := 0; i < n/2; i++ {
		mag := math.Hypot(real(input[i]), imag(input[i]))
		if mag > bestMag {
			bestMag = mag
			best = i
		}
	}

	if best != bin {
		t.Fatalf("peak at bin %d, want %d", best, bin)
	}
	// a unit cosine concentrates n/2 of energy in the positive-frequency bin
	if math.Abs(bestMag-n/2) > 1e-6 {
		t.Fatalf("peak magnitude %f, want %f", bestMag, float64(n)/2)
	}
}

func TestHannWindow(t *testing.T) {
	w := HannWindow(NFFT)

	if w[0] != 0 {
		t.Errorf("periodic Hann must start at zero, got %f", w[0])
	}
	if math.Abs(w[NFFT/2]-1) > 1e-12 {
		t.Errorf("midpoint = %f, want 1", w[NFFT/2])
	}
	// periodic (not symmetric) variant: w[n-1] != 0
	if w[NFFT-1] == 0 {
		t.Error("periodic Hann must not end at zero")
	}
}
