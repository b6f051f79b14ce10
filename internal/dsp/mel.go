package dsp

import "math"

// Tempo front-end constants. The tempo model was trained against features
// computed with exactly these values.
const (
	SampleRate = 11025
	NFFT       = 1024
	HopSize    = 512
	MelBands   = 40
	MelMinHz   = 20.0
	MelMaxHz   = 5000.0
)

// MelTensor is a band-major [MelBands x Frames] feature matrix.
type MelTensor struct {
	Data   []float32
	Frames int
}

// At returns the energy of band at frame.
func (m *MelTensor) At(band, frame int) float32 {
	return m.Data[band*m.Frames+frame]
}

func hzToMelSlaney(hz float64) float64 {
	const (
		fSp       = 200.0 / 3.0
		minLogHz  = 1000.0
		minLogMel = minLogHz / fSp
	)
	logStep := math.Log(6.4) / 27.0

	if hz < minLogHz {
		return hz / fSp
	}
	return minLogMel + math.Log(hz/minLogHz)/logStep
}

func melToHzSlaney(mel float64) float64 {
	const (
		fSp       = 200.0 / 3.0
		minLogHz  = 1000.0
		minLogMel = minLogHz / fSp
	)
	logStep := math.Log(6.4) / 27.0

	if mel < minLogMel {
		return mel * fSp
	}
	return minLogHz * math.Exp(logStep*(mel-minLogMel))
}

// melFrequencies returns count frequencies equispaced on the Slaney mel
// scale between minHz and maxHz.
func melFrequencies(count int, minHz, maxHz float64) []float64 {
	frequencies := make([]float64, count)
	melMin := hzToMelSlaney(minHz)
	melMax := hzToMelSlaney(maxHz)

	for i := range frequencies {
		ratio := 0.0
		if count > 1 {
			ratio = float64(i) / float64(count-1)
		}
		frequencies[i] = melToHzSlaney(melMin + (melMax-melMin)*ratio)
	}
	return frequencies
}

// MelFilterBank builds the [MelBands x (NFFT/2+1)] triangular filter matrix
// with slaney normalization: filter k rises over [f_k, f_k+1], falls over
// [f_k+1, f_k+2] and is scaled by 2/(f_k+2 - f_k).
func MelFilterBank() []float64 {
	fftBins := NFFT/2 + 1
	melFreqs := melFrequencies(MelBands+2, MelMinHz, MelMaxHz)

	fftFreqs := make([]float64, fftBins)
	for i := range fftFreqs {
		fftFreqs[i] = float64(i) * SampleRate / NFFT
	}

	fdiff := make([]float64, MelBands+1)
	for i := range fdiff {
		fdiff[i] = melFreqs[i+1] - melFreqs[i]
	}

	weights := make([]float64, MelBands*fftBins)
	for mel := 0; mel < MelBands; mel++ {
		enorm := 2.0 / (melFreqs[mel+2] - melFreqs[mel])
		for bin := 0; bin < fftBins; bin++ {
			lower := (fftFreqs[bin] - melFreqs[mel]) / fdiff[mel]
			upper := (melFreqs[mel+2] - fftFreqs[bin]) / fdiff[mel+1]
			weights[mel*fftBins+bin] = math.Max(0, math.Min(lower, upper)) * enorm
		}
	}
	return weights
}

// MelSpectrogram computes the band-major mel tensor of a mono 11025 Hz
// signal: center padding by NFFT/2 zeros, Hann windowing, radix-2 FFT,
// magnitudes of bins 0..NFFT/2, then the Slaney filterbank.
//
// Input shorter than one FFT window yields an empty tensor, not an error.
func MelSpectrogram(samples []float32) *MelTensor {
	result := &MelTensor{}
	if len(samples) < NFFT {
		return result
	}

	pad := NFFT / 2
	padded := make([]float64, len(samples)+2*pad)
	for i, s := range samples {
		padded[pad+i] = float64(s)
	}

	frames := 1 + (len(padded)-NFFT)/HopSize
	result.Frames = frames
	result.Data = make([]float32, MelBands*frames)

	filterBank := MelFilterBank()
	window := HannWindow(NFFT)

	fftBins := NFFT/2 + 1
	buf := make([]complex128, NFFT)
	magnitudes := make([]float64, fftBins)

	for frame := 0; frame < frames; frame++ {
		offset := frame * HopSize
		for i := 0; i < NFFT; i++ {
			buf[i] = complex(padded[offset+i]*window[i], 0)
		}

		FFT(buf)

		for bin := 0; bin < fftBins; bin++ {
			magnitudes[bin] = math.Hypot(real(buf[bin]), imag(buf[bin]))
		}

		for mel := 0; mel < MelBands; mel++ {
			sum := 0.0
			row := filterBank[mel*fftBins:]
			for bin := 0; bin < fftBins; bin++ {
				sum += row[bin] * magnitudes[bin]
			}
			result.Data[mel*frames+frame] = float32(sum)
		}
	}

	return result
}
