package tempo

import "github.com/markod0925/GuitarHelio/internal/dsp"

// WindowTensor is the dense [N x bands x frames x 1] block the tempo model
// consumes.
type WindowTensor struct {
	Data       []float32
	NumWindows int
}

// SlidingWindows extracts overlapping [bands x windowFrames] patches from a
// mel tensor. With zeroPad, windowFrames/2 zero frames are prepended and
// appended to each band first; a working length shorter than one window is
// right-padded to exactly one.
func SlidingWindows(mel *dsp.MelTensor, windowFrames, hopFrames int, zeroPad bool) *WindowTensor {
	out := &WindowTensor{}
	if mel == nil || mel.Frames <= 0 || len(mel.Data) == 0 {
		return out
	}

	workingFrames := mel.Frames
	workingData := mel.Data

	if zeroPad {
		zerosBefore := windowFrames / 2
		paddedFrames := workingFrames + windowFrames
		padded := make([]float32, dsp.MelBands*paddedFrames)
		for band := 0; band < dsp.MelBands; band++ {
			copy(padded[band*paddedFrames+zerosBefore:], workingData[band*workingFrames:(band+1)*workingFrames])
		}
		workingData = padded
		workingFrames = paddedFrames
	}

	if workingFrames < windowFrames {
		padded := make([]float32, dsp.MelBands*windowFrames)
		for band := 0; band < dsp.MelBands; band++ {
			copy(padded[band*windowFrames:], workingData[band*workingFrames:(band+1)*workingFrames])
		}
		workingData = padded
		workingFrames = windowFrames
	}

	hop := hopFrames
	if hop < 1 {
		hop = 1
	}
	numWindows := (workingFrames-windowFrames)/hop + 1

	out.NumWindows = numWindows
	out.Data = make([]float32, numWindows*dsp.MelBands*windowFrames)

	for w := 0; w < numWindows; w++ {
		offset := w * hop
		for band := 0; band < dsp.MelBands; band++ {
			src := workingData[band*workingFrames+offset:]
			dst := out.Data[(w*dsp.MelBands+band)*windowFrames:]
			copy(dst[:windowFrames], src[:windowFrames])
		}
	}
	return out
}

// NormalizeByMax divides the whole tensor by its global maximum, when
// positive.
func NormalizeByMax(data []float32) {
	if len(data) == 0 {
		return
	}
	max := data[0]
	for _, v := range data[1:] {
		if v > max {
			max = v
		}
	}
	if max <= 0 {
		return
	}
	for i := range data {
		data[i] /= max
	}
}
