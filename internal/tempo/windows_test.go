package tempo

import (
	"testing"

	"github.com/markod0925/GuitarHelio/internal/dsp"
)

func melTensor(frames int, fill func(band, frame int) float32) *dsp.MelTensor {
	m := &dsp.MelTensor{Frames: frames, Data: make([]float32, dsp.MelBands*frames)}
	for band := 0; band < dsp.MelBands; band++ {
		for frame := 0; frame < frames; frame++ {
			m.Data[band*frames+frame] = fill(band, frame)
		}
	}
	return m
}

func TestSlidingWindowsCount(t *testing.T) {
	mel := melTensor(1000, func(band, frame int) float32 { return float32(frame) })

	global := SlidingWindows(mel, WindowFrames, GlobalHopFrames, false)
	wantGlobal := (1000-WindowFrames)/GlobalHopFrames + 1
	if global.NumWindows != wantGlobal {
		t.Fatalf("global windows = %d, want %d", global.NumWindows, wantGlobal)
	}

	local := SlidingWindows(mel, WindowFrames, LocalHopFrames, true)
	wantLocal := (1000+WindowFrames-WindowFrames)/LocalHopFrames + 1
	if local.NumWindows != wantLocal {
		t.Fatalf("local windows = %d, want %d", local.NumWindows, wantLocal)
	}
}

func TestSlidingWindowsContent(t *testing.T) {
	mel := melTensor(600, func(band, frame int) float32 { return float32(band*1000 + frame) })
	windows := SlidingWindows(mel, WindowFrames, GlobalHopFrames, false)

	// window n, band b, frame f must be mel[b][n*hop+f]
	for _, probe := range [][3]int{{0, 0, 0}, {1, 3, 7}, {2, 39, 255}} {
		w, band, frame := probe[0], probe[1], probe[2]
		got := windows.Data[(w*dsp.MelBands+band)*WindowFrames+frame]
		want := float32(band*1000 + w*GlobalHopFrames + frame)
		if got != want {
			t.Fatalf("window %d band %d frame %d: got %f, want %f", w, band, frame, got, want)
		}
	}
}

func TestSlidingWindowsShortInputPadsToOneWindow(t *testing.T) {
	mel := melTensor(40, func(band, frame int) float32 { return 1 })
	windows := SlidingWindows(mel, WindowFrames, GlobalHopFrames, false)

	if windows.NumWindows != 1 {
		t.Fatalf("windows = %d, want exactly 1", windows.NumWindows)
	}

	// content is right-padded with zeros
	if windows.Data[0*WindowFrames+39] != 1 || windows.Data[0*WindowFrames+40] != 0 {
		t.Fatal("expected right zero padding after frame 39")
	}
}

func TestSlidingWindowsZeroPadCentersContent(t *testing.T) {
	mel := melTensor(10, func(band, frame int) float32 { return 2 })
	windows := SlidingWindows(mel, WindowFrames, LocalHopFrames, true)

	if windows.NumWindows != (10+WindowFrames-WindowFrames)/LocalHopFrames+1 {
		t.Fatalf("windows = %d", windows.NumWindows)
	}

	// first window: frames 0..127 are the prepended zeros, 128..137 content
	if windows.Data[127] != 0 {
		t.Fatal("expected zero prefix")
	}
	if windows.Data[128] != 2 {
		t.Fatal("expected content at frame 128")
	}
}

func TestSlidingWindowsEmptyInput(t *testing.T) {
	windows := SlidingWindows(&dsp.MelTensor{}, WindowFrames, GlobalHopFrames, false)
	if windows.NumWindows != 0 || len(windows.Data) != 0 {
		t.Fatal("empty mel tensor must yield an empty window tensor")
	}
}

func TestNormalizeByMax(t *testing.T) {
	data := []float32{1, 2, 4}
	NormalizeByMax(data)
	if data[0] != 0.25 || data[1] != 0.5 || data[2] != 1 {
		t.Fatalf("normalized = %v", data)
	}

	// all non-positive: left untouched
	flat := []float32{0, -1, 0}
	NormalizeByMax(flat)
	if flat[1] != -1 {
		t.Fatal("non-positive tensor must not be scaled")
	}
}
