package basicpitch

import (
	"fmt"
	"path/filepath"

	"github.com/markod0925/GuitarHelio/internal/basicpitch/pitchconst"
	"github.com/markod0925/GuitarHelio/internal/cnn"
	apperrors "github.com/markod0925/GuitarHelio/internal/errors"
)

// Per-sub-network time lookaheads, fixed by the convolution stacks of the
// companion models: contour 5 (+6 through the note head, +1 through the
// onset head), onset-input branch 2.
const (
	lookaheadContour     = 5
	lookaheadNote        = 6
	lookaheadOnsetInput  = 2
	lookaheadOnsetOutput = 1

	// TotalLookahead is the delay, in frames, between a CQT frame entering
	// the stack and its aligned posteriorgram rows becoming available.
	TotalLookahead = lookaheadContour + lookaheadNote + lookaheadOnsetOutput

	// Ring depths: a value written at step t is read back depth-1 steps
	// later, which realigns each sub-network output with the onset head.
	numContourStored = TotalLookahead - lookaheadContour + 1
	numNoteStored    = TotalLookahead - lookaheadContour - lookaheadNote + 1
	numConcat2Stored = TotalLookahead - lookaheadOnsetInput - lookaheadOnsetOutput + 1

	onsetInputWidth = 32 * pitchconst.NumFreqOut
	concatWidth     = 33 * pitchconst.NumFreqOut
)

// Filenames of the four sub-networks inside the model directory.
const (
	contourModelFile     = "cnn_contour_model.json"
	noteModelFile        = "cnn_note_model.json"
	onsetInputModelFile  = "cnn_onset_1_model.json"
	onsetOutputModelFile = "cnn_onset_2_model.json"
)

// CNN drives the four note sub-networks frame by frame, keeping their
// differently-delayed outputs aligned with circular buffers.
type CNN struct {
	contour     cnn.Model
	note        cnn.Model
	onsetInput  cnn.Model
	onsetOutput cnn.Model

	contoursBuf [][]float32
	notesBuf    [][]float32
	concat2Buf  [][]float32

	contourIdx int
	noteIdx    int
	concat2Idx int

	concatArray []float32
	lastOnsets  []float32
}

// NewCNN loads the four JSON sub-networks from modelDir.
func NewCNN(modelDir string) (*CNN, error) {
	load := func(name string) (cnn.Model, error) {
		return cnn.Load(filepath.Join(modelDir, name))
	}

	contour, err := load(contourModelFile)
	if err != nil {
		return nil, err
	}
	note, err := load(noteModelFile)
	if err != nil {
		return nil, err
	}
	onsetInput, err := load(onsetInputModelFile)
	if err != nil {
		return nil, err
	}
	onsetOutput, err := load(onsetOutputModelFile)
	if err != nil {
		return nil, err
	}

	c := &CNN{
		contour:     contour,
		note:        note,
		onsetInput:  onsetInput,
		onsetOutput: onsetOutput,
	}
	c.allocBuffers()
	return c, nil
}

// newCNNWithModels wires pre-built sub-networks; used by tests.
func newCNNWithModels(contour, note, onsetInput, onsetOutput cnn.Model) *CNN {
	c := &CNN{
		contour:     contour,
		note:        note,
		onsetInput:  onsetInput,
		onsetOutput: onsetOutput,
	}
	c.allocBuffers()
	return c
}

func (c *CNN) allocBuffers() {
	alloc := func(depth, width int) [][]float32 {
		buf := make([][]float32, depth)
		for i := range buf {
			buf[i] = make([]float32, width)
		}
		return buf
	}

	c.contoursBuf = alloc(numContourStored, pitchconst.NumFreqIn)
	c.notesBuf = alloc(numNoteStored, pitchconst.NumFreqOut)
	c.concat2Buf = alloc(numConcat2Stored, onsetInputWidth)
	c.concatArray = make([]float32, concatWidth)
}

// NumFramesLookahead returns the total model lookahead in frames.
func (c *CNN) NumFramesLookahead() int {
	return TotalLookahead
}

// Reset zeroes all delay lines and resets the sub-network streaming state.
func (c *CNN) Reset() {
	zero := func(buf [][]float32) {
		for _, row := range buf {
			for i := range row {
				row[i] = 0
			}
		}
	}
	zero(c.contoursBuf)
	zero(c.notesBuf)
	zero(c.concat2Buf)

	c.contour.Reset()
	c.note.Reset()
	c.onsetInput.Reset()
	c.onsetOutput.Reset()

	c.contourIdx = 0
	c.noteIdx = 0
	c.concat2Idx = 0
}

func wrapIndex(index, size int) int {
	wrapped := index % size
	if wrapped < 0 {
		wrapped += size
	}
	return wrapped
}

// FrameInference feeds one CQT frame through the stack and writes the
// aligned contour, note and onset rows for the frame TotalLookahead steps
// in the past. in must be pitchconst.FrameSize floats; the out slices must
// be 264, 88 and 88 wide.
func (c *CNN) FrameInference(in []float32, outContours, outNotes, outOnsets []float32) error {
	if len(outContours) != pitchconst.NumFreqIn ||
		len(outNotes) != pitchconst.NumFreqOut ||
		len(outOnsets) != pitchconst.NumFreqOut {
		return apperrors.NewShapeError("frame inference output rows",
			[]int64{int64(len(outContours)), int64(len(outNotes)), int64(len(outOnsets))},
			fmt.Sprintf("[%d %d %d]", pitchconst.NumFreqIn, pitchconst.NumFreqOut, pitchconst.NumFreqOut))
	}

	if err := c.runModels(in); err != nil {
		return err
	}

	copy(outOnsets, c.lastOnsets)

	// read one ahead of the head: the value stored depth-1 frames ago
	copy(outNotes, c.notesBuf[wrapIndex(c.noteIdx+1, numNoteStored)])
	copy(outContours, c.contoursBuf[wrapIndex(c.contourIdx+1, numContourStored)])

	c.contourIdx = wrapIndex(c.contourIdx+1, numContourStored)
	c.noteIdx = wrapIndex(c.noteIdx+1, numNoteStored)
	c.concat2Idx = wrapIndex(c.concat2Idx+1, numConcat2Stored)
	return nil
}

func (c *CNN) runModels(in []float32) error {
	onsetFeature := c.onsetInput.Forward(in)
	if len(onsetFeature) != onsetInputWidth {
		return apperrors.NewShapeError("onset input row",
			[]int64{int64(len(onsetFeature))}, fmt.Sprintf("[%d]", onsetInputWidth))
	}
	copy(c.concat2Buf[c.concat2Idx], onsetFeature)

	contourRow := c.contour.Forward(in)
	if len(contourRow) != pitchconst.NumFreqIn {
		return apperrors.NewShapeError("contour row",
			[]int64{int64(len(contourRow))}, fmt.Sprintf("[%d]", pitchconst.NumFreqIn))
	}
	copy(c.contoursBuf[c.contourIdx], contourRow)

	noteRow := c.note.Forward(contourRow)
	if len(noteRow) != pitchconst.NumFreqOut {
		return apperrors.NewShapeError("note row",
			[]int64{int64(len(noteRow))}, fmt.Sprintf("[%d]", pitchconst.NumFreqOut))
	}
	copy(c.notesBuf[c.noteIdx], noteRow)

	c.buildConcat(noteRow)

	onsetRow := c.onsetOutput.Forward(c.concatArray)
	if len(onsetRow) != pitchconst.NumFreqOut {
		return apperrors.NewShapeError("onset row",
			[]int64{int64(len(onsetRow))}, fmt.Sprintf("[%d]", pitchconst.NumFreqOut))
	}
	c.lastOnsets = onsetRow
	return nil
}

// buildConcat interleaves the current note row with the delayed onset-input
// feature: for bin i the 33-wide row is [note[i], concat2[i*32..(i+1)*32)].
func (c *CNN) buildConcat(noteRow []float32) {
	delayed := c.concat2Buf[wrapIndex(c.concat2Idx+1, numConcat2Stored)]
	for i := 0; i < pitchconst.NumFreqOut; i++ {
		c.concatArray[i*33] = noteRow[i]
		copy(c.concatArray[i*33+1:(i+1)*33], delayed[i*32:(i+1)*32])
	}
}
