// Package audio reads the raw PCM inputs consumed by both pipelines.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	apperrors "github.com/markod0925/GuitarHelio/internal/errors"
)

// ReadFloat32LE reads a mono stream of raw little-endian 32-bit IEEE-754
// floats. The file size must be an exact multiple of 4 bytes; an empty file
// is EmptyInputError.
func ReadFloat32LE(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open PCM file %s: %v", apperrors.ErrIO, path, err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrEmptyInput, path)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: PCM file size %d is not aligned to float32 samples: %s",
			apperrors.ErrIO, len(data), path)
	}

	samples := make([]float32, len(data)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}

// WriteFloat32LE writes samples as raw little-endian float32, the inverse of
// ReadFloat32LE.
func WriteFloat32LE(path string, samples []float32) error {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("%w: write PCM file %s: %v", apperrors.ErrIO, path, err)
	}
	return nil
}
