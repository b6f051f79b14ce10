// Package infer wraps the ONNX Runtime behind the one operation the
// pipelines need: a forward pass mapping a flat float tensor to a flat
// float tensor.
package infer

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	apperrors "github.com/markod0925/GuitarHelio/internal/errors"
)

var (
	envOnce sync.Once
	envErr  error
)

// initRuntime initializes the shared ONNX Runtime environment once per
// process. GH_ONNXRUNTIME_LIB overrides the shared library location.
func initRuntime() error {
	envOnce.Do(func() {
		if lib := os.Getenv("GH_ONNXRUNTIME_LIB"); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		if !ort.IsInitialized() {
			envErr = ort.InitializeEnvironment()
		}
	})
	return envErr
}

// Session holds one loaded ONNX model with fixed input and output names.
// Sessions are single threaded (1 intra-op, 1 inter-op worker) so a run is
// numerically reproducible; callers needing concurrency open one session
// per worker.
type Session struct {
	name    string
	session *ort.DynamicAdvancedSession
}

// Open loads the model at path. inputName and outputName are the tensor
// names of the model's signature; pass empty strings to use the model's
// first input and output.
func Open(path, inputName, outputName string) (*Session, error) {
	if err := initRuntime(); err != nil {
		return nil, fmt.Errorf("%w: onnxruntime init: %v", apperrors.ErrModelLoad, err)
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrModelLoad, path, err)
	}

	if inputName == "" || outputName == "" {
		inputs, outputs, err := ort.GetInputOutputInfo(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read model signature %s: %v", apperrors.ErrModelLoad, path, err)
		}
		if len(inputs) == 0 || len(outputs) == 0 {
			return nil, fmt.Errorf("%w: %s declares no inputs or outputs", apperrors.ErrModelLoad, path)
		}
		if inputName == "" {
			inputName = inputs[0].Name
		}
		if outputName == "" {
			outputName = outputs[0].Name
		}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: session options: %v", apperrors.ErrModelLoad, err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("%w: session options: %v", apperrors.ErrModelLoad, err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("%w: session options: %v", apperrors.ErrModelLoad, err)
	}

	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{inputName}, []string{outputName}, options)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrModelLoad, path, err)
	}

	return &Session{name: path, session: session}, nil
}

// Run executes one forward pass. input is interpreted with the given shape;
// the output is returned flat together with its shape.
func (s *Session) Run(input []float32, shape []int64) ([]float32, []int64, error) {
	inputTensor, err := ort.NewTensor(ort.NewShape(shape...), input)
	if err != nil {
		return nil, nil, fmt.Errorf("create input tensor for %s: %w", s.name, err)
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, nil, fmt.Errorf("run %s: %w", s.name, err)
	}
	defer outputs[0].Destroy()

	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("run %s: output is not a float32 tensor", s.name)
	}

	outShape := outputTensor.GetShape()
	shapeCopy := make([]int64, len(outShape))
	copy(shapeCopy, outShape)

	data := outputTensor.GetData()
	dataCopy := make([]float32, len(data))
	copy(dataCopy, data)

	return dataCopy, shapeCopy, nil
}

// Close releases the underlying session.
func (s *Session) Close() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}
