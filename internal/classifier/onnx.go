package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Metadata describes the exported model. Classes must match the catalog
// the service decides against.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
}

// LoadMetadata reads the JSON sidecar that ships with the model.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return Metadata{}, fmt.Errorf("parse metadata: %w", err)
	}
	if md.InputName == "" {
		md.InputName = "input"
	}
	if md.OutputName == "" {
		md.OutputName = "output"
	}
	if len(md.InputShape) == 0 || len(md.OutputShape) == 0 || md.ImageSize <= 0 {
		return Metadata{}, errors.New("metadata missing input_shape, output_shape or image_size")
	}
	return md, nil
}

// InputSize is the number of float32 values the model expects.
func (m Metadata) InputSize() int {
	n := 1
	for _, d := range m.InputShape {
		n *= int(d)
	}
	return n
}

// ONNXOptions locates the model files and the onnxruntime shared library.
type ONNXOptions struct {
	ModelPath    string
	MetadataPath string
	LibraryPath  string
}

// ONNX runs a single ONNX Runtime session. The session reuses one pair of
// tensors, so runs are serialized.
type ONNX struct {
	mu       sync.Mutex
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	output   *ort.Tensor[float32]
	metadata Metadata
}

// NewONNX initializes the runtime environment and loads the model. Call
// Close exactly once when done.
func NewONNX(opts ONNXOptions) (*ONNX, error) {
	metadata, err := LoadMetadata(opts.MetadataPath)
	if err != nil {
		return nil, err
	}

	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnx environment: %w", err)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		input.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output},
		nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &ONNX{session: session, input: input, output: output, metadata: metadata}, nil
}

// Metadata returns the loaded model metadata.
func (o *ONNX) Metadata() Metadata {
	return o.metadata
}

// Classify preprocesses the image and runs inference.
func (o *ONNX) Classify(ctx context.Context, image []byte) ([]float64, error) {
	tensor, err := Preprocess(image, o.metadata.ImageSize)
	if err != nil {
		return nil, err
	}
	if len(tensor) != o.metadata.InputSize() {
		return nil, fmt.Errorf("preprocessed %d values, model expects %d", len(tensor), o.metadata.InputSize())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	copy(o.input.GetData(), tensor)
	if err := o.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	raw := o.output.GetData()
	probs := make([]float64, len(raw))
	for i, v := range raw {
		probs[i] = float64(v)
	}
	return probs, nil
}

// Close releases the session, tensors and runtime environment.
func (o *ONNX) Close() {
	if o.input != nil {
		o.input.Destroy()
	}
	if o.output != nil {
		o.output.Destroy()
	}
	if o.session != nil {
		o.session.Destroy()
	}
	ort.DestroyEnvironment()
}
