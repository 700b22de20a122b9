package backends

import (
	"errors"
	"fmt"
	"slices"

	"github.com/advancedclimatesystems/gonnx"
	"gorgonia.org/tensor"

	"github.com/knights-analytics/npubench/options"
	"github.com/knights-analytics/npubench/util/fileutil"
)

// GoVersion is reported as the runtime version of the Go backend.
const GoVersion = "gonnx v1.1.0"

// GoRuntime executes models on the CPU with gonnx. It accepts the Go and CPU providers.
type GoRuntime struct {
	options *options.Options
}

func NewGoRuntime(opts *options.Options) *GoRuntime {
	return &GoRuntime{options: opts}
}

func (r *GoRuntime) Name() string {
	return "GO"
}

func (r *GoRuntime) Version() string {
	return GoVersion
}

func (r *GoRuntime) AvailableBackends() []string {
	return []string{options.GoProvider, options.CPUProvider}
}

func (r *GoRuntime) Open(modelPath string, backends []string) (Session, error) {
	onnxBytes, err := fileutil.ReadFileBytes(modelPath)
	if err != nil {
		return nil, &ModelLoadError{Path: modelPath, Err: err}
	}
	var rejections []BackendRejection
	for _, b := range backends {
		if !slices.Contains(r.AvailableBackends(), b) {
			rejections = append(rejections, BackendRejection{Backend: b, Err: errors.New("provider not available in the Go runtime")})
			continue
		}
		model, modelErr := gonnx.NewModelFromBytes(onnxBytes)
		if modelErr != nil {
			return nil, &ModelLoadError{Path: modelPath, Err: modelErr}
		}
		inputs, outputs := loadInputOutputMetaGo(model)
		return &goSession{
			model:     model,
			backend:   b,
			modelPath: modelPath,
			inputs:    inputs,
			outputs:   outputs,
			tensors:   map[*Request]tensor.Tensor{},
		}, nil
	}
	return nil, &BackendUnavailableError{Path: modelPath, Rejections: rejections}
}

func (r *GoRuntime) Destroy() error {
	return nil
}

func loadInputOutputMetaGo(model *gonnx.Model) ([]InputOutputInfo, []InputOutputInfo) {
	var inputs, outputs []InputOutputInfo

	inputShapes := model.InputShapes()
	for _, name := range model.InputNames() {
		shape := inputShapes[name]
		dimensions := make([]int64, len(shape))
		for i, y := range shape {
			dimensions[i] = y.Size
		}
		inputs = append(inputs, InputOutputInfo{
			Name:       name,
			Dimensions: dimensions,
			DataType:   "float32",
		})
	}
	outputShapes := model.OutputShapes()
	for _, name := range model.OutputNames() {
		shape := outputShapes[name]
		dimensions := make([]int64, len(shape))
		for i, y := range shape {
			dimensions[i] = y.Size
		}
		outputs = append(outputs, InputOutputInfo{
			Name:       name,
			Dimensions: dimensions,
		})
	}
	return inputs, outputs
}

type goSession struct {
	model     *gonnx.Model
	backend   string
	modelPath string
	inputs    []InputOutputInfo
	outputs   []InputOutputInfo
	tensors   map[*Request]tensor.Tensor
}

func (s *goSession) Backend() string {
	return s.backend
}

func (s *goSession) ModelPath() string {
	return s.modelPath
}

func (s *goSession) Inputs() []InputOutputInfo {
	return slices.Clone(s.inputs)
}

func (s *goSession) Outputs() []InputOutputInfo {
	return slices.Clone(s.outputs)
}

// inputTensor wraps the request buffer once per request. gorgonia tensors share the backing slice.
func (s *goSession) inputTensor(req *Request) tensor.Tensor {
	if t, ok := s.tensors[req]; ok {
		return t
	}
	t := tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(req.Shape.ValuesInt()...),
		tensor.WithBacking(req.Data),
	)
	s.tensors[req] = t
	return t
}

func (s *goSession) Run(req *Request) ([]Output, error) {
	if s.model == nil {
		return nil, newInferenceError(s.backend, ErrSessionClosed)
	}
	if req == nil {
		return nil, newInferenceError(s.backend, errors.New("nil request"))
	}
	results, err := s.model.Run(gonnx.Tensors{req.InputName: s.inputTensor(req)})
	if err != nil {
		return nil, newInferenceError(s.backend, err)
	}
	outputs := make([]Output, 0, len(s.outputs))
	for _, meta := range s.outputs {
		t, ok := results[meta.Name]
		if !ok {
			return nil, newInferenceError(s.backend, fmt.Errorf("output %s missing from results", meta.Name))
		}
		dims := t.Shape()
		shape := make(Shape, len(dims))
		for i, d := range dims {
			shape[i] = int64(d)
		}
		outputs = append(outputs, Output{Name: meta.Name, Shape: shape})
	}
	return outputs, nil
}

func (s *goSession) Close() error {
	s.model = nil
	s.tensors = nil
	return nil
}
