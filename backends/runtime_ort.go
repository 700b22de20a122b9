//go:build cgo && (ORT || ALL)

package backends

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/knights-analytics/npubench/options"
	"github.com/knights-analytics/npubench/util/fileutil"
)

// ORTRuntime runs models through onnxruntime with the configured execution providers.
// Only one ORTRuntime can be active at a time.
type ORTRuntime struct {
	options            *options.Options
	environmentDestroy func() error
}

func NewORTRuntime(opts *options.Options) (*ORTRuntime, error) {
	if ort.IsInitialized() {
		return nil, errors.New("another runtime is currently active, and only one runtime can be active at one time")
	}
	r := &ORTRuntime{options: opts}
	if initialised, err := r.initialiseORT(); err != nil {
		if initialised {
			return nil, errors.Join(err, ort.DestroyEnvironment())
		}
		return nil, err
	}
	r.environmentDestroy = func() error {
		return ort.DestroyEnvironment()
	}
	return r, nil
}

func (r *ORTRuntime) initialiseORT() (bool, error) {
	o := r.options.ORTOptions
	if o.LibraryPath != nil {
		exists, err := fileutil.FileExists(*o.LibraryPath)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, fmt.Errorf("cannot find the ort library at: %s", *o.LibraryPath)
		}
		ort.SetSharedLibraryPath(*o.LibraryPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return false, err
	}

	if o.Telemetry != nil && *o.Telemetry {
		if err := ort.EnableTelemetry(); err != nil {
			return true, err
		}
	} else {
		if err := ort.DisableTelemetry(); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (r *ORTRuntime) Name() string {
	return "ORT"
}

func (r *ORTRuntime) Version() string {
	return ort.GetVersion()
}

// providerName maps a provider's full name to the short name onnxruntime registers it under.
func providerName(provider string) string {
	return strings.TrimSuffix(provider, "ExecutionProvider")
}

// newSessionOptions builds session options for one candidate provider. The CPU provider is
// always present in onnxruntime and is never appended.
func (r *ORTRuntime) newSessionOptions(provider string) (*ort.SessionOptions, error) {
	o := r.options.ORTOptions
	sessionOptions, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	apply := func() error {
		if o.IntraOpNumThreads != nil {
			if err := sessionOptions.SetIntraOpNumThreads(*o.IntraOpNumThreads); err != nil {
				return err
			}
		}
		if o.InterOpNumThreads != nil {
			if err := sessionOptions.SetInterOpNumThreads(*o.InterOpNumThreads); err != nil {
				return err
			}
		}
		if o.CPUMemArena != nil {
			if err := sessionOptions.SetCpuMemArena(*o.CPUMemArena); err != nil {
				return err
			}
		}
		if o.MemPattern != nil {
			if err := sessionOptions.SetMemPattern(*o.MemPattern); err != nil {
				return err
			}
		}
		if provider == options.CPUProvider {
			return nil
		}
		providerOptions := o.ProviderOptions[provider]
		if providerOptions == nil {
			providerOptions = map[string]string{}
		}
		return sessionOptions.AppendExecutionProvider(providerName(provider), providerOptions)
	}
	if err := apply(); err != nil {
		return nil, errors.Join(err, sessionOptions.Destroy())
	}
	return sessionOptions, nil
}

func (r *ORTRuntime) AvailableBackends() []string {
	var available []string
	for _, provider := range r.options.Providers {
		if provider == options.CPUProvider {
			continue
		}
		sessionOptions, err := r.newSessionOptions(provider)
		if err != nil {
			continue
		}
		_ = sessionOptions.Destroy()
		available = append(available, provider)
	}
	return append(available, options.CPUProvider)
}

func (r *ORTRuntime) Open(modelPath string, backends []string) (Session, error) {
	exists, err := fileutil.FileExists(modelPath)
	if err != nil {
		return nil, &ModelLoadError{Path: modelPath, Err: err}
	}
	if !exists {
		return nil, &ModelLoadError{Path: modelPath, Err: errors.New("file does not exist")}
	}
	inputs, outputs, err := loadInputOutputMetaORTFile(modelPath)
	if err != nil {
		return nil, &ModelLoadError{Path: modelPath, Err: err}
	}
	if len(inputs) == 0 {
		return nil, &ModelLoadError{Path: modelPath, Err: errors.New("model has no inputs")}
	}

	var rejections []BackendRejection
	for _, b := range backends {
		session, openErr := r.openWith(modelPath, b, inputs, outputs)
		if openErr != nil {
			rejections = append(rejections, BackendRejection{Backend: b, Err: openErr})
			continue
		}
		return session, nil
	}
	return nil, &BackendUnavailableError{Path: modelPath, Rejections: rejections}
}

func (r *ORTRuntime) openWith(modelPath, provider string, inputs, outputs []InputOutputInfo) (*ortSession, error) {
	sessionOptions, err := r.newSessionOptions(provider)
	if err != nil {
		return nil, err
	}
	// requests feed the first input only
	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{inputs[0].Name},
		GetNames(outputs),
		sessionOptions,
	)
	if err != nil {
		return nil, errors.Join(err, sessionOptions.Destroy())
	}
	return &ortSession{
		session:        session,
		sessionOptions: sessionOptions,
		backend:        provider,
		modelPath:      modelPath,
		inputs:         inputs,
		outputs:        outputs,
		tensors:        map[*Request]ort.Value{},
	}, nil
}

func (r *ORTRuntime) Destroy() error {
	if r.environmentDestroy == nil {
		return nil
	}
	err := r.environmentDestroy()
	r.environmentDestroy = nil
	return err
}

func loadInputOutputMetaORTFile(onnxPath string) ([]InputOutputInfo, []InputOutputInfo, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(onnxPath)
	if err != nil {
		return nil, nil, err
	}
	return convertORTInputOutputs(inputs), convertORTInputOutputs(outputs), nil
}

func convertORTInputOutputs(inputOutputs []ort.InputOutputInfo) []InputOutputInfo {
	inputOutputsStandardised := make([]InputOutputInfo, len(inputOutputs))
	for i, inputOutput := range inputOutputs {
		inputOutputsStandardised[i] = InputOutputInfo{
			Name:       inputOutput.Name,
			Dimensions: Shape(inputOutput.Dimensions),
			DataType:   fmt.Sprint(inputOutput.DataType),
		}
	}
	return inputOutputsStandardised
}

type ortSession struct {
	session        *ort.DynamicAdvancedSession
	sessionOptions *ort.SessionOptions
	backend        string
	modelPath      string
	inputs         []InputOutputInfo
	outputs        []InputOutputInfo
	tensors        map[*Request]ort.Value
}

func (s *ortSession) Backend() string {
	return s.backend
}

func (s *ortSession) ModelPath() string {
	return s.modelPath
}

func (s *ortSession) Inputs() []InputOutputInfo {
	return slices.Clone(s.inputs)
}

func (s *ortSession) Outputs() []InputOutputInfo {
	return slices.Clone(s.outputs)
}

// inputTensor creates the onnxruntime tensor for a request on first use and keeps it until Close.
func (s *ortSession) inputTensor(req *Request) (ort.Value, error) {
	if t, ok := s.tensors[req]; ok {
		return t, nil
	}
	t, err := ort.NewTensor(ort.NewShape(req.Shape...), req.Data)
	if err != nil {
		return nil, err
	}
	s.tensors[req] = t
	return t, nil
}

func (s *ortSession) Run(req *Request) ([]Output, error) {
	if s.session == nil {
		return nil, newInferenceError(s.backend, ErrSessionClosed)
	}
	if req == nil {
		return nil, newInferenceError(s.backend, errors.New("nil request"))
	}
	if req.InputName != s.inputs[0].Name {
		return nil, newInferenceError(s.backend, fmt.Errorf("request is for input %s, session expects %s", req.InputName, s.inputs[0].Name))
	}
	input, err := s.inputTensor(req)
	if err != nil {
		return nil, newInferenceError(s.backend, err)
	}

	// nil outputs are allocated by onnxruntime and owned by us
	outputTensors := make([]ort.Value, len(s.outputs))
	if err := s.session.Run([]ort.Value{input}, outputTensors); err != nil {
		return nil, newInferenceError(s.backend, err)
	}
	outputs := make([]Output, len(outputTensors))
	var destroyErr error
	for i, t := range outputTensors {
		if t == nil {
			continue
		}
		outputs[i] = Output{Name: s.outputs[i].Name, Shape: Shape(t.GetShape())}
		destroyErr = errors.Join(destroyErr, t.Destroy())
	}
	if destroyErr != nil {
		return outputs, newInferenceError(s.backend, destroyErr)
	}
	return outputs, nil
}

func (s *ortSession) Close() error {
	if s.session == nil {
		return nil
	}
	var err error
	for _, t := range s.tensors {
		err = errors.Join(err, t.Destroy())
	}
	err = errors.Join(err, s.session.Destroy(), s.sessionOptions.Destroy())
	s.session = nil
	s.sessionOptions = nil
	s.tensors = nil
	return err
}
