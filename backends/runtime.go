package backends

import (
	"fmt"

	"github.com/knights-analytics/npubench/util/safeconv"
)

// Runtime is an inference engine that can open sessions on a model. Implementations hide
// everything below "load model, run inference, get outputs".
type Runtime interface {
	// Name identifies the runtime ("ORT", "GO", "SIMULATED").
	Name() string
	Version() string
	// AvailableBackends lists the execution providers this runtime can initialise.
	AvailableBackends() []string
	// Open loads modelPath on the first backend in priority order that accepts it. It returns
	// a *ModelLoadError if the artifact is missing or unreadable and a *BackendUnavailableError
	// if every candidate rejects it.
	Open(modelPath string, backends []string) (Session, error)
	Destroy() error
}

// Session is a model loaded on one execution provider. A session is owned by one caller and
// must be closed by it.
type Session interface {
	Backend() string
	ModelPath() string
	Inputs() []InputOutputInfo
	Outputs() []InputOutputInfo
	// Run feeds req to the session. Failures are returned as *InferenceError and never retried.
	Run(req *Request) ([]Output, error)
	// Close releases the session. Closing twice is a no-op.
	Close() error
}

type InputOutputInfo struct {
	// The name of the input or output
	Name string
	// The input or output's dimensions, if it's a tensor. Dynamic axes are -1.
	Dimensions Shape
	// Element type as reported by the runtime.
	DataType string
}

type Shape []int64

func (s Shape) String() string {
	return fmt.Sprintf("%v", []int64(s))
}

func (s Shape) ValuesInt() []int {
	return safeconv.Int64SliceToIntSlice(s)
}

// ElementCount is the number of elements in a tensor of this shape.
func (s Shape) ElementCount() int64 {
	return safeconv.ElementCount(s)
}

// NewShape Returns a Shape, with the given dimensions.
func NewShape(dimensions ...int64) Shape {
	return dimensions
}

// Output describes one output tensor of a run. Output data is released by the runtime as
// soon as the call returns.
type Output struct {
	Name  string
	Shape Shape
}

func GetNames(info []InputOutputInfo) []string {
	names := make([]string, 0, len(info))
	for _, v := range info {
		names = append(names, v.Name)
	}
	return names
}
