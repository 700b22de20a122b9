package backends

import (
	"errors"
	"fmt"
	"strings"
)

// ModelLoadError means the model artifact is missing or malformed.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("cannot load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// BackendRejection records why one candidate backend did not accept a model.
type BackendRejection struct {
	Backend string
	Err     error
}

// BackendUnavailableError means none of the requested backends could be initialised for a model.
type BackendUnavailableError struct {
	Path       string
	Rejections []BackendRejection
}

func (e *BackendUnavailableError) Error() string {
	if len(e.Rejections) == 0 {
		return fmt.Sprintf("no execution provider requested for %s", e.Path)
	}
	reasons := make([]string, len(e.Rejections))
	for i, r := range e.Rejections {
		reasons[i] = fmt.Sprintf("%s: %v", r.Backend, r.Err)
	}
	return fmt.Sprintf("no execution provider could load %s (%s)", e.Path, strings.Join(reasons, "; "))
}

func (e *BackendUnavailableError) Unwrap() []error {
	errs := make([]error, len(e.Rejections))
	for i, r := range e.Rejections {
		errs[i] = r.Err
	}
	return errs
}

// InferenceError is a single failed call. Message carries the backend's diagnostic.
type InferenceError struct {
	Backend string
	Message string
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference on %s failed: %s", e.Backend, e.Message)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

func newInferenceError(backend string, err error) *InferenceError {
	return &InferenceError{Backend: backend, Message: err.Error(), Err: err}
}

// EnvironmentError means a directory the runtime needs is missing and cannot be created.
// It is fatal to the whole run.
type EnvironmentError struct {
	Path string
	Err  error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("environment not usable at %s: %v", e.Path, e.Err)
}

func (e *EnvironmentError) Unwrap() error {
	return e.Err
}

// ErrSessionClosed is returned by Run on a closed session.
var ErrSessionClosed = errors.New("session is closed")
