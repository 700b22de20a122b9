//go:build !cgo || (!ORT && !ALL)

package backends

import (
	"errors"

	"github.com/knights-analytics/npubench/options"
)

// ORTRuntime is unavailable in this build.
type ORTRuntime struct{}

func NewORTRuntime(_ *options.Options) (*ORTRuntime, error) {
	return nil, errors.New("to enable ORT, run `go build -tags ORT` or `go build -tags ALL`")
}

func (r *ORTRuntime) Name() string {
	return "ORT"
}

func (r *ORTRuntime) Version() string {
	return ""
}

func (r *ORTRuntime) AvailableBackends() []string {
	return nil
}

func (r *ORTRuntime) Open(modelPath string, _ []string) (Session, error) {
	return nil, &BackendUnavailableError{Path: modelPath}
}

func (r *ORTRuntime) Destroy() error {
	return nil
}
