// Package scenarios holds the benchmark scenarios. Every scenario opens its own session,
// closes it on every exit path and returns a partial result together with ctx.Err() when
// cancelled between calls.
package scenarios

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/knights-analytics/npubench/backends"
	"github.com/knights-analytics/npubench/options"
	"github.com/knights-analytics/npubench/stats"
)

// Env is what every scenario needs to open sessions and take measurements.
type Env struct {
	Runtime backends.Runtime
	// Backends in priority order.
	Backends []string
	Clock    stats.Clock
	Logger   *slog.Logger
	Fill     backends.Fill
	Seed     int64
}

// NewEnv builds an Env from run options.
func NewEnv(runtime backends.Runtime, opts *options.Options) Env {
	return Env{
		Runtime:  runtime,
		Backends: opts.Providers,
		Clock:    opts.Clock,
		Logger:   opts.Logger,
		Fill:     backends.FillRandom,
		Seed:     opts.Seed,
	}
}

func (e Env) withDefaults() Env {
	if e.Clock == nil {
		e.Clock = stats.NewRealClock()
	}
	if e.Logger == nil {
		e.Logger = slog.New(slog.DiscardHandler)
	}
	return e
}

// open loads model and builds the request fed to its first input.
func (e Env) open(model options.ModelConfig) (backends.Session, *backends.Request, error) {
	session, err := e.Runtime.Open(model.Path, e.Backends)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", model.Name, err)
	}
	req, err := backends.NewRequestForSession(session, backends.Shape(model.InputShape), e.Fill, e.Seed)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("building request for %s: %w", model.Name, err), session.Close())
	}
	e.Logger.Debug("session opened", "model", model.Name, "backend", session.Backend())
	return session, req, nil
}

func (e Env) close(session backends.Session) {
	if err := session.Close(); err != nil {
		e.Logger.Warn("closing session failed", "model", session.ModelPath(), "error", err)
	}
}
