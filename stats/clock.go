package stats

import (
	"github.com/benbjohnson/clock"
)

// Clock is the time source used for every measurement.
type Clock = clock.Clock

// NewRealClock returns the wall clock.
func NewRealClock() Clock {
	return clock.New()
}

// NewManualClock returns a clock that only moves when Add is called. The simulated runtime adds
// its configured latency on every call, which makes measured durations exact.
func NewManualClock() *clock.Mock {
	return clock.NewMock()
}
