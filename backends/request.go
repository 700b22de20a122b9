package backends

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
)

// Fill selects how a request buffer is populated.
type Fill int

const (
	// FillRandom draws every element from a standard normal distribution.
	FillRandom Fill = iota
	// FillZeros leaves every element at zero.
	FillZeros
)

// Request is a float32 tensor bound to a named input. It is built once and reused for every call
// of a scenario; runtimes must not modify Data.
type Request struct {
	InputName string
	Shape     Shape
	Data      []float32
}

// NewRequest allocates a tensor of shape for inputName. All dimensions must be positive.
func NewRequest(inputName string, shape Shape, fill Fill, seed int64) (*Request, error) {
	if inputName == "" {
		return nil, errors.New("request needs an input name")
	}
	if len(shape) == 0 {
		return nil, errors.New("request needs a shape")
	}
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("request shape %s has a non-positive dimension", shape)
		}
	}
	data := make([]float32, shape.ElementCount())
	switch fill {
	case FillZeros:
	case FillRandom:
		r := rand.New(rand.NewSource(seed))
		for i := range data {
			data[i] = float32(r.NormFloat64())
		}
	default:
		return nil, fmt.Errorf("unknown fill %d", fill)
	}
	return &Request{InputName: inputName, Shape: slices.Clone(shape), Data: data}, nil
}

// NewRequestForSession binds a request to the first input of session.
func NewRequestForSession(session Session, shape Shape, fill Fill, seed int64) (*Request, error) {
	inputs := session.Inputs()
	if len(inputs) == 0 {
		return nil, fmt.Errorf("model %s has no inputs", session.ModelPath())
	}
	return NewRequest(inputs[0].Name, shape, fill, seed)
}
