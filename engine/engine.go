// Package engine is the boundary to the numeric inference runtime. Everything
// above it only sees named float32 tensors going in and out.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrInferenceFailure = errors.New("inference failure")
	ErrMissingOutput    = errors.New("missing model output")
)

// Engine runs one model graph.
type Engine interface {
	Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error)
	Close() error
}

// Func adapts a plain function to Engine.
type Func func(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error)

func (f Func) Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	return f(ctx, inputs)
}

func (f Func) Close() error { return nil }

// InferenceError reports a failed engine call. It matches ErrInferenceFailure
// under errors.Is.
type InferenceError struct {
	Model string
	Err   error
}

func (e *InferenceError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("inference failure: %v", e.Err)
	}
	return fmt.Sprintf("inference failure (%s): %v", e.Model, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

func (e *InferenceError) Is(target error) bool {
	return target == ErrInferenceFailure
}

// Role names the logical meaning of a model output.
type Role string

const (
	RoleScores Role = "scores"
	RoleBoxes  Role = "boxes"
	RoleLogits Role = "logits"
)

// Binding maps logical roles to the concrete tensor names of one model.
type Binding struct {
	Input   string
	Outputs map[Role]string
}

// OutputNames returns the bound output names in role order.
func (b Binding) OutputNames() []string {
	roles := make([]string, 0, len(b.Outputs))
	for role := range b.Outputs {
		roles = append(roles, string(role))
	}
	sort.Strings(roles)

	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, b.Outputs[Role(role)])
	}
	return names
}

func (b Binding) withDefaults(input, output string) Binding {
	out := Binding{Input: b.Input, Outputs: make(map[Role]string, len(b.Outputs))}
	if out.Input == "" {
		out.Input = input
	}
	for role, name := range b.Outputs {
		if name == "" {
			name = output
		}
		out.Outputs[role] = name
	}
	return out
}

// Validate checks every bound output against the names the model declares.
func (b Binding) Validate(declared []string) error {
	if len(b.Outputs) == 0 {
		return fmt.Errorf("%w: binding has no outputs", ErrMissingOutput)
	}
	have := make(map[string]bool, len(declared))
	for _, name := range declared {
		have[name] = true
	}
	for role, name := range b.Outputs {
		if !have[name] {
			return fmt.Errorf("%w: %s bound to %q", ErrMissingOutput, role, name)
		}
	}
	return nil
}

// Lookup returns the output tensor bound to role, if the engine produced it.
func (b Binding) Lookup(outputs map[string]*Tensor, role Role) (*Tensor, bool) {
	name, ok := b.Outputs[role]
	if !ok {
		return nil, false
	}
	t, ok := outputs[name]
	if !ok || t == nil || t.Len() == 0 {
		return nil, false
	}
	return t, true
}
