package engine

import (
	"context"
	"fmt"
	"os"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
)

var _ Engine = (*ONNX)(nil)

// Options tunes an ONNX session.
type Options struct {
	IntraOpThreads int
	InterOpThreads int
}

// ONNX runs a model through an ONNX Runtime dynamic session.
type ONNX struct {
	session     *ort.DynamicAdvancedSession
	modelPath   string
	inputName   string
	outputNames []string
	binding     Binding
}

// NewONNX loads modelPath and validates binding against the outputs the model
// declares. An empty binding input defaults to the model's first input, and an
// empty output name to the model's first output.
func NewONNX(modelPath string, binding Binding, opts Options) (*ONNX, error) {
	if !Initialized() {
		return nil, fmt.Errorf("ONNX Runtime not initialized, call Initialize() first")
	}
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("error reading model metadata: %w", err)
	}

	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("%s: model declares no inputs or outputs", modelPath)
	}

	declared := make([]string, len(outputs))
	for i, info := range outputs {
		declared[i] = info.Name
	}
	binding = binding.withDefaults(inputs[0].Name, declared[0])
	if err := binding.Validate(declared); err != nil {
		return nil, fmt.Errorf("%s: %w", modelPath, err)
	}
	inputName := binding.Input

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	intra, inter := opts.IntraOpThreads, opts.InterOpThreads
	if intra <= 0 {
		intra = runtime.NumCPU()
	}
	if inter <= 0 {
		inter = runtime.NumCPU()
	}
	if err := options.SetIntraOpNumThreads(intra); err != nil {
		return nil, fmt.Errorf("error setting intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(inter); err != nil {
		return nil, fmt.Errorf("error setting inter-op threads: %w", err)
	}

	outputNames := binding.OutputNames()
	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{inputName}, outputNames, options)
	if err != nil {
		return nil, fmt.Errorf("error creating session for %s: %w", modelPath, err)
	}

	return &ONNX{
		session:     session,
		modelPath:   modelPath,
		inputName:   inputName,
		outputNames: outputNames,
		binding:     binding,
	}, nil
}

// Run feeds the bound input and copies every float32 output into pooled tensors.
func (o *ONNX) Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in, ok := inputs[o.inputName]
	if !ok || in == nil {
		return nil, &InferenceError{Model: o.modelPath, Err: fmt.Errorf("input %q not provided", o.inputName)}
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(in.Shape...), in.Data)
	if err != nil {
		return nil, &InferenceError{Model: o.modelPath, Err: fmt.Errorf("create input tensor: %w", err)}
	}
	defer inputTensor.Destroy()

	// nil outputs are allocated by the runtime
	outputs := make([]ort.Value, len(o.outputNames))
	if err := o.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, &InferenceError{Model: o.modelPath, Err: err}
	}
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	result := make(map[string]*Tensor, len(outputs))
	for i, v := range outputs {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			continue
		}
		out, err := NewTensor([]int64(t.GetShape())...)
		if err != nil {
			ReleaseAll(result)
			return nil, &InferenceError{Model: o.modelPath, Err: fmt.Errorf("output %q: %w", o.outputNames[i], err)}
		}
		copy(out.Data, t.GetData())
		result[o.outputNames[i]] = out
	}

	return result, nil
}

// Binding returns the binding with defaults filled in from the model.
func (o *ONNX) Binding() Binding {
	return o.binding
}

// Close releases the session.
func (o *ONNX) Close() error {
	if o.session != nil {
		return o.session.Destroy()
	}
	return nil
}
