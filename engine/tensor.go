package engine

import (
	"fmt"
	"sync"
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]float32, 0)
		return &buf
	},
}

// Tensor is a dense float32 tensor. Buffers come from a shared pool and go
// back to it on Release, so a tensor must not be used after Release.
type Tensor struct {
	Shape []int64
	Data  []float32
	buf   *[]float32
}

// NewTensor returns a zeroed tensor of the given shape.
func NewTensor(shape ...int64) (*Tensor, error) {
	size, err := elementCount(shape)
	if err != nil {
		return nil, err
	}

	buf := bufferPool.Get().(*[]float32)
	if cap(*buf) < size {
		*buf = make([]float32, size)
	}
	data := (*buf)[:size]
	clear(data)

	return &Tensor{
		Shape: append([]int64(nil), shape...),
		Data:  data,
		buf:   buf,
	}, nil
}

// FromData wraps existing data without copying. The tensor is not pooled.
func FromData(shape []int64, data []float32) (*Tensor, error) {
	size, err := elementCount(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != size {
		return nil, fmt.Errorf("tensor data length %d does not match shape %v", len(data), shape)
	}
	return &Tensor{Shape: append([]int64(nil), shape...), Data: data}, nil
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	return len(t.Data)
}

// Release returns the buffer to the pool. Safe to call more than once and on nil.
func (t *Tensor) Release() {
	if t == nil {
		return
	}
	if t.buf != nil {
		*t.buf = (*t.buf)[:0]
		bufferPool.Put(t.buf)
		t.buf = nil
	}
	t.Data = nil
}

// ReleaseAll releases every tensor in the map.
func ReleaseAll(tensors map[string]*Tensor) {
	for _, t := range tensors {
		t.Release()
	}
}

func elementCount(shape []int64) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("tensor shape is empty")
	}
	size := int64(1)
	for _, dim := range shape {
		if dim <= 0 {
			return 0, fmt.Errorf("invalid tensor shape %v", shape)
		}
		size *= dim
	}
	return int(size), nil
}
