package detections

import (
	"fmt"
)

// Anchor is a reference box normalized to the detector input resolution.
type Anchor struct {
	CenterX, CenterY float64
	Width, Height    float64
}

// AnchorGrid is the ordered anchor list for one detector configuration.
// Anchor i corresponds to row i of the model's box and score outputs.
// It is never mutated after construction and is safe for concurrent use.
type AnchorGrid struct {
	inputWidth  int
	inputHeight int
	anchors     []Anchor
}

// NewAnchorGrid generates anchors stride by stride, feature-map cells in
// row-major order, and box sizes in listed order within each cell.
func NewAnchorGrid(inputWidth, inputHeight int, strides []int, boxSizes [][]float64) (*AnchorGrid, error) {
	if inputWidth <= 0 || inputHeight <= 0 {
		return nil, fmt.Errorf("invalid input size %dx%d", inputWidth, inputHeight)
	}
	if len(strides) == 0 {
		return nil, fmt.Errorf("no strides configured")
	}
	if len(strides) != len(boxSizes) {
		return nil, fmt.Errorf("got %d strides but %d box size sets", len(strides), len(boxSizes))
	}

	total := 0
	for i, stride := range strides {
		if stride <= 0 {
			return nil, fmt.Errorf("invalid stride %d at index %d", stride, i)
		}
		if len(boxSizes[i]) == 0 {
			return nil, fmt.Errorf("no box sizes for stride %d", stride)
		}
		for _, size := range boxSizes[i] {
			if size <= 0 {
				return nil, fmt.Errorf("invalid box size %v for stride %d", size, stride)
			}
		}
		fmWidth, fmHeight := featureMapSize(inputWidth, stride), featureMapSize(inputHeight, stride)
		total += fmWidth * fmHeight * len(boxSizes[i])
	}

	anchors := make([]Anchor, 0, total)
	for i, stride := range strides {
		fmWidth := featureMapSize(inputWidth, stride)
		fmHeight := featureMapSize(inputHeight, stride)

		for fy := 0; fy < fmHeight; fy++ {
			for fx := 0; fx < fmWidth; fx++ {
				cx := (float64(fx) + 0.5) / float64(fmWidth)
				cy := (float64(fy) + 0.5) / float64(fmHeight)
				for _, size := range boxSizes[i] {
					anchors = append(anchors, Anchor{
						CenterX: cx,
						CenterY: cy,
						Width:   size / float64(inputWidth),
						Height:  size / float64(inputHeight),
					})
				}
			}
		}
	}

	return &AnchorGrid{
		inputWidth:  inputWidth,
		inputHeight: inputHeight,
		anchors:     anchors,
	}, nil
}

// DefaultAnchorGrid builds the grid for the default 320x240 detector.
func DefaultAnchorGrid() (*AnchorGrid, error) {
	return NewAnchorGrid(InputWidth, InputHeight, DefaultStrides(), DefaultBoxSizes())
}

// Len returns the number of anchors.
func (g *AnchorGrid) Len() int {
	return len(g.anchors)
}

// At returns anchor i.
func (g *AnchorGrid) At(i int) Anchor {
	return g.anchors[i]
}

// Anchors returns a copy of the anchor list.
func (g *AnchorGrid) Anchors() []Anchor {
	return append([]Anchor(nil), g.anchors...)
}

// InputSize returns the detector input resolution the grid was built for.
func (g *AnchorGrid) InputSize() (int, int) {
	return g.inputWidth, g.inputHeight
}

func featureMapSize(size, stride int) int {
	return (size + stride - 1) / stride
}
