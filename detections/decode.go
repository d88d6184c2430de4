package detections

import (
	"fmt"
	"math"

	"github.com/Tutortoise/face-enrichment-service/models"
)

// Variances scales the regression offsets (dx, dy, dw, dh).
type Variances [4]float64

// DecodeOptions tunes box decoding.
type DecodeOptions struct {
	Variances  Variances
	MinBoxSize float64 // boxes narrower or shorter than this, in input pixels, are dropped
}

// DefaultDecodeOptions returns the variances and degenerate-box guard of the default detector.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{Variances: DefaultVariances(), MinBoxSize: MinBoxSize}
}

// Decode turns per-anchor regression offsets (4 per anchor) and class logits
// (background, face per anchor) into face boxes in detector input pixels.
// Output is in anchor order.
func Decode(regression, scores []float32, grid *AnchorGrid, threshold float64, opts DecodeOptions) ([]models.DetectedFace, error) {
	n := grid.Len()
	if len(regression) < n*4 {
		return nil, fmt.Errorf("%w: regression has %d values, want %d", ErrOutputShape, len(regression), n*4)
	}
	if len(scores) < n*2 {
		return nil, fmt.Errorf("%w: scores has %d values, want %d", ErrOutputShape, len(scores), n*2)
	}

	inputWidth, inputHeight := grid.InputSize()
	w, h := float64(inputWidth), float64(inputHeight)
	v := opts.Variances

	faces := make([]models.DetectedFace, 0, 16)
	for i := 0; i < n; i++ {
		prob := faceProbability(float64(scores[i*2]), float64(scores[i*2+1]))
		if prob < threshold {
			continue
		}

		a := grid.At(i)
		dx := float64(regression[i*4])
		dy := float64(regression[i*4+1])
		dw := float64(regression[i*4+2])
		dh := float64(regression[i*4+3])

		cx := a.CenterX + dx*v[0]*a.Width
		cy := a.CenterY + dy*v[1]*a.Height
		bw := math.Exp(dw*v[2]) * a.Width
		bh := math.Exp(dh*v[3]) * a.Height

		x1 := clamp((cx-bw/2)*w, 0, w)
		y1 := clamp((cy-bh/2)*h, 0, h)
		x2 := clamp((cx+bw/2)*w, 0, w)
		y2 := clamp((cy+bh/2)*h, 0, h)

		if x2-x1 < opts.MinBoxSize || y2-y1 < opts.MinBoxSize {
			continue
		}
		// NaN compares false above; keep it out of the result
		if !(x2-x1 > 0) || !(y2-y1 > 0) {
			continue
		}

		faces = append(faces, models.DetectedFace{
			Confidence: prob,
			X:          x1,
			Y:          y1,
			Width:      x2 - x1,
			Height:     y2 - y1,
		})
	}

	return faces, nil
}

// faceProbability is the two-class softmax of the face logit.
func faceProbability(background, face float64) float64 {
	p := 1 / (1 + math.Exp(background-face))
	if math.IsNaN(p) {
		return 0
	}
	return p
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
