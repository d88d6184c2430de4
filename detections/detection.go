package detections

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/Tutortoise/face-enrichment-service/engine"
	"github.com/Tutortoise/face-enrichment-service/models"
)

// Config describes a detector model and how to decode it.
type Config struct {
	InputWidth   int
	InputHeight  int
	Strides      []int
	BoxSizes     [][]float64
	Decode       DecodeOptions
	IouThreshold float64
	Profile      Profile
	Binding      engine.Binding
}

// DefaultConfig returns production defaults for the 320x240 RFB detector.
func DefaultConfig() Config {
	return Config{
		InputWidth:   InputWidth,
		InputHeight:  InputHeight,
		Strides:      DefaultStrides(),
		BoxSizes:     DefaultBoxSizes(),
		Decode:       DefaultDecodeOptions(),
		IouThreshold: IouThreshold,
		Profile:      DetectorProfile(),
		Binding: engine.Binding{
			Input: DetectorInput,
			Outputs: map[engine.Role]string{
				engine.RoleScores: ScoresOutput,
				engine.RoleBoxes:  BoxesOutput,
			},
		},
	}
}

// Grid builds the anchor grid for this configuration.
func (c Config) Grid() (*AnchorGrid, error) {
	return NewAnchorGrid(c.InputWidth, c.InputHeight, c.Strides, c.BoxSizes)
}

// Detector runs the face detection model and decodes its output.
type Detector struct {
	engine engine.Engine
	grid   *AnchorGrid
	config Config
}

// NewDetector wires an engine to a prebuilt anchor grid. The grid may be
// shared between detectors.
func NewDetector(eng engine.Engine, grid *AnchorGrid, cfg Config) (*Detector, error) {
	if eng == nil {
		return nil, fmt.Errorf("detector engine is nil")
	}
	if grid == nil {
		return nil, fmt.Errorf("anchor grid is nil")
	}
	if w, h := grid.InputSize(); w != cfg.InputWidth || h != cfg.InputHeight {
		return nil, fmt.Errorf("anchor grid is %dx%d but detector input is %dx%d", w, h, cfg.InputWidth, cfg.InputHeight)
	}
	return &Detector{engine: eng, grid: grid, config: cfg}, nil
}

// Grid returns the detector's anchor grid.
func (d *Detector) Grid() *AnchorGrid {
	return d.grid
}

// Detect finds faces in img. Boxes are in img pixel coordinates, sorted by
// confidence descending. A model that produces none of the bound outputs
// yields no detections rather than an error.
func (d *Detector) Detect(ctx context.Context, img image.Image, threshold float64, timings *models.ProcessingTimings) ([]models.DetectedFace, error) {
	if timings == nil {
		timings = &models.ProcessingTimings{}
	}
	bounds := img.Bounds()

	prepStart := time.Now()
	input, err := Encode(img, d.config.InputWidth, d.config.InputHeight, d.config.Profile)
	if err != nil {
		return nil, &ProcessingError{Message: "prepare input buffer", Cause: err}
	}
	defer input.Release()
	timings.Preprocess = time.Since(prepStart)

	inferStart := time.Now()
	outputs, err := d.engine.Run(ctx, map[string]*engine.Tensor{d.config.Binding.Input: input})
	if err != nil {
		if !errors.Is(err, engine.ErrInferenceFailure) && ctx.Err() == nil {
			err = &engine.InferenceError{Model: "detector", Err: err}
		}
		return nil, &ProcessingError{Message: "model inference", Cause: err}
	}
	defer engine.ReleaseAll(outputs)
	timings.Inference = time.Since(inferStart)

	boxes, okBoxes := d.config.Binding.Lookup(outputs, engine.RoleBoxes)
	scores, okScores := d.config.Binding.Lookup(outputs, engine.RoleScores)
	if !okBoxes || !okScores {
		return nil, nil
	}

	postStart := time.Now()
	candidates, err := Decode(boxes.Data, scores.Data, d.grid, threshold, d.config.Decode)
	if err != nil {
		return nil, &ProcessingError{Message: "process predictions", Cause: err}
	}
	timings.Postprocess = time.Since(postStart)

	nmsStart := time.Now()
	kept := Suppress(candidates, d.config.IouThreshold)
	faces := Rescale(kept, d.config.InputWidth, d.config.InputHeight, bounds.Dx(), bounds.Dy())
	timings.Suppression = time.Since(nmsStart)

	return faces, nil
}

// Close releases the detector engine.
func (d *Detector) Close() error {
	return d.engine.Close()
}
