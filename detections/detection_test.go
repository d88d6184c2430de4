package detections

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/Tutortoise/face-enrichment-service/engine"
	"github.com/Tutortoise/face-enrichment-service/models"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InputWidth = 100
	cfg.InputHeight = 100
	cfg.Strides = []int{50}
	cfg.BoxSizes = [][]float64{{20}}
	return cfg
}

// fakeDetector returns fixed model outputs for the four-anchor test grid.
func fakeDetector(regression, scores []float32) engine.Func {
	return func(ctx context.Context, inputs map[string]*engine.Tensor) (map[string]*engine.Tensor, error) {
		in, ok := inputs[DetectorInput]
		if !ok || in.Len() != 3*100*100 {
			return nil, errors.New("unexpected input")
		}
		boxes, err := engine.FromData([]int64{1, int64(len(regression) / 4), 4}, append([]float32(nil), regression...))
		if err != nil {
			return nil, err
		}
		probs, err := engine.FromData([]int64{1, int64(len(scores) / 2), 2}, append([]float32(nil), scores...))
		if err != nil {
			return nil, err
		}
		return map[string]*engine.Tensor{BoxesOutput: boxes, ScoresOutput: probs}, nil
	}
}

func newTestDetector(t *testing.T, eng engine.Engine) *Detector {
	t.Helper()
	cfg := testConfig()
	grid, err := cfg.Grid()
	if err != nil {
		t.Fatalf("Grid failed: %v", err)
	}
	d, err := NewDetector(eng, grid, cfg)
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	return d
}

func TestDetect(t *testing.T) {
	// anchor 3 is shifted left by 50px onto anchor 2 and outranks it
	regression := make([]float32, 16)
	regression[12] = -25
	scores := logitsFor(0.9, 0.1, 0.8, 0.85)

	d := newTestDetector(t, fakeDetector(regression, scores))
	img := image.NewNRGBA(image.Rect(0, 0, 200, 200))

	var timings models.ProcessingTimings
	faces, err := d.Detect(context.Background(), img, 0.5, &timings)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(faces) != 2 {
		t.Fatalf("Expected 2 faces after suppression, got %d: %+v", len(faces), faces)
	}

	// image is twice the detector input
	want := []models.DetectedFace{
		{Confidence: 0.9, X: 30, Y: 30, Width: 40, Height: 40},
		{Confidence: 0.85, X: 30, Y: 130, Width: 40, Height: 40},
	}
	for i := range want {
		if !faceClose(faces[i], want[i], 1e-3) {
			t.Errorf("face %d: expected %+v, got %+v", i, want[i], faces[i])
		}
	}
}

func TestDetectMissingOutputs(t *testing.T) {
	eng := engine.Func(func(ctx context.Context, inputs map[string]*engine.Tensor) (map[string]*engine.Tensor, error) {
		return map[string]*engine.Tensor{}, nil
	})
	d := newTestDetector(t, eng)

	faces, err := d.Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 10, 10)), 0.5, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("Expected no detections, got %+v", faces)
	}
}

func TestDetectInferenceFailure(t *testing.T) {
	eng := engine.Func(func(ctx context.Context, inputs map[string]*engine.Tensor) (map[string]*engine.Tensor, error) {
		return nil, errors.New("session exploded")
	})
	d := newTestDetector(t, eng)

	_, err := d.Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 10, 10)), 0.5, nil)
	if !errors.Is(err, engine.ErrInferenceFailure) {
		t.Errorf("Expected ErrInferenceFailure, got %v", err)
	}

	var perr *ProcessingError
	if !errors.As(err, &perr) {
		t.Errorf("Expected ProcessingError, got %T", err)
	}
}

func TestDetectShortOutputs(t *testing.T) {
	d := newTestDetector(t, fakeDetector(make([]float32, 8), logitsFor(0.9, 0.9)))

	_, err := d.Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 10, 10)), 0.5, nil)
	if !errors.Is(err, ErrOutputShape) {
		t.Errorf("Expected ErrOutputShape, got %v", err)
	}
}

func TestDetectEmptyImage(t *testing.T) {
	d := newTestDetector(t, fakeDetector(make([]float32, 16), logitsFor(0.1, 0.1, 0.1, 0.1)))

	_, err := d.Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 0, 0)), 0.5, nil)
	if !errors.Is(err, ErrInvalidRegion) {
		t.Errorf("Expected ErrInvalidRegion, got %v", err)
	}
}

func TestNewDetectorValidation(t *testing.T) {
	cfg := testConfig()
	grid, _ := DefaultAnchorGrid()
	eng := fakeDetector(nil, nil)

	if _, err := NewDetector(nil, grid, DefaultConfig()); err == nil {
		t.Error("Expected error for nil engine")
	}
	if _, err := NewDetector(eng, nil, cfg); err == nil {
		t.Error("Expected error for nil grid")
	}
	if _, err := NewDetector(eng, grid, cfg); err == nil {
		t.Error("Expected error for grid/input size mismatch")
	}
}

func TestDetectSolidImageHasNoFaces(t *testing.T) {
	d := newTestDetector(t, fakeDetector(make([]float32, 16), logitsFor(0.2, 0.3, 0.1, 0.4)))
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	img.Set(0, 0, color.White)

	faces, err := d.Detect(context.Background(), img, ConfThreshold, nil)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("Expected no faces, got %+v", faces)
	}
}
