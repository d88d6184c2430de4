package detections

import (
	"errors"
	"image"
	"math"
	"math/rand"
	"testing"

	"github.com/Tutortoise/face-enrichment-service/models"
)

func TestComputeCropRectCentered(t *testing.T) {
	face := models.DetectedFace{X: 40, Y: 40, Width: 20, Height: 10}

	rect, err := ComputeCropRect(face, 200, 200, 1.4)
	if err != nil {
		t.Fatalf("ComputeCropRect failed: %v", err)
	}

	want := models.Rect{X: 36, Y: 31, Width: 28, Height: 28}
	if !rectClose(rect, want) {
		t.Errorf("Expected %+v, got %+v", want, rect)
	}
}

func TestComputeCropRectShiftsAwayFromEdges(t *testing.T) {
	tests := []struct {
		name string
		face models.DetectedFace
		want models.Rect
	}{
		{
			name: "top left",
			face: models.DetectedFace{X: 0, Y: 0, Width: 20, Height: 20},
			want: models.Rect{X: 0, Y: 0, Width: 28, Height: 28},
		},
		{
			name: "bottom right",
			face: models.DetectedFace{X: 80, Y: 80, Width: 20, Height: 20},
			want: models.Rect{X: 72, Y: 72, Width: 28, Height: 28},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rect, err := ComputeCropRect(tt.face, 100, 100, 1.4)
			if err != nil {
				t.Fatalf("ComputeCropRect failed: %v", err)
			}
			if !rectClose(rect, tt.want) {
				t.Errorf("Expected %+v, got %+v", tt.want, rect)
			}
		})
	}
}

func TestComputeCropRectLargerThanImage(t *testing.T) {
	face := models.DetectedFace{X: 10, Y: 10, Width: 80, Height: 80}

	rect, err := ComputeCropRect(face, 100, 100, 1.4)
	if err != nil {
		t.Fatalf("ComputeCropRect failed: %v", err)
	}
	want := models.Rect{X: 0, Y: 0, Width: 100, Height: 100}
	if !rectClose(rect, want) {
		t.Errorf("Expected crop clamped to image, got %+v", rect)
	}
}

func TestComputeCropRectDegenerate(t *testing.T) {
	face := models.DetectedFace{X: 0, Y: 0, Width: 10, Height: 10}

	_, err := ComputeCropRect(face, 0, 0, 1.4)
	if !errors.Is(err, ErrDegenerateCrop) {
		t.Errorf("Expected ErrDegenerateCrop, got %v", err)
	}

	_, err = ComputeCropRect(models.DetectedFace{X: 5, Y: 5}, 100, 100, 1.4)
	if !errors.Is(err, ErrDegenerateCrop) {
		t.Errorf("Expected ErrDegenerateCrop for zero-size face, got %v", err)
	}
}

func TestComputeCropRectContained(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	for i := 0; i < 500; i++ {
		iw := 50 + rng.Intn(500)
		ih := 50 + rng.Intn(500)
		w := 1 + rng.Float64()*float64(iw)/2
		h := 1 + rng.Float64()*float64(ih)/2
		face := models.DetectedFace{
			X:      rng.Float64() * (float64(iw) - w),
			Y:      rng.Float64() * (float64(ih) - h),
			Width:  w,
			Height: h,
		}

		rect, err := ComputeCropRect(face, iw, ih, 1.4)
		if err != nil {
			t.Fatalf("Unexpected error for %+v in %dx%d: %v", face, iw, ih, err)
		}
		const eps = 1e-9
		if rect.X < -eps || rect.Y < -eps ||
			rect.X+rect.Width > float64(iw)+eps || rect.Y+rect.Height > float64(ih)+eps {
			t.Fatalf("Crop %+v escapes %dx%d", rect, iw, ih)
		}
		if rect.Width <= 0 || rect.Height <= 0 {
			t.Fatalf("Crop %+v has no area", rect)
		}
	}
}

func TestRectImage(t *testing.T) {
	r := models.Rect{X: 10.7, Y: 5.2, Width: 20.9, Height: 8.5}
	if got := r.Image(); got != image.Rect(10, 5, 30, 13) {
		t.Errorf("Expected truncated rectangle, got %v", got)
	}
}

func rectClose(a, b models.Rect) bool {
	const eps = 1e-9
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps &&
		math.Abs(a.Width-b.Width) < eps && math.Abs(a.Height-b.Height) < eps
}

func TestClampRect(t *testing.T) {
	rect, err := ClampRect(models.DetectedFace{X: -5, Y: 10, Width: 20, Height: 100}, 50, 60)
	if err != nil {
		t.Fatalf("ClampRect failed: %v", err)
	}
	want := models.Rect{X: 0, Y: 10, Width: 15, Height: 50}
	if !rectClose(rect, want) {
		t.Errorf("Expected %+v, got %+v", want, rect)
	}

	_, err = ClampRect(models.DetectedFace{X: 70, Y: 10, Width: 20, Height: 20}, 50, 60)
	if !errors.Is(err, ErrDegenerateCrop) {
		t.Errorf("Expected ErrDegenerateCrop for box outside image, got %v", err)
	}
}
