package detections

import (
	"math"
	"math/rand"
	"testing"

	"github.com/Tutortoise/face-enrichment-service/models"
)

func TestIoU(t *testing.T) {
	a := models.DetectedFace{X: 0, Y: 0, Width: 10, Height: 10}
	b := models.DetectedFace{X: 5, Y: 5, Width: 10, Height: 10}

	// intersection 25, union 175
	if got := IoU(a, b); math.Abs(got-25.0/175.0) > 1e-12 {
		t.Errorf("Expected %f, got %f", 25.0/175.0, got)
	}
	if got := IoU(a, a); got != 1 {
		t.Errorf("Expected 1 for identical boxes, got %f", got)
	}

	disjoint := models.DetectedFace{X: 20, Y: 20, Width: 5, Height: 5}
	if got := IoU(a, disjoint); got != 0 {
		t.Errorf("Expected 0 for disjoint boxes, got %f", got)
	}

	empty := models.DetectedFace{}
	if got := IoU(empty, empty); got != 0 {
		t.Errorf("Expected 0 for empty boxes, got %f", got)
	}
}

func TestSuppress(t *testing.T) {
	faces := []models.DetectedFace{
		{Confidence: 0.8, X: 0, Y: 0, Width: 10, Height: 10},
		{Confidence: 0.9, X: 1, Y: 1, Width: 10, Height: 10},
		{Confidence: 0.7, X: 50, Y: 50, Width: 10, Height: 10},
	}

	kept := Suppress(faces, 0.3)
	if len(kept) != 2 {
		t.Fatalf("Expected 2 faces, got %d", len(kept))
	}
	if kept[0].Confidence != 0.9 || kept[1].Confidence != 0.7 {
		t.Errorf("Unexpected survivors %+v", kept)
	}
	if faces[0].Confidence != 0.8 {
		t.Error("Expected input slice to be left untouched")
	}
}

func TestSuppressStableTies(t *testing.T) {
	faces := []models.DetectedFace{
		{Confidence: 0.5, X: 0, Y: 0, Width: 10, Height: 10},
		{Confidence: 0.5, X: 100, Y: 0, Width: 10, Height: 10},
		{Confidence: 0.5, X: 1, Y: 0, Width: 10, Height: 10},
	}

	kept := Suppress(faces, 0.3)
	if len(kept) != 2 {
		t.Fatalf("Expected 2 faces, got %d", len(kept))
	}
	if kept[0].X != 0 || kept[1].X != 100 {
		t.Errorf("Expected insertion order on ties, got %+v", kept)
	}
}

func TestSuppressEmpty(t *testing.T) {
	if got := Suppress(nil, 0.3); len(got) != 0 {
		t.Errorf("Expected empty result, got %v", got)
	}
}

func TestSuppressInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	faces := make([]models.DetectedFace, 200)
	for i := range faces {
		faces[i] = models.DetectedFace{
			Confidence: rng.Float64(),
			X:          rng.Float64() * 300,
			Y:          rng.Float64() * 200,
			Width:      5 + rng.Float64()*60,
			Height:     5 + rng.Float64()*60,
		}
	}

	const threshold = 0.3
	kept := Suppress(faces, threshold)

	for i := range kept {
		for j := i + 1; j < len(kept); j++ {
			if IoU(kept[i], kept[j]) > threshold {
				t.Fatalf("Kept boxes %d and %d overlap above threshold", i, j)
			}
		}
		if i > 0 && kept[i].Confidence > kept[i-1].Confidence {
			t.Fatalf("Output not sorted by confidence at %d", i)
		}

		found := false
		for _, f := range faces {
			if f == kept[i] {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("Kept box %+v not present in input", kept[i])
		}
	}
}

func TestRescaleRoundTrip(t *testing.T) {
	faces := []models.DetectedFace{
		{Confidence: 0.9, X: 12.5, Y: 30, Width: 40, Height: 55.5},
		{Confidence: 0.8, X: 0, Y: 0, Width: 320, Height: 240},
	}

	scaled := Rescale(faces, 320, 240, 1920, 1080)
	if math.Abs(scaled[1].Width-1920) > 1e-9 || math.Abs(scaled[1].Height-1080) > 1e-9 {
		t.Errorf("Expected full-frame box to cover original image, got %+v", scaled[1])
	}

	back := Unscale(scaled, 320, 240, 1920, 1080)
	for i := range faces {
		if !faceClose(back[i], faces[i], 1e-9) {
			t.Errorf("Round trip mismatch: %+v vs %+v", back[i], faces[i])
		}
	}
}

func TestRescaleZeroInput(t *testing.T) {
	faces := []models.DetectedFace{{Confidence: 1, X: 1, Y: 1, Width: 1, Height: 1}}
	scaled := Rescale(faces, 0, 0, 100, 100)
	if math.IsNaN(scaled[0].X) || math.IsInf(scaled[0].X, 0) {
		t.Errorf("Expected finite result, got %+v", scaled[0])
	}
}
