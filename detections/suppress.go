package detections

import (
	"math"
	"sort"

	"github.com/Tutortoise/face-enrichment-service/models"
)

// Suppress performs greedy non-max suppression. The result is sorted by
// confidence descending, equal confidences keeping input order. The input
// slice is not modified.
func Suppress(faces []models.DetectedFace, iouThreshold float64) []models.DetectedFace {
	if len(faces) == 0 {
		return nil
	}

	sorted := append([]models.DetectedFace(nil), faces...)
	sortDetectionsByConfidence(sorted)

	kept := make([]models.DetectedFace, 0, len(sorted))
	for _, candidate := range sorted {
		suppressed := false
		for _, k := range kept {
			if IoU(candidate, k) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, candidate)
		}
	}

	return kept
}

// IoU returns intersection over union of two boxes, 0 when the union is empty.
func IoU(a, b models.DetectedFace) float64 {
	x1 := math.Max(a.X, b.X)
	y1 := math.Max(a.Y, b.Y)
	x2 := math.Min(a.Right(), b.Right())
	y2 := math.Min(a.Bottom(), b.Bottom())

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}

	return intersection / union
}

// Rescale maps boxes from detector input pixels to original image pixels.
func Rescale(faces []models.DetectedFace, inputWidth, inputHeight, originalWidth, originalHeight int) []models.DetectedFace {
	return scaleBoxes(faces,
		ratio(float64(originalWidth), float64(inputWidth)),
		ratio(float64(originalHeight), float64(inputHeight)))
}

// Unscale is the inverse of Rescale.
func Unscale(faces []models.DetectedFace, inputWidth, inputHeight, originalWidth, originalHeight int) []models.DetectedFace {
	return scaleBoxes(faces,
		ratio(float64(inputWidth), float64(originalWidth)),
		ratio(float64(inputHeight), float64(originalHeight)))
}

func scaleBoxes(faces []models.DetectedFace, sx, sy float64) []models.DetectedFace {
	out := make([]models.DetectedFace, len(faces))
	for i, f := range faces {
		out[i] = models.DetectedFace{
			Confidence: f.Confidence,
			X:          f.X * sx,
			Y:          f.Y * sy,
			Width:      f.Width * sx,
			Height:     f.Height * sy,
		}
	}
	return out
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func sortDetectionsByConfidence(detections []models.DetectedFace) {
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})
}
