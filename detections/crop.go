package detections

import (
	"fmt"
	"math"

	"github.com/Tutortoise/face-enrichment-service/models"
)

// ComputeCropRect returns a square of side max(w,h)*padding centered on the
// face. Edges that fall outside the image push the opposite edge outward by
// the overflow, then both are clamped to the image.
func ComputeCropRect(face models.DetectedFace, imageWidth, imageHeight int, padding float64) (models.Rect, error) {
	iw, ih := float64(imageWidth), float64(imageHeight)

	centerX := face.X + face.Width/2
	centerY := face.Y + face.Height/2
	desiredSize := math.Max(face.Width, face.Height) * padding

	left := centerX - desiredSize/2
	top := centerY - desiredSize/2
	right := left + desiredSize
	bottom := top + desiredSize

	if left < 0 {
		right += -left
		left = 0
	}
	if top < 0 {
		bottom += -top
		top = 0
	}
	if right > iw {
		left -= right - iw
		right = iw
	}
	if bottom > ih {
		top -= bottom - ih
		bottom = ih
	}

	left = math.Max(0, left)
	top = math.Max(0, top)

	width := math.Min(right-left, iw-left)
	height := math.Min(bottom-top, ih-top)

	if !(width > 0) || !(height > 0) {
		return models.Rect{}, fmt.Errorf("%w: %.1fx%.1f at (%.1f, %.1f)", ErrDegenerateCrop, width, height, left, top)
	}

	return models.Rect{X: left, Y: top, Width: width, Height: height}, nil
}

// ClampRect returns the face box itself, clipped to the image.
func ClampRect(face models.DetectedFace, imageWidth, imageHeight int) (models.Rect, error) {
	iw, ih := float64(imageWidth), float64(imageHeight)

	left := clamp(face.X, 0, iw)
	top := clamp(face.Y, 0, ih)
	right := clamp(face.Right(), 0, iw)
	bottom := clamp(face.Bottom(), 0, ih)

	width, height := right-left, bottom-top
	if !(width > 0) || !(height > 0) {
		return models.Rect{}, fmt.Errorf("%w: %.1fx%.1f at (%.1f, %.1f)", ErrDegenerateCrop, width, height, left, top)
	}

	return models.Rect{X: left, Y: top, Width: width, Height: height}, nil
}
