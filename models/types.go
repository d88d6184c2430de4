package models

import (
	"image"
	"time"
)

// DetectedFace is a face box with its detector confidence. Coordinates are in
// pixels of whichever space the producing stage works in (detector input or
// original image).
type DetectedFace struct {
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (f DetectedFace) Right() float64 {
	return f.X + f.Width
}

// Bottom returns the y coordinate of the bottom edge.
func (f DetectedFace) Bottom() float64 {
	return f.Y + f.Height
}

// Area returns box area
func (f DetectedFace) Area() float64 {
	return f.Width * f.Height
}

// Rect is a float rectangle in image pixel space.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Image truncates the rectangle to integer pixel bounds.
func (r Rect) Image() image.Rectangle {
	x0, y0 := int(r.X), int(r.Y)
	return image.Rect(x0, y0, x0+int(r.Width), y0+int(r.Height))
}

// ClassificationResult is the top label of a categorical classifier.
type ClassificationResult struct {
	Label      string  `json:"label"`
	Index      int     `json:"index"`
	Confidence float64 `json:"confidence"`
}

// AgeResult is a blended age estimate. Confidence is the top bucket probability.
type AgeResult struct {
	Estimate   float64 `json:"estimate"`
	Confidence float64 `json:"confidence"`
}

// EnrichedFace is one detected face plus whichever enrichments succeeded.
type EnrichedFace struct {
	Face    DetectedFace          `json:"face"`
	Age     *AgeResult            `json:"age,omitempty"`
	Gender  *ClassificationResult `json:"gender,omitempty"`
	Emotion *ClassificationResult `json:"emotion,omitempty"`
}

// ProcessingTimings records how long each pipeline stage took for one image.
type ProcessingTimings struct {
	RequestID   string
	ImageDecode time.Duration
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	Suppression time.Duration
	Enrichment  time.Duration
	Total       time.Duration
}
