// Package pipeline runs detection and per-face enrichment for one image at a
// time, and pools pipeline instances for concurrent callers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tutortoise/face-enrichment-service/classify"
	"github.com/Tutortoise/face-enrichment-service/detections"
	"github.com/Tutortoise/face-enrichment-service/imageops"
	"github.com/Tutortoise/face-enrichment-service/models"
)

// ErrInvalidInput reports image bytes that could not be decoded.
var ErrInvalidInput = errors.New("invalid input image")

// maxDetectFailures is how many consecutive detector failures mark a pipeline unhealthy.
const maxDetectFailures = 3

// Result is the outcome of processing one image.
type Result struct {
	Faces   []models.EnrichedFace
	Width   int
	Height  int
	Timings models.ProcessingTimings
}

// Pipeline owns one detector and the optional classifiers. A Pipeline may be
// used by one image at a time; use a Pool for concurrent callers.
type Pipeline struct {
	detector *detections.Detector
	emotion  *classify.Classifier
	gender   *classify.Classifier
	age      *classify.AgeEstimator

	observer    Observer
	faceWorkers int
	failures    atomic.Int32
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithEmotion(c *classify.Classifier) Option {
	return func(p *Pipeline) { p.emotion = c }
}

func WithGender(c *classify.Classifier) Option {
	return func(p *Pipeline) { p.gender = c }
}

func WithAge(a *classify.AgeEstimator) Option {
	return func(p *Pipeline) { p.age = a }
}

// WithObserver sets the diagnostics sink. nil keeps the no-op observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithFaceWorkers bounds how many faces of one image are enriched at once.
func WithFaceWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.faceWorkers = n
		}
	}
}

// New assembles a pipeline around an existing detector.
func New(detector *detections.Detector, opts ...Option) (*Pipeline, error) {
	if detector == nil {
		return nil, fmt.Errorf("detector is nil")
	}

	p := &Pipeline{
		detector:    detector,
		observer:    nopObserver{},
		faceWorkers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// DecodeImage decodes image bytes. Failures wrap ErrInvalidInput.
func DecodeImage(data []byte) (image.Image, error) {
	img, err := imageops.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return img, nil
}

// DetectAndEnrich decodes imageBytes and returns every detected face with its
// enrichments. Empty or unreadable bytes produce an empty list, not an error.
func (p *Pipeline) DetectAndEnrich(ctx context.Context, imageBytes []byte, threshold float64) ([]models.EnrichedFace, error) {
	if len(imageBytes) == 0 {
		return []models.EnrichedFace{}, nil
	}

	img, err := DecodeImage(imageBytes)
	if err != nil {
		p.observer.StageFailed("", StageDecode, err)
		return []models.EnrichedFace{}, nil
	}

	result, err := p.Process(ctx, img, threshold)
	if err != nil {
		return nil, err
	}
	return result.Faces, nil
}

// Process runs detection and enrichment on a decoded image. Detector failures
// yield no faces; enrichment failures leave only the affected field unset.
// The only error returned is context cancellation.
func (p *Pipeline) Process(ctx context.Context, img image.Image, threshold float64) (*Result, error) {
	return p.ProcessRequest(ctx, "", img, threshold)
}

// ProcessRequest is Process with a request id carried into timings and
// observer callbacks.
func (p *Pipeline) ProcessRequest(ctx context.Context, requestID string, img image.Image, threshold float64) (*Result, error) {
	start := time.Now()
	result := &Result{
		Faces:   []models.EnrichedFace{},
		Timings: models.ProcessingTimings{RequestID: requestID},
	}
	if img == nil || img.Bounds().Empty() {
		return result, nil
	}
	result.Width, result.Height = img.Bounds().Dx(), img.Bounds().Dy()

	faces, err := p.detector.Detect(ctx, img, threshold, &result.Timings)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		p.failures.Add(1)
		p.observer.StageFailed(requestID, StageDetect, err)
		faces = nil
	} else {
		p.failures.Store(0)
	}

	enrichStart := time.Now()
	result.Faces = p.enrich(ctx, requestID, img, faces)
	result.Timings.Enrichment = time.Since(enrichStart)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.Timings.Total = time.Since(start)
	p.observer.ImageProcessed(result.Timings, len(result.Faces))
	return result, nil
}

// enrich classifies every face concurrently, keeping detection order.
func (p *Pipeline) enrich(ctx context.Context, requestID string, img image.Image, faces []models.DetectedFace) []models.EnrichedFace {
	out := make([]models.EnrichedFace, len(faces))
	for i, f := range faces {
		out[i].Face = f
	}
	if len(faces) == 0 || !p.enriches() {
		return out
	}

	sem := make(chan struct{}, p.faceWorkers)
	var wg sync.WaitGroup
	for i := range out {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			p.enrichFace(ctx, requestID, img, i, &out[i])
		}(i)
	}
	wg.Wait()

	return out
}

func (p *Pipeline) enriches() bool {
	return p.emotion != nil || p.age != nil || p.gender != nil
}

func (p *Pipeline) enrichFace(ctx context.Context, requestID string, img image.Image, index int, face *models.EnrichedFace) {
	if p.emotion != nil {
		if res, err := p.emotion.Classify(ctx, img, face.Face); err != nil {
			p.observer.EnrichmentFailed(requestID, index, EnrichEmotion, err)
		} else {
			face.Emotion = res
		}
	}

	if p.age != nil {
		if res, err := p.age.Estimate(ctx, img, face.Face); err != nil {
			p.observer.EnrichmentFailed(requestID, index, EnrichAge, err)
		} else {
			face.Age = res
		}
	}

	if p.gender != nil {
		if res, err := p.gender.Classify(ctx, img, face.Face); err != nil {
			p.observer.EnrichmentFailed(requestID, index, EnrichGender, err)
		} else {
			face.Gender = res
		}
	}
}

// Healthy reports whether the detector has been succeeding recently.
func (p *Pipeline) Healthy() bool {
	return p.failures.Load() < maxDetectFailures
}

// Close releases every model the pipeline owns.
func (p *Pipeline) Close() error {
	var errs []error
	if err := p.detector.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.emotion != nil {
		if err := p.emotion.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.age != nil {
		if err := p.age.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.gender != nil {
		if err := p.gender.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CropPNG returns the padded square around face, PNG encoded.
func CropPNG(img image.Image, face models.DetectedFace, padding float64) ([]byte, error) {
	bounds := img.Bounds()
	rect, err := detections.ComputeCropRect(face, bounds.Dx(), bounds.Dy(), padding)
	if err != nil {
		return nil, err
	}
	crop := imageops.Crop(img, rect.Image().Add(bounds.Min))
	if crop.Bounds().Empty() {
		return nil, fmt.Errorf("%w: crop truncates to nothing", detections.ErrInvalidRegion)
	}
	return imageops.EncodePNG(crop)
}
