package pipeline

import "github.com/Tutortoise/face-enrichment-service/models"

// Stage names reported to an Observer.
const (
	StageDecode = "decode"
	StageDetect = "detect"
	StageCrop   = "crop"
)

// Enrichment kinds reported to an Observer.
const (
	EnrichEmotion = "emotion"
	EnrichAge     = "age"
	EnrichGender  = "gender"
)

// Observer receives diagnostics from a pipeline. Implementations must be safe
// for concurrent use; enrichment failures are reported from worker goroutines.
type Observer interface {
	ImageProcessed(timings models.ProcessingTimings, faces int)
	StageFailed(requestID, stage string, err error)
	EnrichmentFailed(requestID string, face int, kind string, err error)
}

type nopObserver struct{}

func (nopObserver) ImageProcessed(models.ProcessingTimings, int) {}

func (nopObserver) StageFailed(string, string, error) {}

func (nopObserver) EnrichmentFailed(string, int, string, error) {}
