package logging

import (
	"log/slog"

	"github.com/Tutortoise/face-enrichment-service/models"
)

// Observer writes pipeline diagnostics to a slog logger. Stage timings are
// logged at debug level, failures at warn.
type Observer struct {
	log *slog.Logger
}

// NewObserver returns an Observer on l, or on the global logger when l is nil.
func NewObserver(l *slog.Logger) *Observer {
	if l == nil {
		l = L()
	}
	return &Observer{log: l.With("component", "pipeline")}
}

func (o *Observer) ImageProcessed(t models.ProcessingTimings, faces int) {
	o.log.Debug("image processed",
		"request_id", t.RequestID,
		"faces", faces,
		"preprocess", t.Preprocess,
		"inference", t.Inference,
		"postprocess", t.Postprocess,
		"suppression", t.Suppression,
		"enrichment", t.Enrichment,
		"total", t.Total,
	)
}

func (o *Observer) StageFailed(requestID, stage string, err error) {
	o.log.Warn("pipeline stage failed", "request_id", requestID, "stage", stage, "error", err)
}

func (o *Observer) EnrichmentFailed(requestID string, face int, kind string, err error) {
	o.log.Warn("face enrichment failed", "request_id", requestID, "face", face, "enrichment", kind, "error", err)
}
