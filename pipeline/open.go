package pipeline

import (
	"errors"
	"fmt"

	"github.com/Tutortoise/face-enrichment-service/classify"
	"github.com/Tutortoise/face-enrichment-service/detections"
	"github.com/Tutortoise/face-enrichment-service/engine"
)

// Config names the model files and tuning of a pipeline. Only the detector is
// required; an empty classifier path disables that enrichment.
type Config struct {
	DetectorModel string
	EmotionModel  string
	AgeModel      string
	GenderModel   string

	Detector      detections.Config
	Emotion       classify.Preset
	Age           classify.Preset
	Gender        classify.Preset
	AgeBuckets    []float64
	AgeCorrection classify.AgeCorrection

	FaceWorkers int
	Session     engine.Options
}

// DefaultConfig returns the production model presets with no model paths set.
func DefaultConfig() Config {
	return Config{
		Detector:      detections.DefaultConfig(),
		Emotion:       classify.EmotionPreset(),
		Age:           classify.AgePreset(),
		Gender:        classify.GenderPreset(),
		AgeBuckets:    classify.AgeBuckets(),
		AgeCorrection: classify.DefaultAgeCorrection(),
	}
}

// Open loads every configured model into ONNX sessions. grid is shared and
// must match the detector input size. engine.Initialize must have been called.
func Open(cfg Config, grid *detections.AnchorGrid, opts ...Option) (p *Pipeline, err error) {
	if cfg.DetectorModel == "" {
		return nil, fmt.Errorf("detector model path is empty")
	}

	var opened []engine.Engine
	defer func() {
		if err == nil {
			return
		}
		for _, e := range opened {
			e.Close()
		}
	}()

	detEngine, err := engine.NewONNX(cfg.DetectorModel, cfg.Detector.Binding, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}
	opened = append(opened, detEngine)

	detCfg := cfg.Detector
	detCfg.Binding = detEngine.Binding()
	detector, err := detections.NewDetector(detEngine, grid, detCfg)
	if err != nil {
		return nil, err
	}

	emotion, err := openClassifier(cfg.EmotionModel, cfg.Emotion, cfg.Session, &opened)
	if err != nil {
		return nil, err
	}
	if emotion != nil {
		opts = append(opts, WithEmotion(emotion))
	}

	gender, err := openClassifier(cfg.GenderModel, cfg.Gender, cfg.Session, &opened)
	if err != nil {
		return nil, err
	}
	if gender != nil {
		opts = append(opts, WithGender(gender))
	}

	ageClassifier, err := openClassifier(cfg.AgeModel, cfg.Age, cfg.Session, &opened)
	if err != nil {
		return nil, err
	}
	if ageClassifier != nil {
		age, err := classify.NewAgeEstimator(ageClassifier, cfg.AgeBuckets, cfg.AgeCorrection)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithAge(age))
	}

	if cfg.FaceWorkers > 0 {
		opts = append(opts, WithFaceWorkers(cfg.FaceWorkers))
	}
	return New(detector, opts...)
}

func openClassifier(path string, preset classify.Preset, session engine.Options, opened *[]engine.Engine) (*classify.Classifier, error) {
	if path == "" {
		return nil, nil
	}

	eng, err := engine.NewONNX(path, preset.Binding, session)
	if err != nil {
		return nil, fmt.Errorf("load %s model: %w", preset.Name, err)
	}
	*opened = append(*opened, eng)

	preset.Binding = eng.Binding()
	return classify.NewClassifier(eng, preset)
}

// ErrNoDetector is returned by Validate when no detector model is configured.
var ErrNoDetector = errors.New("no detector model configured")

// Validate checks the configuration without loading anything.
func (c Config) Validate() error {
	if c.DetectorModel == "" {
		return ErrNoDetector
	}
	if c.Detector.InputWidth <= 0 || c.Detector.InputHeight <= 0 {
		return fmt.Errorf("detector input %dx%d", c.Detector.InputWidth, c.Detector.InputHeight)
	}
	if c.AgeModel != "" && len(c.AgeBuckets) == 0 {
		return fmt.Errorf("age model configured without age buckets")
	}
	return nil
}
