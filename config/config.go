// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/Tutortoise/face-enrichment-service/classify"
	"github.com/Tutortoise/face-enrichment-service/detections"
	"github.com/Tutortoise/face-enrichment-service/pipeline"
)

// Defaults used when the environment does not say otherwise.
const (
	DefaultAddr       = "127.0.0.1:8080"
	DefaultPoolSize   = pipeline.DefaultPoolSize
	DefaultConfidence = detections.ConfThreshold
	DefaultIoU        = detections.IouThreshold
	DefaultLibDir     = "lib"
)

// Config is everything the commands need to build pipelines and serve them.
type Config struct {
	DetectorModel string
	EmotionModel  string
	AgeModel      string
	GenderModel   string
	// GrayEmotion selects the 48x48 grayscale emotion model preset.
	GrayEmotion bool

	LibraryPath string
	Addr        string
	PoolSize    int
	FaceWorkers int
	Confidence  float64
	IoU         float64

	DatabaseURL string
	LogLevel    string
	Debug       bool
}

// Load reads the configuration from environment variables.
func Load() (Config, error) {
	cfg := Config{
		DetectorModel: os.Getenv("FACEOFF_DETECTOR_MODEL"),
		EmotionModel:  os.Getenv("FACEOFF_EMOTION_MODEL"),
		AgeModel:      os.Getenv("FACEOFF_AGE_MODEL"),
		GenderModel:   os.Getenv("FACEOFF_GENDER_MODEL"),
		LibraryPath:   envOr("ONNXRUNTIME_LIB", DefaultLibDir),
		Addr:          envOr("FACEOFF_ADDR", DefaultAddr),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		Debug:         os.Getenv("DEBUG") == "true",
	}

	var err error
	if cfg.GrayEmotion, err = envBool("FACEOFF_EMOTION_GRAY", false); err != nil {
		return cfg, err
	}
	if cfg.PoolSize, err = envInt("FACEOFF_POOL_SIZE", DefaultPoolSize); err != nil {
		return cfg, err
	}
	if cfg.FaceWorkers, err = envInt("FACEOFF_FACE_WORKERS", 0); err != nil {
		return cfg, err
	}
	if cfg.Confidence, err = envFloat("FACEOFF_CONFIDENCE", DefaultConfidence); err != nil {
		return cfg, err
	}
	if cfg.IoU, err = envFloat("FACEOFF_IOU", DefaultIoU); err != nil {
		return cfg, err
	}

	if cfg.Debug && os.Getenv("LOG_LEVEL") == "" {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// Validate checks ranges and required fields.
func (c Config) Validate() error {
	if c.DetectorModel == "" {
		return fmt.Errorf("detector model is required (FACEOFF_DETECTOR_MODEL or --detector)")
	}
	if math.IsNaN(c.Confidence) || c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0,1]", c.Confidence)
	}
	if math.IsNaN(c.IoU) || c.IoU < 0 || c.IoU > 1 {
		return fmt.Errorf("iou threshold %v out of range [0,1]", c.IoU)
	}
	if c.PoolSize < 0 {
		return fmt.Errorf("pool size %d is negative", c.PoolSize)
	}
	return nil
}

// Pipeline converts the configuration into pipeline settings.
func (c Config) Pipeline() pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.DetectorModel = c.DetectorModel
	pc.EmotionModel = c.EmotionModel
	pc.AgeModel = c.AgeModel
	pc.GenderModel = c.GenderModel
	pc.Detector.IouThreshold = c.IoU
	pc.FaceWorkers = c.FaceWorkers
	if c.GrayEmotion {
		pc.Emotion = classify.EmotionGrayPreset()
	}
	return pc
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
