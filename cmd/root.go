package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tutortoise/face-enrichment-service/config"
	"github.com/Tutortoise/face-enrichment-service/engine"
	"github.com/Tutortoise/face-enrichment-service/logging"
	"github.com/Tutortoise/face-enrichment-service/pipeline"
	"github.com/Tutortoise/face-enrichment-service/store"
)

// Version is the application version.
const Version = "0.1.0"

var (
	// cfg is the environment configuration with flag overrides applied.
	cfg config.Config

	flagDetector   string
	flagEmotion    string
	flagAge        string
	flagGender     string
	flagLib        string
	flagPoolSize   int
	flagConfidence float64
	flagIoU        float64
	flagDB         string
	flagLogLevel   string
	flagGray       bool
)

var rootCmd = &cobra.Command{
	Use:           "faceoff",
	Short:         "Face detection and enrichment service",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		applyFlags(cmd)
		logging.Init(cfg.LogLevel)
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDetector, "detector", "", "Face detector ONNX model (env FACEOFF_DETECTOR_MODEL)")
	pf.StringVar(&flagEmotion, "emotion", "", "Emotion classifier ONNX model (env FACEOFF_EMOTION_MODEL)")
	pf.StringVar(&flagAge, "age", "", "Age classifier ONNX model (env FACEOFF_AGE_MODEL)")
	pf.StringVar(&flagGender, "gender", "", "Gender classifier ONNX model (env FACEOFF_GENDER_MODEL)")
	pf.BoolVar(&flagGray, "emotion-gray", false, "Use the 48x48 grayscale emotion model preset")
	pf.StringVar(&flagLib, "lib", "", "ONNX Runtime library file or directory (env ONNXRUNTIME_LIB)")
	pf.IntVar(&flagPoolSize, "pool-size", 0, "Number of pipelines to keep loaded (env FACEOFF_POOL_SIZE)")
	pf.Float64Var(&flagConfidence, "confidence", 0, "Detection confidence threshold (env FACEOFF_CONFIDENCE)")
	pf.Float64Var(&flagIoU, "iou", 0, "Suppression IoU threshold (env FACEOFF_IOU)")
	pf.StringVar(&flagDB, "db", "", "PostgreSQL connection string (env DATABASE_URL)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (env LOG_LEVEL)")
}

// applyFlags overrides environment values with flags the user actually set.
func applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("detector") {
		cfg.DetectorModel = flagDetector
	}
	if flags.Changed("emotion") {
		cfg.EmotionModel = flagEmotion
	}
	if flags.Changed("age") {
		cfg.AgeModel = flagAge
	}
	if flags.Changed("gender") {
		cfg.GenderModel = flagGender
	}
	if flags.Changed("emotion-gray") {
		cfg.GrayEmotion = flagGray
	}
	if flags.Changed("lib") {
		cfg.LibraryPath = flagLib
	}
	if flags.Changed("pool-size") {
		cfg.PoolSize = flagPoolSize
	}
	if flags.Changed("confidence") {
		cfg.Confidence = flagConfidence
	}
	if flags.Changed("iou") {
		cfg.IoU = flagIoU
	}
	if flags.Changed("db") {
		cfg.DatabaseURL = flagDB
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
}

// openPool initializes ONNX Runtime and loads cfg.PoolSize pipelines. The
// anchor grid is built once and shared by every detector.
func openPool() (*pipeline.Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := engine.Initialize(cfg.LibraryPath); err != nil {
		return nil, err
	}

	pc := cfg.Pipeline()
	if err := pc.Validate(); err != nil {
		engine.Shutdown()
		return nil, err
	}
	grid, err := pc.Detector.Grid()
	if err != nil {
		engine.Shutdown()
		return nil, fmt.Errorf("failed to build anchor grid: %w", err)
	}
	logging.Info("anchor grid ready",
		"anchors", grid.Len(),
		"input", fmt.Sprintf("%dx%d", pc.Detector.InputWidth, pc.Detector.InputHeight),
	)

	observer := logging.NewObserver(logging.L())
	pool, err := pipeline.NewPool(func() (*pipeline.Pipeline, error) {
		return pipeline.Open(pc, grid, pipeline.WithObserver(observer))
	}, cfg.PoolSize)
	if err != nil {
		engine.Shutdown()
		return nil, err
	}

	logging.Info("pipeline pool ready",
		"size", pool.Size(),
		"emotion", cfg.EmotionModel != "",
		"age", cfg.AgeModel != "",
		"gender", cfg.GenderModel != "",
	)
	return pool, nil
}

func closePool(pool *pipeline.Pool) {
	pool.Destroy()
	if err := engine.Shutdown(); err != nil {
		logging.Warn("onnxruntime shutdown failed", "error", err)
	}
}

// openStore connects to PostgreSQL when a connection string is configured.
// It returns nil without error when none is.
func openStore(ctx context.Context) (*store.Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func closeStore(db *store.Store) {
	if db != nil {
		// The command context may already be canceled by Ctrl+C.
		db.Close(context.Background())
	}
}
