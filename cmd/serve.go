package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/Tutortoise/face-enrichment-service/detections"
	"github.com/Tutortoise/face-enrichment-service/logging"
	"github.com/Tutortoise/face-enrichment-service/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve face detection and enrichment over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.Addr = serveAddr
		}
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "Listen address (env FACEOFF_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command) error {
	ctx := cmd.Context()

	logging.Info("starting face enrichment service",
		"version", Version,
		"num_cpu", runtime.NumCPU(),
		"gomaxprocs", runtime.GOMAXPROCS(0),
		"cpu_features", fmt.Sprint(server.CPUFeatures()),
	)

	pool, err := openPool()
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline pool: %w", err)
	}
	defer closePool(pool)

	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(db)

	opts := server.Options{
		Threshold:   cfg.Confidence,
		CropPadding: detections.CropPadding,
		Debug:       cfg.Debug,
		Logger:      logging.L(),
	}
	if db != nil {
		opts.Recorder = db
		logging.Info("storing results in database")
	}

	return server.New(pool, opts).ListenAndServe(ctx, cfg.Addr)
}
