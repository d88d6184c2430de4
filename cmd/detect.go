package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Tutortoise/face-enrichment-service/logging"
	"github.com/Tutortoise/face-enrichment-service/models"
	"github.com/Tutortoise/face-enrichment-service/pipeline"
	"github.com/Tutortoise/face-enrichment-service/store"
)

var (
	detectOutput  string
	detectWorkers int
)

var detectCmd = &cobra.Command{
	Use:   "detect <image>...",
	Short: "Detect and enrich faces in image files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if detectOutput != "json" && detectOutput != "table" {
			return fmt.Errorf("unknown output format %q (want json or table)", detectOutput)
		}
		return runDetect(cmd.Context(), args)
	},
}

func init() {
	detectCmd.Flags().StringVarP(&detectOutput, "output", "o", "json", "Output format: json (one line per image) or table")
	detectCmd.Flags().IntVarP(&detectWorkers, "workers", "w", 0, "Images processed in parallel (default: pool size)")
	rootCmd.AddCommand(detectCmd)
}

// fileResult is the outcome for one input file.
type fileResult struct {
	RequestID string                `json:"request_id"`
	Path      string                `json:"path"`
	Faces     []models.EnrichedFace `json:"faces"`
	Error     string                `json:"error,omitempty"`
}

func runDetect(ctx context.Context, paths []string) error {
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

	workers := detectWorkers
	if workers <= 0 {
		workers = pool.Size()
	}

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Detecting faces"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	results := make([]fileResult, len(paths))
	tasks := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				results[i] = detectFile(ctx, pool, db, paths[i])
				bar.Add(1)
			}
		}()
	}

	for i := range paths {
		if ctx.Err() != nil {
			break
		}
		tasks <- i
	}
	close(tasks)
	wg.Wait()
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	if err := ctx.Err(); err != nil {
		return err
	}

	if detectOutput == "table" {
		return writeTable(os.Stdout, results)
	}
	return writeJSONLines(os.Stdout, results)
}

func detectFile(ctx context.Context, pool *pipeline.Pool, db *store.Store, path string) fileResult {
	res := fileResult{RequestID: uuid.NewString(), Path: path, Faces: []models.EnrichedFace{}}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	img, err := pipeline.DecodeImage(data)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	p, err := pool.Acquire(ctx)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	result, err := p.ProcessRequest(ctx, res.RequestID, img, cfg.Confidence)
	pool.Release(p)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Faces = result.Faces

	if db != nil {
		if err := db.SaveResults(ctx, res.RequestID, filepath.Base(path), res.Faces); err != nil {
			logging.Warn("failed to store results", "path", path, "error", err)
		}
	}
	return res
}

func writeJSONLines(w io.Writer, results []fileResult) error {
	enc := json.NewEncoder(w)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func writeTable(out io.Writer, results []fileResult) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FILE\tFACE\tCONFIDENCE\tBOX\tAGE\tGENDER\tEMOTION")
	fmt.Fprintln(w, "----\t----\t----------\t---\t---\t------\t-------")

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\terror: %s\n", r.Path, r.Error)
			continue
		}
		if len(r.Faces) == 0 {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\t-\n", r.Path)
			continue
		}
		for i, f := range r.Faces {
			fmt.Fprintf(w, "%s\t%d\t%.2f\t%s\t%s\t%s\t%s\n",
				r.Path, i, f.Face.Confidence, formatBox(f.Face),
				formatAge(f.Age), formatLabel(f.Gender), formatLabel(f.Emotion))
		}
	}
	return w.Flush()
}

func formatBox(f models.DetectedFace) string {
	return fmt.Sprintf("%.0f,%.0f %.0fx%.0f", f.X, f.Y, f.Width, f.Height)
}

func formatAge(a *models.AgeResult) string {
	if a == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f (%.2f)", a.Estimate, a.Confidence)
}

func formatLabel(c *models.ClassificationResult) string {
	if c == nil {
		return "-"
	}
	return fmt.Sprintf("%s (%.2f)", c.Label, c.Confidence)
}
