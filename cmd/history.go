package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Tutortoise/face-enrichment-service/store"
)

var (
	historyLimit int
	historyReset bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently stored detection results",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("no database configured (set DATABASE_URL or --db)")
		}
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore(db)

		if historyReset {
			if !confirm(bufio.NewReader(os.Stdin), "Are you sure you want to DROP all stored results?") {
				return nil
			}
			if err := db.Reset(cmd.Context()); err != nil {
				return fmt.Errorf("failed to reset database: %w", err)
			}
			fmt.Println("Stored results cleared.")
			return nil
		}

		records, err := db.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list results: %w", err)
		}
		return writeHistory(os.Stdout, records)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of requests to list")
	historyCmd.Flags().BoolVar(&historyReset, "reset", false, "Drop all stored results")
	rootCmd.AddCommand(historyCmd)
}

func writeHistory(out io.Writer, records []store.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(out, "No stored results.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "REQUEST\tSOURCE\tFACES\tCREATED\tSUMMARY")
	fmt.Fprintln(w, "-------\t------\t-----\t-------\t-------")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			r.RequestID, r.Source, r.FaceCount,
			r.CreatedAt.Local().Format("2006-01-02 15:04"), summarize(r))
	}
	return w.Flush()
}

func summarize(r store.Record) string {
	parts := make([]string, 0, len(r.Faces))
	for _, f := range r.Faces {
		var attrs []string
		if f.Age != nil {
			attrs = append(attrs, fmt.Sprintf("%.0fy", f.Age.Estimate))
		}
		if f.Gender != nil {
			attrs = append(attrs, f.Gender.Label)
		}
		if f.Emotion != nil {
			attrs = append(attrs, f.Emotion.Label)
		}
		if len(attrs) == 0 {
			attrs = append(attrs, "face")
		}
		parts = append(parts, strings.Join(attrs, "/"))
	}
	return strings.Join(parts, ", ")
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
