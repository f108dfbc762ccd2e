package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/RyanBlaney/magictales/internal/report"
	"github.com/RyanBlaney/magictales/internal/store"
	"github.com/spf13/cobra"
)

var (
	analyticsOutput string
	analyticsXLSX   string
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Print emotion and story counters",
	Long: `Read the analytics stores and print, per emotion, how often it was
detected and how many stories were generated for it, with percentages.

Examples:
  magictales analytics
  magictales analytics --output json
  magictales analytics --xlsx analytics.xlsx`,
	Args: cobra.NoArgs,
	RunE: runAnalytics,
}

func init() {
	rootCmd.AddCommand(analyticsCmd)

	analyticsCmd.Flags().StringVarP(&analyticsOutput, "output", "o", "table", "output format (table, json)")
	analyticsCmd.Flags().StringVar(&analyticsXLSX, "xlsx", "", "also write a spreadsheet to this path")
}

func runAnalytics(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Storage.DataDir)
	if err != nil {
		return err
	}

	reporter := report.New(st.Users, st.Emotions, st.Stories)
	viz, err := reporter.Visualization()
	if err != nil {
		return err
	}
	dash, err := reporter.Dashboard()
	if err != nil {
		return err
	}

	if analyticsXLSX != "" {
		f, err := os.Create(analyticsXLSX)
		if err != nil {
			return err
		}
		if err := report.WriteXLSX(f, viz); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Spreadsheet written to %s\n", analyticsXLSX)
	}

	switch analyticsOutput {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"dashboard":     dash,
			"visualization": viz,
		})
	case "table":
		printAnalyticsTable(cmd.OutOrStdout(), dash, viz)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", analyticsOutput)
	}
}

func printAnalyticsTable(w io.Writer, dash *report.Dashboard, viz *report.Visualization) {
	fmt.Fprintf(w, "%sMagicTales analytics%s\n", ColorCyan, ColorReset)
	fmt.Fprintln(w, strings.Repeat("=", 56))
	fmt.Fprintf(w, "%-20s %d\n", "Users:", dash.TotalUsers)
	fmt.Fprintf(w, "%-20s %d\n", "Emotions detected:", viz.TotalEmotions)
	fmt.Fprintf(w, "%-20s %d\n", "Stories generated:", viz.TotalStories)
	if dash.Most != nil {
		fmt.Fprintf(w, "%-20s %s (%d)\n", "Most detected:", dash.Most.Label, dash.Most.Count)
		fmt.Fprintf(w, "%-20s %s (%d)\n", "Least detected:", dash.Least.Label, dash.Least.Count)
	}
	fmt.Fprintln(w, strings.Repeat("-", 56))

	fmt.Fprintf(w, "%-10s %10s %10s %10s %10s\n", "EMOTION", "DETECTED", "SHARE", "STORIES", "SHARE")
	for _, r := range viz.Rows {
		fmt.Fprintf(w, "%-10s %10d %9.1f%% %10d %9.1f%%\n",
			r.Display, r.Detected, r.DetectedPercent, r.Stories, r.StoriesPercent)
	}
}
