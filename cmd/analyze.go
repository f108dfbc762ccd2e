package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/RyanBlaney/magictales/emotion"
	"github.com/RyanBlaney/magictales/internal/app"
	"github.com/spf13/cobra"
)

var (
	analyzeOutput  string
	analyzeRecord  bool
	analyzeTimeout time.Duration
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [flags] <file>...",
	Short: "Detect the emotion of local audio files",
	Long: `Run the emotion pipeline on one or more local files and print the label
with decoding diagnostics. Analytics are left untouched unless --record is set.

Examples:
  magictales analyze clip.wav
  magictales analyze --output json a.mp3 b.webm
  magictales analyze --record --model models/ser_model.json voice.flac`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "table", "output format (table, json)")
	analyzeCmd.Flags().BoolVar(&analyzeRecord, "record", false, "count results in the emotion analytics")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", 2*time.Minute, "overall timeout")
}

type analyzeResult struct {
	File     string            `json:"file"`
	Analysis *emotion.Analysis `json:"analysis,omitempty"`
	Error    string            `json:"error,omitempty"`
	Stage    string            `json:"stage,omitempty"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if analyzeOutput != "table" && analyzeOutput != "json" {
		return fmt.Errorf("unknown output format %q", analyzeOutput)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), analyzeTimeout)
	defer cancel()

	analyzer := a.Analyzer(analyzeRecord)
	results := make([]analyzeResult, 0, len(args))
	failed := 0

	for _, file := range args {
		res := analyzeResult{File: file}
		analysis, err := analyzer.Analyze(ctx, file)
		if err != nil {
			failed++
			res.Error = err.Error()
			res.Stage = emotion.StageOf(err)
		} else {
			res.Analysis = analysis
		}
		results = append(results, res)
	}

	if analyzeOutput == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		printAnalyzeTable(cmd.OutOrStdout(), results, a.Classifier.Variant())
	}

	if failed == len(args) {
		return fmt.Errorf("all %d files failed to analyze", failed)
	}
	return nil
}

func printAnalyzeTable(w io.Writer, results []analyzeResult, variant string) {
	fmt.Fprintf(w, "Classifier: %s\n\n", variant)
	fmt.Fprintf(w, "%-32s %-10s %-6s %9s %8s %7s\n", "FILE", "EMOTION", "FORMAT", "DURATION", "SILENCE", "FRAMES")
	for _, r := range results {
		if r.Analysis == nil {
			fmt.Fprintf(w, "%-32s %sFAILED%s at %s: %s\n", truncate(r.File, 32), ColorRed, ColorReset, r.Stage, r.Error)
			continue
		}
		a := r.Analysis
		fmt.Fprintf(w, "%-32s %s%-10s%s %-6s %8.2fs %7.1f%% %7d\n",
			truncate(r.File, 32), ColorGreen, a.Display, ColorReset, a.Format,
			a.Clip.Duration.Seconds(), a.Clip.SilenceRatio*100, a.Frames)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n+3:]
}
