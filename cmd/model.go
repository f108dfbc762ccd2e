package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/RyanBlaney/magictales/emotion"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var modelOutput string

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Work with the classifier model artifact",
}

var modelInspectCmd = &cobra.Command{
	Use:   "inspect [path]",
	Short: "Load the model artifact and report its variant and shape",
	Long: `Load the classifier artifact (model.path or the given path) the same way the
server does. Reports the layers and parameter count, or the reason the
fallback classifier would be used instead.

Examples:
  magictales model inspect
  magictales model inspect models/ser_model.json --output json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runModelInspect,
}

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelInspectCmd)

	modelInspectCmd.Flags().StringVarP(&modelOutput, "output", "o", "table", "output format (table, json)")
}

type modelReport struct {
	Path    string             `json:"path"`
	Variant string             `json:"variant"`
	Model   *emotion.ModelInfo `json:"model,omitempty"`
	Reason  string             `json:"reason,omitempty"`
}

func runModelInspect(cmd *cobra.Command, args []string) error {
	path := viper.GetString("model.path")
	if len(args) == 1 {
		path = args[0]
	}

	classifier, loadErr := emotion.LoadClassifier(path)
	rep := modelReport{Path: path, Variant: classifier.Variant()}
	if m, ok := classifier.(*emotion.Model); ok {
		info := m.Network().Info()
		rep.Model = &info
	}
	if loadErr != nil {
		rep.Reason = loadErr.Error()
	}

	switch modelOutput {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	case "table":
		printModelReport(cmd.OutOrStdout(), rep)
	default:
		return fmt.Errorf("unknown output format %q", modelOutput)
	}

	if loadErr != nil && !errors.Is(loadErr, os.ErrNotExist) {
		return loadErr
	}
	return nil
}

func printModelReport(w io.Writer, rep modelReport) {
	fmt.Fprintf(w, "%-12s %s\n", "Path:", rep.Path)
	if rep.Model == nil {
		fmt.Fprintf(w, "%-12s %s%s%s\n", "Variant:", ColorYellow, rep.Variant, ColorReset)
		fmt.Fprintf(w, "%-12s %s\n", "Reason:", rep.Reason)
		return
	}

	m := rep.Model
	fmt.Fprintf(w, "%-12s %s%s%s\n", "Variant:", ColorGreen, rep.Variant, ColorReset)
	fmt.Fprintf(w, "%-12s %s %s\n", "Model:", m.Name, m.Version)
	fmt.Fprintf(w, "%-12s %v\n", "Input:", m.InputShape)
	fmt.Fprintf(w, "%-12s %d\n", "Parameters:", m.Parameters)
	fmt.Fprintln(w, "Layers:")
	for i, l := range m.Layers {
		fmt.Fprintf(w, "  %2d  %s\n", i, l)
	}
}
