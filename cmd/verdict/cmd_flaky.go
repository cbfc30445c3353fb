package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"verdict/adapters/store"
	"verdict/internal/batch"
	"verdict/internal/format"
	"verdict/internal/history"
	"verdict/internal/logging"
)

var flakyFlags struct {
	testFilter string
	window     int
	threshold  int
	format     string
}

var flakyCmd = &cobra.Command{
	Use:   "flaky <build-tag>",
	Short: "Report flaky tests for one build without classifying failures",
	Long: `Compute the flaky report for a build from execution history alone.
Skips artifact parsing and the AI classifier, so it needs nothing but the
datastore.`,
	Args: cobra.ExactArgs(1),
	RunE: runFlaky,
}

func init() {
	f := flakyCmd.Flags()
	f.StringVar(&flakyFlags.testFilter, "test", "", "Restrict the report to one test name")
	f.IntVar(&flakyFlags.window, "window", 0, "Execution history window size")
	f.IntVar(&flakyFlags.threshold, "threshold", 0, "Failure count that flags a test flaky")
	f.StringVar(&flakyFlags.format, "format", "ascii", "Table format (ascii, markdown)")
}

func runFlaky(cmd *cobra.Command, args []string) error {
	buildTag := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flakyFlags.window > 0 {
		cfg.Analysis.Window = flakyFlags.window
	}
	if flakyFlags.threshold > 0 {
		cfg.Analysis.FlakyThreshold = flakyFlags.threshold
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	pipeline := batch.New(batch.Deps{
		Store:       st,
		Analyzer:    history.Analyzer{Window: cfg.Analysis.Window, Threshold: cfg.Analysis.FlakyThreshold},
		Concurrency: cfg.Classifier.Concurrency,
		Logger:      logging.New("batch"),
	})
	out, err := pipeline.Run(cmd.Context(), buildTag, "", flakyFlags.testFilter)
	if err != nil {
		return err
	}

	mode := format.ParseMode(flakyFlags.format)
	fmt.Println(format.FlakyTable(out.FlakyReport(), mode))
	fmt.Printf("\n%d of %d tests flaky, run trend: %s\n",
		out.Summary().FlakyTests, out.Summary().Total, out.Summary().RunTrend)
	return nil
}
