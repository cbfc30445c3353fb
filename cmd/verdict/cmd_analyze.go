package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"verdict/adapters/artifacts"
	"verdict/adapters/llm"
	"verdict/adapters/store"
	"verdict/internal/batch"
	"verdict/internal/classify"
	"verdict/internal/config"
	"verdict/internal/format"
	"verdict/internal/history"
	"verdict/internal/logging"
)

var analyzeFlags struct {
	reportDir   string
	output      string
	testFilter  string
	window      int
	threshold   int
	retries     int
	concurrency int
	llmURL      string
	llmModel    string
	format      string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <build-tag>",
	Short: "Run the full analysis batch for one build",
	Long: `Analyze one build: fetch its execution records, correlate them with
the HTML report artifacts, classify every failure and compute flaky and
trend analysis over the recent execution window.

Usage:
  verdict analyze Regression-Growth-41 --report-dir ./reports/run-41

The classifier endpoint defaults to a local Ollama instance; override it
with --llm-url and --llm-model or in the config file.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeFlags.reportDir, "report-dir", "", "Report directory with html/overview.html (optional)")
	f.StringVar(&analyzeFlags.output, "output", "", "Path for the JSON analysis artifact")
	f.StringVar(&analyzeFlags.testFilter, "test", "", "Restrict the batch to one test name")
	f.IntVar(&analyzeFlags.window, "window", 0, "Execution history window size")
	f.IntVar(&analyzeFlags.threshold, "threshold", 0, "Failure count that flags a test flaky")
	f.IntVar(&analyzeFlags.retries, "retries", -1, "Classifier retry budget for transient failures")
	f.IntVar(&analyzeFlags.concurrency, "concurrency", 0, "Concurrent classifier calls")
	f.StringVar(&analyzeFlags.llmURL, "llm-url", "", "Classifier endpoint base URL")
	f.StringVar(&analyzeFlags.llmModel, "llm-model", "", "Classifier model name")
	f.StringVar(&analyzeFlags.format, "format", "ascii", "Table format (ascii, markdown)")
}

// applyAnalyzeFlags folds the command flags over the loaded config.
func applyAnalyzeFlags(cfg *config.Config) error {
	if analyzeFlags.reportDir != "" {
		cfg.ReportDir = analyzeFlags.reportDir
	}
	if analyzeFlags.window > 0 {
		cfg.Analysis.Window = analyzeFlags.window
	}
	if analyzeFlags.threshold > 0 {
		cfg.Analysis.FlakyThreshold = analyzeFlags.threshold
	}
	if analyzeFlags.retries >= 0 {
		cfg.Classifier.Retries = analyzeFlags.retries
	}
	if analyzeFlags.concurrency > 0 {
		cfg.Classifier.Concurrency = analyzeFlags.concurrency
	}
	if analyzeFlags.llmURL != "" {
		cfg.Classifier.BaseURL = analyzeFlags.llmURL
	}
	if analyzeFlags.llmModel != "" {
		cfg.Classifier.Model = analyzeFlags.llmModel
	}
	return cfg.Validate()
}

// analysisArtifact is the JSON document written next to the tables.
type analysisArtifact struct {
	GeneratedAt string               `json:"generated_at"`
	Summary     batch.Summary        `json:"summary"`
	Results     []batch.Result       `json:"results"`
	Flaky       []history.FlakyRecord `json:"flaky"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	buildTag := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyAnalyzeFlags(cfg); err != nil {
		return err
	}
	log := logging.New("analyze")

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := llm.New(cfg.Classifier.BaseURL, cfg.Classifier.Model,
		llm.WithLogger(logging.New("llm")),
		llm.WithTimeout(cfg.Classifier.Timeout.Std()),
	)
	if err != nil {
		return err
	}
	refiner := classify.NewRefiner(client, classify.Options{
		Retries:     cfg.Classifier.Retries,
		BackoffBase: cfg.Classifier.BackoffBase.Std(),
		Concurrency: cfg.Classifier.Concurrency,
	}, logging.New("classify"))

	pipeline := batch.New(batch.Deps{
		Store:       st,
		Parser:      artifacts.NewParser(logging.New("artifacts")),
		Refiner:     refiner,
		Analyzer:    history.Analyzer{Window: cfg.Analysis.Window, Threshold: cfg.Analysis.FlakyThreshold},
		Concurrency: cfg.Classifier.Concurrency,
		Logger:      logging.New("batch"),
	})

	out, err := pipeline.Run(cmd.Context(), buildTag, cfg.ReportDir, analyzeFlags.testFilter)
	if err != nil {
		return err
	}

	artifactPath := analyzeFlags.output
	if artifactPath == "" {
		artifactPath = filepath.Join(filepath.Dir(cfg.DBPath),
			fmt.Sprintf("analysis-%s.json", buildTag))
	}
	if err := writeArtifact(artifactPath, out); err != nil {
		return err
	}
	log.Info("analysis artifact written", "path", artifactPath)

	mode := format.ParseMode(analyzeFlags.format)
	fmt.Println(format.ResultsTable(out.Results(), mode))
	fmt.Println(format.FlakyTable(out.FlakyReport(), mode))
	fmt.Println()
	fmt.Print(format.SummaryText(out.Summary()))
	return nil
}

func writeArtifact(path string, out *batch.Outcome) error {
	doc := analysisArtifact{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Summary:     out.Summary(),
		Results:     out.Results(),
		Flaky:       out.FlakyReport(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode analysis artifact: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write analysis artifact: %w", err)
	}
	return nil
}
