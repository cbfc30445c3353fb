package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"verdict/adapters/store"
	"verdict/internal/logging"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <results.json>",
	Short: "Load execution rows from a JSON file into the datastore",
	Long: `Ingest appends test execution rows to the datastore, for environments
where CI does not write to it directly. The file holds a JSON array:

  [
    {"build_tag": "Regression-41", "test_name": "suites.api.Cls.testPay",
     "status": "FAILED", "failure_reason": "expected [201] but found [500]"}
  ]

Status values are parsed leniently (PASSED/SUCCESS/OK, FAILED/ERROR,
SKIPPED); unknown values degrade to PASS with a warning.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

// ingestRow is the wire shape of one execution row.
type ingestRow struct {
	BuildTag      string `json:"build_tag"`
	TestName      string `json:"test_name"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason"`
	CreatedAt     string `json:"created_at"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.New("ingest")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read results file: %w", err)
	}
	var rows []ingestRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("parse results file: %w", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	inserted, skipped := 0, 0
	for _, row := range rows {
		if row.TestName == "" || row.BuildTag == "" {
			skipped++
			continue
		}
		status, known := store.ParseStatus(row.Status)
		if !known {
			log.Warn("unknown status, recording as PASS",
				"test", row.TestName, "status", row.Status)
		}
		_, err := st.InsertExecution(cmd.Context(), &store.ExecutionRecord{
			BuildTag:      row.BuildTag,
			TestName:      row.TestName,
			Status:        status,
			FailureReason: row.FailureReason,
			CreatedAt:     row.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("insert row for %s: %w", row.TestName, err)
		}
		inserted++
	}

	log.Info("ingest complete", "inserted", inserted, "skipped", skipped)
	fmt.Printf("Inserted %d rows (%d skipped) into %s\n", inserted, skipped, cfg.DBPath)
	return nil
}
