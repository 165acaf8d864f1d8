package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nexconsult/precatorios/internal/models"
	"github.com/nexconsult/precatorios/internal/pipeline"
	"github.com/nexconsult/precatorios/internal/services"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runID string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one extraction and export it",
	Long: `Run lists the debtor entities of a regime, extracts every partition with the
primary worker pool, retries flagged partitions once with fewer workers and
exports the merged records.

Outcomes are journaled as partitions finish, so 'precatorios gaps' can inspect
an interrupted run.`,
	RunE: runExtraction,
}

func init() {
	addRunFlags(runCmd)
	addListingFlags(runCmd)
	runCmd.Flags().StringVar(&runID, "run-id", "", "run identifier (default: random UUID)")
}

func runExtraction(cmd *cobra.Command, args []string) error {
	cfg, log, closer, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	container, err := services.NewContainer(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.WithError(err).Warn("Failed to close services")
		}
	}()

	result, err := container.Runner.Run(cmd.Context(), pipeline.RunRequest{
		RunID:    runID,
		EntityID: flags.entityID,
	})
	if err != nil {
		log.WithError(err).Error("Run aborted")
		return err
	}

	logSummary(log, result)
	return printJSON(struct {
		RunID         string                          `json:"run_id"`
		Regime        models.Regime                   `json:"regime"`
		Duration      string                          `json:"duration"`
		Summary       models.RunSummary               `json:"summary"`
		Unrecoverable []models.UnrecoverablePartition `json:"unrecoverable"`
		Exports       []models.ExportResult           `json:"exports,omitempty"`
	}{
		RunID:         result.RunID,
		Regime:        result.Regime,
		Duration:      result.Duration().String(),
		Summary:       result.Summary,
		Unrecoverable: result.Unrecoverable,
		Exports:       result.Exports,
	})
}

func logSummary(log *logrus.Logger, result *models.RunResult) {
	s := result.Summary
	log.WithFields(logrus.Fields{
		"run_id":        result.RunID,
		"attempted":     s.PartitionsAttempted,
		"succeeded":     s.PartitionsSucceeded,
		"recovered":     s.PartitionsRecovered,
		"unrecoverable": s.PartitionsUnrecoverable,
		"records":       s.TotalRecords,
		"expected":      s.ExpectedRecords,
		"completeness":  fmt.Sprintf("%.2f%%", s.CompletenessPercent),
		"duration":      result.Duration().String(),
	}).Info("Run finished")

	for _, u := range result.Unrecoverable {
		log.WithFields(logrus.Fields{
			"partition_id": u.Partition.ID,
			"partition":    u.Partition.Name,
			"status":       u.Status,
			"pages":        formatPages(u.MissingPages),
			"error":        u.ErrorDetail,
		}).Warn("Partition unrecoverable")
	}
	for _, e := range result.Exports {
		entry := log.WithFields(logrus.Fields{"format": e.Format, "location": e.Location})
		if e.Error != "" {
			entry.WithField("error", e.Error).Error("Export failed")
			continue
		}
		entry.Info("Export written")
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
