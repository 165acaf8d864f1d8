package pipeline

import (
	"context"
	"fmt"

	"github.com/nexconsult/precatorios/internal/models"
)

// Gap is a partition that needs recovery
type Gap struct {
	Partition models.Partition         `json:"partition"`
	Status    models.OutcomeStatus     `json:"status"`
	Outcome   *models.PartitionOutcome `json:"outcome,omitempty"`
	// MissingPages are the pages that failed in the latest outcome. Empty
	// when the gap is not page-shaped (zero yield, under-count, not attempted).
	MissingPages []int `json:"missing_pages,omitempty"`
}

// GapDetector classifies partition outcomes. It holds no state besides its
// threshold, so detection is a pure function of its inputs.
type GapDetector struct {
	threshold float64
}

// NewGapDetector creates a detector. A threshold of 0 never flags a partition
// for under-count alone, only for zero yield or failed pages.
func NewGapDetector(threshold float64) *GapDetector {
	return &GapDetector{threshold: threshold}
}

// Detect returns the gaps among partitions in input order. For partitions
// with several outcomes the last one wins. Partitions without any outcome
// are reported as not attempted.
func (d *GapDetector) Detect(partitions []models.Partition, outcomes []models.PartitionOutcome) []Gap {
	latest := make(map[int]models.PartitionOutcome, len(outcomes))
	for _, outcome := range outcomes {
		latest[outcome.PartitionID] = outcome
	}

	var gaps []Gap
	for _, partition := range partitions {
		outcome, ok := latest[partition.ID]
		if !ok {
			gaps = append(gaps, Gap{Partition: partition, Status: models.StatusNotAttempted})
			continue
		}

		status := Classify(outcome, d.threshold)
		if !status.NeedsRecovery() {
			continue
		}
		gaps = append(gaps, Gap{
			Partition:    partition,
			Status:       status,
			Outcome:      &outcome,
			MissingPages: outcome.FailedPages,
		})
	}
	return gaps
}

// Flagged returns only the partitions of Detect
func (d *GapDetector) Flagged(partitions []models.Partition, outcomes []models.PartitionOutcome) []models.Partition {
	gaps := d.Detect(partitions, outcomes)
	flagged := make([]models.Partition, 0, len(gaps))
	for _, gap := range gaps {
		flagged = append(flagged, gap.Partition)
	}
	return flagged
}

// DetectFromJournal runs detection against the outcomes persisted for runID,
// which also works for runs that were interrupted
func (d *GapDetector) DetectFromJournal(ctx context.Context, journal OutcomeReader, runID string, partitions []models.Partition) ([]Gap, error) {
	outcomes, err := journal.Load(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load outcomes for run %s: %w", runID, err)
	}
	return d.Detect(partitions, outcomes), nil
}
