package pipeline

import (
	"context"
	"sync"

	"github.com/nexconsult/precatorios/internal/models"
	"github.com/sirupsen/logrus"
)

// RecoveryRunner re-extracts flagged partitions through the same orchestrator
// as the primary pass. Each run is recovered at most once.
type RecoveryRunner struct {
	orchestrator *Orchestrator
	logger       *logrus.Logger

	mu        sync.Mutex
	recovered map[string]bool
}

// NewRecoveryRunner creates a new recovery runner
func NewRecoveryRunner(orchestrator *Orchestrator, logger *logrus.Logger) *RecoveryRunner {
	return &RecoveryRunner{
		orchestrator: orchestrator,
		logger:       logger,
		recovered:    make(map[string]bool),
	}
}

// Recover re-extracts the flagged partitions in full with reducedWorkers
// each. A second call for the same run returns nothing.
func (r *RecoveryRunner) Recover(ctx context.Context, runID string, flagged []models.Partition, reducedWorkers int) ([]models.Record, []models.PartitionOutcome) {
	gaps := make([]Gap, 0, len(flagged))
	for _, p := range flagged {
		gaps = append(gaps, Gap{Partition: p})
	}
	return r.RecoverGaps(ctx, runID, gaps, reducedWorkers)
}

// RecoverGaps recovers each gap once. Partial failures whose failed pages
// are known, and are at most half of the partition, get only those pages
// re-rendered; every other gap is re-extracted in full with reducedWorkers.
// A second call for the same run returns nothing.
func (r *RecoveryRunner) RecoverGaps(ctx context.Context, runID string, gaps []Gap, reducedWorkers int) ([]models.Record, []models.PartitionOutcome) {
	log := r.logger.WithField("run_id", runID)

	if len(gaps) == 0 {
		log.Info("No partitions need recovery")
		return nil, nil
	}

	r.mu.Lock()
	if r.recovered[runID] {
		r.mu.Unlock()
		log.Warn("Recovery already ran for this run, refusing to retry again")
		return nil, nil
	}
	r.recovered[runID] = true
	r.mu.Unlock()

	if reducedWorkers < 1 {
		reducedWorkers = 1
	}

	var fills []Gap
	var full []models.Partition
	for _, gap := range gaps {
		if pageFillable(gap) {
			fills = append(fills, gap)
		} else {
			full = append(full, gap.Partition)
		}
	}

	var records []models.Record
	var outcomes []models.PartitionOutcome

	if len(fills) > 0 {
		ids := make([]int, 0, len(fills))
		for _, gap := range fills {
			ids = append(ids, gap.Partition.ID)
		}
		log.WithField("partitions", ids).Info("Filling failed pages of partially extracted partitions")
		filled, fillOutcomes := r.orchestrator.Fill(ctx, runID, fills)
		records = append(records, filled...)
		outcomes = append(outcomes, fillOutcomes...)
	}

	if len(full) > 0 {
		ids := make([]int, 0, len(full))
		for _, p := range full {
			ids = append(ids, p.ID)
		}
		log.WithFields(logrus.Fields{
			"partitions": ids,
			"workers":    reducedWorkers,
		}).Info("Recovering flagged partitions")
		extracted, fullOutcomes := r.orchestrator.Run(ctx, runID, full, reducedWorkers, models.PassRecovery)
		records = append(records, extracted...)
		outcomes = append(outcomes, fullOutcomes...)
	}

	return records, outcomes
}

// pageFillable reports whether gap can be closed by re-rendering its failed
// pages instead of the whole partition
func pageFillable(gap Gap) bool {
	o := gap.Outcome
	if gap.Status != models.StatusPartialFailure || o == nil {
		return false
	}
	n := len(o.FailedPages)
	return n > 0 && n == o.PagesFailed && 2*n <= o.PagesPlanned
}
