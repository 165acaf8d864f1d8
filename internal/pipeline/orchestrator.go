package pipeline

import (
	"context"
	"time"

	"github.com/nexconsult/precatorios/internal/models"
	"github.com/sirupsen/logrus"
)

// Orchestrator runs the worker pool over partitions one after another
type Orchestrator struct {
	pool    *WorkerPool
	journal OutcomeJournal
	sink    ProgressSink
	logger  *logrus.Logger
}

// NewOrchestrator creates an orchestrator. journal and sink may be nil.
func NewOrchestrator(pool *WorkerPool, journal OutcomeJournal, sink ProgressSink, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		pool:    pool,
		journal: journal,
		sink:    sink,
		logger:  logger,
	}
}

// Run extracts partitions sequentially and returns every record and one
// outcome per attempted partition. A failed partition never stops the run;
// only ctx cancellation does, after which the remaining partitions have no
// outcome.
func (o *Orchestrator) Run(ctx context.Context, runID string, partitions []models.Partition, numWorkers int, pass models.Pass) ([]models.Record, []models.PartitionOutcome) {
	log := o.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"pass":   pass,
	})
	log.WithFields(logrus.Fields{
		"partitions": len(partitions),
		"workers":    numWorkers,
	}).Info("Starting extraction pass")

	return o.runPass(ctx, runID, partitions, pass, log, func(ctx context.Context, partition models.Partition, heartbeat Heartbeat) PartitionResult {
		return o.pool.ExtractPartition(ctx, partition, numWorkers, WithPass(pass), WithHeartbeat(heartbeat))
	})
}

// Fill re-renders only the failed pages of each gap's outcome. Outcomes are
// journaled and published like those of Run, with the recovery pass.
func (o *Orchestrator) Fill(ctx context.Context, runID string, gaps []Gap) ([]models.Record, []models.PartitionOutcome) {
	log := o.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"pass":   models.PassRecovery,
	})
	log.WithField("partitions", len(gaps)).Info("Starting page fill pass")

	previous := make(map[int]models.PartitionOutcome, len(gaps))
	partitions := make([]models.Partition, 0, len(gaps))
	for _, gap := range gaps {
		if gap.Outcome == nil {
			continue
		}
		previous[gap.Partition.ID] = *gap.Outcome
		partitions = append(partitions, gap.Partition)
	}

	return o.runPass(ctx, runID, partitions, models.PassRecovery, log, func(ctx context.Context, partition models.Partition, heartbeat Heartbeat) PartitionResult {
		return o.pool.FillPages(ctx, partition, previous[partition.ID], WithPass(models.PassRecovery), WithHeartbeat(heartbeat))
	})
}

type extractFunc func(ctx context.Context, partition models.Partition, heartbeat Heartbeat) PartitionResult

func (o *Orchestrator) runPass(ctx context.Context, runID string, partitions []models.Partition, pass models.Pass, log *logrus.Entry, extract extractFunc) ([]models.Record, []models.PartitionOutcome) {
	started := time.Now()
	phase := models.PhaseExtraction
	if pass == models.PassRecovery {
		phase = models.PhaseRecovery
	}

	var records []models.Record
	outcomes := make([]models.PartitionOutcome, 0, len(partitions))

	for i, partition := range partitions {
		i, partition := i, partition // per-iteration copies (go directive < 1.22)
		if err := ctx.Err(); err != nil {
			log.WithError(err).WithField("remaining", len(partitions)-i).Warn("Extraction pass cancelled")
			break
		}

		committed := len(records)
		heartbeat := func(pr models.PageRange, page, workerRecords int) {
			o.publish(models.ProgressEvent{
				Kind:             models.ProgressHeartbeat,
				Phase:            phase,
				Pass:             pass,
				PartitionsDone:   i,
				PartitionsTotal:  len(partitions),
				RecordsSoFar:     committed + workerRecords,
				CurrentPartition: partition.ID,
				Range:            pr.String(),
				Page:             page,
				Elapsed:          time.Since(started),
			})
		}

		result := extract(ctx, partition, heartbeat)
		records = append(records, result.Records...)
		outcomes = append(outcomes, result.Outcome)

		if o.journal != nil {
			if err := o.journal.Append(ctx, runID, result.Outcome); err != nil {
				log.WithError(err).WithField("partition_id", partition.ID).Warn("Failed to journal partition outcome")
			}
		}

		o.publish(models.ProgressEvent{
			Kind:             models.ProgressPartition,
			Phase:            phase,
			Pass:             pass,
			PartitionsDone:   i + 1,
			PartitionsTotal:  len(partitions),
			RecordsSoFar:     len(records),
			CurrentPartition: partition.ID,
			Status:           result.Outcome.Status,
			Elapsed:          time.Since(started),
		})
	}

	log.WithFields(logrus.Fields{
		"records":  len(records),
		"attempts": len(outcomes),
		"duration": time.Since(started).String(),
	}).Info("Extraction pass finished")

	return records, outcomes
}

func (o *Orchestrator) publish(event models.ProgressEvent) {
	if o.sink == nil {
		return
	}
	event.Timestamp = time.Now()
	o.sink.Publish(event)
}
