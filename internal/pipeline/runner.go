package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nexconsult/precatorios/internal/config"
	"github.com/nexconsult/precatorios/internal/models"
	"github.com/sirupsen/logrus"
)

// Options holds the pipeline parameters of a runner
type Options struct {
	Regime           models.Regime
	Workers          int
	RecoveryWorkers  int
	RecoveryEnabled  bool
	Threshold        float64
	Pool             PoolOptions
	PreflightTimeout time.Duration
	ExportTimeout    time.Duration
}

// NewOptions derives runner options from the configuration
func NewOptions(cfg *config.Config) Options {
	ext := cfg.Extraction
	timeouts := cfg.Timeouts()

	return Options{
		Regime:          ext.Regime,
		Workers:         ext.Workers,
		RecoveryWorkers: ext.RecoveryWorkers,
		RecoveryEnabled: ext.RecoveryEnabled,
		Threshold:       ext.CompletenessThreshold,
		Pool: PoolOptions{
			PageSize:  cfg.Portal.PageSize,
			Timeout:   ext.PoolTimeout(),
			Grace:     ext.PoolGrace,
			Threshold: ext.CompletenessThreshold,
			Worker: WorkerOptions{
				Retry: RetryPolicy{
					MaxAttempts: ext.MaxRetries,
					BaseDelay:   ext.RetryDelay,
					Multiplier:  ext.RetryMultiplier,
					MaxDelay:    ext.RetryMaxDelay,
				},
				PageTimeout:            ext.PageTimeout,
				FieldSet:               ext.FieldSet,
				HeartbeatEvery:         ext.HeartbeatEvery,
				MaxConsecutiveFailures: ext.MaxConsecutiveFailures,
			},
		},
		PreflightTimeout: timeouts.PreflightTimeout,
		ExportTimeout:    timeouts.ExportTimeout,
	}
}

// RunRequest holds the per-run parameters. Zero values fall back to Options.
type RunRequest struct {
	RunID           string        `json:"run_id,omitempty"`
	Regime          models.Regime `json:"regime,omitempty"`
	EntityID        int           `json:"entity_id,omitempty"`
	Workers         int           `json:"workers,omitempty"`
	RecoveryWorkers int           `json:"recovery_workers,omitempty"`
	SkipRecovery    bool          `json:"skip_recovery,omitempty"`
	// Partitions bypasses the lister when set
	Partitions []models.Partition `json:"-"`
}

// Runner executes the full workflow of a run: listing, primary pass, gap
// detection, one recovery pass, finalization and export
type Runner struct {
	lister    PartitionLister
	factory   RendererFactory
	sink      ProgressSink
	exporters []Exporter
	opts      Options
	logger    *logrus.Logger

	pool         *WorkerPool
	orchestrator *Orchestrator
	recovery     *RecoveryRunner
	detector     *GapDetector
	merger       *Merger
}

// NewRunner wires a runner. journal, sink and exporters are optional.
func NewRunner(lister PartitionLister, factory RendererFactory, journal OutcomeJournal, sink ProgressSink, exporters []Exporter, opts Options, logger *logrus.Logger) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.RecoveryWorkers < 1 {
		opts.RecoveryWorkers = min(5, opts.Workers)
	}

	pool := NewWorkerPool(factory, opts.Pool, logger)
	orchestrator := NewOrchestrator(pool, journal, sink, logger)

	return &Runner{
		lister:       lister,
		factory:      factory,
		sink:         sink,
		exporters:    exporters,
		opts:         opts,
		logger:       logger,
		pool:         pool,
		orchestrator: orchestrator,
		recovery:     NewRecoveryRunner(orchestrator, logger),
		detector:     NewGapDetector(opts.Threshold),
		merger:       NewMerger(),
	}
}

// Stats returns the worker pool counters
func (r *Runner) Stats() PoolStats {
	return r.pool.Stats()
}

// Detector returns the gap detector configured for this runner
func (r *Runner) Detector() *GapDetector {
	return r.detector
}

// Run executes one run. It fails only when there is nothing to extract or
// no renderer can be started; every other failure ends up in the result.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*models.RunResult, error) {
	startedAt := time.Now()
	req = r.normalize(req)

	log := r.logger.WithFields(logrus.Fields{
		"run_id": req.RunID,
		"regime": req.Regime,
	})
	log.WithFields(logrus.Fields{
		"workers":          req.Workers,
		"recovery_workers": req.RecoveryWorkers,
		"entity_id":        req.EntityID,
	}).Info("Starting run")

	r.phase(models.PhaseListing, 0, 0, 0, startedAt)
	partitions, err := r.resolvePartitions(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := r.preflight(ctx, partitions[0]); err != nil {
		log.WithError(err).Error("Preflight failed")
		return nil, err
	}

	r.phase(models.PhaseExtraction, 0, len(partitions), 0, startedAt)
	primaryRecords, primaryOutcomes := r.orchestrator.Run(ctx, req.RunID, partitions, req.Workers, models.PassPrimary)

	r.phase(models.PhaseGaps, len(primaryOutcomes), len(partitions), len(primaryRecords), startedAt)
	gaps := r.detector.Detect(partitions, primaryOutcomes)
	for _, gap := range gaps {
		log.WithFields(logrus.Fields{
			"partition_id":  gap.Partition.ID,
			"partition":     gap.Partition.Name,
			"status":        gap.Status,
			"missing_pages": gap.MissingPages,
		}).Warn("Partition flagged for recovery")
	}

	var recoveryRecords []models.Record
	var recoveryOutcomes []models.PartitionOutcome
	switch {
	case len(gaps) == 0:
	case req.SkipRecovery || !r.opts.RecoveryEnabled:
		log.WithField("flagged", len(gaps)).Info("Recovery disabled, flagged partitions stay unrecoverable")
	case ctx.Err() != nil:
		log.WithError(ctx.Err()).Warn("Run cancelled, skipping recovery")
	default:
		r.phase(models.PhaseRecovery, 0, len(gaps), len(primaryRecords), startedAt)
		recoveryRecords, recoveryOutcomes = r.recovery.RecoverGaps(ctx, req.RunID, gaps, req.RecoveryWorkers)
	}

	r.phase(models.PhaseFinalize, len(partitions), len(partitions), len(primaryRecords)+len(recoveryRecords), startedAt)
	merged := r.merger.Finalize(primaryRecords, recoveryRecords, Authoritative(recoveryOutcomes, r.opts.Threshold))

	result := BuildRunResult(RunEvidence{
		RunID:            req.RunID,
		Regime:           req.Regime,
		Partitions:       partitions,
		PrimaryOutcomes:  primaryOutcomes,
		RecoveryOutcomes: recoveryOutcomes,
		PrimaryRecords:   len(primaryRecords),
		RecoveryRecords:  len(recoveryRecords),
		Merge:            merged,
		StartedAt:        startedAt,
		FinishedAt:       time.Now(),
	}, r.detector)

	if len(r.exporters) > 0 {
		r.phase(models.PhaseExport, len(partitions), len(partitions), len(result.Records), startedAt)
		result.Exports = r.export(ctx, result, log)
	}

	log.WithFields(logrus.Fields{
		"records":       result.Summary.TotalRecords,
		"expected":      result.Summary.ExpectedRecords,
		"completeness":  fmt.Sprintf("%.2f%%", result.Summary.CompletenessPercent),
		"duplicates":    result.Summary.DuplicatesRemoved,
		"recovered":     result.Summary.PartitionsRecovered,
		"unrecoverable": result.Summary.PartitionsUnrecoverable,
		"duration":      time.Since(startedAt).String(),
	}).Info("Run finished")

	return result, nil
}

func (r *Runner) normalize(req RunRequest) RunRequest {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if req.Regime == "" {
		req.Regime = r.opts.Regime
	}
	if req.Workers < 1 {
		req.Workers = r.opts.Workers
	}
	if req.RecoveryWorkers < 1 {
		req.RecoveryWorkers = min(r.opts.RecoveryWorkers, req.Workers)
	}
	return req
}

func (r *Runner) resolvePartitions(ctx context.Context, req RunRequest) ([]models.Partition, error) {
	partitions := req.Partitions
	if len(partitions) == 0 {
		if r.lister == nil {
			return nil, ErrNoPartitions
		}
		listed, err := r.lister.ListPartitions(ctx, req.Regime)
		if err != nil {
			return nil, fmt.Errorf("failed to list partitions: %w", err)
		}
		partitions = listed
	}

	if req.EntityID > 0 {
		var filtered []models.Partition
		for _, p := range partitions {
			if p.ID == req.EntityID {
				filtered = append(filtered, p)
			}
		}
		partitions = filtered
	}

	if len(partitions) == 0 {
		return nil, ErrNoPartitions
	}
	return partitions, nil
}

// preflight acquires and releases one renderer so that a missing browser
// aborts the run before any partition is marked failed
func (r *Runner) preflight(ctx context.Context, partition models.Partition) error {
	if r.opts.PreflightTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.PreflightTimeout)
		defer cancel()
	}

	renderer, err := r.factory.NewRenderer(ctx, partition)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRendererUnavailable, err)
	}
	if err := renderer.Close(); err != nil {
		r.logger.WithError(err).Warn("Failed to release preflight renderer")
	}
	return nil
}

// export runs every exporter. Exporters keep running after the run context
// is cancelled so that partial results are still written.
func (r *Runner) export(ctx context.Context, result *models.RunResult, log *logrus.Entry) []models.ExportResult {
	exportCtx := context.WithoutCancel(ctx)
	exports := make([]models.ExportResult, 0, len(r.exporters))

	for _, exporter := range r.exporters {
		ectx, cancel := exportCtx, context.CancelFunc(func() {})
		if r.opts.ExportTimeout > 0 {
			ectx, cancel = context.WithTimeout(exportCtx, r.opts.ExportTimeout)
		}
		location, err := exporter.Export(ectx, result)
		cancel()

		entry := models.ExportResult{Format: exporter.Name(), Location: location}
		if err != nil {
			entry.Error = err.Error()
			log.WithError(err).WithField("format", exporter.Name()).Error("Export failed")
		} else {
			log.WithFields(logrus.Fields{
				"format":   exporter.Name(),
				"location": location,
			}).Info("Export written")
		}
		exports = append(exports, entry)
	}
	return exports
}

func (r *Runner) phase(phase string, done, total, records int, startedAt time.Time) {
	if r.sink == nil {
		return
	}
	r.sink.Publish(models.ProgressEvent{
		Kind:            models.ProgressPhase,
		Phase:           phase,
		PartitionsDone:  done,
		PartitionsTotal: total,
		RecordsSoFar:    records,
		Elapsed:         time.Since(startedAt),
		Timestamp:       time.Now(),
	})
}
