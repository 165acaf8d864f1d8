package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nexconsult/precatorios/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// PoolOptions configures a worker pool
type PoolOptions struct {
	PageSize int
	// Timeout is the safety ceiling for one partition, not a tuning knob
	Timeout time.Duration
	// Grace is how long the pool keeps waiting for workers after the ceiling
	Grace     time.Duration
	Threshold float64
	Worker    WorkerOptions
}

// PartitionResult is a partition's outcome plus its records
type PartitionResult struct {
	Outcome models.PartitionOutcome
	Records []models.Record
}

// PoolStats holds pool counters
type PoolStats struct {
	Partitions     int64 `json:"partitions"`
	WorkersStarted int64 `json:"workers_started"`
	WorkersFatal   int64 `json:"workers_fatal"`
	ActiveWorkers  int64 `json:"active_workers"`
	PagesOK        int64 `json:"pages_ok"`
	PagesFailed    int64 `json:"pages_failed"`
	RowsSkipped    int64 `json:"rows_skipped"`
}

// WorkerPool splits a partition into page ranges and runs one worker per range
type WorkerPool struct {
	factory RendererFactory
	opts    PoolOptions
	logger  *logrus.Logger

	partitions     atomic.Int64
	workersStarted atomic.Int64
	workersFatal   atomic.Int64
	activeWorkers  atomic.Int64
	pagesOK        atomic.Int64
	pagesFailed    atomic.Int64
	rowsSkipped    atomic.Int64
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(factory RendererFactory, opts PoolOptions, logger *logrus.Logger) *WorkerPool {
	if opts.PageSize < 1 {
		opts.PageSize = 10
	}
	return &WorkerPool{
		factory: factory,
		opts:    opts,
		logger:  logger,
	}
}

type extractConfig struct {
	pass      models.Pass
	heartbeat Heartbeat
}

// ExtractOption customizes a single ExtractPartition call
type ExtractOption func(*extractConfig)

// WithPass labels the outcome with the pass that produced it
func WithPass(pass models.Pass) ExtractOption {
	return func(c *extractConfig) { c.pass = pass }
}

// WithHeartbeat receives worker heartbeats
func WithHeartbeat(fn Heartbeat) ExtractOption {
	return func(c *extractConfig) { c.heartbeat = fn }
}

type indexedResult struct {
	index  int
	result WorkerResult
}

// ExtractPartition extracts one partition with up to numWorkers concurrent
// range workers. Worker failures never cancel siblings; they only show up in
// the outcome counters.
func (p *WorkerPool) ExtractPartition(ctx context.Context, partition models.Partition, numWorkers int, opts ...ExtractOption) PartitionResult {
	cfg := extractConfig{pass: models.PassPrimary}
	for _, opt := range opts {
		opt(&cfg)
	}

	started := time.Now()
	p.partitions.Add(1)

	totalPages := TotalPages(partition.ExpectedRecords, p.opts.PageSize)
	ranges := []models.PageRange{{Start: 1, End: 1}}
	if totalPages > 1 {
		ranges = PlanRanges(totalPages, numWorkers)
	}

	log := p.logger.WithFields(logrus.Fields{
		"partition_id": partition.ID,
		"partition":    partition.Name,
		"pass":         cfg.pass,
	})
	log.WithFields(logrus.Fields{
		"expected_records": partition.ExpectedRecords,
		"pages":            totalPages,
		"workers":          len(ranges),
	}).Info("Extracting partition")

	poolCtx, cancel := context.WithCancel(ctx)
	if p.opts.Timeout > 0 {
		poolCtx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
	}
	defer cancel()

	// Buffered so that workers finishing after the grace period never block
	results := make(chan indexedResult, len(ranges))

	var g errgroup.Group
	for i, pr := range ranges {
		i, pr := i, pr // per-iteration copies (go directive < 1.22)
		worker := NewRangeWorker(i+1, p.factory, p.opts.Worker, p.logger)
		worker.heartbeat = cfg.heartbeat
		p.workersStarted.Add(1)

		g.Go(func() error {
			p.activeWorkers.Add(1)
			defer p.activeWorkers.Add(-1)
			results <- indexedResult{index: i, result: worker.Run(poolCtx, partition, pr)}
			return nil
		})
	}

	collected := p.collect(poolCtx, results, len(ranges), log)
	if len(collected) == len(ranges) {
		_ = g.Wait()
	}

	workerResults := make([]WorkerResult, len(ranges))
	for i, pr := range ranges {
		res, ok := collected[i]
		if !ok {
			res = WorkerResult{
				Range: pr,
				Fatal: true,
				Err:   fmt.Errorf("worker for range %s did not finish before the pool timeout", pr),
			}
			res.failPages(pr.Start, pr.End)
		}
		workerResults[i] = res
	}

	result := p.aggregate(partition, cfg.pass, totalPages, workerResults)
	result.Outcome.StartedAt = started
	result.Outcome.Duration = time.Since(started)

	log.WithFields(logrus.Fields{
		"records":      result.Outcome.RecordsExtracted,
		"pages_failed": result.Outcome.PagesFailed,
		"status":       result.Outcome.Status,
		"duration":     result.Outcome.Duration.String(),
	}).Info("Partition complete")

	return result
}

// FillPages re-renders the failed pages of previous with a single worker and
// returns previous patched with the result: its record count grows by the
// recovered rows and only the pages that failed again stay in FailedPages.
// The records returned are those of the filled pages alone.
func (p *WorkerPool) FillPages(ctx context.Context, partition models.Partition, previous models.PartitionOutcome, opts ...ExtractOption) PartitionResult {
	cfg := extractConfig{pass: models.PassRecovery}
	for _, opt := range opts {
		opt(&cfg)
	}

	started := time.Now()
	p.partitions.Add(1)
	pages := slices.Clone(previous.FailedPages)

	log := p.logger.WithFields(logrus.Fields{
		"partition_id": partition.ID,
		"partition":    partition.Name,
		"pass":         cfg.pass,
	})
	log.WithField("pages", pages).Info("Filling failed pages")

	fillCtx, cancel := context.WithCancel(ctx)
	if p.opts.Timeout > 0 {
		fillCtx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
	}
	defer cancel()

	worker := NewRangeWorker(1, p.factory, p.opts.Worker, p.logger)
	worker.heartbeat = cfg.heartbeat
	p.workersStarted.Add(1)
	p.activeWorkers.Add(1)
	wr := worker.RunPages(fillCtx, partition, pages)
	p.activeWorkers.Add(-1)

	p.pagesOK.Add(int64(wr.PagesOK))
	p.pagesFailed.Add(int64(wr.PagesFailed))
	p.rowsSkipped.Add(int64(wr.RowsSkipped))
	if wr.Fatal {
		p.workersFatal.Add(1)
	}

	outcome := previous
	outcome.Pass = cfg.pass
	outcome.FilledPages = pages
	outcome.FailedPages = wr.FailedPages
	outcome.PagesFailed = len(wr.FailedPages)
	outcome.RecordsExtracted += len(wr.Records)
	outcome.RowsSkipped += wr.RowsSkipped
	outcome.Workers = 1
	outcome.WorkersFatal = 0
	if wr.Fatal {
		outcome.WorkersFatal = 1
	}
	outcome.ErrorDetail = ""
	if wr.Err != nil {
		outcome.ErrorDetail = fmt.Sprintf("pages %v: %v", pages, wr.Err)
	}
	outcome.Status = Classify(outcome, p.opts.Threshold)
	outcome.StartedAt = started
	outcome.Duration = time.Since(started)

	log.WithFields(logrus.Fields{
		"records":      len(wr.Records),
		"failed_pages": outcome.FailedPages,
		"status":       outcome.Status,
		"duration":     outcome.Duration.String(),
	}).Info("Page fill complete")

	return PartitionResult{Outcome: outcome, Records: wr.Records}
}

// collect receives worker results until all arrived or the ceiling plus the
// grace period elapsed
func (p *WorkerPool) collect(ctx context.Context, results <-chan indexedResult, expected int, log *logrus.Entry) map[int]WorkerResult {
	collected := make(map[int]WorkerResult, expected)
	done := ctx.Done()
	var deadline <-chan time.Time

	for len(collected) < expected {
		select {
		case r := <-results:
			collected[r.index] = r.result
		case <-done:
			done = nil
			if ctx.Err() == context.DeadlineExceeded {
				log.WithField("outstanding", expected-len(collected)).Warn("Pool timeout reached, waiting for workers to wind down")
			}
			timer := time.NewTimer(p.opts.Grace)
			defer timer.Stop()
			deadline = timer.C
		case <-deadline:
			log.WithField("outstanding", expected-len(collected)).Error("Abandoning workers that did not stop in time")
			return collected
		}
	}
	return collected
}

func (p *WorkerPool) aggregate(partition models.Partition, pass models.Pass, totalPages int, workerResults []WorkerResult) PartitionResult {
	outcome := models.PartitionOutcome{
		PartitionID:     partition.ID,
		PartitionName:   partition.Name,
		Pass:            pass,
		ExpectedRecords: partition.ExpectedRecords,
		PagesPlanned:    max(totalPages, 1),
		Workers:         len(workerResults),
	}

	var records []models.Record
	var details []string
	for _, wr := range workerResults {
		records = append(records, wr.Records...)
		outcome.PagesAttempted += wr.PagesOK + wr.PagesFailed
		outcome.PagesFailed += wr.PagesFailed
		outcome.FailedPages = append(outcome.FailedPages, wr.FailedPages...)
		outcome.RowsSkipped += wr.RowsSkipped
		if wr.Fatal {
			outcome.WorkersFatal++
		}
		if wr.Err != nil {
			details = append(details, fmt.Sprintf("%s: %v", wr.Range, wr.Err))
		}

		p.pagesOK.Add(int64(wr.PagesOK))
		p.pagesFailed.Add(int64(wr.PagesFailed))
		p.rowsSkipped.Add(int64(wr.RowsSkipped))
		if wr.Fatal {
			p.workersFatal.Add(1)
		}
	}

	slices.Sort(outcome.FailedPages)
	outcome.RecordsExtracted = len(records)
	outcome.ErrorDetail = strings.Join(details, "; ")
	outcome.Status = Classify(outcome, p.opts.Threshold)

	return PartitionResult{Outcome: outcome, Records: records}
}

// Stats returns a snapshot of the pool counters
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Partitions:     p.partitions.Load(),
		WorkersStarted: p.workersStarted.Load(),
		WorkersFatal:   p.workersFatal.Load(),
		ActiveWorkers:  p.activeWorkers.Load(),
		PagesOK:        p.pagesOK.Load(),
		PagesFailed:    p.pagesFailed.Load(),
		RowsSkipped:    p.rowsSkipped.Load(),
	}
}

// Classify derives the status of an outcome from its counts
func Classify(o models.PartitionOutcome, threshold float64) models.OutcomeStatus {
	switch {
	case o.RecordsExtracted == 0 && o.ExpectedRecords > 0:
		return models.StatusZeroYield
	case o.Workers > 0 && o.WorkersFatal == o.Workers:
		return models.StatusFatalError
	case o.PagesFailed > 0:
		return models.StatusPartialFailure
	case threshold > 0 && o.RecordsExtracted > 0 && float64(o.RecordsExtracted) < float64(o.ExpectedRecords)*threshold:
		return models.StatusPartialFailure
	default:
		return models.StatusSuccess
	}
}
