package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nexconsult/precatorios/internal/models"
	"github.com/sirupsen/logrus"
)

// WorkerOptions configures a range worker
type WorkerOptions struct {
	Retry                  RetryPolicy
	PageTimeout            time.Duration
	FieldSet               models.FieldSet
	HeartbeatEvery         int
	MaxConsecutiveFailures int
}

// WorkerResult is what a range worker hands back to its pool
type WorkerResult struct {
	Range       models.PageRange `json:"range"`
	Records     []models.Record  `json:"-"`
	PagesOK     int              `json:"pages_ok"`
	PagesFailed int              `json:"pages_failed"`
	FailedPages []int            `json:"failed_pages,omitempty"`
	RowsSkipped int              `json:"rows_skipped"`
	Fatal       bool             `json:"fatal"`
	Err         error            `json:"-"`
	Duration    time.Duration    `json:"duration"`
}

// Heartbeat is called by a worker every few pages
type Heartbeat func(pr models.PageRange, page, records int)

// RangeWorker renders and parses every page of one range with its own renderer
type RangeWorker struct {
	ID        int
	factory   RendererFactory
	parser    *RowParser
	opts      WorkerOptions
	logger    *logrus.Logger
	heartbeat Heartbeat
	now       func() time.Time
}

// NewRangeWorker creates a worker that acquires renderers from factory
func NewRangeWorker(id int, factory RendererFactory, opts WorkerOptions, logger *logrus.Logger) *RangeWorker {
	return &RangeWorker{
		ID:      id,
		factory: factory,
		parser:  NewRowParser(opts.FieldSet),
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// Run extracts pr for partition. It never returns an error: failures are
// reported through the result's counters, Fatal and Err.
func (w *RangeWorker) Run(ctx context.Context, partition models.Partition, pr models.PageRange) (result WorkerResult) {
	started := time.Now()
	result.Range = pr
	defer func() { result.Duration = time.Since(started) }()

	log := w.logger.WithFields(logrus.Fields{
		"partition_id": partition.ID,
		"range":        pr.String(),
		"worker":       w.ID,
	})

	renderer, err := w.factory.NewRenderer(ctx, partition)
	if err != nil {
		log.WithError(err).Error("Failed to acquire renderer")
		result.Fatal = true
		result.Err = fmt.Errorf("acquire renderer: %w", err)
		result.failPages(pr.Start, pr.End)
		return result
	}
	defer func() {
		if err := renderer.Close(); err != nil {
			log.WithError(err).Warn("Failed to release renderer")
		}
	}()

	log.Debug("Range worker started")

	consecutive := 0
	resync := false
	for page := pr.Start; page <= pr.End; page++ {
		var res *RenderResult
		var err error

		if page == pr.Start {
			res, err = w.positionAt(ctx, renderer, partition.ID, pr.Start, log)
			if err == nil && res == nil {
				log.Info("Range starts beyond the last page, nothing to extract")
				break
			}
		} else {
			req := w.request(partition.ID, page, false, NavigateStep)
			if resync {
				req.Navigation = NavigateJump
			}
			res, err = w.renderWithRetry(ctx, renderer, req, log)
		}

		if err != nil {
			if ctx.Err() != nil {
				result.failPages(page, pr.End)
				result.Err = fmt.Errorf("range interrupted at page %d: %w", page, ctx.Err())
				log.WithError(ctx.Err()).Warn("Range worker interrupted")
				break
			}

			result.failPages(page, page)
			consecutive++
			resync = true
			result.Err = fmt.Errorf("page %d: %w", page, err)
			log.WithError(err).WithField("page", page).Warn("Page failed after retries")

			if w.opts.MaxConsecutiveFailures > 0 && consecutive >= w.opts.MaxConsecutiveFailures {
				result.failPages(page+1, pr.End)
				result.Err = fmt.Errorf("stopped after %d consecutive page failures: %w", consecutive, err)
				log.WithField("page", page).Error("Too many consecutive failures, abandoning range")
				break
			}
			continue
		}

		consecutive = 0
		resync = false
		result.PagesOK++
		w.collect(&result, res.Rows, partition, page, log)

		if w.heartbeat != nil && w.opts.HeartbeatEvery > 0 && (result.PagesOK+result.PagesFailed)%w.opts.HeartbeatEvery == 0 {
			w.heartbeat(pr, page, len(result.Records))
		}

		if !res.HasNext {
			if page < pr.End {
				log.WithField("page", page).Info("No next page, range ends early")
			}
			break
		}
	}

	log.WithFields(logrus.Fields{
		"records":      len(result.Records),
		"pages_ok":     result.PagesOK,
		"pages_failed": result.PagesFailed,
		"rows_skipped": result.RowsSkipped,
	}).Info("Range worker finished")

	return result
}

// RunPages re-renders exactly pages of partition, reaching each one with a
// jump. It backs page-level gap filling, where the rest of the partition is
// already extracted.
func (w *RangeWorker) RunPages(ctx context.Context, partition models.Partition, pages []int) (result WorkerResult) {
	started := time.Now()
	defer func() { result.Duration = time.Since(started) }()
	if len(pages) == 0 {
		return result
	}

	pages = slices.Clone(pages)
	slices.Sort(pages)
	pages = slices.Compact(pages)
	result.Range = models.PageRange{Start: pages[0], End: pages[len(pages)-1]}

	log := w.logger.WithFields(logrus.Fields{
		"partition_id": partition.ID,
		"pages":        pages,
		"worker":       w.ID,
	})

	renderer, err := w.factory.NewRenderer(ctx, partition)
	if err != nil {
		log.WithError(err).Error("Failed to acquire renderer")
		result.Fatal = true
		result.Err = fmt.Errorf("acquire renderer: %w", err)
		result.FailedPages = pages
		result.PagesFailed = len(pages)
		return result
	}
	defer func() {
		if err := renderer.Close(); err != nil {
			log.WithError(err).Warn("Failed to release renderer")
		}
	}()

	log.Debug("Page fill started")

	for i, page := range pages {
		res, err := w.renderWithRetry(ctx, renderer, w.request(partition.ID, page, i == 0, NavigateJump), log)
		if err != nil {
			if ctx.Err() != nil {
				result.FailedPages = append(result.FailedPages, pages[i:]...)
				result.PagesFailed += len(pages) - i
				result.Err = fmt.Errorf("page fill interrupted at page %d: %w", page, ctx.Err())
				log.WithError(ctx.Err()).Warn("Page fill interrupted")
				break
			}
			result.failPages(page, page)
			result.Err = fmt.Errorf("page %d: %w", page, err)
			log.WithError(err).WithField("page", page).Warn("Page failed after retries")
			continue
		}

		result.PagesOK++
		w.collect(&result, res.Rows, partition, page, log)
		if w.heartbeat != nil {
			w.heartbeat(result.Range, page, len(result.Records))
		}
	}

	log.WithFields(logrus.Fields{
		"records":      len(result.Records),
		"pages_ok":     result.PagesOK,
		"failed_pages": result.FailedPages,
	}).Info("Page fill finished")

	return result
}

// failPages marks pages from through to as failed
func (r *WorkerResult) failPages(from, to int) {
	for page := from; page <= to; page++ {
		r.FailedPages = append(r.FailedPages, page)
		r.PagesFailed++
	}
}

// positionAt renders the first page of a range. Pages after the first are
// reached with a jump; if the jump fails the worker steps there from page 1,
// discarding the rows on the way. A nil result with a nil error means the
// listing ended before start.
func (w *RangeWorker) positionAt(ctx context.Context, r PageRenderer, partitionID, start int, log *logrus.Entry) (*RenderResult, error) {
	if start <= 1 {
		return w.renderWithRetry(ctx, r, w.request(partitionID, 1, true, NavigateStep), log)
	}

	res, err := w.renderWithRetry(ctx, r, w.request(partitionID, start, true, NavigateJump), log)
	if err == nil || ctx.Err() != nil {
		return res, err
	}
	log.WithError(err).WithField("page", start).Warn("Page jump failed, stepping from page 1")

	res, err = w.renderWithRetry(ctx, r, w.request(partitionID, 1, true, NavigateStep), log)
	for page := 2; err == nil && page <= start; page++ {
		if !res.HasNext {
			return nil, nil
		}
		res, err = w.renderWithRetry(ctx, r, w.request(partitionID, page, false, NavigateStep), log)
	}
	if err != nil {
		return nil, fmt.Errorf("sequential positioning to page %d: %w", start, err)
	}
	return res, nil
}

func (w *RangeWorker) request(partitionID, page int, first bool, nav Navigation) RenderRequest {
	return RenderRequest{
		PartitionID:  partitionID,
		Page:         page,
		FirstInRange: first,
		Navigation:   nav,
		FieldSet:     w.opts.FieldSet,
	}
}

// renderWithRetry renders one page, retrying transient failures per the policy
func (w *RangeWorker) renderWithRetry(ctx context.Context, r PageRenderer, req RenderRequest, log *logrus.Entry) (*RenderResult, error) {
	attempts := w.opts.Retry.Attempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if w.opts.PageTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, w.opts.PageTimeout)
		}
		res, err := r.Render(attemptCtx, req)
		cancel()

		if err == nil {
			if res == nil {
				res = &RenderResult{}
			}
			return res, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			break
		}

		if attempt < attempts {
			log.WithError(err).WithFields(logrus.Fields{
				"page":       req.Page,
				"navigation": req.Navigation.String(),
				"attempt":    attempt,
			}).Debug("Retrying page")
			if err := w.opts.Retry.Wait(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func (w *RangeWorker) collect(result *WorkerResult, rows []models.RawRow, partition models.Partition, page int, log *logrus.Entry) {
	extractedAt := w.now()
	for i, row := range rows {
		record, err := w.parser.Parse(row, partition, page, i, extractedAt)
		if err != nil {
			result.RowsSkipped++
			log.WithError(err).WithFields(logrus.Fields{"page": page, "row": i}).Debug("Skipping row")
			continue
		}
		result.Records = append(result.Records, record)
	}
}

// retryable reports whether a render failure is worth another attempt.
// Unknown errors are treated as transient.
func retryable(err error) bool {
	var renderErr *RenderError
	if errors.As(err, &renderErr) {
		return renderErr.Retryable
	}
	return true
}
