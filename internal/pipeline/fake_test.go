package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nexconsult/precatorios/internal/logger"
	"github.com/nexconsult/precatorios/internal/models"
)

// fakePortal serves deterministic listing pages for tests. Partition p has
// rows[p] rows, page size 10, and row i carries number "<p>-<i>".
type fakePortal struct {
	mu sync.Mutex

	pageSize int
	rows     map[int]int

	// failing pages, per partition; always fail when present
	failPages map[int]map[int]bool
	// every page from failFrom on fails (0 disables)
	failFrom int
	// malformed[page] is the row index rendered with too few cells
	malformed map[int]int

	jumpBroken      bool
	acquireErr      error
	acquireFailures int
	// renderers created while acquired <= emptyAcquisitions see an empty listing
	emptyAcquisitions int
	// block makes Render wait on it, ignoring ctx
	block chan struct{}
	// honorCtx makes Render wait for ctx to end
	honorCtx bool

	acquired int
	closed   int
	requests []RenderRequest
}

func newFakePortal(rows map[int]int) *fakePortal {
	return &fakePortal{pageSize: 10, rows: rows}
}

func (f *fakePortal) NewRenderer(ctx context.Context, partition models.Partition) (PageRenderer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	if f.acquireFailures > 0 {
		f.acquireFailures--
		return nil, errors.New("browser failed to start")
	}
	f.acquired++
	return &fakeRenderer{portal: f, empty: f.acquired <= f.emptyAcquisitions}, nil
}

func (f *fakePortal) lastPage(partitionID int) int {
	total := f.rows[partitionID]
	if total <= 0 {
		return 1
	}
	return (total + f.pageSize - 1) / f.pageSize
}

func (f *fakePortal) requestsFor(page int) []RenderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []RenderRequest
	for _, r := range f.requests {
		if r.Page == page {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakePortal) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeRenderer struct {
	portal *fakePortal
	empty  bool
}

func (r *fakeRenderer) Render(ctx context.Context, req RenderRequest) (*RenderResult, error) {
	f := r.portal

	if f.block != nil {
		<-f.block
	}
	if f.honorCtx {
		<-ctx.Done()
		return nil, &RenderError{Kind: RenderTimeout, Retryable: true, Page: req.Page, Err: ctx.Err()}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)

	if r.empty {
		return &RenderResult{}, nil
	}
	if req.Navigation == NavigateJump && f.jumpBroken {
		return nil, &RenderError{Kind: RenderJump, Page: req.Page, Err: errors.New("page input not found")}
	}
	if f.failPages[req.PartitionID][req.Page] || (f.failFrom > 0 && req.Page >= f.failFrom) {
		return nil, &RenderError{Kind: RenderNavigation, Retryable: true, Page: req.Page, Err: errors.New("table did not load")}
	}

	last := f.lastPage(req.PartitionID)
	if req.Page > last {
		return nil, &RenderError{Kind: RenderNavigation, Page: req.Page, Err: errors.New("page out of range")}
	}

	total := f.rows[req.PartitionID]
	var rows []models.RawRow
	for i := (req.Page - 1) * f.pageSize; i < min(req.Page*f.pageSize, total); i++ {
		row := fakeRow(req.PartitionID, i)
		if idx, ok := f.malformed[req.Page]; ok && idx == i%f.pageSize {
			row.Cells = row.Cells[:5]
		}
		rows = append(rows, row)
	}
	return &RenderResult{Rows: rows, HasNext: req.Page < last}, nil
}

func (r *fakeRenderer) Close() error {
	r.portal.mu.Lock()
	defer r.portal.mu.Unlock()
	r.portal.closed++
	return nil
}

func fakeRow(partitionID, i int) models.RawRow {
	cells := make([]string, minCells)
	cells[colOrder] = fmt.Sprintf("%dº", i+1)
	cells[colDebtor] = "ESTADO DO RIO DE JANEIRO"
	cells[colNumber] = fmt.Sprintf("%d-%05d", partitionID, i)
	cells[colStatus] = "Pendente"
	cells[colNature] = "Alimentar"
	cells[colBudget] = "2024"
	cells[colHistoricalValue] = "R$ 1.000,00"
	cells[colUpdatedBalance] = "R$ 1.234,56"
	return models.RawRow{Cells: cells}
}

func testWorkerOptions() WorkerOptions {
	return WorkerOptions{
		Retry:                  RetryPolicy{MaxAttempts: 2},
		PageTimeout:            time.Second,
		FieldSet:               models.FieldSetMinimal,
		MaxConsecutiveFailures: 5,
	}
}

func testPoolOptions() PoolOptions {
	return PoolOptions{
		PageSize: 10,
		Timeout:  5 * time.Second,
		Grace:    time.Second,
		Worker:   testWorkerOptions(),
	}
}

// memJournal is an in-memory OutcomeJournal
type memJournal struct {
	mu       sync.Mutex
	outcomes map[string][]models.PartitionOutcome
}

func newMemJournal() *memJournal {
	return &memJournal{outcomes: make(map[string][]models.PartitionOutcome)}
}

func (j *memJournal) Append(ctx context.Context, runID string, outcome models.PartitionOutcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outcomes[runID] = append(j.outcomes[runID], outcome)
	return nil
}

func (j *memJournal) Load(ctx context.Context, runID string) ([]models.PartitionOutcome, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]models.PartitionOutcome(nil), j.outcomes[runID]...), nil
}

// staticLister returns a fixed partition list
type staticLister []models.Partition

func (l staticLister) ListPartitions(ctx context.Context, regime models.Regime) ([]models.Partition, error) {
	return l, nil
}

var testLogger = logger.Discard()
