package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/nexconsult/precatorios/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runWorker(t *testing.T, portal *fakePortal, opts WorkerOptions, partition models.Partition, pr models.PageRange) WorkerResult {
	t.Helper()
	return NewRangeWorker(1, portal, opts, testLogger).Run(context.Background(), partition, pr)
}

func TestRangeWorkerExtractsWholeRange(t *testing.T) {
	portal := newFakePortal(map[int]int{1: 100})

	res := runWorker(t, portal, testWorkerOptions(), models.Partition{ID: 1, ExpectedRecords: 100}, models.PageRange{Start: 1, End: 10})

	assert.False(t, res.Fatal)
	assert.NoError(t, res.Err)
	assert.Equal(t, 10, res.PagesOK)
	assert.Zero(t, res.PagesFailed)
	assert.Len(t, res.Records, 100)
	assert.Equal(t, 1, portal.closedCount())
}

func TestRangeWorkerCountsFailedPages(t *testing.T) {
	portal := newFakePortal(map[int]int{1: 100})
	portal.failPages = map[int]map[int]bool{1: {4: true, 7: true}}

	res := runWorker(t, portal, testWorkerOptions(), models.Partition{ID: 1, ExpectedRecords: 100}, models.PageRange{Start: 1, End: 10})

	assert.False(t, res.Fatal)
	assert.Equal(t, 8, res.PagesOK)
	assert.Equal(t, 2, res.PagesFailed)
	assert.Equal(t, []int{4, 7}, res.FailedPages)
	assert.Len(t, res.Records, 80)

	// two attempts per failing page, then a jump to resync
	assert.Len(t, portal.requestsFor(4), 2)
	after := portal.requestsFor(5)
	require.Len(t, after, 1)
	assert.Equal(t, NavigateJump, after[0].Navigation)
	assert.Equal(t, NavigateStep, portal.requestsFor(6)[0].Navigation)
}

func TestRangeWorkerJumpsToRangeStart(t *testing.T) {
	portal := newFakePortal(map[int]int{1: 100})

	res := runWorker(t, portal, testWorkerOptions(), models.Partition{ID: 1, ExpectedRecords: 100}, models.PageRange{Start: 6, End: 10})

	assert.Equal(t, 5, res.PagesOK)
	assert.Len(t, res.Records, 50)
	first := portal.requestsFor(6)
	require.Len(t, first, 1)
	assert.Equal(t, NavigateJump, first[0].Navigation)
	assert.True(t, first[0].FirstInRange)
	assert.Empty(t, portal.requestsFor(1))
}

func TestRangeWorkerFallsBackToStepping(t *testing.T) {
	portal := newFakePortal(map[int]int{1: 50})
	portal.jumpBroken = true

	res := runWorker(t, portal, testWorkerOptions(), models.Partition{ID: 1, ExpectedRecords: 50}, models.PageRange{Start: 3, End: 4})

	assert.Zero(t, res.PagesFailed)
	assert.Equal(t, 2, res.PagesOK)
	require.Len(t, res.Records, 20)
	for _, r := range res.Records {
		assert.Contains(t, []int{3, 4}, r.SourcePage, "rows of intermediate pages are discarded")
	}
	assert.Len(t, portal.requestsFor(1), 1)
	assert.Len(t, portal.requestsFor(2), 1)
}

func TestRangeWorkerOvershootEndsCleanly(t *testing.T) {
	portal := newFakePortal(map[int]int{1: 50})
	portal.jumpBroken = true

	res := runWorker(t, portal, testWorkerOptions(), models.Partition{ID: 1, ExpectedRecords: 100}, models.PageRange{Start: 8, End: 10})

	assert.Zero(t, res.PagesOK)
	assert.Zero(t, res.PagesFailed)
	assert.Empty(t, res.Records)
	assert.NoError(t, res.Err)
}

func TestRangeWorkerStopsEarlyWithoutNextPage(t *testing.T) {
	portal := newFakePortal(map[int]int{1: 35})

	res := runWorker(t, portal, testWorkerOptions(), models.Partition{ID: 1, ExpectedRecords: 100}, models.PageRange{Start: 1, End: 10})

	assert.Equal(t, 4, res.PagesOK)
	assert.Zero(t, res.PagesFailed)
	assert.Len(t, res.Records, 35)
	assert.Empty(t, portal.requestsFor(5))
}

func TestRangeWorkerAcquisitionFailureIsFatal(t *testing.T) {
	portal := newFakePortal(map[int]int{1: 100})
	portal.acquireErr = errors.New("chrome not found")

	res := runWorker(t, portal, testWorkerOptions(), models.Partition{ID: 1, ExpectedRecords: 100}, models.PageRange{Start: 1, End: 10})

	assert.True(t, res.Fatal)
	assert.ErrorContains(t, res.Err, "chrome not found")
	assert.Equal(t, 10, res.PagesFailed)
	assert.Empty(t, res.Records)
	assert.Zero(t, portal.closedCount())
}

func TestRangeWorkerSkipsMalformedRows(t *testing.T) {
	portal := newFakePortal(map[int]int{1: 20})
	portal.malformed = map[int]int{2: 3}

	res := runWorker(t, portal, testWorkerOptions(), models.Partition{ID: 1, ExpectedRecords: 20}, models.PageRange{Start: 1, End: 2})

	assert.Equal(t, 2, res.PagesOK)
	assert.Equal(t, 1, res.RowsSkipped)
	assert.Len(t, res.Records, 19)
}

func TestRangeWorkerAbandonsDeadSession(t *testing.T) {
	portal := newFakePortal(map[int]int{1: 100})
	portal.failFrom = 2
	opts := testWorkerOptions()
	opts.MaxConsecutiveFailures = 3

	res := runWorker(t, portal, opts, models.Partition{ID: 1, ExpectedRecords: 100}, models.PageRange{Start: 1, End: 10})

	assert.Equal(t, 1, res.PagesOK)
	assert.Equal(t, 9, res.PagesFailed)
	assert.ErrorContains(t, res.Err, "consecutive")
	assert.Empty(t, portal.requestsFor(5))
}

func TestRangeWorkerHeartbeat(t *testing.T) {
	portal := newFakePortal(map[int]int{1: 100})
	opts := testWorkerOptions()
	opts.HeartbeatEvery = 4

	worker := NewRangeWorker(1, portal, opts, testLogger)
	var pages []int
	worker.heartbeat = func(pr models.PageRange, page, records int) {
		pages = append(pages, page)
	}
	worker.Run(context.Background(), models.Partition{ID: 1, ExpectedRecords: 100}, models.PageRange{Start: 1, End: 10})

	assert.Equal(t, []int{4, 8}, pages)
}

func TestRangeWorkerCancelledContext(t *testing.T) {
	portal := newFakePortal(map[int]int{1: 100})
	portal.honorCtx = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := NewRangeWorker(1, portal, testWorkerOptions(), testLogger).Run(ctx, models.Partition{ID: 1, ExpectedRecords: 100}, models.PageRange{Start: 1, End: 10})

	assert.Equal(t, 10, res.PagesFailed)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 1, portal.closedCount())
}

func TestRangeWorkerRunPagesJumpsToEachPage(t *testing.T) {
	portal := newFakePortal(map[int]int{1: 100})
	portal.failPages = map[int]map[int]bool{1: {7: true}}

	res := NewRangeWorker(1, portal, testWorkerOptions(), testLogger).
		RunPages(context.Background(), models.Partition{ID: 1, ExpectedRecords: 100}, []int{7, 4, 4})

	assert.Equal(t, models.PageRange{Start: 4, End: 7}, res.Range)
	assert.Equal(t, 1, res.PagesOK)
	assert.Equal(t, 1, res.PagesFailed)
	assert.Equal(t, []int{7}, res.FailedPages)
	require.Len(t, res.Records, 10)
	for _, r := range res.Records {
		assert.Equal(t, 4, r.SourcePage)
	}

	first := portal.requestsFor(4)
	require.Len(t, first, 1)
	assert.Equal(t, NavigateJump, first[0].Navigation)
	assert.True(t, first[0].FirstInRange)
	for _, req := range portal.requestsFor(7) {
		assert.Equal(t, NavigateJump, req.Navigation)
		assert.False(t, req.FirstInRange)
	}
	assert.Empty(t, portal.requestsFor(5))
	assert.Equal(t, 1, portal.closedCount())
}

func TestRangeWorkerRunPagesAcquisitionFailure(t *testing.T) {
	portal := newFakePortal(map[int]int{1: 100})
	portal.acquireErr = errors.New("no browser")

	res := NewRangeWorker(1, portal, testWorkerOptions(), testLogger).
		RunPages(context.Background(), models.Partition{ID: 1}, []int{9, 2})

	assert.True(t, res.Fatal)
	assert.Equal(t, []int{2, 9}, res.FailedPages)
	assert.Equal(t, 2, res.PagesFailed)
}
