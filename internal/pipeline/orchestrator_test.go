package pipeline

import (
	"context"
	"testing"

	"github.com/nexconsult/precatorios/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrchestratorRunsPartitionsInOrder(t *testing.T) {
	portal := newFakePortal(map[int]int{1: 25, 2: 0, 3: 40})
	portal.failPages = map[int]map[int]bool{3: {4: true}}
	journal := newMemJournal()
	sink := &recordingSink{}

	pool := NewWorkerPool(portal, testPoolOptions(), testLogger)
	orch := NewOrchestrator(pool, journal, sink, testLogger)

	partitions := []models.Partition{
		{ID: 1, ExpectedRecords: 25},
		{ID: 2, ExpectedRecords: 0},
		{ID: 3, ExpectedRecords: 40},
	}
	records, outcomes := orch.Run(context.Background(), "run", partitions, 2, models.PassPrimary)

	assert.Len(t, records, 55)
	require.Len(t, outcomes, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{outcomes[0].PartitionID, outcomes[1].PartitionID, outcomes[2].PartitionID})
	assert.Equal(t, models.StatusSuccess, outcomes[1].Status)
	assert.Equal(t, models.StatusPartialFailure, outcomes[2].Status)

	journaled, err := journal.Load(context.Background(), "run")
	require.NoError(t, err)
	assert.Equal(t, outcomes, journaled)

	var done []int
	for _, e := range sink.events {
		if e.Kind == models.ProgressPartition {
			done = append(done, e.PartitionsDone)
			assert.Equal(t, 3, e.PartitionsTotal)
			assert.Equal(t, models.PhaseExtraction, e.Phase)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, done)
}

func TestOrchestratorStopsBetweenPartitionsOnCancel(t *testing.T) {
	portal := newFakePortal(map[int]int{1: 10, 2: 10})
	pool := NewWorkerPool(portal, testPoolOptions(), testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	sink := FuncSink(func(e models.ProgressEvent) {
		if e.Kind == models.ProgressPartition {
			cancel()
		}
	})
	orch := NewOrchestrator(pool, nil, sink, testLogger)

	records, outcomes := orch.Run(ctx, "run", []models.Partition{{ID: 1, ExpectedRecords: 10}, {ID: 2, ExpectedRecords: 10}}, 2, models.PassRecovery)

	assert.Len(t, records, 10)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.PassRecovery, outcomes[0].Pass)
}

func TestOrchestratorForwardsHeartbeats(t *testing.T) {
	portal := newFakePortal(map[int]int{1: 100})
	opts := testPoolOptions()
	opts.Worker.HeartbeatEvery = 5
	sink := &recordingSink{}
	orch := NewOrchestrator(NewWorkerPool(portal, opts, testLogger), nil, MultiSink{sink, nil}, testLogger)

	orch.Run(context.Background(), "run", []models.Partition{{ID: 1, ExpectedRecords: 100}}, 1, models.PassPrimary)

	var pages []int
	for _, e := range sink.events {
		if e.Kind == models.ProgressHeartbeat {
			pages = append(pages, e.Page)
			assert.Equal(t, 1, e.CurrentPartition)
			assert.Equal(t, "[1,10]", e.Range)
		}
	}
	assert.Equal(t, []int{5, 10}, pages)
}

func TestOrchestratorJournalsFailedPageNumbers(t *testing.T) {
	portal := newFakePortal(map[int]int{1: 100})
	portal.failPages = map[int]map[int]bool{1: {4: true, 7: true}}
	journal := newMemJournal()
	orch := NewOrchestrator(NewWorkerPool(portal, testPoolOptions(), testLogger), journal, nil, testLogger)
	partitions := []models.Partition{{ID: 1, ExpectedRecords: 100}}

	_, outcomes := orch.Run(context.Background(), "run", partitions, 3, models.PassPrimary)
	require.Len(t, outcomes, 1)
	assert.Equal(t, 2, outcomes[0].PagesFailed)
	assert.Equal(t, []int{4, 7}, outcomes[0].FailedPages)

	journaled, err := journal.Load(context.Background(), "run")
	require.NoError(t, err)
	require.Len(t, journaled, 1)
	assert.Equal(t, []int{4, 7}, journaled[0].FailedPages)

	gaps, err := NewGapDetector(0).DetectFromJournal(context.Background(), journal, "run", partitions)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, models.StatusPartialFailure, gaps[0].Status)
	assert.Equal(t, []int{4, 7}, gaps[0].MissingPages)
}

func TestOrchestratorFillJournalsPatchedOutcome(t *testing.T) {
	portal := newFakePortal(map[int]int{1: 100})
	portal.failPages = map[int]map[int]bool{1: {4: true, 7: true}}
	journal := newMemJournal()
	orch := NewOrchestrator(NewWorkerPool(portal, testPoolOptions(), testLogger), journal, nil, testLogger)
	partitions := []models.Partition{{ID: 1, ExpectedRecords: 100}}

	_, primary := orch.Run(context.Background(), "run", partitions, 1, models.PassPrimary)
	gaps := NewGapDetector(0).Detect(partitions, primary)
	require.Len(t, gaps, 1)

	portal.mu.Lock()
	portal.failPages = map[int]map[int]bool{1: {7: true}}
	portal.mu.Unlock()

	records, outcomes := orch.Fill(context.Background(), "run", gaps)
	assert.Len(t, records, 10)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.PassRecovery, outcomes[0].Pass)
	assert.Equal(t, []int{4, 7}, outcomes[0].FilledPages)
	assert.Equal(t, []int{7}, outcomes[0].FailedPages)
	assert.Equal(t, 90, outcomes[0].RecordsExtracted)

	journaled, err := journal.Load(context.Background(), "run")
	require.NoError(t, err)
	require.Len(t, journaled, 2)
	assert.Equal(t, []int{7}, NewGapDetector(0).Detect(partitions, journaled)[0].MissingPages)
}
