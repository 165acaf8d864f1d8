package pipeline

import (
	"context"
	"testing"

	"github.com/nexconsult/precatorios/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outcome(id, expected, records, pagesFailed int) models.PartitionOutcome {
	o := models.PartitionOutcome{
		PartitionID:      id,
		ExpectedRecords:  expected,
		RecordsExtracted: records,
		PagesFailed:      pagesFailed,
		Workers:          1,
	}
	o.Status = Classify(o, 0)
	return o
}

func TestGapDetectorEmptyPartitionIsNotAGap(t *testing.T) {
	partitions := []models.Partition{{ID: 1, ExpectedRecords: 0}}

	gaps := NewGapDetector(0).Detect(partitions, []models.PartitionOutcome{outcome(1, 0, 0, 0)})
	assert.Empty(t, gaps)
}

func TestGapDetectorFlags(t *testing.T) {
	partitions := []models.Partition{
		{ID: 1, ExpectedRecords: 500},
		{ID: 2, ExpectedRecords: 100},
		{ID: 3, ExpectedRecords: 100},
		{ID: 4, ExpectedRecords: 100},
	}
	outcomes := []models.PartitionOutcome{
		outcome(1, 500, 0, 0),
		outcome(2, 100, 90, 1),
		outcome(3, 100, 100, 0),
	}

	gaps := NewGapDetector(0).Detect(partitions, outcomes)
	require.Len(t, gaps, 3)

	assert.Equal(t, 1, gaps[0].Partition.ID)
	assert.Equal(t, models.StatusZeroYield, gaps[0].Status)
	require.NotNil(t, gaps[0].Outcome)

	assert.Equal(t, 2, gaps[1].Partition.ID)
	assert.Equal(t, models.StatusPartialFailure, gaps[1].Status)

	assert.Equal(t, 4, gaps[2].Partition.ID)
	assert.Equal(t, models.StatusNotAttempted, gaps[2].Status)
	assert.Nil(t, gaps[2].Outcome)
}

func TestGapDetectorLatestOutcomeWins(t *testing.T) {
	partitions := []models.Partition{{ID: 1, ExpectedRecords: 200}}
	outcomes := []models.PartitionOutcome{
		outcome(1, 200, 0, 0),
		outcome(1, 200, 198, 0),
	}

	assert.Empty(t, NewGapDetector(0).Flagged(partitions, outcomes))
}

func TestGapDetectorRederivesStatus(t *testing.T) {
	partitions := []models.Partition{{ID: 1, ExpectedRecords: 100}}
	stale := outcome(1, 100, 50, 0)
	stale.Status = models.StatusSuccess

	assert.Empty(t, NewGapDetector(0).Flagged(partitions, []models.PartitionOutcome{stale}))
	assert.Len(t, NewGapDetector(0.9).Flagged(partitions, []models.PartitionOutcome{stale}), 1)
}

func TestGapDetectorFromJournal(t *testing.T) {
	journal := newMemJournal()
	ctx := context.Background()
	require.NoError(t, journal.Append(ctx, "run-1", outcome(1, 10, 10, 0)))

	partitions := []models.Partition{{ID: 1, ExpectedRecords: 10}, {ID: 2, ExpectedRecords: 10}}
	gaps, err := NewGapDetector(0).DetectFromJournal(ctx, journal, "run-1", partitions)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, 2, gaps[0].Partition.ID)
	assert.Equal(t, models.StatusNotAttempted, gaps[0].Status)
}
