package pipeline

import (
	"time"

	"github.com/nexconsult/precatorios/internal/models"
)

// RunEvidence is everything a finished run produced, before it is summarised
type RunEvidence struct {
	RunID            string
	Regime           models.Regime
	Partitions       []models.Partition
	PrimaryOutcomes  []models.PartitionOutcome
	RecoveryOutcomes []models.PartitionOutcome
	PrimaryRecords   int
	RecoveryRecords  int
	Merge            MergeResult
	StartedAt        time.Time
	FinishedAt       time.Time
}

// Authoritative returns the partitions whose recovery outcome is clean and
// covers the whole partition. Page fills only add to the primary records.
func Authoritative(recoveryOutcomes []models.PartitionOutcome, threshold float64) []int {
	var ids []int
	for _, o := range recoveryOutcomes {
		if !o.PageFill() && Classify(o, threshold) == models.StatusSuccess {
			ids = append(ids, o.PartitionID)
		}
	}
	return ids
}

// BuildRunResult composes the final run result. A partition is unrecoverable
// when its latest outcome, recovery before primary, is still a gap.
func BuildRunResult(ev RunEvidence, detector *GapDetector) *models.RunResult {
	result := &models.RunResult{
		RunID:         ev.RunID,
		Regime:        ev.Regime,
		Records:       ev.Merge.Records,
		Unrecoverable: []models.UnrecoverablePartition{},
		StartedAt:     ev.StartedAt,
		FinishedAt:    ev.FinishedAt,
	}
	result.Outcomes = append(result.Outcomes, ev.PrimaryOutcomes...)
	result.Outcomes = append(result.Outcomes, ev.RecoveryOutcomes...)

	primaryGaps := make(map[int]bool)
	for _, gap := range detector.Detect(ev.Partitions, ev.PrimaryOutcomes) {
		primaryGaps[gap.Partition.ID] = true
	}

	finalGaps := make(map[int]bool)
	for _, gap := range detector.Detect(ev.Partitions, result.Outcomes) {
		finalGaps[gap.Partition.ID] = true
		entry := models.UnrecoverablePartition{
			Partition:    gap.Partition,
			Status:       gap.Status,
			MissingPages: gap.MissingPages,
		}
		if gap.Outcome != nil {
			entry.ErrorDetail = gap.Outcome.ErrorDetail
		}
		result.Unrecoverable = append(result.Unrecoverable, entry)
	}

	attempted := make(map[int]bool, len(ev.PrimaryOutcomes))
	for _, o := range ev.PrimaryOutcomes {
		attempted[o.PartitionID] = true
	}

	s := &result.Summary
	for _, p := range ev.Partitions {
		s.ExpectedRecords += p.ExpectedRecords
		if attempted[p.ID] {
			s.PartitionsAttempted++
		}
		switch {
		case finalGaps[p.ID]:
			s.PartitionsUnrecoverable++
		case primaryGaps[p.ID]:
			s.PartitionsRecovered++
		default:
			s.PartitionsSucceeded++
		}
	}

	s.PrimaryRecords = ev.PrimaryRecords
	s.RecoveryRecords = ev.RecoveryRecords
	s.TotalRecords = len(ev.Merge.Records)
	s.DuplicatesRemoved = ev.Merge.Duplicates
	s.Superseded = ev.Merge.Superseded
	s.CompletenessPercent = completeness(s.TotalRecords, s.ExpectedRecords)

	return result
}

func completeness(total, expected int) float64 {
	if expected <= 0 {
		return 100
	}
	return float64(total) / float64(expected) * 100
}
